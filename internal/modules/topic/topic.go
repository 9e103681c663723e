package topic

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/studytrack/core/internal/models"
	"github.com/studytrack/core/internal/pkg/pagination"
	"github.com/studytrack/core/internal/pkg/response"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CreateTopicDTO struct {
	StudentID string `json:"student_id" binding:"required"`
	Subject   string `json:"subject" binding:"required"`
	Name      string `json:"name" binding:"required"`
}

type SetStateDTO struct {
	State models.TopicState `json:"state" binding:"required"`
}

// progressSummary aggregates per-subject completion for one student.
type progressSummary struct {
	Subject   string `json:"subject"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
}

type Service struct{ coll *mongo.Collection }

func NewService(db *mongo.Database) *Service {
	return &Service{coll: db.Collection(models.TopicModel{}.Collection())}
}

func (s *Service) Create(ctx context.Context, dto *CreateTopicDTO) (*models.TopicModel, error) {
	m := models.TopicModel{
		Base:      models.NewBase(),
		StudentID: dto.StudentID,
		Subject:   dto.Subject,
		Name:      dto.Name,
		State:     models.TopicNotStarted,
	}
	if _, err := s.coll.InsertOne(ctx, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) ListForStudent(ctx context.Context, studentID, subject string, q pagination.Query) ([]models.TopicModel, response.Pagination, error) {
	filter := bson.M{"student_id": studentID}
	if subject != "" {
		filter["subject"] = subject
	}
	var items []models.TopicModel
	pag, err := pagination.Paginate(ctx, s.coll, filter,
		bson.D{{Key: "subject", Value: 1}, {Key: "name", Value: 1}},
		q, &items)
	return items, pag, err
}

// SetState moves a topic to the given state. Entering completed stamps
// CompletedAt; leaving it clears the stamp.
func (s *Service) SetState(ctx context.Context, id string, state models.TopicState) (*models.TopicModel, error) {
	if !state.Valid() {
		return nil, errors.New("invalid topic state")
	}

	update := bson.M{"state": state, "updated_at": time.Now().UTC()}
	unset := bson.M{}
	if state == models.TopicCompleted {
		update["completed_at"] = time.Now().UTC()
	} else {
		unset["completed_at"] = ""
	}

	modifier := bson.M{"$set": update}
	if len(unset) > 0 {
		modifier["$unset"] = unset
	}

	var m models.TopicModel
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, modifier,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Progress returns the per-subject completion counts for one student.
func (s *Service) Progress(ctx context.Context, studentID string) ([]progressSummary, error) {
	cursor, err := s.coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"student_id": studentID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$subject",
			"total": bson.M{"$sum": 1},
			"completed": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$state", models.TopicCompleted}}, 1, 0,
			}}},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	})
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Subject   string `bson:"_id"`
		Total     int    `bson:"total"`
		Completed int    `bson:"completed"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]progressSummary, len(rows))
	for i, r := range rows {
		out[i] = progressSummary{Subject: r.Subject, Total: r.Total, Completed: r.Completed}
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/topics", authMW)
	g.GET("/student/:sid", h.listForStudent)
	g.GET("/student/:sid/progress", h.progress)
	g.POST("", h.create)
	g.PUT("/:id/state", h.setState)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) listForStudent(c *gin.Context) {
	q := pagination.FromContext(c)
	items, pag, err := h.svc.ListForStudent(c.Request.Context(), c.Param("sid"), c.Query("subject"), q)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pag)
}

func (h *Handler) progress(c *gin.Context) {
	summary, err := h.svc.Progress(c.Request.Context(), c.Param("sid"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, summary)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateTopicDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	m, err := h.svc.Create(c.Request.Context(), &dto)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, m)
}

func (h *Handler) setState(c *gin.Context) {
	var dto SetStateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	m, err := h.svc.SetState(c.Request.Context(), c.Param("id"), dto.State)
	if err != nil {
		if err.Error() == "invalid topic state" {
			response.UnprocessableEntity(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	if m == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, m)
}

func (h *Handler) delete(c *gin.Context) {
	ok, err := h.svc.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if !ok {
		response.NotFound(c)
		return
	}
	response.NoContent(c)
}
