package exam

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

type SectionDTO struct {
	Name    string `json:"name" binding:"required"`
	Correct int    `json:"correct" binding:"min=0"`
	Wrong   int    `json:"wrong" binding:"min=0"`
	Blank   int    `json:"blank" binding:"min=0"`
}

type CreateExamDTO struct {
	StudentID string       `json:"student_id" binding:"required"`
	Name      string       `json:"name" binding:"required"`
	TakenAt   time.Time    `json:"taken_at" binding:"required"`
	Sections  []SectionDTO `json:"sections" binding:"required,min=1"`
}

// SetScoreDTO records the derived score computed by the external scoring
// collaborator.
type SetScoreDTO struct {
	Score float64 `json:"score"`
}

type Service struct{ coll *mongo.Collection }

func NewService(db *mongo.Database) *Service {
	return &Service{coll: db.Collection(models.ExamModel{}.Collection())}
}

func (s *Service) Create(ctx context.Context, dto *CreateExamDTO) (*models.ExamModel, error) {
	sections := make([]models.ExamSection, len(dto.Sections))
	for i, sec := range dto.Sections {
		sections[i] = models.ExamSection{
			Name: sec.Name, Correct: sec.Correct, Wrong: sec.Wrong, Blank: sec.Blank,
		}
	}
	m := models.ExamModel{
		Base:      models.NewBase(),
		StudentID: dto.StudentID,
		Name:      dto.Name,
		TakenAt:   dto.TakenAt.UTC(),
		Sections:  sections,
	}
	if _, err := s.coll.InsertOne(ctx, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.ExamModel, error) {
	var m models.ExamModel
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) ListForStudent(ctx context.Context, studentID string, q pagination.Query) ([]models.ExamModel, response.Pagination, error) {
	var items []models.ExamModel
	pag, err := pagination.Paginate(ctx, s.coll,
		bson.M{"student_id": studentID},
		bson.D{{Key: "taken_at", Value: -1}},
		q, &items)
	return items, pag, err
}

func (s *Service) SetScore(ctx context.Context, id string, score float64) (*models.ExamModel, error) {
	var m models.ExamModel
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"score": score, "updated_at": time.Now().UTC()}},
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
	g := rg.Group("/exams", authMW)
	g.GET("/student/:sid", h.listForStudent)
	g.GET("/:id", h.get)
	g.POST("", h.create)
	g.PUT("/:id/score", h.setScore)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) listForStudent(c *gin.Context) {
	q := pagination.FromContext(c)
	items, pag, err := h.svc.ListForStudent(c.Request.Context(), c.Param("sid"), q)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pag)
}

func (h *Handler) get(c *gin.Context) {
	m, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if m == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, m)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateExamDTO
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

func (h *Handler) setScore(c *gin.Context) {
	var dto SetScoreDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	m, err := h.svc.SetScore(c.Request.Context(), c.Param("id"), dto.Score)
	if err != nil {
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
