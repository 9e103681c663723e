package student

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/studytrack/core/internal/middleware"
	"github.com/studytrack/core/internal/models"
	"github.com/studytrack/core/internal/modules/presence"
	"github.com/studytrack/core/internal/pkg/pagination"
	"github.com/studytrack/core/internal/pkg/response"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CreateStudentDTO struct {
	UserID string `json:"user_id"`
	Name   string `json:"name" binding:"required"`
	Email  string `json:"email"`
	Grade  string `json:"grade"`
}

type UpdateStudentDTO struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Grade    *string `json:"grade"`
	Archived *bool   `json:"archived"`
}

type studentResponse struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id,omitempty"`
	Name     string    `json:"name"`
	Email    string    `json:"email,omitempty"`
	Grade    string    `json:"grade,omitempty"`
	Archived bool      `json:"archived"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// rosterEntry couples a student row with the live presence status of the
// identity behind it. Students without a linked user id read as offline.
type rosterEntry struct {
	studentResponse
	Status presence.Status `json:"status"`
}

func toResponse(m *models.StudentModel) studentResponse {
	return studentResponse{
		ID: m.ID, UserID: m.UserID, Name: m.Name, Email: m.Email,
		Grade: m.Grade, Archived: m.Archived,
		Created: m.CreatedAt, Modified: m.UpdatedAt,
	}
}

type Service struct {
	coll     *mongo.Collection
	presence *presence.Service
}

func NewService(db *mongo.Database, ps *presence.Service) *Service {
	return &Service{coll: db.Collection(models.StudentModel{}.Collection()), presence: ps}
}

func (s *Service) List(ctx context.Context, teacherID string, includeArchived bool, q pagination.Query) ([]models.StudentModel, response.Pagination, error) {
	filter := bson.M{"teacher_id": teacherID}
	if !includeArchived {
		filter["archived"] = false
	}
	var items []models.StudentModel
	pag, err := pagination.Paginate(ctx, s.coll, filter, bson.D{{Key: "name", Value: 1}}, q, &items)
	return items, pag, err
}

func (s *Service) GetByID(ctx context.Context, teacherID, id string) (*models.StudentModel, error) {
	var m models.StudentModel
	err := s.coll.FindOne(ctx, bson.M{"_id": id, "teacher_id": teacherID}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) Create(ctx context.Context, teacherID string, dto *CreateStudentDTO) (*models.StudentModel, error) {
	m := models.StudentModel{
		Base:      models.NewBase(),
		UserID:    dto.UserID,
		Name:      dto.Name,
		Email:     dto.Email,
		Grade:     dto.Grade,
		TeacherID: teacherID,
	}
	if _, err := s.coll.InsertOne(ctx, &m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("user already linked to a student")
		}
		return nil, err
	}
	return &m, nil
}

func (s *Service) Update(ctx context.Context, teacherID, id string, dto *UpdateStudentDTO) (*models.StudentModel, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if dto.Name != nil {
		set["name"] = *dto.Name
	}
	if dto.Email != nil {
		set["email"] = *dto.Email
	}
	if dto.Grade != nil {
		set["grade"] = *dto.Grade
	}
	if dto.Archived != nil {
		set["archived"] = *dto.Archived
	}

	var m models.StudentModel
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "teacher_id": teacherID},
		bson.M{"$set": set},
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

func (s *Service) Delete(ctx context.Context, teacherID, id string) (bool, error) {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id, "teacher_id": teacherID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// Roster lists a teacher's active students annotated with live presence.
// Presence lookups degrade per student: a storage fault marks that entry
// unknown instead of failing the whole roster.
func (s *Service) Roster(ctx context.Context, teacherID string) ([]rosterEntry, error) {
	cursor, err := s.coll.Find(ctx,
		bson.M{"teacher_id": teacherID, "archived": false},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	var items []models.StudentModel
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}

	out := make([]rosterEntry, len(items))
	for i, m := range items {
		entry := rosterEntry{studentResponse: toResponse(&m), Status: presence.StatusOffline}
		if m.UserID != "" && s.presence != nil {
			entry.Status = s.presence.GetStatus(m.UserID)
		}
		out[i] = entry
	}
	return out, nil
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, mws ...gin.HandlerFunc) {
	g := rg.Group("/students", mws...)
	g.GET("", h.list)
	g.GET("/roster", h.roster)
	g.GET("/:id", h.get)
	g.POST("", h.create)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	includeArchived := c.Query("archived") == "true"
	items, pag, err := h.svc.List(c.Request.Context(), teacherID(c), includeArchived, q)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]studentResponse, len(items))
	for i, m := range items {
		out[i] = toResponse(&m)
	}
	response.Paged(c, out, pag)
}

func (h *Handler) roster(c *gin.Context) {
	entries, err := h.svc.Roster(c.Request.Context(), teacherID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, entries)
}

func (h *Handler) get(c *gin.Context) {
	m, err := h.svc.GetByID(c.Request.Context(), teacherID(c), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if m == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(m))
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateStudentDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	m, err := h.svc.Create(c.Request.Context(), teacherID(c), &dto)
	if err != nil {
		if err.Error() == "user already linked to a student" {
			response.Conflict(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Created(c, toResponse(m))
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateStudentDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	m, err := h.svc.Update(c.Request.Context(), teacherID(c), c.Param("id"), &dto)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if m == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(m))
}

func (h *Handler) delete(c *gin.Context) {
	ok, err := h.svc.Delete(c.Request.Context(), teacherID(c), c.Param("id"))
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

func teacherID(c *gin.Context) string {
	return middleware.CurrentUserID(c)
}
