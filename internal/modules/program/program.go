package program

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

type EntryDTO struct {
	Day         int    `json:"day" binding:"min=0,max=6"`
	Subject     string `json:"subject" binding:"required"`
	Topic       string `json:"topic"`
	DurationMin int    `json:"duration_min" binding:"min=0"`
	Done        bool   `json:"done"`
}

type UpsertProgramDTO struct {
	StudentID string     `json:"student_id" binding:"required"`
	WeekStart string     `json:"week_start" binding:"required"` // YYYY-MM-DD, a Monday
	Entries   []EntryDTO `json:"entries"`
}

type MarkEntryDTO struct {
	Index int  `json:"index" binding:"min=0"`
	Done  bool `json:"done"`
}

func toEntries(dtos []EntryDTO) []models.ProgramEntry {
	entries := make([]models.ProgramEntry, len(dtos))
	for i, e := range dtos {
		entries[i] = models.ProgramEntry{
			Day: e.Day, Subject: e.Subject, Topic: e.Topic,
			DurationMin: e.DurationMin, Done: e.Done,
		}
	}
	return entries
}

type Service struct{ coll *mongo.Collection }

func NewService(db *mongo.Database) *Service {
	return &Service{coll: db.Collection(models.ProgramModel{}.Collection())}
}

// Upsert writes the weekly program for (student, week), replacing the entry
// list wholesale. One document per student per week.
func (s *Service) Upsert(ctx context.Context, dto *UpsertProgramDTO) (*models.ProgramModel, error) {
	week, err := parseWeekStart(dto.WeekStart)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var m models.ProgramModel
	err = s.coll.FindOneAndUpdate(ctx,
		bson.M{"student_id": dto.StudentID, "week_start": week},
		bson.M{
			"$set": bson.M{
				"entries":    toEntries(dto.Entries),
				"updated_at": now,
			},
			"$setOnInsert": bson.M{
				"_id":        models.NewBase().ID,
				"student_id": dto.StudentID,
				"week_start": week,
				"created_at": now,
			},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) GetWeek(ctx context.Context, studentID string, week time.Time) (*models.ProgramModel, error) {
	var m models.ProgramModel
	err := s.coll.FindOne(ctx, bson.M{"student_id": studentID, "week_start": week}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) History(ctx context.Context, studentID string, q pagination.Query) ([]models.ProgramModel, response.Pagination, error) {
	var items []models.ProgramModel
	pag, err := pagination.Paginate(ctx, s.coll,
		bson.M{"student_id": studentID},
		bson.D{{Key: "week_start", Value: -1}},
		q, &items)
	return items, pag, err
}

// MarkEntry flips the done flag of a single entry by positional index.
func (s *Service) MarkEntry(ctx context.Context, id string, dto *MarkEntryDTO) (*models.ProgramModel, error) {
	var m models.ProgramModel
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	if dto.Index >= len(m.Entries) {
		return nil, errors.New("entry index out of range")
	}

	m.Entries[dto.Index].Done = dto.Done
	m.Touch()
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"entries":    m.Entries,
		"updated_at": m.UpdatedAt,
	}})
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

func parseWeekStart(raw string) (time.Time, error) {
	week, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.New("week_start must be YYYY-MM-DD")
	}
	return week.UTC(), nil
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/programs", authMW)
	g.GET("/student/:sid", h.history)
	g.GET("/student/:sid/week/:week", h.getWeek)
	g.PUT("", h.upsert)
	g.PATCH("/:id/entry", h.markEntry)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) history(c *gin.Context) {
	q := pagination.FromContext(c)
	items, pag, err := h.svc.History(c.Request.Context(), c.Param("sid"), q)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pag)
}

func (h *Handler) getWeek(c *gin.Context) {
	week, err := parseWeekStart(c.Param("week"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	m, err := h.svc.GetWeek(c.Request.Context(), c.Param("sid"), week)
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

func (h *Handler) upsert(c *gin.Context) {
	var dto UpsertProgramDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	m, err := h.svc.Upsert(c.Request.Context(), &dto)
	if err != nil {
		if err.Error() == "week_start must be YYYY-MM-DD" {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, m)
}

func (h *Handler) markEntry(c *gin.Context) {
	var dto MarkEntryDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	m, err := h.svc.MarkEntry(c.Request.Context(), c.Param("id"), &dto)
	if err != nil {
		if err.Error() == "entry index out of range" {
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
