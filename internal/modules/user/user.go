package user

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/studytrack/core/internal/models"
	"github.com/studytrack/core/internal/pkg/response"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Service exposes the identity mirror: read-mostly user records plus the
// single durable write this system owns, last_seen_at.
type Service struct{ coll *mongo.Collection }

func NewService(db *mongo.Database) *Service {
	return &Service{coll: db.Collection(models.UserModel{}.Collection())}
}

// RecordLastSeen upserts last_seen_at for a user. Called once per presence
// session termination, never on heartbeats.
func (s *Service) RecordLastSeen(ctx context.Context, userID string, at time.Time) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$set":         bson.M{"last_seen_at": at.UTC(), "updated_at": time.Now().UTC()},
			"$setOnInsert": bson.M{"created_at": time.Now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.UserModel, error) {
	var m models.UserModel
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/users", authMW)
	g.GET("/:id", h.get)
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
