package presence

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/studytrack/core/internal/middleware"
	"github.com/studytrack/core/internal/pkg/response"
)

type registerDTO struct {
	SessionID string `json:"sessionId" binding:"required"`
}

type heartbeatDTO struct {
	SessionID string `json:"sessionId" binding:"required"`
	Status    Status `json:"status"`
}

type deregisterDTO struct {
	SessionID string `json:"sessionId" binding:"required"`
}

// Handler exposes the ingestion and query API over HTTP. Streaming delivery
// lives in the gateway; this surface covers request/response callers and the
// page-unload beacon path.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/presence")

	a := g.Group("", authMW)
	a.POST("/register", h.register)
	a.POST("/heartbeat", h.heartbeat)
	a.POST("/deregister", h.deregister)
	a.GET("/sessions", h.sessions)

	g.GET("/status/:uid", h.status)
	g.GET("/status", h.statuses)
}

// POST /presence/register. The session id is generated client-side; the user
// id comes from the identity boundary, never from the body.
func (h *Handler) register(c *gin.Context) {
	var dto registerDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	userID := middleware.CurrentUserID(c)

	err := h.svc.Register(c.Request.Context(), userID, dto.SessionID)
	switch {
	case err == nil:
		response.Created(c, gin.H{"sessionId": dto.SessionID, "userId": userID})
	case errors.Is(err, ErrDuplicateSession):
		// Client recovers by minting a new id; nothing user-visible.
		response.Conflict(c, "session id already registered")
	case errors.Is(err, ErrStorageUnavailable):
		response.ServiceUnavailable(c, "presence temporarily unavailable")
	default:
		response.BadRequest(c, err.Error())
	}
}

// POST /presence/heartbeat
func (h *Handler) heartbeat(c *gin.Context) {
	var dto heartbeatDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if dto.Status != "" && !dto.Status.ValidLocal() {
		response.BadRequest(c, "status must be online or away")
		return
	}

	err := h.svc.Heartbeat(c.Request.Context(), dto.SessionID, dto.Status)
	switch {
	case err == nil:
		response.OK(c, gin.H{"ok": 1})
	case errors.Is(err, ErrUnknownSession):
		// Normal race after a staleness removal; the caller re-registers.
		response.NotFoundMsg(c, "unknown session, re-register")
	case errors.Is(err, ErrStorageUnavailable):
		response.ServiceUnavailable(c, "presence temporarily unavailable")
	default:
		response.BadRequest(c, err.Error())
	}
}

// POST /presence/deregister. Idempotent, always 204 on the happy path so the
// unload beacon never retries.
func (h *Handler) deregister(c *gin.Context) {
	var dto deregisterDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.svc.Deregister(c.Request.Context(), dto.SessionID); err != nil {
		if errors.Is(err, ErrStorageUnavailable) {
			response.ServiceUnavailable(c, "presence temporarily unavailable")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

// GET /presence/sessions lists the caller's own live sessions.
func (h *Handler) sessions(c *gin.Context) {
	sessions, err := h.svc.SessionsFor(middleware.CurrentUserID(c))
	if err != nil {
		response.ServiceUnavailable(c, "presence temporarily unavailable")
		return
	}
	response.OK(c, sessions)
}

// GET /presence/status/:uid
func (h *Handler) status(c *gin.Context) {
	uid := c.Param("uid")
	response.OK(c, gin.H{
		"userId": uid,
		"status": h.svc.GetStatus(uid),
		"at":     time.Now().UTC(),
	})
}

// GET /presence/status?ids=a,b,c
func (h *Handler) statuses(c *gin.Context) {
	raw := c.Query("ids")
	if strings.TrimSpace(raw) == "" {
		response.BadRequest(c, "ids query parameter is required")
		return
	}
	ids := strings.Split(raw, ",")
	for i := range ids {
		ids[i] = strings.TrimSpace(ids[i])
	}
	response.OK(c, h.svc.Statuses(ids))
}
