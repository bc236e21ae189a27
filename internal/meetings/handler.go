package meetings

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/meeting-scheduler/backend/internal/middleware"
	"github.com/meeting-scheduler/backend/internal/models"
	"github.com/meeting-scheduler/backend/pkg/response"
)

// APIVersion is reported by the index route.
const APIVersion = "1.0.0"

// CreateRequest is the body for POST /meetings.
type CreateRequest struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Organizer   string              `json:"organizer"`
	Dates       []string            `json:"dates"`
	TimeSlots   map[string][]string `json:"time_slots"`
}

// JoinRequest is the body for POST /meetings/:id/participants.
type JoinRequest struct {
	Name         string              `json:"name"`
	Availability models.Availability `json:"availability"`
	Comment      string              `json:"comment"`
}

// CreateResponse is the meeting plus the link participants use.
type CreateResponse struct {
	models.Meeting
	MeetingID string `json:"meeting_id"`
	JoinURL   string `json:"join_url"`
}

// Notifier is told about every accepted participant.
type Notifier interface {
	ParticipantJoined(meetingID string, p models.Participant, count int)
}

// Handler handles meeting HTTP endpoints.
type Handler struct {
	store    *Store
	notifier Notifier
	logger   *zap.Logger
}

// NewHandler creates a meetings handler. notifier may be nil.
func NewHandler(store *Store, notifier Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, notifier: notifier, logger: logger}
}

// RegisterRoutes mounts the meeting API on r. ws serves viewer websockets
// and is skipped when nil.
func (h *Handler) RegisterRoutes(r gin.IRouter, ws gin.HandlerFunc) {
	r.GET("/", h.Index)
	r.GET("/health", h.Health)
	r.POST("/meetings", h.Create)
	r.GET("/meetings/:id", h.Get)
	r.POST("/meetings/:id/participants", h.AddParticipant)
	r.GET("/meetings/:id/participants", h.ListParticipants)
	if ws != nil {
		r.GET("/meetings/:id/ws", h.RequireMeeting, ws)
	}
}

// Index handles GET /.
func (h *Handler) Index(c *gin.Context) {
	response.OK(c, gin.H{
		"name":    "Meeting Scheduler API",
		"version": APIVersion,
		"endpoints": gin.H{
			"create_meeting":    "POST /meetings",
			"get_meeting":       "GET /meetings/{meeting_id}",
			"add_participant":   "POST /meetings/{meeting_id}/participants",
			"list_participants": "GET /meetings/{meeting_id}/participants",
			"watch_meeting":     "GET /meetings/{meeting_id}/ws",
			"health":            "GET /health",
		},
	})
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	caps := h.store.Capabilities()
	response.OK(c, gin.H{
		"status":            "ok",
		"backend":           caps.Name,
		"durable":           caps.Durable,
		"participant_limit": h.store.ParticipantLimit(),
	})
}

// Create handles POST /meetings.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m, err := h.store.CreateMeeting(c.Request.Context(), CreateMeetingInput{
		Name:        req.Name,
		Description: req.Description,
		Organizer:   req.Organizer,
		Dates:       req.Dates,
		TimeSlots:   req.TimeSlots,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, CreateResponse{
		Meeting:   m,
		MeetingID: m.ID,
		JoinURL:   "/meetings/" + m.ID,
	})
}

// Get handles GET /meetings/:id.
func (h *Handler) Get(c *gin.Context) {
	m, err := h.store.GetMeeting(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, m)
}

// AddParticipant handles POST /meetings/:id/participants.
func (h *Handler) AddParticipant(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	meetingID := c.Param("id")
	m, err := h.store.AddParticipant(c.Request.Context(), meetingID, AddParticipantInput{
		Name:         req.Name,
		Availability: req.Availability,
		Comment:      req.Comment,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	if h.notifier != nil {
		joined := m.Participants[len(m.Participants)-1]
		h.notifier.ParticipantJoined(meetingID, joined, len(m.Participants))
	}
	response.Created(c, m)
}

// ListParticipants handles GET /meetings/:id/participants.
func (h *Handler) ListParticipants(c *gin.Context) {
	ps, err := h.store.ListParticipants(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"participants": ps})
}

// RequireMeeting aborts with 404 unless the :id meeting exists and is live.
func (h *Handler) RequireMeeting(c *gin.Context) {
	if _, err := h.store.GetMeeting(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		c.Abort()
		return
	}
	c.Next()
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		response.ValidationFailed(c, "validation failed", vErr.FieldErrors)
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "meeting not found")
	case errors.Is(err, ErrCapacityReached):
		response.BadRequest(c, "participant limit reached")
	case errors.Is(err, ErrDuplicateParticipant):
		response.BadRequest(c, "participant name already registered")
	default:
		h.logger.Error("meeting request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
		response.Internal(c, "internal server error")
	}
}
