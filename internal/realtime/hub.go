package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meeting-scheduler/backend/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second

	sendBuffer = 64
)

// Events delivered to viewers.
const (
	EventParticipantJoined = "participant_joined"
	EventViewerCount       = "viewer_count"
	EventJoin              = "join"
)

// Publisher fans an event out to other server instances.
type Publisher interface {
	PublishMeetingEvent(meetingID, event string, payload []byte) error
}

// Subscriber delivers events published by any instance for one meeting.
type Subscriber interface {
	SubscribeMeeting(meetingID string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// ParticipantJoinedPayload is the data of a participant_joined event.
type ParticipantJoinedPayload struct {
	MeetingID        string             `json:"meeting_id"`
	Participant      models.Participant `json:"participant"`
	ParticipantCount int                `json:"participant_count"`
}

// ViewerCountPayload is the data of a viewer_count event.
type ViewerCountPayload struct {
	MeetingID string `json:"meeting_id"`
	Count     int    `json:"count"`
}

// subscription is a meeting's Redis subscription; cancel is nil while the
// subscribe call is still in flight.
type subscription struct {
	cancel func()
}

// Hub tracks meeting_id -> connected viewers and broadcasts events to them.
// With a Publisher and Subscriber set, events travel through Redis so that
// viewers connected to other instances see them too.
type Hub struct {
	meetings map[string]map[string]*Client
	subs     map[string]*subscription
	mu       sync.RWMutex
	logger   *zap.Logger
	pub      Publisher
	sub      Subscriber
}

// NewHub creates a hub. pub and sub may be nil for a single instance.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		meetings: make(map[string]map[string]*Client),
		subs:     make(map[string]*subscription),
		logger:   logger,
		pub:      pub,
		sub:      sub,
	}
}

// Register adds a viewer to a meeting room. The first viewer of a meeting
// starts its Redis subscription; the subscribe round trip runs without
// holding the hub lock.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	var pending *subscription
	if h.meetings[c.MeetingID] == nil {
		h.meetings[c.MeetingID] = make(map[string]*Client)
		if h.sub != nil {
			pending = &subscription{}
			h.subs[c.MeetingID] = pending
		}
	}
	h.meetings[c.MeetingID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("viewer connected", zap.String("client_id", c.ID), zap.String("meeting_id", c.MeetingID))

	if pending != nil {
		h.subscribe(c.MeetingID, pending)
	}
}

// subscribe completes a pending subscription. If the room emptied, or was
// recreated with a newer subscription, while the round trip ran, the new
// subscription is cancelled right away.
func (h *Hub) subscribe(meetingID string, pending *subscription) {
	cancel, err := h.sub.SubscribeMeeting(meetingID, func(event string, payload []byte) {
		h.broadcastLocal(meetingID, event, payload)
	})

	h.mu.Lock()
	current := h.subs[meetingID] == pending
	switch {
	case err != nil:
		if current {
			delete(h.subs, meetingID)
		}
	case current:
		pending.cancel = cancel
		cancel = nil
	}
	h.mu.Unlock()

	if err != nil {
		h.logger.Warn("meeting subscription failed", zap.String("meeting_id", meetingID), zap.Error(err))
		return
	}
	if cancel != nil {
		cancel()
	}
}

// Unregister removes a viewer and closes its send channel. The last viewer
// to leave cancels the meeting's Redis subscription.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.meetings[c.MeetingID]; ok {
		if _, ok := m[c.ID]; ok {
			delete(m, c.ID)
			close(c.send)
		}
		if len(m) == 0 {
			delete(h.meetings, c.MeetingID)
			if sub, ok := h.subs[c.MeetingID]; ok {
				// a pending subscription cancels itself once it sees the entry gone
				if sub.cancel != nil {
					sub.cancel()
				}
				delete(h.subs, c.MeetingID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("viewer disconnected", zap.String("client_id", c.ID), zap.String("meeting_id", c.MeetingID))
}

// ViewerCount returns the number of viewers connected to this instance.
func (h *Hub) ViewerCount(meetingID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.meetings[meetingID])
}

// Broadcast delivers event to every viewer of meetingID. With Redis
// configured the event is only published; the subscription delivers it
// locally, so each viewer receives it once.
func (h *Hub) Broadcast(meetingID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal event", zap.String("event", event), zap.Error(err))
		return
	}
	if h.pub != nil && h.sub != nil {
		err = h.pub.PublishMeetingEvent(meetingID, event, data)
		if err == nil {
			return
		}
		h.logger.Warn("publish meeting event failed; delivering locally",
			zap.String("meeting_id", meetingID), zap.String("event", event), zap.Error(err))
	}
	h.broadcastLocal(meetingID, event, data)
}

// ParticipantJoined broadcasts a participant_joined event.
func (h *Hub) ParticipantJoined(meetingID string, p models.Participant, count int) {
	h.Broadcast(meetingID, EventParticipantJoined, ParticipantJoinedPayload{
		MeetingID:        meetingID,
		Participant:      p,
		ParticipantCount: count,
	})
}

func (h *Hub) broadcastLocal(meetingID, event string, data []byte) {
	msg := WSMessage{Event: event, Data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.meetings[meetingID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("viewer buffer full, dropping event", zap.String("client_id", c.ID), zap.String("event", event))
		}
	}
}
