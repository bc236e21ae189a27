// Package meetings implements the meeting record store and its HTTP surface.
//
// The Store is the only component that mutates persisted meetings. All
// writes to one meeting id are serialized, so the participant cap and the
// duplicate-name rule hold under concurrent requests.
package meetings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meeting-scheduler/backend/internal/backend"
	"github.com/meeting-scheduler/backend/internal/models"
	"github.com/meeting-scheduler/backend/pkg/ids"
)

const (
	// DefaultParticipantLimit caps how many participants one meeting accepts.
	DefaultParticipantLimit = 15
	// DefaultExpiryWindow is how long a meeting stays visible after creation.
	DefaultExpiryWindow = 30 * 24 * time.Hour

	dateLayout = "2006-01-02"
)

var errIDTaken = errors.New("meetings: id already in use")

// Options tunes a Store. Zero values select the defaults.
type Options struct {
	ParticipantLimit int
	ExpiryWindow     time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
	// NewID generates meeting ids; defaults to ids.New. Generated ids must
	// be canonical UUIDs.
	NewID  func() string
	Logger *zap.Logger
}

// CreateMeetingInput is what an organizer submits.
type CreateMeetingInput struct {
	Name        string
	Description string
	Organizer   string
	Dates       []string
	TimeSlots   map[string][]string
}

// AddParticipantInput is one participant's answer.
type AddParticipantInput struct {
	Name         string
	Availability models.Availability
	Comment      string
}

// Store creates, reads and extends meeting records.
type Store struct {
	backend backend.Backend
	locks   *keyedMutex
	limit   int
	window  time.Duration
	now     func() time.Time
	newID   func() string
	logger  *zap.Logger
}

// NewStore creates a store persisting through b.
func NewStore(b backend.Backend, opts Options) *Store {
	s := &Store{
		backend: b,
		locks:   newKeyedMutex(),
		limit:   opts.ParticipantLimit,
		window:  opts.ExpiryWindow,
		now:     opts.Now,
		newID:   opts.NewID,
		logger:  opts.Logger,
	}
	if s.limit <= 0 {
		s.limit = DefaultParticipantLimit
	}
	if s.window <= 0 {
		s.window = DefaultExpiryWindow
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = ids.New
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// ParticipantLimit returns the configured cap.
func (s *Store) ParticipantLimit() int { return s.limit }

// Capabilities describes the underlying backend.
func (s *Store) Capabilities() backend.Capabilities { return s.backend.Capabilities() }

// Close releases the backend.
func (s *Store) Close() error { return s.backend.Close() }

// clock returns the current time in UTC without a monotonic reading, the
// form timestamps take after a trip through storage.
func (s *Store) clock() time.Time {
	return s.now().UTC().Round(0)
}

// CreateMeeting validates in, assigns an id and persists a new meeting.
func (s *Store) CreateMeeting(ctx context.Context, in CreateMeetingInput) (models.Meeting, error) {
	m, err := s.newMeeting(in)
	if err != nil {
		return models.Meeting{}, err
	}

	// A collision means the random source repeated itself; one re-roll is
	// allowed, a second one is an invariant violation.
	for attempt := 0; attempt < 2; attempt++ {
		id := s.newID()
		created, err := s.insert(ctx, id, m)
		if errors.Is(err, errIDTaken) {
			s.logger.Warn("generated meeting id already in use", zap.String("meeting_id", id), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return models.Meeting{}, err
		}
		s.logger.Info("meeting created",
			zap.String("meeting_id", created.ID),
			zap.Int("dates", len(created.Dates)),
			zap.Time("expires_at", created.ExpiresAt),
		)
		return created, nil
	}
	s.logger.Error("meeting id collided twice; random source is unreliable")
	return models.Meeting{}, ErrIdentifierCollision
}

func (s *Store) newMeeting(in CreateMeetingInput) (models.Meeting, error) {
	vErr := &ValidationError{}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		vErr.add("name", "name is required")
	}
	organizer := strings.TrimSpace(in.Organizer)
	if organizer == "" {
		vErr.add("organizer", "organizer is required")
	}

	dates := make([]string, 0, len(in.Dates))
	seen := make(map[string]bool, len(in.Dates))
	if len(in.Dates) == 0 {
		vErr.add("dates", "at least one date is required")
	}
	for _, d := range in.Dates {
		d = strings.TrimSpace(d)
		if _, err := time.Parse(dateLayout, d); err != nil {
			vErr.add("dates", fmt.Sprintf("%q is not a YYYY-MM-DD date", d))
			continue
		}
		if seen[d] {
			vErr.add("dates", fmt.Sprintf("%q is listed twice", d))
			continue
		}
		seen[d] = true
		dates = append(dates, d)
	}

	slotDates := make([]string, 0, len(in.TimeSlots))
	for d := range in.TimeSlots {
		slotDates = append(slotDates, d)
	}
	sort.Strings(slotDates)
	slots := make(map[string][]string, len(in.TimeSlots))
	for _, d := range slotDates {
		if !seen[d] {
			vErr.add("time_slots", fmt.Sprintf("%q is not one of the meeting dates", d))
			continue
		}
		slots[d] = append([]string{}, in.TimeSlots[d]...)
	}

	if vErr.HasErrors() {
		return models.Meeting{}, vErr
	}

	now := s.clock()
	return models.Meeting{
		Name:         name,
		Description:  strings.TrimSpace(in.Description),
		Organizer:    organizer,
		Dates:        dates,
		TimeSlots:    slots,
		Participants: []models.Participant{},
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.window),
	}, nil
}

// insert stores m under a fresh id unless the id is already taken.
func (s *Store) insert(ctx context.Context, id string, m models.Meeting) (models.Meeting, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	_, err := s.backend.Get(ctx, id)
	switch {
	case err == nil:
		return models.Meeting{}, errIDTaken
	case !errors.Is(err, backend.ErrNotFound):
		return models.Meeting{}, fmt.Errorf("meetings: check id %s: %w", id, err)
	}

	m.ID = id
	if err := s.backend.Put(ctx, id, m); err != nil {
		return models.Meeting{}, fmt.Errorf("meetings: persist meeting %s: %w", id, err)
	}
	return m, nil
}

// GetMeeting returns the meeting, or ErrNotFound when it is absent or expired.
func (s *Store) GetMeeting(ctx context.Context, id string) (models.Meeting, error) {
	return s.load(ctx, id)
}

func (s *Store) load(ctx context.Context, id string) (models.Meeting, error) {
	if !ids.Valid(id) {
		return models.Meeting{}, ErrNotFound
	}
	m, err := s.backend.Get(ctx, id)
	if errors.Is(err, backend.ErrNotFound) {
		return models.Meeting{}, ErrNotFound
	}
	if err != nil {
		return models.Meeting{}, fmt.Errorf("meetings: load meeting %s: %w", id, err)
	}
	if m.Expired(s.clock()) {
		s.logger.Debug("meeting expired", zap.String("meeting_id", id), zap.Time("expires_at", m.ExpiresAt))
		return models.Meeting{}, ErrNotFound
	}
	return m, nil
}

// AddParticipant appends a participant answer and returns the updated meeting.
func (s *Store) AddParticipant(ctx context.Context, meetingID string, in AddParticipantInput) (models.Meeting, error) {
	p, err := s.newParticipant(in)
	if err != nil {
		return models.Meeting{}, err
	}
	if !ids.Valid(meetingID) {
		return models.Meeting{}, ErrNotFound
	}

	unlock := s.locks.Lock(meetingID)
	defer unlock()

	m, err := s.load(ctx, meetingID)
	if err != nil {
		return models.Meeting{}, err
	}
	if len(m.Participants) >= s.limit {
		s.logger.Debug("participant rejected: meeting full", zap.String("meeting_id", meetingID), zap.Int("limit", s.limit))
		return models.Meeting{}, &CapacityError{Limit: s.limit}
	}
	if m.HasParticipant(p.Name) {
		s.logger.Debug("participant rejected: duplicate name", zap.String("meeting_id", meetingID))
		return models.Meeting{}, &DuplicateParticipantError{Name: p.Name}
	}

	p.JoinedAt = s.clock()
	m.Participants = append(m.Participants, p)
	if err := s.backend.Put(ctx, meetingID, m); err != nil {
		return models.Meeting{}, fmt.Errorf("meetings: persist meeting %s: %w", meetingID, err)
	}
	s.logger.Info("participant added",
		zap.String("meeting_id", meetingID),
		zap.Int("participants", len(m.Participants)),
	)
	return m, nil
}

func (s *Store) newParticipant(in AddParticipantInput) (models.Participant, error) {
	vErr := &ValidationError{}
	// Participant names are identities and kept exactly as submitted.
	if strings.TrimSpace(in.Name) == "" {
		vErr.add("name", "name is required")
	}
	if len(in.Availability) == 0 {
		vErr.add("availability", "availability must contain at least one date")
	}
	dates := make([]string, 0, len(in.Availability))
	for d := range in.Availability {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	answers := make(models.Availability, len(in.Availability))
	for _, d := range dates {
		var buf bytes.Buffer
		if err := json.Compact(&buf, in.Availability[d]); err != nil {
			vErr.add("availability", fmt.Sprintf("answer for %q is not valid JSON", d))
			continue
		}
		answers[d] = buf.Bytes()
	}
	if vErr.HasErrors() {
		return models.Participant{}, vErr
	}
	return models.Participant{
		Name:         in.Name,
		Availability: answers,
		Comment:      strings.TrimSpace(in.Comment),
	}, nil
}

// ListParticipants returns the meeting's participants in join order.
func (s *Store) ListParticipants(ctx context.Context, meetingID string) ([]models.Participant, error) {
	m, err := s.load(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if m.Participants == nil {
		return []models.Participant{}, nil
	}
	return m.Participants, nil
}
