package meetings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meeting-scheduler/backend/internal/backend"
	"github.com/meeting-scheduler/backend/internal/models"
	"github.com/meeting-scheduler/backend/pkg/ids"
)

// testClock is a controllable clock for expiry tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, b backend.Backend, clock *testClock) *Store {
	t.Helper()
	if b == nil {
		b = backend.NewMemoryBackend()
	}
	if clock == nil {
		clock = newTestClock()
	}
	return NewStore(b, Options{Now: clock.Now})
}

func sprintPlanning() CreateMeetingInput {
	return CreateMeetingInput{
		Name:      "Sprint Planning",
		Organizer: "Carol",
		Dates:     []string{"2025-01-20", "2025-01-21"},
		TimeSlots: map[string][]string{
			"2025-01-20": {"09:00", "10:00"},
			"2025-01-21": {"14:00"},
		},
	}
}

func status(s string) json.RawMessage {
	return json.RawMessage(`"` + s + `"`)
}

func availability(date, answer string) models.Availability {
	return models.Availability{date: status(answer)}
}

// stubBackend overrides Get and Put of a wrapped backend with fixed errors.
type stubBackend struct {
	backend.Backend
	getErr error
	putErr error
}

func (s *stubBackend) Get(ctx context.Context, id string) (models.Meeting, error) {
	if s.getErr != nil {
		return models.Meeting{}, s.getErr
	}
	return s.Backend.Get(ctx, id)
}

func (s *stubBackend) Put(ctx context.Context, id string, m models.Meeting) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.Backend.Put(ctx, id, m)
}

func TestSprintPlanningScenario(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	s := newTestStore(t, nil, clock)

	m, err := s.CreateMeeting(ctx, sprintPlanning())
	require.NoError(t, err)
	require.True(t, ids.Valid(m.ID))
	require.Equal(t, "Sprint Planning", m.Name)
	require.Equal(t, []string{"2025-01-20", "2025-01-21"}, m.Dates)
	require.Empty(t, m.Participants)
	require.Equal(t, clock.Now(), m.CreatedAt)
	require.Equal(t, m.CreatedAt.Add(DefaultExpiryWindow), m.ExpiresAt)

	clock.Advance(time.Hour)
	m, err = s.AddParticipant(ctx, m.ID, AddParticipantInput{
		Name: "Alice",
		Availability: models.Availability{
			"2025-01-20": json.RawMessage(`{"09:00":"available","10:00":"maybe"}`),
			"2025-01-21": status("unavailable"),
		},
		Comment: "  mornings work best ",
	})
	require.NoError(t, err)
	require.Len(t, m.Participants, 1)
	require.Equal(t, "mornings work best", m.Participants[0].Comment)
	require.Equal(t, clock.Now(), m.Participants[0].JoinedAt)

	m, err = s.AddParticipant(ctx, m.ID, AddParticipantInput{Name: "Bob", Availability: availability("2025-01-21", "available")})
	require.NoError(t, err)

	got, err := s.GetMeeting(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, m, got)
	require.Equal(t, "Alice", got.Participants[0].Name)
	require.Equal(t, "Bob", got.Participants[1].Name)

	_, err = s.AddParticipant(ctx, m.ID, AddParticipantInput{Name: "Alice", Availability: availability("2025-01-20", "maybe")})
	var dup *DuplicateParticipantError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "Alice", dup.Name)
	require.ErrorIs(t, err, ErrDuplicateParticipant)

	ps, err := s.ListParticipants(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, ps, 2)
}

func TestCreateMeetingValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *CreateMeetingInput)
		fields []string
	}{
		{name: "blank name", mutate: func(in *CreateMeetingInput) { in.Name = "   " }, fields: []string{"name"}},
		{name: "missing organizer", mutate: func(in *CreateMeetingInput) { in.Organizer = "" }, fields: []string{"organizer"}},
		{name: "no dates", mutate: func(in *CreateMeetingInput) { in.Dates = nil; in.TimeSlots = nil }, fields: []string{"dates"}},
		{name: "bad date", mutate: func(in *CreateMeetingInput) { in.Dates = []string{"2025-01-20", "2025-01-21", "20/01/2025"} }, fields: []string{"dates"}},
		{name: "duplicate date", mutate: func(in *CreateMeetingInput) { in.Dates = []string{"2025-01-20", "2025-01-20", "2025-01-21"} }, fields: []string{"dates"}},
		{name: "slot for unknown date", mutate: func(in *CreateMeetingInput) { in.TimeSlots["2025-02-01"] = []string{"09:00"} }, fields: []string{"time_slots"}},
		{name: "several fields", mutate: func(in *CreateMeetingInput) { in.Name = ""; in.Organizer = "" }, fields: []string{"name", "organizer"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := backend.NewMemoryBackend()
			s := newTestStore(t, b, nil)
			in := sprintPlanning()
			tt.mutate(&in)

			_, err := s.CreateMeeting(context.Background(), in)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			require.Len(t, vErr.FieldErrors, len(tt.fields))
			for _, f := range tt.fields {
				require.Contains(t, vErr.FieldErrors, f)
			}
		})
	}
}

func TestCreateMeetingCopiesInput(t *testing.T) {
	s := newTestStore(t, nil, nil)
	in := sprintPlanning()
	in.TimeSlots = nil
	m, err := s.CreateMeeting(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, m.TimeSlots)
	require.Empty(t, m.TimeSlots)

	in.Dates[0] = "2030-01-01"
	got, err := s.GetMeeting(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, "2025-01-20", got.Dates[0])
}

func TestAddParticipantValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil, nil)
	m, err := s.CreateMeeting(ctx, sprintPlanning())
	require.NoError(t, err)

	tests := []struct {
		name  string
		in    AddParticipantInput
		field string
	}{
		{name: "blank name", in: AddParticipantInput{Name: " ", Availability: availability("2025-01-20", "available")}, field: "name"},
		{name: "empty availability", in: AddParticipantInput{Name: "Alice"}, field: "availability"},
		{name: "invalid answer", in: AddParticipantInput{Name: "Alice", Availability: models.Availability{"2025-01-20": json.RawMessage(`{nope`)}}, field: "availability"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddParticipant(ctx, m.ID, tt.in)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			require.Contains(t, vErr.FieldErrors, tt.field)
		})
	}

	got, err := s.GetMeeting(ctx, m.ID)
	require.NoError(t, err)
	require.Empty(t, got.Participants)
}

func TestParticipantCapacity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil, nil)
	m, err := s.CreateMeeting(ctx, sprintPlanning())
	require.NoError(t, err)

	for i := 0; i < DefaultParticipantLimit; i++ {
		_, err := s.AddParticipant(ctx, m.ID, AddParticipantInput{
			Name:         fmt.Sprintf("p%02d", i),
			Availability: availability("2025-01-20", "available"),
		})
		require.NoError(t, err)
	}
	before, err := s.GetMeeting(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, before.Participants, DefaultParticipantLimit)

	_, err = s.AddParticipant(ctx, m.ID, AddParticipantInput{Name: "late", Availability: availability("2025-01-20", "available")})
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	require.Equal(t, DefaultParticipantLimit, capErr.Limit)
	require.ErrorIs(t, err, ErrCapacityReached)

	after, err := s.GetMeeting(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestParticipantNamesMatchExactly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil, nil)
	m, err := s.CreateMeeting(ctx, sprintPlanning())
	require.NoError(t, err)

	for _, name := range []string{"Bob", "bob", "Bob "} {
		_, err := s.AddParticipant(ctx, m.ID, AddParticipantInput{Name: name, Availability: availability("2025-01-20", "available")})
		require.NoError(t, err, name)
	}
	_, err = s.AddParticipant(ctx, m.ID, AddParticipantInput{Name: "Bob", Availability: availability("2025-01-21", "maybe")})
	require.ErrorIs(t, err, ErrDuplicateParticipant)

	got, err := s.GetMeeting(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, got.Participants, 3)
	require.Equal(t, "Bob ", got.Participants[2].Name)
}

func TestCapacityCheckedBeforeDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewStore(backend.NewMemoryBackend(), Options{ParticipantLimit: 1, Now: newTestClock().Now})
	m, err := s.CreateMeeting(ctx, sprintPlanning())
	require.NoError(t, err)
	_, err = s.AddParticipant(ctx, m.ID, AddParticipantInput{Name: "Alice", Availability: availability("2025-01-20", "available")})
	require.NoError(t, err)

	_, err = s.AddParticipant(ctx, m.ID, AddParticipantInput{Name: "Alice", Availability: availability("2025-01-20", "available")})
	require.ErrorIs(t, err, ErrCapacityReached)
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	s := newTestStore(t, nil, clock)
	m, err := s.CreateMeeting(ctx, sprintPlanning())
	require.NoError(t, err)

	clock.Advance(29 * 24 * time.Hour)
	_, err = s.GetMeeting(ctx, m.ID)
	require.NoError(t, err)
	_, err = s.AddParticipant(ctx, m.ID, AddParticipantInput{Name: "Alice", Availability: availability("2025-01-20", "available")})
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	_, err = s.GetMeeting(ctx, m.ID)
	require.NoError(t, err, "a meeting is visible up to and including expires_at")

	clock.Advance(time.Nanosecond)
	_, err = s.GetMeeting(ctx, m.ID)
	require.ErrorIs(t, err, ErrNotFound)

	clock.Advance(24 * time.Hour)
	_, err = s.GetMeeting(ctx, m.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.AddParticipant(ctx, m.ID, AddParticipantInput{Name: "Bob", Availability: availability("2025-01-20", "available")})
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.ListParticipants(ctx, m.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentJoins(t *testing.T) {
	tests := []struct {
		name        string
		joiners     int
		wantOK      int
		wantRefused int
	}{
		{name: "within limit", joiners: DefaultParticipantLimit, wantOK: DefaultParticipantLimit},
		{name: "over limit", joiners: 20, wantOK: DefaultParticipantLimit, wantRefused: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			b, err := backend.NewFileBackend(t.TempDir(), nil)
			require.NoError(t, err)
			s := newTestStore(t, b, nil)
			m, err := s.CreateMeeting(ctx, sprintPlanning())
			require.NoError(t, err)

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				ok      int
				refused int
			)
			for i := 0; i < tt.joiners; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := s.AddParticipant(ctx, m.ID, AddParticipantInput{
						Name:         fmt.Sprintf("joiner-%02d", i),
						Availability: availability("2025-01-21", "available"),
					})
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						ok++
					case errors.Is(err, ErrCapacityReached):
						refused++
					default:
						assert.NoError(t, err)
					}
				}(i)
			}
			wg.Wait()

			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.wantRefused, refused)
			got, err := s.GetMeeting(ctx, m.ID)
			require.NoError(t, err)
			require.Len(t, got.Participants, tt.wantOK)
			require.Zero(t, s.locks.size())
		})
	}
}

func TestConcurrentDuplicateNames(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil, nil)
	m, err := s.CreateMeeting(ctx, sprintPlanning())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.AddParticipant(ctx, m.ID, AddParticipantInput{Name: "Alice", Availability: availability("2025-01-20", "available")})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrDuplicateParticipant)
	}
	require.Equal(t, 1, succeeded)
}

func TestReadIdempotence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil, nil)
	m, err := s.CreateMeeting(ctx, sprintPlanning())
	require.NoError(t, err)

	first, err := s.GetMeeting(ctx, m.ID)
	require.NoError(t, err)
	second, err := s.GetMeeting(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, m, first)
}

func TestGetMeetingUnknownAndInvalidIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil, nil)
	for _, id := range []string{ids.New(), "", "not-a-uuid", "../etc/passwd", "6BA7B810-9DAD-11D1-80B4-00C04FD430C8"} {
		_, err := s.GetMeeting(ctx, id)
		require.ErrorIs(t, err, ErrNotFound, id)
		_, err = s.AddParticipant(ctx, id, AddParticipantInput{Name: "Alice", Availability: availability("2025-01-20", "available")})
		require.ErrorIs(t, err, ErrNotFound, id)
	}
}

func TestIdentifierCollision(t *testing.T) {
	ctx := context.Background()
	taken := ids.New()
	b := backend.NewMemoryBackend()
	seed := NewStore(b, Options{NewID: func() string { return taken }})
	_, err := seed.CreateMeeting(ctx, sprintPlanning())
	require.NoError(t, err)

	t.Run("re-rolls once", func(t *testing.T) {
		fresh := ids.New()
		queue := []string{taken, fresh}
		s := NewStore(b, Options{NewID: func() string {
			id := queue[0]
			queue = queue[1:]
			return id
		}})
		m, err := s.CreateMeeting(ctx, sprintPlanning())
		require.NoError(t, err)
		require.Equal(t, fresh, m.ID)
	})

	t.Run("second collision is fatal", func(t *testing.T) {
		s := NewStore(b, Options{NewID: func() string { return taken }})
		_, err := s.CreateMeeting(ctx, sprintPlanning())
		require.ErrorIs(t, err, ErrIdentifierCollision)
	})
}

func TestBackendFailuresAreInternal(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemoryBackend()
	s := newTestStore(t, mem, nil)
	m, err := s.CreateMeeting(ctx, sprintPlanning())
	require.NoError(t, err)

	corrupt := errors.New("decode: unexpected end of JSON input")
	broken := newTestStore(t, &stubBackend{Backend: mem, getErr: corrupt}, nil)
	_, err = broken.GetMeeting(ctx, m.ID)
	require.ErrorIs(t, err, corrupt)
	require.NotErrorIs(t, err, ErrNotFound)

	full := errors.New("disk full")
	readOnly := newTestStore(t, &stubBackend{Backend: mem, putErr: full}, nil)
	_, err = readOnly.AddParticipant(ctx, m.ID, AddParticipantInput{Name: "Alice", Availability: availability("2025-01-20", "available")})
	require.ErrorIs(t, err, full)
	_, err = readOnly.CreateMeeting(ctx, sprintPlanning())
	require.ErrorIs(t, err, full)

	got, err := s.GetMeeting(ctx, m.ID)
	require.NoError(t, err)
	require.Empty(t, got.Participants)
}

func TestStoreSurvivesRestartOnDurableBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	clock := newTestClock()

	b1, err := backend.NewFileBackend(dir, nil)
	require.NoError(t, err)
	s1 := newTestStore(t, b1, clock)
	m, err := s1.CreateMeeting(ctx, sprintPlanning())
	require.NoError(t, err)
	m, err = s1.AddParticipant(ctx, m.ID, AddParticipantInput{Name: "Alice", Availability: availability("2025-01-20", "available")})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	b2, err := backend.NewFileBackend(dir, nil)
	require.NoError(t, err)
	s2 := newTestStore(t, b2, clock)
	got, err := s2.GetMeeting(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, m, got)
}
