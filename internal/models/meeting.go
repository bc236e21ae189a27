package models

import (
	"encoding/json"
	"time"
)

// Availability maps a candidate date to the participant's answer for it.
// The value is either a single status string or a slot -> status object;
// the store keeps it as submitted.
type Availability map[string]json.RawMessage

// Participant is one availability submission for a meeting.
type Participant struct {
	Name         string       `json:"name"`
	Availability Availability `json:"availability"`
	Comment      string       `json:"comment,omitempty"`
	JoinedAt     time.Time    `json:"joined_at"`
}

// Meeting is the persisted state of one scheduling poll.
type Meeting struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	Organizer    string              `json:"organizer"`
	Dates        []string            `json:"dates"`
	TimeSlots    map[string][]string `json:"time_slots"`
	Participants []Participant       `json:"participants"`
	CreatedAt    time.Time           `json:"created_at"`
	ExpiresAt    time.Time           `json:"expires_at"`
}

// Expired reports whether the meeting is past its expiry at now.
func (m Meeting) Expired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}

// HasParticipant reports whether name already answered (exact match).
func (m Meeting) HasParticipant(name string) bool {
	for _, p := range m.Participants {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (m Meeting) Clone() Meeting {
	out := m
	if m.Dates != nil {
		out.Dates = append([]string(nil), m.Dates...)
	}
	if m.TimeSlots != nil {
		out.TimeSlots = make(map[string][]string, len(m.TimeSlots))
		for date, slots := range m.TimeSlots {
			out.TimeSlots[date] = append([]string(nil), slots...)
		}
	}
	if m.Participants != nil {
		out.Participants = make([]Participant, len(m.Participants))
		for i, p := range m.Participants {
			out.Participants[i] = p.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the participant.
func (p Participant) Clone() Participant {
	out := p
	if p.Availability != nil {
		out.Availability = make(Availability, len(p.Availability))
		for date, v := range p.Availability {
			out.Availability[date] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}
