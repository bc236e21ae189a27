// Package codec converts meeting records to and from their stored JSON form.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/meeting-scheduler/backend/internal/models"
)

// ErrMissingField is matched by DecodeError values raised for absent required fields.
var ErrMissingField = errors.New("codec: missing required field")

// DecodeError reports a stored record that cannot be turned back into a Meeting.
type DecodeError struct {
	// Field is set when a required field is absent or empty.
	Field string
	// Err is the underlying parse failure, if any.
	Err error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("codec: missing required field %q", e.Field)
	}
	return fmt.Sprintf("codec: decode record: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	if e.Field != "" {
		return ErrMissingField
	}
	return e.Err
}

// record mirrors models.Meeting with the required fields as pointers so
// absence can be told apart from a zero value.
type record struct {
	ID           *string              `json:"id"`
	Name         *string              `json:"name"`
	Description  string               `json:"description,omitempty"`
	Organizer    *string              `json:"organizer"`
	Dates        []string             `json:"dates"`
	TimeSlots    map[string][]string  `json:"time_slots"`
	Participants []models.Participant `json:"participants"`
	CreatedAt    time.Time            `json:"created_at"`
	ExpiresAt    time.Time            `json:"expires_at"`
}

// Encode serializes m. Records lacking a required field are refused so
// nothing undecodable ever reaches storage.
//
// Decode(Encode(m)) returns m unchanged when m is in stored form: every
// timestamp in UTC without a monotonic reading and every availability
// answer compact JSON. Other records come back as the same instants in UTC
// and the same answers compacted.
func Encode(m models.Meeting) ([]byte, error) {
	if err := checkRequired(m); err != nil {
		return nil, fmt.Errorf("codec: encode record %q: %w", m.ID, err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("codec: encode record %q: %w", m.ID, err)
	}
	return data, nil
}

// Decode parses a stored record and validates its required fields. The
// result is always in stored form.
func Decode(data []byte) (models.Meeting, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return models.Meeting{}, &DecodeError{Err: err}
	}
	switch {
	case r.ID == nil || *r.ID == "":
		return models.Meeting{}, &DecodeError{Field: "id"}
	case r.Name == nil || *r.Name == "":
		return models.Meeting{}, &DecodeError{Field: "name"}
	case r.Organizer == nil || *r.Organizer == "":
		return models.Meeting{}, &DecodeError{Field: "organizer"}
	case len(r.Dates) == 0:
		return models.Meeting{}, &DecodeError{Field: "dates"}
	}

	m := models.Meeting{
		ID:           *r.ID,
		Name:         *r.Name,
		Description:  r.Description,
		Organizer:    *r.Organizer,
		Dates:        r.Dates,
		TimeSlots:    r.TimeSlots,
		Participants: r.Participants,
		CreatedAt:    r.CreatedAt.UTC(),
		ExpiresAt:    r.ExpiresAt.UTC(),
	}
	for i := range m.Participants {
		p := &m.Participants[i]
		p.JoinedAt = p.JoinedAt.UTC()
		for date, v := range p.Availability {
			compacted, err := compact(v)
			if err != nil {
				return models.Meeting{}, &DecodeError{Err: fmt.Errorf("participant %q availability %q: %w", p.Name, date, err)}
			}
			p.Availability[date] = compacted
		}
	}
	return m, nil
}

// compact strips insignificant whitespace so availability values compare
// equal no matter which backend reformatted them.
func compact(v json.RawMessage) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}

// EncodeTable serializes a whole id -> record table.
func EncodeTable(table map[string]models.Meeting) ([]byte, error) {
	ids := make([]string, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	raw := make(map[string]json.RawMessage, len(table))
	for _, id := range ids {
		data, err := Encode(table[id])
		if err != nil {
			return nil, err
		}
		raw[id] = data
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("codec: encode table: %w", err)
	}
	return data, nil
}

// DecodeTable parses a table produced by EncodeTable. An empty input is an
// empty table.
func DecodeTable(data []byte) (map[string]models.Meeting, error) {
	table := make(map[string]models.Meeting)
	if len(data) == 0 {
		return table, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("table: %w", err)}
	}
	for id, entry := range raw {
		m, err := Decode(entry)
		if err != nil {
			return nil, fmt.Errorf("codec: table entry %q: %w", id, err)
		}
		if m.ID != id {
			return nil, &DecodeError{Err: fmt.Errorf("table entry %q holds record %q", id, m.ID)}
		}
		table[id] = m
	}
	return table, nil
}

func checkRequired(m models.Meeting) error {
	switch {
	case m.ID == "":
		return &DecodeError{Field: "id"}
	case m.Name == "":
		return &DecodeError{Field: "name"}
	case m.Organizer == "":
		return &DecodeError{Field: "organizer"}
	case len(m.Dates) == 0:
		return &DecodeError{Field: "dates"}
	}
	return nil
}
