package entry

import (
	"fmt"
	"time"
)

// Payload is the typed payload union. Each capability type has a fixed
// struct; data() flattens it to the serialized key/value form.
type Payload interface {
	ActionType() ActionType
	data() map[string]any
	clone() Payload
}

// ReminderPayload describes a reminder to create. DueText carries the
// free-text time expression from extraction; DueAt is set once the
// executor resolves it.
type ReminderPayload struct {
	Title   string
	Notes   string
	DueText string
	DueAt   *time.Time
}

func (p *ReminderPayload) ActionType() ActionType { return ActionReminder }

func (p *ReminderPayload) data() map[string]any {
	d := map[string]any{"title": p.Title}
	if p.Notes != "" {
		d["notes"] = p.Notes
	}
	if p.DueText != "" {
		d["dueText"] = p.DueText
	}
	if p.DueAt != nil {
		d["due"] = p.DueAt.Format(time.RFC3339)
	}
	return d
}

func (p *ReminderPayload) clone() Payload {
	out := *p
	if p.DueAt != nil {
		t := *p.DueAt
		out.DueAt = &t
	}
	return &out
}

// CalendarPayload describes a calendar event to create.
type CalendarPayload struct {
	Title     string
	Notes     string
	StartText string
	StartAt   *time.Time
	EndAt     *time.Time
}

func (p *CalendarPayload) ActionType() ActionType { return ActionCalendar }

func (p *CalendarPayload) data() map[string]any {
	d := map[string]any{"title": p.Title}
	if p.Notes != "" {
		d["notes"] = p.Notes
	}
	if p.StartText != "" {
		d["startText"] = p.StartText
	}
	if p.StartAt != nil {
		d["start"] = p.StartAt.Format(time.RFC3339)
	}
	if p.EndAt != nil {
		d["end"] = p.EndAt.Format(time.RFC3339)
	}
	return d
}

func (p *CalendarPayload) clone() Payload {
	out := *p
	if p.StartAt != nil {
		t := *p.StartAt
		out.StartAt = &t
	}
	if p.EndAt != nil {
		t := *p.EndAt
		out.EndAt = &t
	}
	return &out
}

// ContactPayload describes a contact record to create.
type ContactPayload struct {
	Name  string
	Phone string
	Email string
}

func (p *ContactPayload) ActionType() ActionType { return ActionContact }

func (p *ContactPayload) data() map[string]any {
	d := map[string]any{"name": p.Name}
	if p.Phone != "" {
		d["phone"] = p.Phone
	}
	if p.Email != "" {
		d["email"] = p.Email
	}
	return d
}

func (p *ContactPayload) clone() Payload {
	out := *p
	return &out
}

// MapPayload describes a place lookup.
type MapPayload struct {
	Query string
}

func (p *MapPayload) ActionType() ActionType { return ActionMap }

func (p *MapPayload) data() map[string]any {
	return map[string]any{"query": p.Query}
}

func (p *MapPayload) clone() Payload {
	out := *p
	return &out
}

// payloadFromData rebuilds the typed payload from the serialized form.
func payloadFromData(t ActionType, d map[string]any) (Payload, error) {
	switch t {
	case ActionReminder:
		return &ReminderPayload{
			Title:   stringKey(d, "title"),
			Notes:   stringKey(d, "notes"),
			DueText: stringKey(d, "dueText"),
			DueAt:   timeKey(d, "due"),
		}, nil
	case ActionCalendar:
		return &CalendarPayload{
			Title:     stringKey(d, "title"),
			Notes:     stringKey(d, "notes"),
			StartText: stringKey(d, "startText"),
			StartAt:   timeKey(d, "start"),
			EndAt:     timeKey(d, "end"),
		}, nil
	case ActionContact:
		return &ContactPayload{
			Name:  stringKey(d, "name"),
			Phone: stringKey(d, "phone"),
			Email: stringKey(d, "email"),
		}, nil
	case ActionMap:
		return &MapPayload{Query: stringKey(d, "query")}, nil
	default:
		return nil, fmt.Errorf("unknown action type: %q", t)
	}
}

func stringKey(d map[string]any, key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

func timeKey(d map[string]any, key string) *time.Time {
	s, ok := d[key].(string)
	if !ok || s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
