package capability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Calendar is the bridge-backed calendar adapter.
type Calendar struct {
	bridge *Bridge
}

// NewCalendar creates the calendar adapter over the bridge.
func NewCalendar(bridge *Bridge) *Calendar {
	return &Calendar{bridge: bridge}
}

func (c *Calendar) CheckPermission(ctx context.Context) (AuthStatus, error) {
	return c.bridge.grantStatus(ctx, "calendar")
}

func (c *Calendar) RequestPermission(ctx context.Context) (AuthStatus, error) {
	return c.bridge.requestGrant(ctx, "calendar")
}

// CreateEvent inserts a calendar event and returns its external id.
func (c *Calendar) CreateEvent(ctx context.Context, title, notes string, start time.Time, end *time.Time) (string, error) {
	if title == "" {
		return "", NewError(ErrKindInvalidInput, fmt.Errorf("event title is required"))
	}
	if start.IsZero() {
		return "", NewError(ErrKindInvalidInput, fmt.Errorf("event start time is required"))
	}

	id := uuid.NewString()
	var endUnix *int64
	if end != nil {
		u := end.Unix()
		endUnix = &u
	}

	_, err := c.bridge.db.ExecContext(ctx,
		`INSERT INTO events (id, title, notes, start_at, end_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, title, notes, start.Unix(), endUnix, time.Now().Unix())
	if err != nil {
		return "", NewError(ErrKindSystemError, fmt.Errorf("failed to create event: %w", err))
	}
	return id, nil
}

// DeleteEvent removes an event by id when a reversal undoes it.
func (c *Calendar) DeleteEvent(ctx context.Context, id string) error {
	res, err := c.bridge.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return NewError(ErrKindSystemError, fmt.Errorf("failed to delete event: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewError(ErrKindNotFound, fmt.Errorf("event %s not found", id))
	}
	return nil
}

var _ CalendarAdapter = (*Calendar)(nil)
