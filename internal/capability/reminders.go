package capability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reminders is the bridge-backed reminders adapter.
type Reminders struct {
	bridge *Bridge
}

// NewReminders creates the reminders adapter over the bridge.
func NewReminders(bridge *Bridge) *Reminders {
	return &Reminders{bridge: bridge}
}

func (r *Reminders) CheckPermission(ctx context.Context) (AuthStatus, error) {
	return r.bridge.grantStatus(ctx, "reminders")
}

func (r *Reminders) RequestPermission(ctx context.Context) (AuthStatus, error) {
	return r.bridge.requestGrant(ctx, "reminders")
}

// CreateReminder inserts a reminder and returns its external id.
func (r *Reminders) CreateReminder(ctx context.Context, title, notes string, due *time.Time) (string, error) {
	if title == "" {
		return "", NewError(ErrKindInvalidInput, fmt.Errorf("reminder title is required"))
	}

	id := uuid.NewString()
	var dueUnix *int64
	if due != nil {
		u := due.Unix()
		dueUnix = &u
	}

	_, err := r.bridge.db.ExecContext(ctx,
		`INSERT INTO reminders (id, title, notes, due_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, title, notes, dueUnix, time.Now().Unix())
	if err != nil {
		return "", NewError(ErrKindSystemError, fmt.Errorf("failed to create reminder: %w", err))
	}
	return id, nil
}

// DeleteReminder removes a reminder by id when a reversal undoes it.
func (r *Reminders) DeleteReminder(ctx context.Context, id string) error {
	res, err := r.bridge.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return NewError(ErrKindSystemError, fmt.Errorf("failed to delete reminder: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewError(ErrKindNotFound, fmt.Errorf("reminder %s not found", id))
	}
	return nil
}

var _ RemindersAdapter = (*Reminders)(nil)
