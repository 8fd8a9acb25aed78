package capability

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Contacts is the bridge-backed contacts adapter.
type Contacts struct {
	bridge *Bridge
}

// NewContacts creates the contacts adapter over the bridge.
func NewContacts(bridge *Bridge) *Contacts {
	return &Contacts{bridge: bridge}
}

func (c *Contacts) CheckPermission(ctx context.Context) (AuthStatus, error) {
	return c.bridge.grantStatus(ctx, "contacts")
}

func (c *Contacts) RequestPermission(ctx context.Context) (AuthStatus, error) {
	return c.bridge.requestGrant(ctx, "contacts")
}

// CreateContact inserts a contact record and returns its external id.
func (c *Contacts) CreateContact(ctx context.Context, name, phone, email string) (string, error) {
	if name == "" {
		return "", NewError(ErrKindInvalidInput, fmt.Errorf("contact name is required"))
	}
	if phone == "" && email == "" {
		return "", NewError(ErrKindInvalidInput, fmt.Errorf("contact needs a phone or email"))
	}

	id := uuid.NewString()
	_, err := c.bridge.db.ExecContext(ctx,
		`INSERT INTO contacts (id, name, phone, email, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, name, phone, email, time.Now().Unix())
	if err != nil {
		return "", NewError(ErrKindSystemError, fmt.Errorf("failed to create contact: %w", err))
	}
	return id, nil
}

// FindContact returns an existing contact matching the phone or email.
func (c *Contacts) FindContact(ctx context.Context, phone, email string) (string, bool, error) {
	if phone == "" && email == "" {
		return "", false, nil
	}

	var id string
	err := c.bridge.db.QueryRowContext(ctx,
		`SELECT id FROM contacts
		 WHERE (phone != '' AND phone = ?) OR (email != '' AND email = ?)
		 ORDER BY created_at LIMIT 1`,
		phone, email).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, NewError(ErrKindSystemError, fmt.Errorf("failed to find contact: %w", err))
	}
	return id, true, nil
}

// DeleteContact removes a contact by id when a reversal undoes it.
func (c *Contacts) DeleteContact(ctx context.Context, id string) error {
	res, err := c.bridge.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return NewError(ErrKindSystemError, fmt.Errorf("failed to delete contact: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewError(ErrKindNotFound, fmt.Errorf("contact %s not found", id))
	}
	return nil
}

var _ ContactsAdapter = (*Contacts)(nil)
