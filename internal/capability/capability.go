// Package capability wraps the external systems the pipeline creates side
// effects in: reminders, calendar events, contacts, and map lookups. Each
// adapter exposes a uniform permission interface plus a type-specific
// create or search operation.
package capability

import (
	"context"
	"time"
)

// AuthStatus is the grant state of one capability.
type AuthStatus string

const (
	AuthNotDetermined AuthStatus = "notDetermined"
	AuthGranted       AuthStatus = "granted"
	AuthDenied        AuthStatus = "denied"
	AuthRestricted    AuthStatus = "restricted"
)

// Authorizer is the permission surface every adapter exposes.
type Authorizer interface {
	// CheckPermission returns the current grant state without prompting.
	CheckPermission(ctx context.Context) (AuthStatus, error)

	// RequestPermission prompts for access if the grant is undetermined.
	// It may suspend awaiting a user response.
	RequestPermission(ctx context.Context) (AuthStatus, error)
}

// RemindersAdapter creates and removes reminders.
type RemindersAdapter interface {
	Authorizer
	CreateReminder(ctx context.Context, title, notes string, due *time.Time) (string, error)
	DeleteReminder(ctx context.Context, id string) error
}

// CalendarAdapter creates and removes calendar events.
type CalendarAdapter interface {
	Authorizer
	CreateEvent(ctx context.Context, title, notes string, start time.Time, end *time.Time) (string, error)
	DeleteEvent(ctx context.Context, id string) error
}

// ContactsAdapter creates, looks up, and removes contact records.
type ContactsAdapter interface {
	Authorizer
	CreateContact(ctx context.Context, name, phone, email string) (string, error)

	// FindContact returns the id of an existing contact matching the
	// phone or email, if any. Used to capture reverse payloads before a
	// create touches the store.
	FindContact(ctx context.Context, phone, email string) (string, bool, error)

	DeleteContact(ctx context.Context, id string) error
}

// Place is one geocoding result.
type Place struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// MapsAdapter resolves location queries and opens places.
type MapsAdapter interface {
	Authorizer
	Search(ctx context.Context, query string) ([]Place, error)
	Open(ctx context.Context, query string, place Place) (string, error)
}
