package executor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snipd/internal/capability"
	"github.com/fyrsmithlabs/snipd/internal/entry"
	"github.com/fyrsmithlabs/snipd/internal/permission"
	"github.com/fyrsmithlabs/snipd/internal/state"
)

// fakeRepo is a minimal in-memory state.Repository.
type fakeRepo struct {
	mu      sync.Mutex
	entries map[string]*entry.Entry
}

func newFakeRepo(entries ...*entry.Entry) *fakeRepo {
	r := &fakeRepo{entries: make(map[string]*entry.Entry)}
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return r
}

func (r *fakeRepo) GetEntry(_ context.Context, id string) (*entry.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("entry %s not found", id)
	}
	cp := *e
	cp.Metadata = e.Metadata.Clone()
	return &cp, nil
}

func (r *fakeRepo) UpdateEntryStatus(_ context.Context, id string, status entry.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id].Status = status
	return nil
}

func (r *fakeRepo) SaveMetadata(_ context.Context, id string, md *entry.Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id].Metadata = md.Clone()
	return nil
}

// grantedAuth always reports granted.
type grantedAuth struct{}

func (grantedAuth) CheckPermission(context.Context) (capability.AuthStatus, error) {
	return capability.AuthGranted, nil
}
func (grantedAuth) RequestPermission(context.Context) (capability.AuthStatus, error) {
	return capability.AuthGranted, nil
}

// deniedAuth always reports denied.
type deniedAuth struct{}

func (deniedAuth) CheckPermission(context.Context) (capability.AuthStatus, error) {
	return capability.AuthDenied, nil
}
func (deniedAuth) RequestPermission(context.Context) (capability.AuthStatus, error) {
	return capability.AuthDenied, nil
}

type fakeReminders struct {
	grantedAuth
	gotDue  *time.Time
	err     error
	deleted []string
	delErr  error
}

func (f *fakeReminders) CreateReminder(_ context.Context, title, notes string, due *time.Time) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.gotDue = due
	return "rem-1", nil
}

func (f *fakeReminders) DeleteReminder(_ context.Context, id string) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeCalendar struct {
	grantedAuth
	gotStart time.Time
	gotEnd   *time.Time
	deleted  []string
}

func (f *fakeCalendar) CreateEvent(_ context.Context, title, notes string, start time.Time, end *time.Time) (string, error) {
	f.gotStart = start
	f.gotEnd = end
	return "evt-1", nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeContacts struct {
	grantedAuth
	existingID string
	created    int
	deleted    []string
}

func (f *fakeContacts) CreateContact(context.Context, string, string, string) (string, error) {
	f.created++
	return "con-1", nil
}

func (f *fakeContacts) FindContact(context.Context, string, string) (string, bool, error) {
	if f.existingID != "" {
		return f.existingID, true, nil
	}
	return "", false, nil
}

func (f *fakeContacts) DeleteContact(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeMaps struct {
	grantedAuth
	places []capability.Place
}

func (f *fakeMaps) Search(context.Context, string) ([]capability.Place, error) {
	return f.places, nil
}

func (f *fakeMaps) Open(context.Context, string, capability.Place) (string, error) {
	return "lkp-1", nil
}

// deniedReminders reports denied on the permission surface.
type deniedReminders struct {
	deniedAuth
	fakeReminders
}

func (d *deniedReminders) CheckPermission(ctx context.Context) (capability.AuthStatus, error) {
	return d.deniedAuth.CheckPermission(ctx)
}
func (d *deniedReminders) RequestPermission(ctx context.Context) (capability.AuthStatus, error) {
	return d.deniedAuth.RequestPermission(ctx)
}

func entryWith(actions ...entry.Action) *entry.Entry {
	return &entry.Entry{
		ID:        "e1",
		Kind:      entry.KindTask,
		Content:   "call Jane tomorrow at 2:30pm",
		CreatedAt: time.Now(),
		Status:    entry.StatusProcessing,
		Metadata:  &entry.Metadata{Actions: actions},
	}
}

type fixture struct {
	store     *state.Store
	reminders *fakeReminders
	calendar  *fakeCalendar
	contacts  *fakeContacts
	maps      *fakeMaps
}

func newFixture(t *testing.T, e *entry.Entry) (*Executor, *fixture) {
	t.Helper()
	f := &fixture{
		reminders: &fakeReminders{},
		calendar:  &fakeCalendar{},
		contacts:  &fakeContacts{},
		maps:      &fakeMaps{places: []capability.Place{{Name: "Blue Bottle", Lat: 37.77, Lon: -122.42}}},
	}
	f.store = state.NewStore(newFakeRepo(e), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f.store.Start(ctx)

	gate := permission.NewGate(map[entry.ActionType]capability.Authorizer{
		entry.ActionReminder: f.reminders,
		entry.ActionCalendar: f.calendar,
		entry.ActionContact:  f.contacts,
		entry.ActionMap:      f.maps,
	}, zap.NewNop())

	clock := func() time.Time { return time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC) }
	x := New(gate, Adapters{
		Reminders: f.reminders,
		Calendar:  f.calendar,
		Contacts:  f.contacts,
		Maps:      f.maps,
	}, f.store, zap.NewNop()).WithClock(clock)
	return x, f
}

func actionState(t *testing.T, s *state.Store, id string) *entry.Action {
	t.Helper()
	md, err := s.Metadata(context.Background(), "e1")
	require.NoError(t, err)
	act := md.Action(id)
	require.NotNil(t, act)
	return act
}

func TestExecuteReminderResolvesDueTime(t *testing.T) {
	act := entry.Action{
		ID:         "a1",
		Type:       entry.ActionReminder,
		Status:     entry.ActionPending,
		Payload:    &entry.ReminderPayload{Title: "call Jane", DueText: "tomorrow at 2:30pm"},
		Reversible: true,
	}
	x, f := newFixture(t, entryWith(act))

	require.NoError(t, x.Execute(context.Background(), "e1", act))

	got := actionState(t, f.store, "a1")
	assert.Equal(t, entry.ActionExecuted, got.Status)
	assert.Equal(t, "rem-1", got.ExternalID)
	require.NotNil(t, got.ExecutedAt)
	assert.Equal(t, "rem-1", got.ReverseData["reminderId"])

	require.NotNil(t, f.reminders.gotDue)
	assert.Equal(t, time.Date(2024, 1, 16, 14, 30, 0, 0, time.UTC), *f.reminders.gotDue)

	pl, ok := got.Payload.(*entry.ReminderPayload)
	require.True(t, ok)
	require.NotNil(t, pl.DueAt)
}

func TestExecuteCalendarDefaultsEndToStartPlusHour(t *testing.T) {
	act := entry.Action{
		ID:         "a1",
		Type:       entry.ActionCalendar,
		Status:     entry.ActionPending,
		Payload:    &entry.CalendarPayload{Title: "standup", StartText: "10am"},
		Reversible: true,
	}
	x, f := newFixture(t, entryWith(act))

	require.NoError(t, x.Execute(context.Background(), "e1", act))

	assert.Equal(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), f.calendar.gotStart)
	require.NotNil(t, f.calendar.gotEnd)
	assert.Equal(t, f.calendar.gotStart.Add(time.Hour), *f.calendar.gotEnd)

	got := actionState(t, f.store, "a1")
	assert.Equal(t, entry.ActionExecuted, got.Status)
	assert.Equal(t, "evt-1", got.ReverseData["eventId"])
}

func TestExecuteContactReusesExisting(t *testing.T) {
	act := entry.Action{
		ID:         "a1",
		Type:       entry.ActionContact,
		Status:     entry.ActionPending,
		Payload:    &entry.ContactPayload{Name: "Jane", Phone: "555-123-4567"},
		Reversible: true,
	}
	x, f := newFixture(t, entryWith(act))
	f.contacts.existingID = "con-99"

	require.NoError(t, x.Execute(context.Background(), "e1", act))

	got := actionState(t, f.store, "a1")
	assert.Equal(t, entry.ActionExecuted, got.Status)
	assert.Equal(t, "con-99", got.ExternalID)
	assert.Equal(t, false, got.ReverseData["created"])
	assert.Zero(t, f.contacts.created)
}

func TestExecuteContactCreatesWhenMissing(t *testing.T) {
	act := entry.Action{
		ID:         "a1",
		Type:       entry.ActionContact,
		Status:     entry.ActionPending,
		Payload:    &entry.ContactPayload{Name: "Jane", Phone: "555-123-4567"},
		Reversible: true,
	}
	x, f := newFixture(t, entryWith(act))

	require.NoError(t, x.Execute(context.Background(), "e1", act))

	got := actionState(t, f.store, "a1")
	assert.Equal(t, "con-1", got.ExternalID)
	assert.Equal(t, true, got.ReverseData["created"])
	assert.Equal(t, 1, f.contacts.created)
}

func TestExecuteMapNoResultsFails(t *testing.T) {
	act := entry.Action{
		ID:      "a1",
		Type:    entry.ActionMap,
		Status:  entry.ActionPending,
		Payload: &entry.MapPayload{Query: "nowhere at all"},
	}
	x, f := newFixture(t, entryWith(act))
	f.maps.places = nil

	require.NoError(t, x.Execute(context.Background(), "e1", act))

	got := actionState(t, f.store, "a1")
	assert.Equal(t, entry.ActionFailed, got.Status)
	assert.Contains(t, got.FailReason, "not found")
}

func TestExecutePermissionDeniedFailsAction(t *testing.T) {
	act := entry.Action{
		ID:         "a1",
		Type:       entry.ActionReminder,
		Status:     entry.ActionPending,
		Payload:    &entry.ReminderPayload{Title: "call Jane"},
		Reversible: true,
	}
	f := &fixture{reminders: &fakeReminders{}}
	f.store = state.NewStore(newFakeRepo(entryWith(act)), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f.store.Start(ctx)

	denied := &deniedReminders{}
	gate := permission.NewGate(map[entry.ActionType]capability.Authorizer{
		entry.ActionReminder: denied,
	}, zap.NewNop())
	x := New(gate, Adapters{Reminders: denied}, f.store, zap.NewNop())

	require.NoError(t, x.Execute(context.Background(), "e1", act))

	got := actionState(t, f.store, "a1")
	assert.Equal(t, entry.ActionFailed, got.Status)
	assert.Contains(t, got.FailReason, "denied")
}

func TestExecuteAdapterErrorIsolated(t *testing.T) {
	act := entry.Action{
		ID:         "a1",
		Type:       entry.ActionReminder,
		Status:     entry.ActionPending,
		Payload:    &entry.ReminderPayload{Title: "call Jane"},
		Reversible: true,
	}
	x, f := newFixture(t, entryWith(act))
	f.reminders.err = fmt.Errorf("store unreachable")

	// Adapter failure is recorded on the action, not returned.
	require.NoError(t, x.Execute(context.Background(), "e1", act))

	got := actionState(t, f.store, "a1")
	assert.Equal(t, entry.ActionFailed, got.Status)
	assert.Contains(t, got.FailReason, "system error")
}

func TestReverseExecutedAction(t *testing.T) {
	at := time.Now().UTC()
	act := entry.Action{
		ID:          "a1",
		Type:        entry.ActionReminder,
		Status:      entry.ActionExecuted,
		Payload:     &entry.ReminderPayload{Title: "call Jane"},
		ExecutedAt:  &at,
		ExternalID:  "rem-1",
		Reversible:  true,
		ReverseData: map[string]any{"reminderId": "rem-1"},
	}
	x, f := newFixture(t, entryWith(act))

	require.NoError(t, x.Reverse(context.Background(), "e1", "a1"))
	got := actionState(t, f.store, "a1")
	assert.Equal(t, entry.ActionReversed, got.Status)
	assert.Equal(t, []string{"rem-1"}, f.reminders.deleted, "reverse removes the created reminder")
}

func TestReverseRejectsPendingAction(t *testing.T) {
	act := entry.Action{
		ID:      "a1",
		Type:    entry.ActionMap,
		Status:  entry.ActionPending,
		Payload: &entry.MapPayload{Query: "coffee"},
	}
	x, _ := newFixture(t, entryWith(act))
	require.Error(t, x.Reverse(context.Background(), "e1", "a1"))
}

func reversibleContact(externalID string, created bool) entry.Action {
	at := time.Now().UTC()
	return entry.Action{
		ID:          "a1",
		Type:        entry.ActionContact,
		Status:      entry.ActionExecuted,
		Payload:     &entry.ContactPayload{Name: "Jane", Phone: "555-123-4567"},
		ExecutedAt:  &at,
		ExternalID:  externalID,
		Reversible:  true,
		ReverseData: map[string]any{"contactId": externalID, "created": created},
	}
}

func TestReverseContactDeletesCreatedRecord(t *testing.T) {
	x, f := newFixture(t, entryWith(reversibleContact("con-1", true)))

	require.NoError(t, x.Reverse(context.Background(), "e1", "a1"))
	got := actionState(t, f.store, "a1")
	assert.Equal(t, entry.ActionReversed, got.Status)
	assert.Equal(t, []string{"con-1"}, f.contacts.deleted)
}

func TestReverseContactLeavesReusedRecord(t *testing.T) {
	x, f := newFixture(t, entryWith(reversibleContact("con-99", false)))

	require.NoError(t, x.Reverse(context.Background(), "e1", "a1"))
	got := actionState(t, f.store, "a1")
	assert.Equal(t, entry.ActionReversed, got.Status)
	assert.Empty(t, f.contacts.deleted, "a reused contact is not deleted")
}

func TestReverseAdapterErrorLeavesActionExecuted(t *testing.T) {
	at := time.Now().UTC()
	act := entry.Action{
		ID:          "a1",
		Type:        entry.ActionReminder,
		Status:      entry.ActionExecuted,
		Payload:     &entry.ReminderPayload{Title: "call Jane"},
		ExecutedAt:  &at,
		ExternalID:  "rem-1",
		Reversible:  true,
		ReverseData: map[string]any{"reminderId": "rem-1"},
	}
	x, f := newFixture(t, entryWith(act))
	f.reminders.delErr = fmt.Errorf("store unreachable")

	require.Error(t, x.Reverse(context.Background(), "e1", "a1"))
	got := actionState(t, f.store, "a1")
	assert.Equal(t, entry.ActionExecuted, got.Status, "a failed undo must not flip the status")
}

func TestReverseTreatsMissingRecordAsUndone(t *testing.T) {
	at := time.Now().UTC()
	act := entry.Action{
		ID:          "a1",
		Type:        entry.ActionReminder,
		Status:      entry.ActionExecuted,
		Payload:     &entry.ReminderPayload{Title: "call Jane"},
		ExecutedAt:  &at,
		ExternalID:  "rem-1",
		Reversible:  true,
		ReverseData: map[string]any{"reminderId": "rem-1"},
	}
	x, f := newFixture(t, entryWith(act))
	f.reminders.delErr = capability.NewError(capability.ErrKindNotFound, fmt.Errorf("reminder rem-1 not found"))

	require.NoError(t, x.Reverse(context.Background(), "e1", "a1"))
	got := actionState(t, f.store, "a1")
	assert.Equal(t, entry.ActionReversed, got.Status)
}
