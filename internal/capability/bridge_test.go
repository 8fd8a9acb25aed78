package capability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBridge(t *testing.T, granted ...string) *Bridge {
	t.Helper()
	b, err := OpenBridge(t.TempDir(), NewAutoGrantPolicy(granted))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBridge_GrantLifecycle(t *testing.T) {
	b := newTestBridge(t, "reminders")
	ctx := context.Background()
	reminders := NewReminders(b)

	status, err := reminders.CheckPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, AuthNotDetermined, status)

	status, err = reminders.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, AuthGranted, status)

	// Persisted; check now reflects the grant.
	status, err = reminders.CheckPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, AuthGranted, status)
}

func TestBridge_PolicyDenies(t *testing.T) {
	b := newTestBridge(t) // nothing auto-granted
	ctx := context.Background()
	contacts := NewContacts(b)

	status, err := contacts.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, AuthDenied, status)

	// Re-requesting does not flip a resolved grant.
	status, err = contacts.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, AuthDenied, status)
}

func TestBridge_SetGrantOutOfBand(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()

	require.NoError(t, b.SetGrant(ctx, "calendar", AuthRestricted))
	status, err := NewCalendar(b).CheckPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, AuthRestricted, status)
}

func TestReminders_CreateAndDelete(t *testing.T) {
	b := newTestBridge(t, "reminders")
	ctx := context.Background()
	reminders := NewReminders(b)

	due := time.Date(2024, 1, 16, 15, 0, 0, 0, time.UTC)
	id, err := reminders.CreateReminder(ctx, "call Jane", "call Jane tomorrow 3pm", &due)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.NoError(t, reminders.DeleteReminder(ctx, id))

	err = reminders.DeleteReminder(ctx, id)
	require.Error(t, err)
	var capErr *Error
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, ErrKindNotFound, capErr.Kind)
}

func TestReminders_CreateRequiresTitle(t *testing.T) {
	b := newTestBridge(t)
	_, err := NewReminders(b).CreateReminder(context.Background(), "", "", nil)
	require.Error(t, err)

	var capErr *Error
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, ErrKindInvalidInput, capErr.Kind)
}

func TestCalendar_CreateEvent(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()
	cal := NewCalendar(b)

	start := time.Date(2024, 1, 16, 15, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	id, err := cal.CreateEvent(ctx, "dentist", "", start, &end)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = cal.CreateEvent(ctx, "", "", start, nil)
	require.Error(t, err)
}

func TestContacts_FindBeforeCreate(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()
	contacts := NewContacts(b)

	_, found, err := contacts.FindContact(ctx, "555-123-4567", "")
	require.NoError(t, err)
	assert.False(t, found)

	id, err := contacts.CreateContact(ctx, "Jane", "555-123-4567", "")
	require.NoError(t, err)

	got, found, err := contacts.FindContact(ctx, "555-123-4567", "")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, id, got)

	// Email match works independently of phone.
	_, err = contacts.CreateContact(ctx, "Ahmed", "", "ahmed@example.com")
	require.NoError(t, err)
	_, found, err = contacts.FindContact(ctx, "", "ahmed@example.com")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestContacts_CreateValidation(t *testing.T) {
	b := newTestBridge(t)
	ctx := context.Background()
	contacts := NewContacts(b)

	_, err := contacts.CreateContact(ctx, "", "555", "")
	require.Error(t, err)

	_, err = contacts.CreateContact(ctx, "Jane", "", "")
	require.Error(t, err)
}

func TestMaps_SearchAndOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Blue Bottle Oakland", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`[{"display_name": "Blue Bottle Coffee, Oakland", "lat": "37.8044", "lon": "-122.2711"}]`))
	}))
	defer srv.Close()

	b := newTestBridge(t, "maps")
	maps := NewMaps(b, MapsConfig{BaseURL: srv.URL})
	ctx := context.Background()

	places, err := maps.Search(ctx, "Blue Bottle Oakland")
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, "Blue Bottle Coffee, Oakland", places[0].Name)
	assert.InDelta(t, 37.8044, places[0].Lat, 0.0001)

	id, err := maps.Open(ctx, "Blue Bottle Oakland", places[0])
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestMaps_SearchZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	b := newTestBridge(t)
	maps := NewMaps(b, MapsConfig{BaseURL: srv.URL})

	places, err := maps.Search(context.Background(), "nowhere at all")
	require.NoError(t, err)
	assert.Empty(t, places)
}
