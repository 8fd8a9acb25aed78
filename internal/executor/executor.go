// Package executor carries a pending action through its side effect.
// Execution is a fixed sequence: mark executing, clear the permission
// gate, resolve any free-text time, dispatch to the capability adapter,
// then publish the terminal status. A failure at any step lands the
// action in failed with a reason; it never aborts sibling actions.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snipd/internal/capability"
	"github.com/fyrsmithlabs/snipd/internal/entry"
	"github.com/fyrsmithlabs/snipd/internal/permission"
	"github.com/fyrsmithlabs/snipd/internal/state"
	"github.com/fyrsmithlabs/snipd/internal/timeparse"
)

// DefaultTimeout bounds each adapter call.
const DefaultTimeout = 30 * time.Second

// Adapters bundles the capability adapters the executor dispatches to.
type Adapters struct {
	Reminders capability.RemindersAdapter
	Calendar  capability.CalendarAdapter
	Contacts  capability.ContactsAdapter
	Maps      capability.MapsAdapter
}

// Executor executes and reverses actions against the capability layer.
type Executor struct {
	gate     *permission.Gate
	adapters Adapters
	store    *state.Store
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// New creates an executor. A nil now falls back to time.Now.
func New(gate *permission.Gate, adapters Adapters, store *state.Store, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		gate:     gate,
		adapters: adapters,
		store:    store,
		timeout:  DefaultTimeout,
		now:      time.Now,
		logger:   logger.Named("executor"),
	}
}

// WithTimeout overrides the per-adapter-call timeout.
func (x *Executor) WithTimeout(d time.Duration) *Executor {
	if d > 0 {
		x.timeout = d
	}
	return x
}

// WithClock overrides the clock used for time resolution. Tests use
// this to pin "tomorrow".
func (x *Executor) WithClock(now func() time.Time) *Executor {
	if now != nil {
		x.now = now
	}
	return x
}

// Execute runs one action to a terminal status. The returned error
// reports coordination problems only (state store or context failures);
// an action that fails at the capability layer is recorded as failed
// and returns nil.
func (x *Executor) Execute(ctx context.Context, entryID string, act entry.Action) error {
	log := x.logger.With(
		zap.String("entry_id", entryID),
		zap.String("action_id", act.ID),
		zap.String("action_type", string(act.Type)),
	)

	if err := x.store.ApplyActionStatus(ctx, entryID, act.ID, entry.ActionExecuting, state.ActionUpdate{}); err != nil {
		return fmt.Errorf("mark executing: %w", err)
	}

	if err := x.gate.Ensure(ctx, act.Type); err != nil {
		var perr *permission.Error
		if errors.As(err, &perr) {
			log.Info("action blocked by permission", zap.String("reason", perr.Error()))
			return x.fail(ctx, entryID, act.ID, perr.Error())
		}
		return x.fail(ctx, entryID, act.ID, fmt.Sprintf("permission check failed: %v", err))
	}

	payload := x.resolveTimes(act.Payload)

	res, err := x.dispatch(ctx, payload)
	if err != nil {
		log.Warn("action failed", zap.Error(err))
		return x.fail(ctx, entryID, act.ID, failReason(err))
	}

	at := x.now().UTC()
	update := state.ActionUpdate{
		Payload:     payload,
		ExecutedAt:  &at,
		ExternalID:  res.externalID,
		ReverseData: res.reverseData,
	}
	if err := x.store.ApplyActionStatus(ctx, entryID, act.ID, entry.ActionExecuted, update); err != nil {
		return fmt.Errorf("mark executed: %w", err)
	}
	log.Info("action executed", zap.String("external_id", res.externalID))
	return nil
}

// Reverse undoes an executed action's side effect using the reverse
// payload captured at execution time, then flips it to reversed. An
// already-removed external record counts as undone; any other adapter
// failure leaves the action executed.
func (x *Executor) Reverse(ctx context.Context, entryID, actionID string) error {
	md, err := x.store.Metadata(ctx, entryID)
	if err != nil {
		return err
	}
	act := md.Action(actionID)
	if act == nil {
		return fmt.Errorf("action %s not found on entry %s", actionID, entryID)
	}
	if act.Status != entry.ActionExecuted {
		return fmt.Errorf("action %s is %s, only executed actions reverse", actionID, act.Status)
	}
	if err := x.undo(ctx, act); err != nil {
		return fmt.Errorf("undo %s action: %w", act.Type, err)
	}
	return x.store.ApplyActionStatus(ctx, entryID, actionID, entry.ActionReversed, state.ActionUpdate{})
}

// undo removes the external record an action created. Contact actions
// that reused an existing record leave it in place.
func (x *Executor) undo(ctx context.Context, act *entry.Action) error {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	var err error
	switch act.Type {
	case entry.ActionReminder:
		err = x.adapters.Reminders.DeleteReminder(ctx, act.ExternalID)
	case entry.ActionCalendar:
		err = x.adapters.Calendar.DeleteEvent(ctx, act.ExternalID)
	case entry.ActionContact:
		created, _ := act.ReverseData["created"].(bool)
		if !created {
			return nil
		}
		err = x.adapters.Contacts.DeleteContact(ctx, act.ExternalID)
	default:
		return nil
	}

	var cerr *capability.Error
	if errors.As(err, &cerr) && cerr.Kind == capability.ErrKindNotFound {
		return nil
	}
	return err
}

func (x *Executor) fail(ctx context.Context, entryID, actionID, reason string) error {
	err := x.store.ApplyActionStatus(ctx, entryID, actionID, entry.ActionFailed, state.ActionUpdate{
		FailReason: reason,
	})
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// resolveTimes fills in concrete times for payloads that carry a
// free-text expression. Resolution is deterministic for a fixed clock.
func (x *Executor) resolveTimes(p entry.Payload) entry.Payload {
	now := x.now()
	switch pl := p.(type) {
	case *entry.ReminderPayload:
		out := *pl
		if out.DueAt == nil && out.DueText != "" {
			res := timeparse.Resolve(out.DueText, now)
			out.DueAt = &res.Time
		}
		return &out
	case *entry.CalendarPayload:
		out := *pl
		if out.StartAt == nil {
			res := timeparse.Resolve(out.StartText, now)
			out.StartAt = &res.Time
		}
		if out.EndAt == nil && out.StartAt != nil {
			end := out.StartAt.Add(time.Hour)
			out.EndAt = &end
		}
		return &out
	default:
		return p
	}
}

// result is the outcome of one successful adapter dispatch.
type result struct {
	externalID  string
	reverseData map[string]any
}

func (x *Executor) dispatch(ctx context.Context, p entry.Payload) (result, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	switch pl := p.(type) {
	case *entry.ReminderPayload:
		id, err := x.adapters.Reminders.CreateReminder(ctx, pl.Title, pl.Notes, pl.DueAt)
		if err != nil {
			return result{}, err
		}
		return result{externalID: id, reverseData: map[string]any{"reminderId": id}}, nil

	case *entry.CalendarPayload:
		id, err := x.adapters.Calendar.CreateEvent(ctx, pl.Title, pl.Notes, *pl.StartAt, pl.EndAt)
		if err != nil {
			return result{}, err
		}
		return result{externalID: id, reverseData: map[string]any{"eventId": id}}, nil

	case *entry.ContactPayload:
		return x.dispatchContact(ctx, pl)

	case *entry.MapPayload:
		places, err := x.adapters.Maps.Search(ctx, pl.Query)
		if err != nil {
			return result{}, err
		}
		if len(places) == 0 {
			return result{}, capability.NewError(capability.ErrKindNotFound,
				fmt.Errorf("no places found for %q", pl.Query))
		}
		id, err := x.adapters.Maps.Open(ctx, pl.Query, places[0])
		if err != nil {
			return result{}, err
		}
		return result{externalID: id}, nil

	default:
		return result{}, fmt.Errorf("no adapter for payload %T", p)
	}
}

// dispatchContact reuses an existing matching contact rather than
// creating a duplicate. The reverse payload records whether a record
// was actually created.
func (x *Executor) dispatchContact(ctx context.Context, pl *entry.ContactPayload) (result, error) {
	existing, found, err := x.adapters.Contacts.FindContact(ctx, pl.Phone, pl.Email)
	if err != nil {
		return result{}, err
	}
	if found {
		return result{
			externalID:  existing,
			reverseData: map[string]any{"contactId": existing, "created": false},
		}, nil
	}
	id, err := x.adapters.Contacts.CreateContact(ctx, pl.Name, pl.Phone, pl.Email)
	if err != nil {
		return result{}, err
	}
	return result{
		externalID:  id,
		reverseData: map[string]any{"contactId": id, "created": true},
	}, nil
}

// failReason maps adapter errors onto the recorded reason string.
func failReason(err error) string {
	var cerr *capability.Error
	if errors.As(err, &cerr) {
		switch cerr.Kind {
		case capability.ErrKindNotFound:
			return fmt.Sprintf("not found: %v", cerr.Unwrap())
		case capability.ErrKindInvalidInput:
			return fmt.Sprintf("invalid input: %v", cerr.Unwrap())
		}
	}
	return fmt.Sprintf("system error: %v", err)
}
