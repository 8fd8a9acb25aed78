package entry

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType identifies the capability an action targets.
type ActionType string

const (
	ActionReminder ActionType = "reminder"
	ActionCalendar ActionType = "calendar"
	ActionContact  ActionType = "contact"
	ActionMap      ActionType = "map"
)

// ActionStatus represents the lifecycle state of an action.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionExecuting ActionStatus = "executing"
	ActionExecuted  ActionStatus = "executed"
	ActionFailed    ActionStatus = "failed"
	ActionReversed  ActionStatus = "reversed"
)

// actionTransitions encodes the legal status edges. Transitions are
// monotonic except the explicit executed -> reversed edge.
var actionTransitions = map[ActionStatus][]ActionStatus{
	ActionPending:   {ActionExecuting},
	ActionExecuting: {ActionExecuted, ActionFailed},
	ActionExecuted:  {ActionReversed},
	ActionFailed:    {},
	ActionReversed:  {},
}

// CanTransition reports whether from -> to is a legal status edge.
func CanTransition(from, to ActionStatus) bool {
	for _, next := range actionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Action is one proposed or executed side effect tied to an entry. The
// payload is a tagged union per capability type rather than a string-keyed
// dictionary, so a reminder action cannot carry contact fields.
type Action struct {
	ID          string
	Type        ActionType
	Status      ActionStatus
	Payload     Payload
	ExecutedAt  *time.Time
	FailReason  string
	ExternalID  string
	Reversible  bool
	ReverseData map[string]any
}

// Clone returns a deep copy of the action.
func (a Action) Clone() Action {
	out := a
	if a.ExecutedAt != nil {
		t := *a.ExecutedAt
		out.ExecutedAt = &t
	}
	if a.Payload != nil {
		out.Payload = a.Payload.clone()
	}
	if a.ReverseData != nil {
		out.ReverseData = make(map[string]any, len(a.ReverseData))
		for k, v := range a.ReverseData {
			out.ReverseData[k] = v
		}
	}
	return out
}

// Transition validates and applies a status change.
func (a *Action) Transition(to ActionStatus) error {
	if !CanTransition(a.Status, to) {
		return fmt.Errorf("illegal action transition %s -> %s (action %s)", a.Status, to, a.ID)
	}
	if to == ActionExecuted && a.Reversible && len(a.ReverseData) == 0 {
		return fmt.Errorf("reversible action %s has no reverse data", a.ID)
	}
	a.Status = to
	return nil
}

// actionJSON is the wire shape of an action. Data flattens the typed
// payload into the key/value form downstream readers expect; every value
// is a string, RFC 3339 timestamp, or boolean.
type actionJSON struct {
	ID          string         `json:"id"`
	Type        ActionType     `json:"type"`
	Status      ActionStatus   `json:"status"`
	Data        map[string]any `json:"data"`
	ExecutedAt  *time.Time     `json:"executedAt"`
	FailReason  string         `json:"failReason,omitempty"`
	ExternalID  string         `json:"externalId,omitempty"`
	Reversible  bool           `json:"reversible"`
	ReverseData map[string]any `json:"reverseData"`
}

// MarshalJSON implements json.Marshaler.
func (a Action) MarshalJSON() ([]byte, error) {
	out := actionJSON{
		ID:          a.ID,
		Type:        a.Type,
		Status:      a.Status,
		Data:        map[string]any{},
		ExecutedAt:  a.ExecutedAt,
		FailReason:  a.FailReason,
		ExternalID:  a.ExternalID,
		Reversible:  a.Reversible,
		ReverseData: a.ReverseData,
	}
	if a.Payload != nil {
		out.Data = a.Payload.data()
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. Unknown data keys are ignored
// for forward compatibility.
func (a *Action) UnmarshalJSON(b []byte) error {
	var in actionJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	payload, err := payloadFromData(in.Type, in.Data)
	if err != nil {
		return err
	}
	*a = Action{
		ID:          in.ID,
		Type:        in.Type,
		Status:      in.Status,
		Payload:     payload,
		ExecutedAt:  in.ExecutedAt,
		FailReason:  in.FailReason,
		ExternalID:  in.ExternalID,
		Reversible:  in.Reversible,
		ReverseData: in.ReverseData,
	}
	return nil
}
