// Package decision maps an entry's kind and extracted facts onto the
// side-effect actions the pipeline should attempt. The engine is a pure
// function: no I/O, no clock, no errors, deterministic output order.
package decision

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/snipd/internal/entry"
	"github.com/fyrsmithlabs/snipd/internal/extraction"
)

// maxTitleLen bounds titles derived from raw content.
const maxTitleLen = 80

// Engine proposes actions for an entry. Rules are evaluated
// independently; multiple actions may fire for one entry.
type Engine struct {
	rules []rule
}

// rule inspects one entry and either proposes an action or returns nil.
type rule func(kind entry.Kind, content string, facts extraction.Facts) entry.Payload

// NewEngine creates the engine with the standard rule table. Rule order
// fixes the order of the proposed actions array.
func NewEngine() *Engine {
	return &Engine{
		rules: []rule{
			reminderRule,
			calendarRule,
			contactRule,
			mapRule,
		},
	}
}

// Decide evaluates every rule and returns the proposed actions in rule
// order, each in status pending with an id scoped to the entry.
func (e *Engine) Decide(kind entry.Kind, content string, facts extraction.Facts) []entry.Action {
	var actions []entry.Action
	for _, r := range e.rules {
		payload := r(kind, content, facts)
		if payload == nil {
			continue
		}
		actions = append(actions, entry.Action{
			ID:         fmt.Sprintf("a%d", len(actions)+1),
			Type:       payload.ActionType(),
			Status:     entry.ActionPending,
			Payload:    payload,
			Reversible: reversible(payload.ActionType()),
		})
	}
	return actions
}

// reminderRule: every task gets a reminder.
func reminderRule(kind entry.Kind, content string, facts extraction.Facts) entry.Payload {
	if kind != entry.KindTask {
		return nil
	}
	title := facts.ActionIntent
	if title == "" {
		title = content
	}
	if title == "" {
		return nil
	}
	return &entry.ReminderPayload{
		Title:   truncate(title),
		Notes:   content,
		DueText: facts.Time,
	}
}

// calendarRule: a task with a time expression additionally gets an event.
func calendarRule(kind entry.Kind, content string, facts extraction.Facts) entry.Payload {
	if kind != entry.KindTask || facts.Time == "" {
		return nil
	}
	title := facts.ActionIntent
	if title == "" {
		title = content
	}
	return &entry.CalendarPayload{
		Title:     truncate(title),
		Notes:     content,
		StartText: facts.Time,
	}
}

// contactRule: any entry with a phone or email gets a contact.
func contactRule(_ entry.Kind, _ string, facts extraction.Facts) entry.Payload {
	if facts.Phone == "" && facts.Email == "" {
		return nil
	}
	name := facts.PersonName
	if name == "" {
		name = "Unknown Contact"
	}
	return &entry.ContactPayload{
		Name:  name,
		Phone: facts.Phone,
		Email: facts.Email,
	}
}

// mapRule: any entry with a location expression gets a map lookup.
func mapRule(_ entry.Kind, _ string, facts extraction.Facts) entry.Payload {
	if facts.Location == "" {
		return nil
	}
	return &entry.MapPayload{Query: facts.Location}
}

// reversible marks which capability effects can, in principle, be undone.
// Map lookups leave nothing behind.
func reversible(t entry.ActionType) bool {
	return t != entry.ActionMap
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxTitleLen {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxTitleLen])) + "..."
}
