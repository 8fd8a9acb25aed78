// Package entry defines the snipd domain model: captured entries, the
// actions proposed and executed for them, and the metadata envelope that
// downstream readers consume.
package entry

import (
	"fmt"
	"time"
)

// Kind categorizes a captured entry.
type Kind string

const (
	KindTask Kind = "task"
	KindNote Kind = "note"
)

// Valid reports whether the kind is a known value.
func (k Kind) Valid() bool {
	return k == KindTask || k == KindNote
}

// Status represents the processing state of an entry.
type Status string

const (
	StatusUnprocessed Status = "unprocessed"
	StatusProcessing  Status = "processing"
	StatusProcessed   Status = "processed"
	StatusFailed      Status = "failed"
)

// Entry is one captured snippet awaiting or having undergone processing.
// It is created by the capture collaborator and mutated only through the
// state store.
type Entry struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

// Validate checks the entry fields required for processing.
func (e *Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entry id is required")
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("invalid entry kind: %q", e.Kind)
	}
	if e.Content == "" {
		return fmt.Errorf("entry content is required")
	}
	return nil
}

// ProcessingRecord captures one completed processing attempt. Records are
// append-only and immutable once written.
type ProcessingRecord struct {
	ProcessedAt time.Time `json:"processedAt"`
	Version     string    `json:"version"`
	CostUSD     float64   `json:"cost,omitempty"`
	DurationMS  int64     `json:"durationMs"`
}

// Metadata is the aggregate attached to an entry: its actions, the most
// recent processing record, and optional research content. The serialized
// shape is a contract with downstream readers; unknown additional keys are
// tolerated on read.
type Metadata struct {
	Actions        []Action          `json:"actions"`
	ProcessingMeta *ProcessingRecord `json:"processingMeta,omitempty"`
	Research       string            `json:"research,omitempty"`
}

// Clone returns a deep copy safe to hand to observers.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	out := &Metadata{Research: m.Research}
	if m.ProcessingMeta != nil {
		rec := *m.ProcessingMeta
		out.ProcessingMeta = &rec
	}
	out.Actions = make([]Action, len(m.Actions))
	for i, a := range m.Actions {
		out.Actions[i] = a.Clone()
	}
	return out
}

// Action returns the action with the given id, or nil.
func (m *Metadata) Action(id string) *Action {
	for i := range m.Actions {
		if m.Actions[i].ID == id {
			return &m.Actions[i]
		}
	}
	return nil
}
