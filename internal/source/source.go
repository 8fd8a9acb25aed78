// Package source feeds captured entries into the pipeline. Entries
// arrive on a NATS subject from capture clients; each is persisted
// unprocessed and the coordinator is nudged.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snipd/internal/entry"
)

// SubjectEntryCreated is the capture subject.
const SubjectEntryCreated = "snipd.entries.created"

// Inserter persists newly captured entries.
type Inserter interface {
	Insert(ctx context.Context, e *entry.Entry) error
}

// Nudger wakes the pipeline after a capture lands.
type Nudger interface {
	Nudge()
}

// captureMessage is the wire shape on the capture subject. Missing id
// and created_at are filled in on receipt.
type captureMessage struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Connect dials NATS with the standard reconnect posture.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	logger.Info("connected to NATS", zap.String("url", url))
	return nc, nil
}

// Subscriber consumes capture messages.
type Subscriber struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	repo   Inserter
	nudge  Nudger
	logger *zap.Logger
}

// NewSubscriber creates a subscriber over an established connection.
func NewSubscriber(nc *nats.Conn, repo Inserter, nudge Nudger, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		nc:     nc,
		repo:   repo,
		nudge:  nudge,
		logger: logger.Named("source"),
	}
}

// Start subscribes to the capture subject. Message handling is
// asynchronous; a malformed message is logged and dropped, never
// redelivered.
func (s *Subscriber) Start(ctx context.Context) error {
	sub, err := s.nc.Subscribe(SubjectEntryCreated, func(msg *nats.Msg) {
		if err := s.handle(ctx, msg.Data); err != nil {
			s.logger.Warn("dropping capture message", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectEntryCreated, err)
	}
	s.sub = sub
	s.logger.Info("subscribed", zap.String("subject", SubjectEntryCreated))
	return nil
}

// Close drains the subscription.
func (s *Subscriber) Close() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}

func (s *Subscriber) handle(ctx context.Context, data []byte) error {
	var msg captureMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("unmarshal capture message: %w", err)
	}
	e, err := entryFromCapture(msg)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, e); err != nil {
		return fmt.Errorf("persist entry %s: %w", e.ID, err)
	}
	s.logger.Info("entry captured",
		zap.String("entry_id", e.ID), zap.String("kind", string(e.Kind)))
	if s.nudge != nil {
		s.nudge.Nudge()
	}
	return nil
}

// entryFromCapture validates a capture message and normalizes it into
// an unprocessed entry.
func entryFromCapture(msg captureMessage) (*entry.Entry, error) {
	e := &entry.Entry{
		ID:        msg.ID,
		Kind:      entry.Kind(msg.Kind),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		Status:    entry.StatusUnprocessed,
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}
