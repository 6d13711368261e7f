package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"storecore/internal/logger"

	"github.com/google/uuid"
)

const (
	TypeOrderTransitioned = "order.transitioned"
	TypeOrderPlaced       = "order.placed"
	TypeReconcileAlert    = "reconcile.alert"
	TypeReconcileRun      = "reconcile.completed"

	Producer = "storecore"
)

// Event is the envelope every domain event is published in.
type Event struct {
	ID            string    `json:"event_id"`
	Type          string    `json:"event_type"`
	Version       int       `json:"event_version"`
	OccurredAt    time.Time `json:"occurred_at"`
	Producer      string    `json:"producer"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	// Key selects the partition; events for one aggregate share a key.
	Key     string          `json:"-"`
	Payload json.RawMessage `json:"payload"`
}

// New wraps payload in an envelope. The correlation id comes from ctx.
func New(ctx context.Context, typ, key string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Event{
		ID:            uuid.NewString(),
		Type:          typ,
		Version:       1,
		OccurredAt:    time.Now().UTC(),
		Producer:      Producer,
		CorrelationID: logger.CorrelationIDFrom(ctx),
		Key:           key,
		Payload:       raw,
	}, nil
}

// Decode unmarshals an event payload into T.
func Decode[T any](e Event) (T, error) {
	var t T
	if err := json.Unmarshal(e.Payload, &t); err != nil {
		return t, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return t, nil
}

// Publisher delivers events after the transaction that produced them has
// committed. Delivery is best effort: callers log failures and move on.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }

// Discard drops every event.
var Discard Publisher = discard{}

// Multi fans an event out to every publisher and returns the first error.
func Multi(pubs ...Publisher) Publisher {
	return multi(pubs)
}

type multi []Publisher

func (m multi) Publish(ctx context.Context, evt Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, evt); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder keeps published events in memory. Tests and local runs use it.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(typ string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
