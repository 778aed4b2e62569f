// Package event implements the typed, in-process Event Publisher shared by
// every primitive: a single publisher parameterized by an event sum type,
// with subscribers filtering by kind rather than the source repo's pattern
// of one typed consumer interface per event subclass (see Design Notes §9
// in SPEC_FULL.md).
package event

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind tags the type of a published event. Each primitive defines its own
// set of Kind values (see circuitbreaker.EventKind and friends) over the
// same Event envelope.
type Kind string

// Event is the wire-level shape common to every primitive's lifecycle
// events: an identifier, a timestamp, the emitting primitive's name, a
// kind tag, and primitive-specific payload.
type Event struct {
	ID            string
	Timestamp     time.Time
	PrimitiveName string
	Kind          Kind
	Payload       any
}

// Subscription is returned by Publisher.Subscribe; call Unsubscribe to stop
// receiving events.
type Subscription struct {
	id        uuid.UUID
	publisher *Publisher
}

// Unsubscribe removes the subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.publisher.unsubscribe(s.id)
}

// Listener receives published events. Implementations must not block for
// long; Publisher delivers synchronously on the publishing goroutine per
// subscriber (ordering guarantee from spec.md §5: consumers see events for
// a given instance in publication order).
type Listener func(Event)

// Publisher is a single-primitive-instance event bus. Zero value is not
// usable; construct with New.
type Publisher struct {
	name string
	log  *zap.Logger

	mu          sync.RWMutex
	subscribers map[uuid.UUID]Listener
}

// New creates a Publisher for the primitive instance named name. A nil
// logger defaults to a no-op logger.
func New(name string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		name:        name,
		log:         log,
		subscribers: make(map[uuid.UUID]Listener),
	}
}

// Subscribe registers a listener for every event this publisher emits.
// Filter by Event.Kind inside the listener to narrow interest.
func (p *Publisher) Subscribe(l Listener) *Subscription {
	id := uuid.New()
	p.mu.Lock()
	p.subscribers[id] = l
	p.mu.Unlock()
	return &Subscription{id: id, publisher: p}
}

func (p *Publisher) unsubscribe(id uuid.UUID) {
	p.mu.Lock()
	delete(p.subscribers, id)
	p.mu.Unlock()
}

// Publish delivers an event of the given kind and payload to every current
// subscriber; the order across subscribers is not defined. A listener panic is recovered and
// logged so one misbehaving subscriber cannot corrupt the emitting call's
// control flow — mirroring the teacher's callback panic-isolation policy
// (internal/breaker/panic_recovery.go) applied to event delivery instead of
// user-supplied predicates.
func (p *Publisher) Publish(kind Kind, payload any) {
	evt := Event{
		ID:            uuid.NewString(),
		Timestamp:     time.Now(),
		PrimitiveName: p.name,
		Kind:          kind,
		Payload:       payload,
	}

	p.mu.RLock()
	listeners := make([]Listener, 0, len(p.subscribers))
	for _, l := range p.subscribers {
		listeners = append(listeners, l)
	}
	p.mu.RUnlock()

	for _, l := range listeners {
		p.deliver(l, evt)
	}
}

func (p *Publisher) deliver(l Listener, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("event listener panicked",
				zap.String("primitive", p.name),
				zap.String("event_kind", string(evt.Kind)),
				zap.Any("recovered", r),
			)
		}
	}()
	l(evt)
}
