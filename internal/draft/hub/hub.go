// Package hub fans draft events out to live subscribers. The subscriber
// registry is synchronized independently of the draft state lock, and
// delivery never happens inside a state-mutating critical section: the hub
// only sees events after their transaction committed.
package hub

import (
	"context"
	"fmt"
	"sync"

	"github.com/botsports/empire/internal/draft/engine"
	"github.com/botsports/empire/internal/draft/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// defaultSendBuffer is the per-subscriber event buffer. A subscriber that
// falls this far behind is dropped.
const defaultSendBuffer = 64

// SnapshotFunc resolves the current state of a draft for late joiners.
type SnapshotFunc func(ctx context.Context, draftID uuid.UUID) (*engine.Snapshot, error)

// Message is one item on a subscriber stream: either the initial snapshot
// or a live event.
type Message struct {
	Snapshot *engine.Snapshot `json:"snapshot,omitempty"`
	Event    *events.Envelope `json:"event,omitempty"`
}

// Subscriber is one live observer of a draft. It carries no persisted state
// and lives only as long as its connection.
type Subscriber struct {
	ID      uuid.UUID
	DraftID uuid.UUID

	ch     chan Message
	closed bool // guarded by the owning room's mutex
}

// Events is the subscriber's message stream. It is closed when the
// subscriber is removed.
func (s *Subscriber) Events() <-chan Message {
	return s.ch
}

// room holds the subscribers of one draft behind its own mutex, so a slow
// snapshot read for one draft never stalls publishes to another.
type room struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

// remove must be called with the room mutex held. Safe to call more than
// once for the same subscriber.
func (r *room) remove(sub *Subscriber) {
	if sub.closed {
		return
	}
	delete(r.subs, sub)
	sub.closed = true
	close(sub.ch)
}

// Hub is the per-draft registry of subscribers.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[uuid.UUID]*room
	snapshot SnapshotFunc
	buffer   int
}

// Option configures a Hub.
type Option func(*Hub)

// WithSendBuffer overrides the per-subscriber buffer size.
func WithSendBuffer(n int) Option {
	return func(h *Hub) { h.buffer = n }
}

// New creates a Hub. snapshot is called on every Subscribe so a late joiner
// never observes a gap between the snapshot and the live stream.
func New(snapshot SnapshotFunc, opts ...Option) *Hub {
	h := &Hub{
		rooms:    make(map[uuid.UUID]*room),
		snapshot: snapshot,
		buffer:   defaultSendBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a new subscriber for a draft. The first message on
// the stream is always the snapshot; the draft's room lock is held across
// the snapshot read so no event for this draft can slip in between the
// snapshot and the live stream. Subscribing to other drafts and publishing
// to them is unaffected.
//
// Lock ordering is hub then room; the room lock is taken before the hub
// lock is released so the room cannot be reaped in between.
func (h *Hub) Subscribe(ctx context.Context, draftID uuid.UUID) (*Subscriber, error) {
	sub := &Subscriber{
		ID:      uuid.New(),
		DraftID: draftID,
		ch:      make(chan Message, h.buffer),
	}

	h.mu.Lock()
	r, ok := h.rooms[draftID]
	if !ok {
		r = &room{subs: make(map[*Subscriber]struct{})}
		h.rooms[draftID] = r
	}
	r.mu.Lock()
	h.mu.Unlock()

	snap, err := h.snapshot(ctx, draftID)
	if err != nil {
		r.mu.Unlock()
		h.reap(draftID)
		return nil, fmt.Errorf("snapshot draft %s: %w", draftID, err)
	}
	sub.ch <- Message{Snapshot: snap}
	r.subs[sub] = struct{}{}
	r.mu.Unlock()

	log.Debug().
		Str("draft_id", draftID.String()).
		Str("subscriber_id", sub.ID.String()).
		Msg("subscriber joined")
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its stream. Safe to call more
// than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[sub.DraftID]
	if !ok {
		return
	}
	r.mu.Lock()
	r.remove(sub)
	if len(r.subs) == 0 {
		delete(h.rooms, sub.DraftID)
	}
	r.mu.Unlock()
}

// reap removes a draft's room if it has no subscribers left.
func (h *Hub) reap(draftID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[draftID]
	if !ok {
		return
	}
	r.mu.Lock()
	if len(r.subs) == 0 {
		delete(h.rooms, draftID)
	}
	r.mu.Unlock()
}

// Publish delivers an event to every current subscriber of its draft. A
// subscriber whose buffer is full is dropped so it cannot stall the others.
func (h *Hub) Publish(evt events.Envelope) {
	draftID, err := uuid.Parse(evt.DraftID)
	if err != nil {
		log.Error().Err(err).Str("draft_id", evt.DraftID).Msg("publish: bad draft id")
		return
	}

	h.mu.RLock()
	r, ok := h.rooms[draftID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	// Sends are non-blocking; removal happens under the same room lock, so
	// no channel is closed mid-send.
	r.mu.Lock()
	delivered := 0
	dropped := 0
	for sub := range r.subs {
		select {
		case sub.ch <- Message{Event: &evt}:
			delivered++
		default:
			log.Warn().
				Str("draft_id", draftID.String()).
				Str("subscriber_id", sub.ID.String()).
				Msg("subscriber too slow, dropping")
			r.remove(sub)
			dropped++
		}
	}
	r.mu.Unlock()
	if dropped > 0 {
		h.reap(draftID)
	}

	log.Debug().
		Str("draft_id", draftID.String()).
		Str("event_type", string(evt.Type)).
		Int("subscribers", delivered).
		Msg("event broadcast")
}

// SubscriberCount reports the number of live subscribers for a draft.
func (h *Hub) SubscriberCount(draftID uuid.UUID) int {
	h.mu.RLock()
	r, ok := h.rooms[draftID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
