package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// lockTable hands out one logical lock per draft. Operations on different
// drafts proceed independently; operations on the same draft serialize.
type lockTable struct {
	mu    sync.Mutex
	locks map[uuid.UUID]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[uuid.UUID]chan struct{})}
}

func (t *lockTable) sem(draftID uuid.UUID) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	sem, ok := t.locks[draftID]
	if !ok {
		sem = make(chan struct{}, 1)
		t.locks[draftID] = sem
	}
	return sem
}

// acquire blocks until the draft lock is held, the wait deadline passes, or
// ctx is cancelled. The returned release function must be called exactly once.
func (t *lockTable) acquire(ctx context.Context, draftID uuid.UUID, wait time.Duration) (func(), error) {
	sem := t.sem(draftID)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-timer.C:
		return nil, ErrBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// tryAcquire takes the draft lock without waiting. Lifecycle operations use
// this; AssignPick is the only operation allowed to block.
func (t *lockTable) tryAcquire(draftID uuid.UUID) (func(), error) {
	sem := t.sem(draftID)
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	default:
		return nil, ErrBusy
	}
}
