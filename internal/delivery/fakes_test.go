package delivery

import (
	"context"
	"sync"
	"time"

	"kinobot/internal/domain"
)

type relayCall struct {
	destination int64
	loc         domain.Locator
	protect     bool
}

// recordingTransport replays queued errors and records every call.
type recordingTransport struct {
	mu         sync.Mutex
	relayErrs  []error
	deleteErrs []error
	relays     []relayCall
	deletes    []int64
	nextID     int64
}

func (t *recordingTransport) Relay(_ context.Context, destination int64, loc domain.Locator, protect bool) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.relays = append(t.relays, relayCall{destination: destination, loc: loc, protect: protect})
	if len(t.relayErrs) > 0 {
		err := t.relayErrs[0]
		t.relayErrs = t.relayErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	t.nextID++
	return 1000 + t.nextID, nil
}

func (t *recordingTransport) Delete(_ context.Context, _ int64, relayedID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deletes = append(t.deletes, relayedID)
	if len(t.deleteErrs) > 0 {
		err := t.deleteErrs[0]
		t.deleteErrs = t.deleteErrs[1:]
		return err
	}
	return nil
}

func (t *recordingTransport) relayCalls() []relayCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]relayCall(nil), t.relays...)
}

func (t *recordingTransport) deleteCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.deletes)
}

// recordingSleeper returns immediately and remembers what it was asked.
type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return nil
}

func (s *recordingSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

// blockingSleeper never wakes on its own.
var blockingSleeper = SleeperFunc(func(ctx context.Context, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
})

type recordingIndex struct {
	mu      sync.Mutex
	deleted []domain.Locator
	err     error
}

func (r *recordingIndex) DeleteEntry(_ context.Context, loc domain.Locator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, loc)
	return r.err
}
