package delivery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"kinobot/internal/domain"
	"kinobot/internal/metrics"
)

const (
	defaultSleepChunk    = 60 * time.Second
	defaultDeleteRetries = 5
	defaultMaxBackoff    = 10 * time.Second
	defaultDeleteTimeout = 15 * time.Second
)

// Deleter removes a relayed copy from its destination.
type Deleter interface {
	Delete(ctx context.Context, destination, relayedID int64) error
}

// Handle tracks one scheduled self-destruct.
type Handle struct {
	ID          uint64
	Destination int64
	RelayedID   int64
	TTL         time.Duration

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	state    domain.DeliveryState
	attempts int
}

// Cancel stops the job. Before the deadline this means no delete is sent.
func (h *Handle) Cancel() {
	h.cancel()
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) State() domain.DeliveryState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Attempts reports how many delete calls were made.
func (h *Handle) Attempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts
}

func (h *Handle) setAttempts(n int) {
	h.mu.Lock()
	h.attempts = n
	h.mu.Unlock()
}

// Scheduler runs self-destruct jobs in detached goroutines. Jobs outlive the
// request that created them and are lost when the process exits.
type Scheduler struct {
	deleter       Deleter
	sleeper       Sleeper
	logger        *slog.Logger
	chunk         time.Duration
	maxAttempts   int
	maxBackoff    time.Duration
	deleteTimeout time.Duration

	root   context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	seq    uint64
	active map[uint64]*Handle
}

type SchedulerOption func(*Scheduler)

func WithSleeper(sleeper Sleeper) SchedulerOption {
	return func(s *Scheduler) {
		if sleeper != nil {
			s.sleeper = sleeper
		}
	}
}

func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithSleepChunk(chunk time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if chunk > 0 {
			s.chunk = chunk
		}
	}
}

func WithDeleteRetries(attempts int) SchedulerOption {
	return func(s *Scheduler) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
	}
}

func NewScheduler(deleter Deleter, opts ...SchedulerOption) *Scheduler {
	root, stop := context.WithCancel(context.Background())
	s := &Scheduler{
		deleter:       deleter,
		sleeper:       TimerSleeper(),
		logger:        slog.Default(),
		chunk:         defaultSleepChunk,
		maxAttempts:   defaultDeleteRetries,
		maxBackoff:    defaultMaxBackoff,
		deleteTimeout: defaultDeleteTimeout,
		root:          root,
		stop:          stop,
		active:        make(map[uint64]*Handle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule deletes relayedID from destination once ttl has elapsed.
func (s *Scheduler) Schedule(destination, relayedID int64, ttl time.Duration) *Handle {
	ctx, cancel := context.WithCancel(s.root)

	s.mu.Lock()
	s.seq++
	h := &Handle{
		ID:          s.seq,
		Destination: destination,
		RelayedID:   relayedID,
		TTL:         ttl,
		cancel:      cancel,
		done:        make(chan struct{}),
		state:       domain.DeliveryScheduled,
	}
	s.active[h.ID] = h
	s.mu.Unlock()

	metrics.SelfDestructPending.Inc()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		state := s.run(ctx, h)
		cancel()

		s.mu.Lock()
		delete(s.active, h.ID)
		s.mu.Unlock()
		h.mu.Lock()
		h.state = state
		h.mu.Unlock()
		metrics.SelfDestructPending.Dec()
		metrics.SelfDestructTotal.WithLabelValues(string(state)).Inc()
		close(h.done)
	}()
	return h
}

func (s *Scheduler) run(ctx context.Context, h *Handle) domain.DeliveryState {
	for remaining := h.TTL; remaining > 0; {
		step := min(remaining, s.chunk)
		if err := s.sleeper.Sleep(ctx, step); err != nil {
			return domain.DeliveryCancelled
		}
		remaining -= step
	}
	if ctx.Err() != nil {
		return domain.DeliveryCancelled
	}

	logger := s.logger.With(
		slog.Int64("destination", h.Destination),
		slog.Int64("messageId", h.RelayedID),
	)
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		h.setAttempts(attempt)
		err := s.deleteOnce(ctx, h)
		if err == nil {
			return domain.DeliveryDeleted
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return domain.DeliveryCancelled
		}

		wait, limited := RetryAfter(err)
		switch {
		case limited:
			logger.Debug("self-destruct rate limited", slog.Duration("retryAfter", wait))
		case IsSoftDeleteFailure(err):
			logger.Debug("self-destruct soft fail", slog.String("error", err.Error()))
			return domain.DeliverySoftFailed
		default:
			wait = min(time.Duration(2*attempt)*time.Second, s.maxBackoff)
			logger.Debug("self-destruct retry",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
		if attempt == s.maxAttempts {
			break
		}
		if err := s.sleeper.Sleep(ctx, wait); err != nil {
			return domain.DeliveryCancelled
		}
	}
	logger.Warn("self-destruct gave up", slog.Int("attempts", s.maxAttempts))
	return domain.DeliveryRetriesExhausted
}

func (s *Scheduler) deleteOnce(ctx context.Context, h *Handle) error {
	deleteCtx, cancel := context.WithTimeout(ctx, s.deleteTimeout)
	defer cancel()
	return s.deleter.Delete(deleteCtx, h.Destination, h.RelayedID)
}

// Pending reports jobs that have not reached a terminal state.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Wait blocks until every scheduled job has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Shutdown cancels all pending jobs and waits for them to exit or for ctx.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
