package telegram

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// UpdateHandler processes one update. Errors are the handler's to log.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update Update)
}

type UpdateHandlerFunc func(ctx context.Context, update Update)

func (f UpdateHandlerFunc) HandleUpdate(ctx context.Context, update Update) {
	f(ctx, update)
}

type updateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
}

// Poller long-polls getUpdates and fans updates out to a bounded pool of
// handler goroutines.
type Poller struct {
	source   updateSource
	handler  UpdateHandler
	timeout  time.Duration
	backoff  time.Duration
	workers  *semaphore.Weighted
	logger   *slog.Logger
	inflight sync.WaitGroup
}

type PollerOption func(*Poller)

func WithPollTimeout(timeout time.Duration) PollerOption {
	return func(p *Poller) {
		if timeout >= 0 {
			p.timeout = timeout
		}
	}
}

func WithPollBackoff(backoff time.Duration) PollerOption {
	return func(p *Poller) {
		if backoff > 0 {
			p.backoff = backoff
		}
	}
}

func WithWorkers(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.workers = semaphore.NewWeighted(int64(n))
		}
	}
}

func WithPollerLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewPoller(source updateSource, handler UpdateHandler, opts ...PollerOption) *Poller {
	p := &Poller{
		source:  source,
		handler: handler,
		timeout: 30 * time.Second,
		backoff: 3 * time.Second,
		workers: semaphore.NewWeighted(16),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until ctx is cancelled, then waits for in-flight handlers.
func (p *Poller) Run(ctx context.Context) error {
	defer p.inflight.Wait()

	var offset int64
	for {
		updates, err := p.source.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := p.backoff
			if retry, ok := retryAfter(err); ok {
				wait = retry
			}
			p.logger.Warn("get updates failed", slog.String("error", err.Error()), slog.Duration("retry_in", wait))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if err := p.workers.Acquire(ctx, 1); err != nil {
				return nil
			}
			p.inflight.Add(1)
			go func(u Update) {
				defer p.inflight.Done()
				defer p.workers.Release(1)
				defer func() {
					if rec := recover(); rec != nil {
						p.logger.Error("update handler panic", slog.Int64("update_id", u.UpdateID), slog.Any("panic", rec))
					}
				}()
				p.handler.HandleUpdate(ctx, u)
			}(update)
		}
	}
}

func retryAfter(err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter, true
	}
	return 0, false
}
