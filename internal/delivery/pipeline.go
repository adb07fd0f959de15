// Package delivery relays catalog items to users as protected copies,
// deletes those copies after a TTL and repairs the catalog and the result
// cache when a source message has disappeared.
package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"kinobot/internal/domain"
	"kinobot/internal/metrics"
)

// Transport relays and deletes messages.
type Transport interface {
	Deleter
	Relay(ctx context.Context, destination int64, loc domain.Locator, protect bool) (int64, error)
}

// IndexRepairer removes a catalog entry whose source is gone. It must be
// idempotent.
type IndexRepairer interface {
	DeleteEntry(ctx context.Context, loc domain.Locator) error
}

// CacheRepairer drops an item from a cached result list.
type CacheRepairer interface {
	RemoveItem(ctx context.Context, token string, loc domain.Locator) (int, error)
}

// Receipt describes what happened to one delivery.
type Receipt struct {
	State     domain.DeliveryState
	RelayedID int64
	// Handle is set when a self-destruct was scheduled.
	Handle *Handle
	// Remaining is the cached list length after a stale-source repair.
	Remaining int
}

type Pipeline struct {
	transport Transport
	scheduler *Scheduler
	index     IndexRepairer
	cache     CacheRepairer
	retry     RetryConfig
	sleeper   Sleeper
	logger    *slog.Logger
}

type PipelineOption func(*Pipeline)

func WithIndexRepairer(index IndexRepairer) PipelineOption {
	return func(p *Pipeline) {
		p.index = index
	}
}

func WithCacheRepairer(cache CacheRepairer) PipelineOption {
	return func(p *Pipeline) {
		p.cache = cache
	}
}

func WithRetryConfig(cfg RetryConfig) PipelineOption {
	return func(p *Pipeline) {
		p.retry = cfg
	}
}

func WithRelaySleeper(sleeper Sleeper) PipelineOption {
	return func(p *Pipeline) {
		if sleeper != nil {
			p.sleeper = sleeper
		}
	}
}

func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewPipeline(transport Transport, scheduler *Scheduler, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		transport: transport,
		scheduler: scheduler,
		retry:     DefaultRetryConfig(),
		sleeper:   TimerSleeper(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Deliver relays the job's item and schedules its self-destruct. It returns
// false without an error when the source message no longer exists.
func (p *Pipeline) Deliver(ctx context.Context, job domain.DeliveryJob) (bool, error) {
	receipt, err := p.Send(ctx, job)
	if err != nil {
		return false, err
	}
	return receipt.State != domain.DeliveryStaleSource, nil
}

// Send is Deliver with the full receipt.
func (p *Pipeline) Send(ctx context.Context, job domain.DeliveryJob) (Receipt, error) {
	loc := job.Locator()
	relayedID, err := p.relay(ctx, job.Destination, loc, job.Protect)
	if err != nil && job.Protect && IsProtectUnsupported(err) {
		p.logger.Info("protected relay rejected, retrying without protection",
			slog.Int64("destination", job.Destination),
			slog.String("locator", loc.String()),
		)
		relayedID, err = p.relay(ctx, job.Destination, loc, false)
	}
	if err != nil {
		if IsSourceMissing(err) {
			metrics.DeliveriesTotal.WithLabelValues("stale").Inc()
			p.logger.Info("delivery source missing", slog.String("locator", loc.String()))
			return Receipt{State: domain.DeliveryStaleSource}, nil
		}
		metrics.DeliveriesTotal.WithLabelValues("error").Inc()
		return Receipt{State: domain.DeliveryPending}, fmt.Errorf("%w: %s: %w", ErrRelay, loc, err)
	}

	metrics.DeliveriesTotal.WithLabelValues("relayed").Inc()
	receipt := Receipt{State: domain.DeliveryRelayed, RelayedID: relayedID}
	if job.TTL > 0 && p.scheduler != nil {
		receipt.Handle = p.scheduler.Schedule(job.Destination, relayedID, job.TTL)
		receipt.State = domain.DeliveryScheduled
	}
	return receipt, nil
}

// DeliverAndRepair delivers job and, when its source is gone, removes the
// entry from the catalog and from the cached list addressed by token.
func (p *Pipeline) DeliverAndRepair(ctx context.Context, token string, job domain.DeliveryJob) (Receipt, error) {
	receipt, err := p.Send(ctx, job)
	if err != nil || receipt.State != domain.DeliveryStaleSource {
		return receipt, err
	}
	remaining, err := p.Repair(ctx, token, job.Locator())
	receipt.Remaining = remaining
	return receipt, err
}

// Repair drops loc from the catalog index and from the cached result list.
// A failing index delete is logged; the cache is still repaired so the
// user never sees the dead entry again.
func (p *Pipeline) Repair(ctx context.Context, token string, loc domain.Locator) (int, error) {
	if p.index != nil {
		if err := p.index.DeleteEntry(ctx, loc); err != nil {
			p.logger.Warn("catalog repair failed",
				slog.String("locator", loc.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	if p.cache == nil || token == "" {
		return 0, nil
	}
	remaining, err := p.cache.RemoveItem(ctx, token, loc)
	if err != nil {
		return 0, fmt.Errorf("repair result cache: %w", err)
	}
	return remaining, nil
}

func (p *Pipeline) relay(ctx context.Context, destination int64, loc domain.Locator, protect bool) (int64, error) {
	var relayedID int64
	err := retryTransport(ctx, p.retry, p.sleeper, func() error {
		id, err := p.transport.Relay(ctx, destination, loc, protect)
		if err != nil {
			return err
		}
		relayedID = id
		return nil
	})
	return relayedID, err
}
