package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"kinobot/internal/domain"
	"kinobot/internal/metrics"
)

const (
	DefaultLimit       = 30
	DefaultScoreCutoff = 70

	defaultSubstringPool  = 120
	defaultRecentPool     = 300
	defaultTitleCacheSize = 4096
	shortQueryRunes       = 4
	scoreChunkSize        = 32
)

var ErrNoCandidateSource = errors.New("candidate source is not configured")

// CandidateSource supplies catalog entries for one matching pass. Both
// methods must return entries in a stable order.
type CandidateSource interface {
	SearchSubstring(ctx context.Context, normalized string, limit int) ([]domain.CatalogEntry, error)
	Recent(ctx context.Context, limit int) ([]domain.CatalogEntry, error)
}

type MatchOptions struct {
	Limit       int
	ScoreCutoff float64
}

func DefaultMatchOptions() MatchOptions {
	return MatchOptions{Limit: DefaultLimit, ScoreCutoff: DefaultScoreCutoff}
}

type titleInfo struct {
	normalized string
	seriesKey  string
	episode    domain.Episode
	runes      int
}

type Matcher struct {
	source        CandidateSource
	logger        *slog.Logger
	scoring       *semaphore.Weighted
	titles        *lru.Cache[string, titleInfo]
	substringPool int
	recentPool    int
}

type MatcherOption func(*Matcher)

func WithLogger(logger *slog.Logger) MatcherOption {
	return func(m *Matcher) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithScoringWorkers caps how many scoring chunks run at once across all
// requests.
func WithScoringWorkers(workers int) MatcherOption {
	return func(m *Matcher) {
		if workers > 0 {
			m.scoring = semaphore.NewWeighted(int64(workers))
		}
	}
}

func WithPoolSizes(substring, recent int) MatcherOption {
	return func(m *Matcher) {
		if substring > 0 {
			m.substringPool = substring
		}
		if recent > 0 {
			m.recentPool = recent
		}
	}
}

func WithTitleCacheSize(size int) MatcherOption {
	return func(m *Matcher) {
		if size <= 0 {
			return
		}
		if cache, err := lru.New[string, titleInfo](size); err == nil {
			m.titles = cache
		}
	}
}

func NewMatcher(source CandidateSource, opts ...MatcherOption) *Matcher {
	titles, _ := lru.New[string, titleInfo](defaultTitleCacheSize)
	m := &Matcher{
		source:        source,
		logger:        slog.Default(),
		scoring:       semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
		titles:        titles,
		substringPool: defaultSubstringPool,
		recentPool:    defaultRecentPool,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ParseQuery builds the derived query record for raw user input.
func ParseQuery(raw string) domain.SearchQuery {
	normalized := Normalize(raw)
	return domain.SearchQuery{
		Raw:        raw,
		Normalized: normalized,
		Tokens:     Tokens(normalized),
	}
}

func isShortQuery(q domain.SearchQuery) bool {
	return len(q.Tokens) == 1 && utf8.RuneCountInString(q.Tokens[0]) < shortQueryRunes
}

// FindTopMatches ranks catalog entries against query. Empty or garbage input
// yields an empty list; only candidate source failures return an error.
func (m *Matcher) FindTopMatches(ctx context.Context, query string, opts MatchOptions) ([]domain.MatchResult, error) {
	if m.source == nil {
		return nil, ErrNoCandidateSource
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.ScoreCutoff <= 0 {
		opts.ScoreCutoff = DefaultScoreCutoff
	}

	ctx, span := otel.Tracer("kinobot/search").Start(ctx, "search.FindTopMatches")
	defer span.End()
	start := time.Now()
	defer func() { metrics.SearchDuration.Observe(time.Since(start).Seconds()) }()

	q := ParseQuery(query)
	if q.Normalized == "" {
		metrics.SearchRequestsTotal.WithLabelValues("empty").Inc()
		return []domain.MatchResult{}, nil
	}
	short := isShortQuery(q)

	candidates, err := m.source.SearchSubstring(ctx, q.Normalized, m.substringPool)
	if err != nil {
		return nil, fmt.Errorf("substring candidates: %w", err)
	}
	if len(candidates) == 0 {
		if short {
			metrics.SearchRequestsTotal.WithLabelValues("short").Inc()
			return []domain.MatchResult{}, nil
		}
		candidates, err = m.source.Recent(ctx, m.recentPool)
		if err != nil {
			return nil, fmt.Errorf("recent candidates: %w", err)
		}
		metrics.SearchFallbackTotal.Inc()
		m.logger.Info("search fallback to recent pool",
			slog.String("query", truncate(query, 80)),
			slog.Int("candidates", len(candidates)),
		)
	}
	span.SetAttributes(
		attribute.Int("search.candidates", len(candidates)),
		attribute.Bool("search.short", short),
	)

	if short {
		metrics.SearchRequestsTotal.WithLabelValues("short").Inc()
		return m.shortMatches(q.Tokens[0], candidates, opts.Limit), nil
	}

	metrics.SearchRequestsTotal.WithLabelValues("fuzzy").Inc()
	results, err := m.fuzzyMatches(ctx, q, candidates, opts)
	if err != nil {
		return nil, err
	}
	if m.rerankSeries(q, results) {
		metrics.SeriesRerankTotal.Inc()
		span.SetAttributes(attribute.Bool("search.series_rerank", true))
	}
	return results, nil
}

// shortMatches never scores fuzzily: a three-letter needle would match
// inside unrelated words ("tor" in "doktor").
func (m *Matcher) shortMatches(needle string, candidates []domain.CatalogEntry, limit int) []domain.MatchResult {
	var exact, prefix []domain.MatchResult
	for _, entry := range candidates {
		info := m.describe(entry.TitleRaw)
		if info.normalized == needle {
			exact = append(exact, toMatch(entry, 100))
			continue
		}
		for _, word := range strings.Fields(info.normalized) {
			if strings.HasPrefix(word, needle) {
				prefix = append(prefix, toMatch(entry, 100))
				break
			}
		}
	}
	out := append(exact, prefix...)
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []domain.MatchResult{}
	}
	return out
}

type scoredCandidate struct {
	index int
	score float64
}

func (m *Matcher) fuzzyMatches(ctx context.Context, q domain.SearchQuery, candidates []domain.CatalogEntry, opts MatchOptions) ([]domain.MatchResult, error) {
	scorer := quickRatio
	if len(q.Tokens) > 1 {
		scorer = tokenSetRatio
	}

	scores := make([]float64, len(candidates))
	group, groupCtx := errgroup.WithContext(ctx)
	for from := 0; from < len(candidates); from += scoreChunkSize {
		to := min(from+scoreChunkSize, len(candidates))
		group.Go(func() error {
			if err := m.scoring.Acquire(groupCtx, 1); err != nil {
				return err
			}
			defer m.scoring.Release(1)
			for i := from; i < to; i++ {
				scores[i] = scorer(q.Normalized, m.describe(candidates[i].TitleRaw).normalized)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("score candidates: %w", err)
	}

	kept := make([]scoredCandidate, 0, len(candidates))
	for i, score := range scores {
		if score >= opts.ScoreCutoff {
			kept = append(kept, scoredCandidate{index: i, score: score})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].score > kept[j].score
	})
	if len(kept) > opts.Limit {
		kept = kept[:opts.Limit]
	}

	results := make([]domain.MatchResult, 0, len(kept))
	for _, item := range kept {
		results = append(results, toMatch(candidates[item.index], int(item.score)))
	}
	return results, nil
}

// describe memoizes everything the matcher derives from a raw title.
func (m *Matcher) describe(raw string) titleInfo {
	if m.titles != nil {
		if info, ok := m.titles.Get(raw); ok {
			return info
		}
	}
	normalized := Normalize(raw)
	info := titleInfo{
		normalized: normalized,
		seriesKey:  seriesKeyNormalized(normalized),
		episode:    extractNormalizedEpisode(normalized),
		runes:      utf8.RuneCountInString(raw),
	}
	if m.titles != nil {
		m.titles.Add(raw, info)
	}
	return info
}

func toMatch(entry domain.CatalogEntry, score int) domain.MatchResult {
	return domain.MatchResult{
		Title:       entry.TitleRaw,
		ContainerID: entry.ContainerID,
		ItemID:      entry.ItemID,
		Score:       score,
	}
}

func truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	if limit <= 3 {
		return value[:limit]
	}
	return value[:limit-3] + "..."
}
