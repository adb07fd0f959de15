package ports

import (
	"context"

	"kinobot/internal/domain"
)

// Catalog is the storage side of the search engine: the candidate source,
// the stale-entry repair target and the ingestion/maintenance surface.
type Catalog interface {
	SearchSubstring(ctx context.Context, normalized string, limit int) ([]domain.CatalogEntry, error)
	Recent(ctx context.Context, limit int) ([]domain.CatalogEntry, error)
	// DeleteEntry is idempotent: deleting a missing entry is not an error.
	DeleteEntry(ctx context.Context, loc domain.Locator) error
	Upsert(ctx context.Context, entry domain.CatalogEntry) error
	Get(ctx context.Context, loc domain.Locator) (domain.CatalogEntry, error)
	Count(ctx context.Context) (int64, error)
	// RebuildNormalized recomputes title_normalized for every entry and
	// returns how many rows changed.
	RebuildNormalized(ctx context.Context, normalize func(string) string) (int, error)
}

type SearchLogRepository interface {
	LogSearch(ctx context.Context, entry domain.SearchLogEntry) error
	RecentSearches(ctx context.Context, limit int) ([]domain.SearchLogEntry, error)
}
