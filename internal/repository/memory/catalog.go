// Package memory is an in-process catalog used by tests and by the server
// when no database is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"kinobot/internal/domain"
	"kinobot/internal/domain/ports"
)

var (
	_ ports.Catalog             = (*Catalog)(nil)
	_ ports.SearchLogRepository = (*Catalog)(nil)
)

type Catalog struct {
	mu      sync.RWMutex
	entries map[domain.Locator]domain.CatalogEntry
	logs    []domain.SearchLogEntry
}

func NewCatalog(entries ...domain.CatalogEntry) *Catalog {
	c := &Catalog{entries: make(map[domain.Locator]domain.CatalogEntry, len(entries))}
	for _, entry := range entries {
		c.entries[entry.Locator()] = entry
	}
	return c
}

// SearchSubstring tries an exact phrase match on word boundaries, then every
// token as a word start, then every token anywhere. The first tier with hits
// wins. Results are ordered by normalized title length.
func (c *Catalog) SearchSubstring(_ context.Context, normalized string, limit int) ([]domain.CatalogEntry, error) {
	tokens := ports.SearchTokens(normalized)
	if len(tokens) == 0 {
		return nil, nil
	}
	tiers := []func(title string) bool{
		func(title string) bool {
			return strings.Contains(" "+title+" ", " "+normalized+" ")
		},
		func(title string) bool {
			for _, token := range tokens {
				if !strings.Contains(" "+title, " "+token) {
					return false
				}
			}
			return true
		},
		func(title string) bool {
			for _, token := range tokens {
				if !strings.Contains(title, token) {
					return false
				}
			}
			return true
		},
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, match := range tiers {
		var hits []domain.CatalogEntry
		for _, entry := range c.entries {
			if match(entry.TitleNormalized) {
				hits = append(hits, entry)
			}
		}
		if len(hits) == 0 {
			continue
		}
		sort.Slice(hits, func(i, j int) bool { return lessByLength(hits[i], hits[j]) })
		return truncate(hits, limit), nil
	}
	return nil, nil
}

func (c *Catalog) Recent(_ context.Context, limit int) ([]domain.CatalogEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.CatalogEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return lessByRecency(out[i], out[j]) })
	return truncate(out, limit), nil
}

func (c *Catalog) DeleteEntry(_ context.Context, loc domain.Locator) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, loc)
	return nil
}

func (c *Catalog) Upsert(_ context.Context, entry domain.CatalogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Locator()] = entry
	return nil
}

func (c *Catalog) Get(_ context.Context, loc domain.Locator) (domain.CatalogEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[loc]
	if !ok {
		return domain.CatalogEntry{}, domain.ErrNotFound
	}
	return entry, nil
}

func (c *Catalog) Count(context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(len(c.entries)), nil
}

func (c *Catalog) RebuildNormalized(_ context.Context, normalize func(string) string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	changed := 0
	for loc, entry := range c.entries {
		next := normalize(entry.TitleRaw)
		if next == entry.TitleNormalized {
			continue
		}
		entry.TitleNormalized = next
		c.entries[loc] = entry
		changed++
	}
	return changed, nil
}

func (c *Catalog) LogSearch(_ context.Context, entry domain.SearchLogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, entry)
	return nil
}

func (c *Catalog) RecentSearches(_ context.Context, limit int) ([]domain.SearchLogEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.SearchLogEntry, 0, min(limit, len(c.logs)))
	for i := len(c.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, c.logs[i])
	}
	return out, nil
}

func lessByLength(a, b domain.CatalogEntry) bool {
	la, lb := utf8.RuneCountInString(a.TitleNormalized), utf8.RuneCountInString(b.TitleNormalized)
	if la != lb {
		return la < lb
	}
	return lessByRecency(a, b)
}

func lessByRecency(a, b domain.CatalogEntry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	if a.ContainerID != b.ContainerID {
		return a.ContainerID < b.ContainerID
	}
	return a.ItemID < b.ItemID
}

func truncate(entries []domain.CatalogEntry, limit int) []domain.CatalogEntry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
