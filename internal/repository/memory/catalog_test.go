package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"kinobot/internal/domain"
)

func newCatalog(titles ...string) *Catalog {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := make([]domain.CatalogEntry, 0, len(titles))
	for i, title := range titles {
		entries = append(entries, domain.CatalogEntry{
			TitleRaw:        title,
			TitleNormalized: title,
			ContainerID:     -1,
			ItemID:          int64(i + 1),
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		})
	}
	return NewCatalog(entries...)
}

func titles(entries []domain.CatalogEntry) []string {
	var out []string
	for _, e := range entries {
		out = append(out, e.TitleRaw)
	}
	return out
}

func TestSearchSubstringTiers(t *testing.T) {
	c := newCatalog("ota va bola", "otabek", "bolalar ota", "doktor")
	ctx := context.Background()

	tests := []struct {
		query string
		want  []string
	}{
		{"ota", []string{"bolalar ota", "ota va bola"}},
		{"otab", []string{"otabek"}},
		{"tor", []string{"doktor"}},
		{"o", nil},
	}
	for _, tt := range tests {
		got, err := c.SearchSubstring(ctx, tt.query, 10)
		if err != nil {
			t.Fatalf("SearchSubstring(%q): %v", tt.query, err)
		}
		if !reflect.DeepEqual(titles(got), tt.want) {
			t.Fatalf("SearchSubstring(%q) = %v, want %v", tt.query, titles(got), tt.want)
		}
	}
}

func TestRecentLimit(t *testing.T) {
	c := newCatalog("a", "b", "c")
	got, _ := c.Recent(context.Background(), 2)
	if want := []string{"c", "b"}; !reflect.DeepEqual(titles(got), want) {
		t.Fatalf("expected %v, got %v", want, titles(got))
	}
}

func TestDeleteEntryIdempotent(t *testing.T) {
	c := newCatalog("a")
	loc := domain.Locator{ContainerID: -1, ItemID: 1}
	ctx := context.Background()
	if err := c.DeleteEntry(ctx, loc); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if err := c.DeleteEntry(ctx, loc); err != nil {
		t.Fatalf("second DeleteEntry: %v", err)
	}
	if _, err := c.Get(ctx, loc); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecentSearchesNewestFirst(t *testing.T) {
	c := NewCatalog()
	ctx := context.Background()
	for _, q := range []string{"one", "two", "three"} {
		_ = c.LogSearch(ctx, domain.SearchLogEntry{Query: q})
	}
	got, _ := c.RecentSearches(ctx, 2)
	if len(got) != 2 || got[0].Query != "three" || got[1].Query != "two" {
		t.Fatalf("unexpected searches %+v", got)
	}
}
