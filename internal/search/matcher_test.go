package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"kinobot/internal/domain"
)

// fakeSource mimics the tiered catalog lookup: exact phrase, then every
// token as a word start, then every token as a substring.
type fakeSource struct {
	entries      []domain.CatalogEntry
	substringErr error
	substring    int
	recent       int
	limits       []int
}

func newFakeSource(titles ...string) *fakeSource {
	src := &fakeSource{}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range titles {
		src.entries = append(src.entries, domain.CatalogEntry{
			TitleRaw:        title,
			TitleNormalized: Normalize(title),
			ContainerID:     -100,
			ItemID:          int64(i + 1),
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		})
	}
	return src
}

func (f *fakeSource) SearchSubstring(_ context.Context, normalized string, limit int) ([]domain.CatalogEntry, error) {
	f.substring++
	f.limits = append(f.limits, limit)
	if f.substringErr != nil {
		return nil, f.substringErr
	}
	var tokens []string
	for _, token := range strings.Fields(normalized) {
		if len([]rune(token)) >= 2 {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	tiers := []func(title string) bool{
		func(title string) bool { return strings.Contains(" "+title+" ", " "+normalized+" ") },
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
	for _, match := range tiers {
		var out []domain.CatalogEntry
		for _, entry := range f.entries {
			if match(entry.TitleNormalized) {
				out = append(out, entry)
			}
		}
		if len(out) > 0 {
			if len(out) > limit {
				out = out[:limit]
			}
			return out, nil
		}
	}
	return nil, nil
}

func (f *fakeSource) Recent(_ context.Context, limit int) ([]domain.CatalogEntry, error) {
	f.recent++
	f.limits = append(f.limits, limit)
	out := make([]domain.CatalogEntry, 0, len(f.entries))
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.entries[i])
	}
	return out, nil
}

func titlesOf(results []domain.MatchResult) []string {
	out := make([]string, 0, len(results))
	for _, item := range results {
		out = append(out, item.Title)
	}
	return out
}

// ---------------------------------------------------------------------------
// Empty and short queries
// ---------------------------------------------------------------------------

func TestFindTopMatchesEmptyQuery(t *testing.T) {
	src := newFakeSource("Avatar")
	m := NewMatcher(src)
	for _, query := range []string{"", "   ", "!!!", "1080p"} {
		got, err := m.FindTopMatches(context.Background(), query, DefaultMatchOptions())
		if err != nil {
			t.Fatalf("query %q: unexpected error: %v", query, err)
		}
		if got == nil || len(got) != 0 {
			t.Fatalf("query %q: expected empty non-nil list, got %v", query, got)
		}
	}
	if src.substring != 0 {
		t.Fatalf("empty queries must not touch the source, got %d calls", src.substring)
	}
}

func TestFindTopMatchesShortQueryDoesNotMatchInsideWords(t *testing.T) {
	src := newFakeSource("Doktor")
	m := NewMatcher(src)
	got, err := m.FindTopMatches(context.Background(), "tor", DefaultMatchOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no matches for tor, got %v", titlesOf(got))
	}
	if src.recent != 0 {
		t.Fatalf("short query must never widen to the recent pool")
	}
}

func TestFindTopMatchesShortQueryWithoutCandidatesSkipsFallback(t *testing.T) {
	src := newFakeSource("Avatar", "Titanic")
	m := NewMatcher(src)
	got, err := m.FindTopMatches(context.Background(), "zx", DefaultMatchOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %v", titlesOf(got))
	}
	if src.recent != 0 {
		t.Fatalf("expected no recent fetch, got %d", src.recent)
	}
}

func TestFindTopMatchesShortQueryKeepsWordPrefixes(t *testing.T) {
	src := newFakeSource("Bota", "Otabek", "Doktor Ota")
	got, err := NewMatcher(src).FindTopMatches(context.Background(), "ota", DefaultMatchOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"Doktor Ota"}
	if strings.Join(titlesOf(got), "|") != strings.Join(want, "|") {
		t.Fatalf("got %v, want %v", titlesOf(got), want)
	}

	src = newFakeSource("Bota", "Otabek")
	got, _ = NewMatcher(src).FindTopMatches(context.Background(), "ota", DefaultMatchOptions())
	if strings.Join(titlesOf(got), "|") != "Otabek" {
		t.Fatalf("expected word prefix match only, got %v", titlesOf(got))
	}
}

func TestFindTopMatchesShortQueryOrdersExactBeforePrefix(t *testing.T) {
	src := newFakeSource("Ota va bola", "Ota", "Otabek", "Bota")
	m := NewMatcher(src)
	got, err := m.FindTopMatches(context.Background(), "OTA", DefaultMatchOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// "Otabek" and "Bota" only show up in the contains tier, which the
	// exact-phrase tier shadows here.
	want := []string{"Ota", "Ota va bola"}
	if strings.Join(titlesOf(got), "|") != strings.Join(want, "|") {
		t.Fatalf("got %v, want %v", titlesOf(got), want)
	}
	for _, item := range got {
		if item.Score != 100 {
			t.Fatalf("short matches must score 100, got %d", item.Score)
		}
	}

	limited, _ := m.FindTopMatches(context.Background(), "ota", MatchOptions{Limit: 1})
	if len(limited) != 1 || limited[0].Title != "Ota" {
		t.Fatalf("limit not applied: %v", titlesOf(limited))
	}
}

// ---------------------------------------------------------------------------
// Fuzzy path
// ---------------------------------------------------------------------------

func TestFindTopMatchesFuzzyFallbackToRecent(t *testing.T) {
	src := newFakeSource("Avatar", "Titanic")
	m := NewMatcher(src)
	got, err := m.FindTopMatches(context.Background(), "Avatr", DefaultMatchOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.recent != 1 {
		t.Fatalf("expected recent fallback, got %d calls", src.recent)
	}
	if len(got) != 1 || got[0].Title != "Avatar" {
		t.Fatalf("expected Avatar via fuzzy fallback, got %v", titlesOf(got))
	}
	if got[0].Score < DefaultScoreCutoff || got[0].Score >= 100 {
		t.Fatalf("unexpected score %d", got[0].Score)
	}
}

func TestFindTopMatchesAppliesCutoffAndOrder(t *testing.T) {
	src := newFakeSource("Qora kitob", "Qora", "Qora daryo kitob")
	m := NewMatcher(src)
	got, err := m.FindTopMatches(context.Background(), "qora kitob", DefaultMatchOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) == 0 || got[0].Title != "Qora kitob" || got[0].Score != 100 {
		t.Fatalf("expected exact title first, got %v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("results not sorted by score: %v", got)
		}
		if got[i].Score < DefaultScoreCutoff {
			t.Fatalf("result below cutoff: %v", got[i])
		}
	}
}

func TestFindTopMatchesSourceError(t *testing.T) {
	boom := errors.New("boom")
	src := newFakeSource("Avatar")
	src.substringErr = boom
	_, err := NewMatcher(src).FindTopMatches(context.Background(), "avatar", DefaultMatchOptions())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped source error, got %v", err)
	}
}

func TestFindTopMatchesHonoursPoolSizes(t *testing.T) {
	src := newFakeSource("Avatar", "Dune", "Alien")
	m := NewMatcher(src, WithPoolSizes(7, 11), WithTitleCacheSize(2))

	if _, err := m.FindTopMatches(context.Background(), "zzzz qqqq", DefaultMatchOptions()); err != nil {
		t.Fatalf("FindTopMatches: %v", err)
	}
	if len(src.limits) != 2 || src.limits[0] != 7 || src.limits[1] != 11 {
		t.Fatalf("expected substring pool 7 then recent pool 11, got %v", src.limits)
	}
	if m.titles.Len() > 2 {
		t.Fatalf("title memo exceeded its size: %d", m.titles.Len())
	}
}

func TestFindTopMatchesCancelledContext(t *testing.T) {
	src := newFakeSource("Avatar", "Avatar 2")
	m := NewMatcher(src, WithScoringWorkers(1))
	if err := m.scoring.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer m.scoring.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.FindTopMatches(ctx, "avatar", DefaultMatchOptions()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Series re-rank
// ---------------------------------------------------------------------------

func TestFindTopMatchesSeriesPrefersRequestedEpisode(t *testing.T) {
	src := newFakeSource(
		"Sevgi ortidan qism 8",
		"Sevgi ortidan qism 6",
		"Sevgi ortidan qism 7",
		"Sevgi ortidan qism 5",
	)
	got, err := NewMatcher(src).FindTopMatches(context.Background(), "Sevgi ortidan 7", DefaultMatchOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"Sevgi ortidan qism 7", "Sevgi ortidan qism 5", "Sevgi ortidan qism 6", "Sevgi ortidan qism 8"}
	if strings.Join(titlesOf(got), "|") != strings.Join(want, "|") {
		t.Fatalf("got %v, want %v", titlesOf(got), want)
	}
}

func TestRerankSeriesPutsRequestedEpisodeFirst(t *testing.T) {
	m := NewMatcher(newFakeSource())
	results := []domain.MatchResult{
		{Title: "Sevgi ortidan 5 qism"},
		{Title: "Sevgi ortidan 6 qism"},
		{Title: "Sevgi ortidan 7 qism"},
		{Title: "Sevgi ortidan 8 qism"},
	}
	if !m.rerankSeries(ParseQuery("Sevgi ortidan 7"), results) {
		t.Fatalf("expected rerank to trigger")
	}
	if results[0].Title != "Sevgi ortidan 7 qism" {
		t.Fatalf("expected episode 7 first, got %v", titlesOf(results))
	}
}

func TestRerankSeriesOrdersWholeList(t *testing.T) {
	m := NewMatcher(newFakeSource())
	results := []domain.MatchResult{
		{Title: "Kelinlar 3 qism", Score: 95},
		{Title: "Kelinlar sarguzashti", Score: 90},
		{Title: "Kelinlar S02E01", Score: 88},
		{Title: "Kelinlar 1 qism", Score: 85},
		{Title: "Kelinlar 2 qism", Score: 80},
	}
	if !m.rerankSeries(ParseQuery("kelinlar"), results) {
		t.Fatalf("expected rerank to trigger")
	}
	want := []string{"Kelinlar 1 qism", "Kelinlar 2 qism", "Kelinlar 3 qism", "Kelinlar sarguzashti", "Kelinlar S02E01"}
	if strings.Join(titlesOf(results), "|") != strings.Join(want, "|") {
		t.Fatalf("got %v, want %v", titlesOf(results), want)
	}
}

func TestRerankSeriesNeedsThreeSharedKeys(t *testing.T) {
	m := NewMatcher(newFakeSource())
	results := []domain.MatchResult{
		{Title: "Kelinlar 3 qism"},
		{Title: "Kelinlar 1 qism"},
		{Title: "Boshqa film"},
	}
	if m.rerankSeries(ParseQuery("kelinlar"), results) {
		t.Fatalf("rerank must not trigger with two shared keys")
	}
	if results[0].Title != "Kelinlar 3 qism" {
		t.Fatalf("order changed without rerank: %v", titlesOf(results))
	}
	if m.rerankSeries(ParseQuery("2019"), results) {
		t.Fatalf("rerank must not trigger for an empty series key")
	}
}
