package domain

import "time"

type SearchQuery struct {
	Raw        string
	Normalized string
	Tokens     []string
}

type MatchResult struct {
	Title       string `json:"title"`
	ContainerID int64  `json:"containerId"`
	ItemID      int64  `json:"itemId"`
	Score       int    `json:"score"`
}

func (m MatchResult) Locator() Locator {
	return Locator{ContainerID: m.ContainerID, ItemID: m.ItemID}
}

// Episode holds the season/episode numbers found in a title. Zero-valued
// flags mean the number was not present.
type Episode struct {
	Season     int
	HasSeason  bool
	Number     int
	HasEpisode bool
}

// ResultSet is one ranked result list addressed by an opaque token.
type ResultSet struct {
	Token     string        `json:"token"`
	OwnerID   int64         `json:"ownerId"`
	Items     []MatchResult `json:"items"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Contains reports whether loc is one of the listed items.
func (s ResultSet) Contains(loc Locator) bool {
	for _, item := range s.Items {
		if item.Locator() == loc {
			return true
		}
	}
	return false
}

// Page is a read-only view over a ResultSet.
type Page struct {
	Token      string        `json:"token"`
	Items      []MatchResult `json:"items"`
	Index      int           `json:"page"`
	TotalPages int           `json:"totalPages"`
	TotalItems int           `json:"totalItems"`
	HasPrev    bool          `json:"hasPrev"`
	HasNext    bool          `json:"hasNext"`
}

func CloneMatchResults(items []MatchResult) []MatchResult {
	if items == nil {
		return nil
	}
	return append([]MatchResult(nil), items...)
}
