package search

import (
	"math"
	"sort"

	"kinobot/internal/domain"
)

const minSeriesCluster = 3

// rerankSeries reorders results in place when at least minSeriesCluster of
// them belong to the series the query names. The whole list is resorted,
// not just the cluster. Items carrying the episode number the query asks
// for come first; the rest follow (season, episode, title length).
func (m *Matcher) rerankSeries(q domain.SearchQuery, results []domain.MatchResult) bool {
	queryKey := seriesKeyNormalized(q.Normalized)
	if queryKey == "" || len(results) < minSeriesCluster {
		return false
	}

	infos := make([]titleInfo, len(results))
	shared := 0
	for i, item := range results {
		infos[i] = m.describe(item.Title)
		if infos[i].seriesKey == queryKey {
			shared++
		}
	}
	if shared < minSeriesCluster {
		return false
	}

	wanted := extractNormalizedEpisode(q.Normalized)
	type ranked struct {
		item domain.MatchResult
		info titleInfo
	}
	rows := make([]ranked, len(results))
	for i := range results {
		rows[i] = ranked{item: results[i], info: infos[i]}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		left, right := rows[i].info, rows[j].info
		if wanted.HasEpisode {
			leftHit := left.episode.HasEpisode && left.episode.Number == wanted.Number
			rightHit := right.episode.HasEpisode && right.episode.Number == wanted.Number
			if leftHit != rightHit {
				return leftHit
			}
		}
		if ls, rs := left.episode.Season, right.episode.Season; ls != rs {
			return ls < rs
		}
		if le, re := episodeOrInf(left.episode), episodeOrInf(right.episode); le != re {
			return le < re
		}
		return left.runes < right.runes
	})
	for i := range rows {
		results[i] = rows[i].item
	}
	return true
}

func episodeOrInf(ep domain.Episode) int {
	if !ep.HasEpisode {
		return math.MaxInt
	}
	return ep.Number
}
