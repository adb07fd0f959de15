package search

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// indelDistance counts the insertions and deletions of an optimal diff
// between a and b, measured in runes.
func indelDistance(a, b string) int {
	if a == b {
		return 0
	}
	dmp := diffmatchpatch.New()
	// Zero timeout keeps the diff minimal instead of falling back to
	// half-match heuristics.
	dmp.DiffTimeout = 0
	distance := 0
	for _, diff := range dmp.DiffMainRunes([]rune(a), []rune(b), false) {
		if diff.Type == diffmatchpatch.DiffEqual {
			continue
		}
		distance += utf8.RuneCountInString(diff.Text)
	}
	return distance
}

// ratio is the normalized indel similarity in [0, 100].
func ratio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	return 100 * (1 - float64(indelDistance(a, b))/float64(total))
}

// quickRatio is ratio with empty input scoring zero.
func quickRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return ratio(a, b)
}

// tokenSetRatio compares the shared and the distinct word sets of a and b,
// ignoring word order and duplicates.
func tokenSetRatio(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	var intersection, onlyA, onlyB []string
	for word := range setA {
		if _, ok := setB[word]; ok {
			intersection = append(intersection, word)
		} else {
			onlyA = append(onlyA, word)
		}
	}
	for word := range setB {
		if _, ok := setA[word]; !ok {
			onlyB = append(onlyB, word)
		}
	}
	if len(intersection) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 100
	}

	sort.Strings(intersection)
	sort.Strings(onlyA)
	sort.Strings(onlyB)
	diffA := strings.Join(onlyA, " ")
	diffB := strings.Join(onlyB, " ")
	lenA := utf8.RuneCountInString(diffA)
	lenB := utf8.RuneCountInString(diffB)

	best := ratio(diffA, diffB)
	if len(intersection) == 0 {
		return best
	}

	sectLen := utf8.RuneCountInString(strings.Join(intersection, " "))
	// sect+" "+diff differs from sect only by the separator and the diff.
	sectALen := sectLen + 1 + lenA
	sectBLen := sectLen + 1 + lenB
	sectARatio := 100 * (1 - float64(1+lenA)/float64(sectLen+sectALen))
	sectBRatio := 100 * (1 - float64(1+lenB)/float64(sectLen+sectBLen))
	return max(best, sectARatio, sectBRatio)
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(s)
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}
