package search

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	wordPattern    = regexp.MustCompile(`[\p{L}\p{M}\p{N}]+`)
	mentionPattern = regexp.MustCompile(`[@#][\p{L}\p{M}\p{N}_]+`)
)

// apostrophe variants collapse to one form, then a handful of letters fold
// to the Latin spelling channel admins usually type.
var foldReplacer = strings.NewReplacer(
	"’", "'", "‘", "'", "`", "'", "ʻ", "'", "ʼ", "'", "′", "'",
	"ё", "e", "й", "i",
	"ў", "o", "қ", "q", "ғ", "g", "ҳ", "h",
)

var qualityTokens = map[string]struct{}{
	"360p": {}, "480p": {}, "720p": {}, "1080p": {}, "2160p": {}, "4k": {},
	"hdr": {}, "hevc": {}, "x264": {}, "x265": {}, "h264": {}, "h265": {},
	"bluray": {}, "brrip": {}, "bdrip": {}, "webrip": {}, "webdl": {},
	"dvdrip": {}, "hdrip": {}, "camrip": {}, "cam": {},
}

// Normalize canonicalizes free text for comparison. The output is a
// space-separated list of lowercase letter/digit words and is a fixpoint:
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = cases.Lower(language.Und).String(s)
	s = foldReplacer.Replace(s)
	s = mentionPattern.ReplaceAllString(s, " ")

	words := wordPattern.FindAllString(s, -1)
	kept := make([]string, 0, len(words))
	for _, word := range words {
		if isNoiseWord(word) {
			continue
		}
		// "web dl" and "web-dl" arrive here as two words.
		if word == "dl" && len(kept) > 0 && kept[len(kept)-1] == "web" {
			kept = kept[:len(kept)-1]
			continue
		}
		kept = append(kept, word)
	}
	return strings.Join(kept, " ")
}

func isNoiseWord(word string) bool {
	if _, ok := qualityTokens[word]; ok {
		return true
	}
	return isYear(word)
}

func isYear(word string) bool {
	if len(word) != 4 {
		return false
	}
	for i := 0; i < len(word); i++ {
		if word[i] < '0' || word[i] > '9' {
			return false
		}
	}
	return word[:2] == "19" || word[:2] == "20"
}

// Tokens splits an already normalized string into words.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}
