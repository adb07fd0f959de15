package search

import (
	"regexp"
	"strconv"
	"strings"

	"kinobot/internal/domain"
)

// episodeLabels are the words that mark an episode number. Longer spellings
// come first so the alternation prefers them.
const episodeLabels = `episode|seriyasi|seriya|серия|серии|серий|qismi|qisim|qism|bolimi|bolim|part|ep`

var labelAliasReplacer = strings.NewReplacer(" bo limi ", " bolimi ", " bo lim ", " bolim ")

type episodeRule struct {
	name    string
	pattern *regexp.Regexp
	extract func(match []string) domain.Episode
}

// episodeRules run against " <normalized title> " and the first match wins.
var episodeRules = []episodeRule{
	{
		name:    "season_episode",
		pattern: regexp.MustCompile(`\ss(\d{1,2})\s?e(\d{1,4})\s`),
		extract: func(m []string) domain.Episode {
			return domain.Episode{Season: atoi(m[1]), HasSeason: true, Number: atoi(m[2]), HasEpisode: true}
		},
	},
	{
		name:    "label_number",
		pattern: regexp.MustCompile(`\s(?:` + episodeLabels + `)\s?(\d{1,4})\s`),
		extract: episodeOnly,
	},
	{
		name:    "number_label",
		pattern: regexp.MustCompile(`\s(\d{1,4})\s?(?:` + episodeLabels + `)\s`),
		extract: episodeOnly,
	},
	{
		name:    "trailing_number",
		pattern: regexp.MustCompile(`\s(\d{1,3})\s$`),
		extract: episodeOnly,
	},
}

var (
	seasonEpisodeWord = regexp.MustCompile(`^s\d{1,2}e\d{1,4}$`)
	gluedEpisodeWord  = regexp.MustCompile(`^(?:(?:` + episodeLabels + `)\d{1,4}|\d{1,4}(?:` + episodeLabels + `))$`)
	episodeLabelWord  = regexp.MustCompile(`^(?:` + episodeLabels + `)$`)
)

func episodeOnly(m []string) domain.Episode {
	return domain.Episode{Number: atoi(m[1]), HasEpisode: true}
}

// ExtractEpisode returns the season/episode numbers found in title.
func ExtractEpisode(title string) domain.Episode {
	return extractNormalizedEpisode(Normalize(title))
}

func extractNormalizedEpisode(normalized string) domain.Episode {
	if normalized == "" {
		return domain.Episode{}
	}
	padded := labelAliasReplacer.Replace(" " + normalized + " ")
	for _, rule := range episodeRules {
		if match := rule.pattern.FindStringSubmatch(padded); match != nil {
			return rule.extract(match)
		}
	}
	return domain.Episode{}
}

// SeriesKey strips season/episode markers and short standalone numbers from
// the normalized title so episodes of one show collapse to the same key.
func SeriesKey(title string) string {
	return seriesKeyNormalized(Normalize(title))
}

func seriesKeyNormalized(normalized string) string {
	if normalized == "" {
		return ""
	}
	words := strings.Fields(labelAliasReplacer.Replace(" " + normalized + " "))
	kept := make([]string, 0, len(words))
	for i := 0; i < len(words); i++ {
		word := words[i]
		switch {
		case seasonEpisodeWord.MatchString(word), gluedEpisodeWord.MatchString(word):
			continue
		case isShortNumber(word):
			if i+1 < len(words) && episodeLabelWord.MatchString(words[i+1]) {
				i++
			}
			continue
		case episodeLabelWord.MatchString(word) && i+1 < len(words) && isShortNumber(words[i+1]):
			i++
			continue
		}
		kept = append(kept, word)
	}
	return strings.Join(kept, " ")
}

func isShortNumber(word string) bool {
	if word == "" || len(word) > 4 {
		return false
	}
	for i := 0; i < len(word); i++ {
		if word[i] < '0' || word[i] > '9' {
			return false
		}
	}
	return true
}

func atoi(raw string) int {
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}
