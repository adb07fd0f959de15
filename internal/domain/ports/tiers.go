package ports

import (
	"strings"
	"unicode/utf8"
)

// MinTokenRunes is the shortest query word the catalog filters on.
const MinTokenRunes = 2

// SearchTokens returns the words of a normalized query long enough to be
// used as catalog filters.
func SearchTokens(normalized string) []string {
	var tokens []string
	for _, token := range strings.Fields(normalized) {
		if utf8.RuneCountInString(token) >= MinTokenRunes {
			tokens = append(tokens, token)
		}
	}
	return tokens
}
