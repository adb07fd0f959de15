package bot

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"kinobot/internal/domain"
	"kinobot/internal/telegram"
)

const (
	maxButtonRunes = 60

	navPrefix    = "nav"
	selectPrefix = "sel"
)

// buttonText flattens a title onto one line and caps it for an inline button.
func buttonText(title string) string {
	text := strings.Join(strings.Fields(title), " ")
	if utf8.RuneCountInString(text) <= maxButtonRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxButtonRunes-3])) + "..."
}

func pageHeader(page domain.Page) string {
	return fmt.Sprintf("Found %d titles (page %d/%d)", page.TotalItems, page.Index+1, page.TotalPages)
}

func pageKeyboard(page domain.Page) *telegram.InlineKeyboardMarkup {
	rows := make([][]telegram.InlineKeyboardButton, 0, len(page.Items)+1)
	for _, item := range page.Items {
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text:         buttonText(item.Title),
			CallbackData: selectData(page.Token, item.Locator()),
		}})
	}
	var nav []telegram.InlineKeyboardButton
	if page.HasPrev {
		nav = append(nav, telegram.InlineKeyboardButton{Text: "« Prev", CallbackData: navData(page.Token, page.Index-1)})
	}
	if page.HasNext {
		nav = append(nav, telegram.InlineKeyboardButton{Text: "Next »", CallbackData: navData(page.Token, page.Index+1)})
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func navData(token string, page int) string {
	return navPrefix + ":" + token + ":" + strconv.Itoa(page)
}

func selectData(token string, loc domain.Locator) string {
	return fmt.Sprintf("%s:%s:%d:%d", selectPrefix, token, loc.ContainerID, loc.ItemID)
}

type callback struct {
	kind  string
	token string
	page  int
	loc   domain.Locator
}

func parseCallback(data string) (callback, bool) {
	parts := strings.Split(data, ":")
	if len(parts) < 3 || parts[1] == "" {
		return callback{}, false
	}
	cb := callback{kind: parts[0], token: parts[1]}
	switch cb.kind {
	case navPrefix:
		if len(parts) != 3 {
			return callback{}, false
		}
		page, err := strconv.Atoi(parts[2])
		if err != nil {
			return callback{}, false
		}
		cb.page = page
	case selectPrefix:
		if len(parts) != 4 {
			return callback{}, false
		}
		container, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return callback{}, false
		}
		item, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			return callback{}, false
		}
		cb.loc = domain.Locator{ContainerID: container, ItemID: item}
	default:
		return callback{}, false
	}
	return cb, true
}
