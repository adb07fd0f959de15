// Package resultcache keeps ranked result lists addressable by short opaque
// tokens so pagination and selection callbacks can find them again.
package resultcache

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kinobot/internal/domain"
)

const (
	DefaultTTL      = 10 * time.Minute
	DefaultPageSize = 5
)

// Store is the capability set the bot flow needs from a result cache.
// Implementations must serialize mutations of the same token.
type Store interface {
	Create(ctx context.Context, ownerID int64, items []domain.MatchResult) (string, error)
	Get(ctx context.Context, token string, callerID int64) (domain.ResultSet, error)
	GetPage(ctx context.Context, token string, callerID int64, page, pageSize int) (domain.Page, error)
	// RemoveItem drops the entry with loc from the list and returns how many
	// items remain. Removing an absent item is a no-op.
	RemoveItem(ctx context.Context, token string, loc domain.Locator) (int, error)
	Sweep(ctx context.Context) (int, error)
}

// NewToken returns 128 random bits as unpadded base64url (22 characters),
// short enough for Telegram's 64-byte callback data.
func NewToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(id[:]), nil
}

// Paginate slices set into pages of pageSize items.
func Paginate(set domain.ResultSet, page, pageSize int) (domain.Page, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	total := len(set.Items)
	totalPages := (total + pageSize - 1) / pageSize
	if page < 0 || page >= totalPages {
		return domain.Page{}, fmt.Errorf("%w: page %d of %d", domain.ErrCacheOutOfRange, page, totalPages)
	}
	from := page * pageSize
	to := min(from+pageSize, total)
	return domain.Page{
		Token:      set.Token,
		Items:      domain.CloneMatchResults(set.Items[from:to]),
		Index:      page,
		TotalPages: totalPages,
		TotalItems: total,
		HasPrev:    page > 0,
		HasNext:    page < totalPages-1,
	}, nil
}

func removeLocator(items []domain.MatchResult, loc domain.Locator) ([]domain.MatchResult, bool) {
	for i, item := range items {
		if item.Locator() == loc {
			out := make([]domain.MatchResult, 0, len(items)-1)
			out = append(out, items[:i]...)
			return append(out, items[i+1:]...), true
		}
	}
	return items, false
}

func checkOwner(set domain.ResultSet, callerID int64) error {
	if set.OwnerID != callerID {
		return domain.ErrCacheForbidden
	}
	return nil
}
