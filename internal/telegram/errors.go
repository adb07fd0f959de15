package telegram

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"kinobot/internal/delivery"
)

// APIError is a non-ok Bot API response.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// IsNotModified reports the harmless error returned when an edit would leave
// a message unchanged.
func IsNotModified(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(strings.ToLower(apiErr.Description), "message is not modified")
}

// classify wraps an API error with the delivery sentinel it corresponds to so
// callers can branch on errors.Is without knowing Bot API wording.
func classify(apiErr *APIError) error {
	desc := strings.ToLower(apiErr.Description)
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		retry := apiErr.RetryAfter
		if retry <= 0 {
			retry = time.Second
		}
		return fmt.Errorf("%w: %w", &delivery.RateLimitedError{RetryAfter: retry}, apiErr)
	case apiErr.Code == http.StatusForbidden:
		return fmt.Errorf("%w: %w", delivery.ErrPermanent, apiErr)
	case strings.Contains(desc, "protect_content"):
		return fmt.Errorf("%w: %w", delivery.ErrProtectUnsupported, apiErr)
	case strings.Contains(desc, "message to copy not found"),
		strings.Contains(desc, "message_id_invalid"):
		return fmt.Errorf("%w: %w", delivery.ErrSourceMissing, apiErr)
	case strings.Contains(desc, "message to delete not found"),
		strings.Contains(desc, "message can't be deleted"):
		return fmt.Errorf("%w: %w", delivery.ErrMessageGone, apiErr)
	case strings.Contains(desc, "chat not found"):
		return fmt.Errorf("%w: %w", delivery.ErrPermanent, apiErr)
	}
	return apiErr
}
