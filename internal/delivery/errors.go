package delivery

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrSourceMissing means the referenced source message no longer exists.
	ErrSourceMissing = errors.New("source message not found")
	// ErrProtectUnsupported means the destination rejected protected content.
	ErrProtectUnsupported = errors.New("content protection not supported")
	// ErrPermanent covers forbidden or permanently unreachable destinations.
	ErrPermanent = errors.New("destination unreachable")
	// ErrMessageGone is returned when a relayed copy can no longer be deleted.
	ErrMessageGone = errors.New("message already deleted or too old")

	ErrRelay = errors.New("relay failed")
)

// RateLimitedError asks the caller to wait RetryAfter before the next call.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

// sourceMissingMarkers are the error texts transports use for a vanished
// source message.
var sourceMissingMarkers = []string{
	"message to copy not found",
	"message_to_copy_not_found",
	"message_id_invalid",
	"message not found",
}

// softDeleteMarkers end a self-destruct job without retrying.
var softDeleteMarkers = []string{
	"message to delete not found",
	"message can't be deleted",
	"message_delete_forbidden",
	"chat not found",
	"bot was blocked",
	"user is deactivated",
	"bot was kicked",
}

func IsSourceMissing(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSourceMissing) {
		return true
	}
	return containsAny(err, sourceMissingMarkers)
}

func IsProtectUnsupported(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrProtectUnsupported) {
		return true
	}
	return containsAny(err, []string{"protect_content"})
}

// IsSoftDeleteFailure reports delete failures that are an acceptable end
// state: the copy is already gone or the destination is.
func IsSoftDeleteFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMessageGone) || errors.Is(err, ErrPermanent) {
		return true
	}
	return containsAny(err, softDeleteMarkers)
}

// RetryAfter extracts the server-requested delay from a rate limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var limited *RateLimitedError
	if errors.As(err, &limited) {
		return limited.RetryAfter, true
	}
	return 0, false
}

func containsAny(err error, markers []string) bool {
	lower := strings.ToLower(err.Error())
	for _, marker := range markers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
