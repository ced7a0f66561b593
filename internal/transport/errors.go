package transport

import (
	"errors"
	"fmt"
	"time"
)

// MaxAlbumSize is the platform ceiling for one grouped media message.
const MaxAlbumSize = 10

var (
	// ErrRecipientUnavailable: the user blocked the bot, never started it
	// or no longer exists. Retrying is pointless.
	ErrRecipientUnavailable = errors.New("recipient unavailable")
	ErrAlbumTooLarge        = fmt.Errorf("album exceeds %d items", MaxAlbumSize)
)

// RateLimitError is returned when the platform asks the caller to slow
// down. RetryAfter is zero when no hint was given.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
	}
	return "rate limited"
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is a RateLimitError and its hint.
func IsRateLimited(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
