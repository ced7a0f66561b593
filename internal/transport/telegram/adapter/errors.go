package adapter

import (
	"errors"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "eventbot/internal/transport"
)

// mapError normalizes telebot failures into transport errors the delivery
// engine reacts to.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &kit.RateLimitError{RetryAfter: time.Duration(flood.RetryAfter) * time.Second, Err: err}
	}
	if errors.Is(err, tele.ErrBlockedByUser) ||
		errors.Is(err, tele.ErrUserIsDeactivated) ||
		errors.Is(err, tele.ErrChatNotFound) {
		return fmt.Errorf("%w: %v", kit.ErrRecipientUnavailable, err)
	}
	var te *tele.Error
	if errors.As(err, &te) {
		switch te.Code {
		case 403:
			return fmt.Errorf("%w: %v", kit.ErrRecipientUnavailable, err)
		case 429:
			return &kit.RateLimitError{Err: err}
		}
	}
	return err
}
