package tgui

import (
	"errors"
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data limit in bytes.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Data formats callback data as "group:action[:payload]". The payload is
// not escaped and may itself contain ':'.
func Data(group, action, payload string) string {
	group, action = strings.TrimSpace(group), strings.TrimSpace(action)
	if payload == "" {
		return group + ":" + action
	}
	return group + ":" + action + ":" + payload
}

// CheckData rejects data Telegram would refuse.
func CheckData(data string) error {
	if len(data) > MaxCallbackDataLen {
		return ErrCallbackDataTooLong
	}
	return nil
}
