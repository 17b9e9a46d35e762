package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxMessageRunes bounds a single chat message.
	MaxMessageRunes  = 4000
	maxLocationRunes = 32
)

// ValidateChatMessage checks the user message of a chat request.
func ValidateChatMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return NewValidationError("message", msg, ErrEmptyMessage)
	}
	if utf8.RuneCountInString(msg) > MaxMessageRunes {
		return NewValidationError("message", truncate(msg, 32), ErrMessageTooLong)
	}
	return nil
}

// ValidateLocation checks an optional caller-supplied location. Empty is valid.
func ValidateLocation(loc string) error {
	if utf8.RuneCountInString(loc) > maxLocationRunes || strings.ContainsAny(loc, "\n\r") {
		return NewValidationError("location", truncate(loc, 32), ErrInvalidLocation)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
