package logger

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Length caps for user-controlled log fields.
const (
	MaxPathLength          = 500
	MaxUserIDLength        = 128 // UUIDs are 36
	MaxErrorMessageLength  = 1000
	MaxGeneralStringLength = 2000
)

// SanitizePath prepares a URL path or blob path for logging.
func SanitizePath(path string) string {
	return SanitizeString(path, MaxPathLength)
}

const ellipsis = "..."

// SanitizeString drops invalid UTF-8 and non-printable runes, folds line breaks
// into spaces, and truncates to at most maxLength runes, ellipsis included.
func SanitizeString(s string, maxLength int) string {
	if s == "" {
		return ""
	}
	if maxLength <= 0 {
		maxLength = MaxGeneralStringLength
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case unicode.IsPrint(r) || r == ' ':
			b.WriteRune(r)
		}
	}
	s = b.String()

	if utf8.RuneCountInString(s) <= maxLength {
		return s
	}
	runes := []rune(s)
	if maxLength <= len(ellipsis) {
		return string(runes[:maxLength])
	}
	return string(runes[:maxLength-len(ellipsis)]) + ellipsis
}

// SanitizeError renders err for logging.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error(), MaxErrorMessageLength)
}

// SanitizeUserID sanitizes a user ID for safe logging
func SanitizeUserID(userID string) string {
	return SanitizeString(userID, MaxUserIDLength)
}
