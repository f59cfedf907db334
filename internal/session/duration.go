package session

import (
	"strconv"
	"time"
)

// ParseExpiry parses a {value}{unit} duration string where unit is one of
// s, m, h or d. Anything malformed fails closed to the fallback so a typo
// in configuration can never produce an unbounded token lifetime.
func ParseExpiry(s string, fallback time.Duration) time.Duration {
	if len(s) < 2 {
		return fallback
	}

	value, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || value <= 0 {
		return fallback
	}

	switch s[len(s)-1] {
	case 's':
		return time.Duration(value) * time.Second
	case 'm':
		return time.Duration(value) * time.Minute
	case 'h':
		return time.Duration(value) * time.Hour
	case 'd':
		return time.Duration(value) * 24 * time.Hour
	default:
		return fallback
	}
}
