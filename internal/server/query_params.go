package server

import (
	"strconv"
	"strings"
	"time"

	rentdomain "github.com/smallbiznis/moviestore/internal/rent/domain"
)

// parseOptional returns nil for a blank value and parses anything else.
func parseOptional[T any](value string, parse func(string) (T, error)) (*T, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := parse(value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalBool(value string) (*bool, error) {
	return parseOptional(value, strconv.ParseBool)
}

func parseOptionalInt(value string) (*int, error) {
	return parseOptional(value, strconv.Atoi)
}

// parseOptionalTime accepts RFC3339 timestamps and DD-MM-YYYY dates.
func parseOptionalTime(value string) (*time.Time, error) {
	return parseOptional(value, func(v string) (time.Time, error) {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, nil
		}
		if t, err := time.ParseInLocation(rentdomain.DueDateLayout, v, time.UTC); err == nil {
			return t, nil
		}
		return time.Time{}, ErrInvalidRequest
	})
}

// parseDueDate reads a DD-MM-YYYY date as UTC midnight.
func parseDueDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(rentdomain.DueDateLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, rentdomain.ErrInvalidDueDate
	}
	return t, nil
}
