package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"PortfolioAnalytics/internal/event"

	"github.com/google/uuid"
)

var (
	ErrInvalidUserID    = errors.New("invalid user id")
	ErrInvalidDateRange = errors.New("invalid date range")
)

// UpstreamError wraps a failure of the balance or trade reader. The request
// fails as a whole; no partial portfolio is returned.
type UpstreamError struct {
	Source string // "balances" or "trades"
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s reader unavailable: %v", e.Source, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Error codes shared by metrics labels and transport mapping.
const (
	CodeInvalidArgument     = "invalid_argument"
	CodeNotFound            = "not_found"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeDeadlineExceeded    = "deadline_exceeded"
	CodeCanceled            = "canceled"
	CodeInternal            = "internal"
)

// ErrorCode classifies err; it returns "" for nil.
func ErrorCode(err error) string {
	var upstream *UpstreamError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidUserID), errors.Is(err, ErrInvalidDateRange):
		return CodeInvalidArgument
	case errors.Is(err, event.ErrUserNotFound):
		return CodeNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	case errors.As(err, &upstream):
		return CodeUpstreamUnavailable
	default:
		return CodeInternal
	}
}

// ParseUserID parses a path or flag value into a user id.
func ParseUserID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidUserID, s)
	}
	return id, nil
}

const dateOnly = "2006-01-02"

// ParseDateRange parses optional start/end bounds given as RFC3339 or
// YYYY-MM-DD (UTC). A date-only end covers the whole day.
func ParseDateRange(start, end string) (event.DateRange, error) {
	var r event.DateRange
	if start = strings.TrimSpace(start); start != "" {
		t, err := parseBound(start, false)
		if err != nil {
			return r, fmt.Errorf("%w: start_date: %v", ErrInvalidDateRange, err)
		}
		r.Start = &t
	}
	if end = strings.TrimSpace(end); end != "" {
		t, err := parseBound(end, true)
		if err != nil {
			return r, fmt.Errorf("%w: end_date: %v", ErrInvalidDateRange, err)
		}
		r.End = &t
	}
	if err := r.Validate(); err != nil {
		return r, fmt.Errorf("%w: %v", ErrInvalidDateRange, err)
	}
	return r, nil
}

func parseBound(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC3339 nor YYYY-MM-DD", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
