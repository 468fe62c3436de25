package tuya

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tuya-scale/internal/domain"
)

var (
	ErrAuth         = domain.ErrAuth
	ErrTokenExpired = domain.ErrTokenExpired
	ErrConnection   = domain.ErrConnection
	ErrAPI          = domain.ErrAPI
)

// Error carries the classification of a failed call together with the
// details needed to diagnose it.
type Error struct {
	Kind       error
	Op         string
	StatusCode int
	Code       int
	Msg        string
	Err        error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	sb.WriteString(": ")
	sb.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, " (http %d)", e.StatusCode)
	}
	if e.Code != 0 {
		fmt.Fprintf(&sb, " (code %d)", e.Code)
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a failed cycle step may succeed if repeated.
// Authentication failures need reconfiguration and are never retried.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrAuth), errors.Is(err, ErrTokenExpired):
		return false
	default:
		return true
	}
}

func isTokenMessage(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "token")
}
