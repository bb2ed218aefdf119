package middleware

import (
	"errors"
	"fmt"

	errs "github.com/sweetpotato0/toolbridge/errors"
)

var (
	// ErrRateLimitExceeded indicates the call budget has been used up
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrToolDenied indicates a filter refused the call
	ErrToolDenied = fmt.Errorf("tool denied: %w", errs.ErrInvalidInput)
)
