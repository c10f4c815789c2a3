package curation

import (
	"errors"
	"fmt"
	"time"

	"github.com/fortuneofweb3/blabz/api_curation/internal/store"
	"github.com/fortuneofweb3/blabz/pkg/clients"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrUpstreamUnavailable is the clients sentinel so errors.Is works across layers.
	ErrUpstreamUnavailable = clients.ErrUpstreamUnavailable
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrValidation          = errors.New("validation failed")
)

// ValidationError describes malformed registration or query input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// RetryAfter extracts the upstream reset hint from err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *clients.RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// storeErr classifies a persistence failure. Missing documents become
// ErrNotFound; everything else is fatal to the caller.
func storeErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
