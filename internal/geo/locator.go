// Package geo acquires position fixes from a platform location provider
// under a bounded retry policy.
package geo

import (
	"context"
	"fmt"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/types"
)

// ErrorCode classifies a location provider failure
type ErrorCode int

const (
	CodePermissionDenied ErrorCode = iota + 1
	CodePositionUnavailable
	CodeTimeout
)

func (c ErrorCode) String() string {
	switch c {
	case CodePermissionDenied:
		return "permission denied"
	case CodePositionUnavailable:
		return "position unavailable"
	case CodeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("code %d", int(c))
	}
}

// PositionError is returned by Locators
type PositionError struct {
	Code    ErrorCode
	Message string
}

func (e *PositionError) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is lets a permission failure match types.ErrPermissionDenied
func (e *PositionError) Is(target error) bool {
	return e.Code == CodePermissionDenied && target == types.ErrPermissionDenied
}

// Request carries the per-attempt parameters handed to a Locator
type Request struct {
	HighAccuracy bool
	Timeout      time.Duration
}

// Locator produces a single position fix
type Locator interface {
	CurrentPosition(ctx context.Context, req Request) (types.Location, error)
}

// LocatorFunc adapts a function to Locator
type LocatorFunc func(ctx context.Context, req Request) (types.Location, error)

func (f LocatorFunc) CurrentPosition(ctx context.Context, req Request) (types.Location, error) {
	return f(ctx, req)
}
