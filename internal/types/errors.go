package types

import "errors"

var (
	// ErrPermissionDenied is returned when the user or platform refused access
	// to a capability. It is never retried.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrCapabilityUnavailable is returned when the host lacks a capability
	// (no camera, no speaker, no geolocation provider).
	ErrCapabilityUnavailable = errors.New("capability unavailable")

	// ErrNetworkFailure wraps transport errors and non-2xx responses
	ErrNetworkFailure = errors.New("network failure")

	// ErrUnconfirmed is returned by destructive commands that lack confirmation
	ErrUnconfirmed = errors.New("not confirmed")

	// ErrLocationUnavailable is returned once every position attempt failed
	ErrLocationUnavailable = errors.New("location unavailable")
)
