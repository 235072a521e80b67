package location

import "errors"

var (
	// ErrNoFix is returned when a provider has no position to report.
	ErrNoFix = errors.New("no location fix")

	// ErrStaleFix is returned when the freshest fix is older than the allowed age.
	ErrStaleFix = errors.New("location fix too old")

	// ErrProviderUnavailable is returned when no provider can serve a fix.
	ErrProviderUnavailable = errors.New("location provider unavailable")

	// ErrUnknownPrecision is returned for a precision preset name that does not exist.
	ErrUnknownPrecision = errors.New("unknown precision preset")
)
