package types

import "errors"

// Sentinel errors for the storage core. Callers classify failures with
// errors.Is; lower layers wrap these with context via fmt.Errorf and %w.
var (
	// ErrNotFound - alt-key, blob, or transaction absent or tombstoned
	ErrNotFound = errors.New("not found")

	// ErrConflict - Add where the alt-key is already live
	ErrConflict = errors.New("already exists")

	// ErrValidation - form fails its template check
	ErrValidation = errors.New("form does not follow template")

	// ErrImmutable - mutation refused, e.g. editing a template with live forms
	ErrImmutable = errors.New("immutable")

	// ErrDecode - payload deserialization failed
	ErrDecode = errors.New("decode failed")

	// ErrEncode - payload serialization failed
	ErrEncode = errors.New("encode failed")

	// ErrStorage - filesystem or database I/O failed
	ErrStorage = errors.New("storage failure")

	// ErrAuthDenied - unapproved peer or missing child id
	ErrAuthDenied = errors.New("unapproved peer")

	// ErrTransient - timeout or backoff-able remote failure
	ErrTransient = errors.New("transient failure")
)

// IsNotFound reports whether err indicates a missing or tombstoned entity
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTransient reports whether err might succeed on retry
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsClientError reports whether err is the caller's fault rather than the
// engine's
func IsClientError(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrImmutable) ||
		errors.Is(err, ErrNotFound)
}
