package urlid

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching. The concrete error types below carry the
// offending input.
var (
	ErrDisallowedScheme    = errors.New("disallowed scheme")
	ErrBadCanonicalization = errors.New("bad canonicalization")
)

// DisallowedSchemeError is returned when the scheme is not http or https.
// It is caused by the input and must never be retried.
type DisallowedSchemeError struct {
	URL    string
	Scheme string
}

func (e *DisallowedSchemeError) Error() string {
	return fmt.Sprintf("disallowed scheme %q in url %q", e.Scheme, e.URL)
}

func (e *DisallowedSchemeError) Is(target error) bool { return target == ErrDisallowedScheme }

// BadCanonicalizationError is returned when a url string is not a fixed point
// of split/join and so cannot be given a stable identity.
type BadCanonicalizationError struct {
	URL    string
	Reason string
}

func (e *BadCanonicalizationError) Error() string {
	return fmt.Sprintf("bad canonicalization of url %q: %s", e.URL, e.Reason)
}

func (e *BadCanonicalizationError) Is(target error) bool { return target == ErrBadCanonicalization }

// IsIdentityError reports whether err was caused by a url that can never be
// accepted, as opposed to a transient failure.
func IsIdentityError(err error) bool {
	return errors.Is(err, ErrDisallowedScheme) || errors.Is(err, ErrBadCanonicalization)
}
