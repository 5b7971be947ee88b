package banks

import (
	"errors"
	"fmt"
)

// ErrSessionExpired means the supplied browser session can no longer
// authenticate. It is never retried, the caller has to produce a fresh
// session out-of-band.
var ErrSessionExpired = errors.New("session expired")

// TransientError wraps a network-level failure that survived bounded
// retry: timeouts, 5xx, rate limiting.
type TransientError struct {
	Cause    error
	Attempts int
}

func (e *TransientError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("transient fetch failure after %d attempts: %s", e.Attempts, e.Cause)
	}
	return fmt.Sprintf("transient fetch failure: %s", e.Cause)
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// ParseError means an institution response no longer matches the shape
// the normalizer expects: the source has drifted. Fragment carries the
// offending raw excerpt for diagnostics.
type ParseError struct {
	Institution Institution
	Fragment    string
	Cause       error
}

const maxFragmentLen = 512

func (e *ParseError) Error() string {
	frag := e.Fragment
	if len(frag) > maxFragmentLen {
		frag = frag[:maxFragmentLen] + "..."
	}
	return fmt.Sprintf("%s: unexpected response shape: %s (fragment: %q)", e.Institution, e.Cause, frag)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// StorageError wraps a persistence failure. The batch it interrupted is
// rolled back whole.
type StorageError struct {
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure: %s", e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// IsTransient reports whether err should count against an
// institution's circuit breaker. Session expiry and parse drift are
// deterministic, tripping the breaker on them would misreport healthy
// accounts.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
