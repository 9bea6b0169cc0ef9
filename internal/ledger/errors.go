package ledger

import (
	"errors"
	"fmt"
)

// ErrProviderUnavailable is returned when no ledger access provider is
// configured for this process.
var ErrProviderUnavailable = errors.New("ledger provider unavailable")

// ConnectionError reports a failed handshake or authorization.
type ConnectionError struct {
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ledger connection failed: %s: %v", e.Reason, e.Err)
	}
	return "ledger connection failed: " + e.Reason
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// FetchError reports a failed count read or indexed reading read.
// HasIndex is false when the count itself could not be read.
type FetchError struct {
	Index    uint64
	HasIndex bool
	Err      error
}

func (e *FetchError) Error() string {
	if e.HasIndex {
		return fmt.Sprintf("fetch reading %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("fetch reading count: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
