package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel conditions matched with errors.Is. Wrapping sites add context
// with fmt.Errorf("...: %w", err).
var (
	// ErrStorageUnavailable means durable storage could not be opened. Fatal
	// to the startup path that needs it; never retried automatically.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrQuotaExceeded means a write would exceed available local storage.
	// The triggering mutation is rolled back in memory and the condition is
	// surfaced to the user.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrNetworkUnavailable covers connectivity failures on partition
	// fetches and remote-service calls. Absorbed by retry loops, never a
	// synchronous user-facing error.
	ErrNetworkUnavailable = errors.New("network unavailable")
)

// NotFoundError reports an operation referencing an unknown record.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("observation %s not found", e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// RemoteError is an application-level rejection from the remote service.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote rejected write (status %d)", e.Status)
	}
	return fmt.Sprintf("remote rejected write (status %d): %s", e.Status, e.Message)
}

// Retryable reports whether the rejection may succeed on a later attempt.
// Application-level rejections go through the bounded retry path so
// transient disagreement (for example a half-deployed server) does not
// immediately error a record. Only a status proving the record is gone on
// the server is terminal.
func (e *RemoteError) Retryable() bool {
	return e.Status != http.StatusNotFound && e.Status != http.StatusGone
}
