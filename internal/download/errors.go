package download

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

// Kind classifies a download failure. The mapping is fixed: HTTP 404 is
// not-found, HTTP 403 is permission, network timeouts and connect failures
// get their own kinds, cooperative aborts are cancelled, everything else is
// general.
type Kind int

const (
	KindGeneral Kind = iota
	KindNotFound
	KindPermission
	KindTimeout
	KindConnection
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPermission:
		return "permission_denied"
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection_failure"
	case KindCancelled:
		return "cancelled"
	default:
		return "download_error"
	}
}

// Error is the typed failure every download operation returns. The original
// cause is preserved in Err.
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("download %s: %s", e.URL, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from an error chain. Unclassified errors
// report KindGeneral.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindGeneral
}

// IsCancelled reports whether err is a cooperative cancellation.
func IsCancelled(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == KindCancelled
}

func newError(kind Kind, url string, err error) *Error {
	return &Error{Kind: kind, URL: url, Err: err}
}

func statusError(code int, url string) *Error {
	err := fmt.Errorf("unexpected status %d", code)
	switch code {
	case 404:
		return newError(KindNotFound, url, err)
	case 403:
		return newError(KindPermission, url, err)
	default:
		return newError(KindGeneral, url, err)
	}
}

// classify wraps an arbitrary transport or I/O failure into a typed Error.
// Already-typed errors pass through unchanged.
func classify(err error, url string) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}

	switch {
	case errors.Is(err, context.Canceled):
		return newError(KindCancelled, url, err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindTimeout, url, err)
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return newError(KindTimeout, url, err)
	}

	var oe *net.OpError
	if errors.As(err, &oe) {
		return newError(KindConnection, url, err)
	}

	var pe *os.PathError
	if errors.As(err, &pe) && errors.Is(pe.Err, os.ErrPermission) {
		return newError(KindPermission, url, err)
	}

	return newError(KindGeneral, url, err)
}
