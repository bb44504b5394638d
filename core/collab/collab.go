// Package collab classifies failures reported by external collaborators
// (messaging, payment, email, media) so callers can react per kind.
package collab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind is the failure class of a collaborator error.
type Kind string

const (
	// KindAuthExpired means credentials were rejected or have expired.
	KindAuthExpired Kind = "auth_expired"
	// KindTransient covers timeouts, 5xx responses and rate limiting.
	KindTransient Kind = "transient"
	// KindNotFound means the referenced remote object does not exist.
	KindNotFound Kind = "not_found"
	// KindNotConfigured means the collaborator lacks credentials entirely.
	KindNotConfigured Kind = "not_configured"
	// KindOther is any failure not covered above.
	KindOther Kind = "other"
)

// Error wraps a collaborator failure with its kind.
type Error struct {
	Service string
	Op      string
	Kind    Kind
	Status  int
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Service, e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (http %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a collaborator error.
func New(service, op string, kind Kind, err error) *Error {
	return &Error{Service: service, Op: op, Kind: kind, Err: err}
}

// FromStatus maps an HTTP status code onto a Kind.
func FromStatus(service, op string, status int, err error) *Error {
	kind := KindOther
	switch {
	case status == http.StatusUnauthorized:
		kind = KindAuthExpired
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		kind = KindTransient
	}
	return &Error{Service: service, Op: op, Kind: kind, Status: status, Err: err}
}

// KindOf extracts the kind of err. Context deadlines count as transient.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindOther
}

// IsAuthExpired reports whether err is an expired-credentials failure.
func IsAuthExpired(err error) bool { return KindOf(err) == KindAuthExpired }

// Unrecoverable reports whether further calls of the same kind within one
// event are pointless.
func Unrecoverable(err error) bool {
	switch KindOf(err) {
	case KindAuthExpired, KindNotConfigured:
		return true
	}
	return false
}

// Retryable lets retry loops treat transient collaborator failures as
// worth another attempt.
func (e *Error) Retryable() bool { return e.Kind == KindTransient }
