// Package mail abstracts the external email transport.
//
// The executors only depend on Transport; the production implementation is a
// Mandrill-style REST client. Failure kinds matter more than the wire format:
// a *TransportError is transient (the queue retries it), ErrUnknownAccount is
// permanent (the sending account reference is invalid).
package mail

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownAccount is returned by ValidateAccount when the external
// send-account reference does not exist. Permanent; never retried.
var ErrUnknownAccount = errors.New("unknown send account")

// TransportError is a transient delivery failure. Jobs that hit one are
// retried by the queue up to the configured cap.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("mail %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable transport failure.
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Message is one outbound email. HTML is optional; AccountTag carries the
// team's external send-account reference.
type Message struct {
	Subject    string
	From       string
	To         []string
	Text       string
	HTML       string
	AccountTag string
}

// Transport is the external email-sending collaborator.
type Transport interface {
	// ValidateAccount checks an external send-account reference.
	// Returns ErrUnknownAccount (wrapped) when the account is invalid.
	ValidateAccount(ctx context.Context, accountRef string) error

	// Send attempts delivery. Transient failures come back as *TransportError.
	Send(ctx context.Context, msg Message) error
}
