package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a client-side failure and fixes how it is handled.
type Kind string

const (
	// KindTransport covers connect/send failures. Recoverable through the
	// session coordinator's bounded reconnect.
	KindTransport Kind = "TRANSPORT"
	// KindProtocol covers malformed or unroutable messages. Logged and
	// dropped; the connection stays open.
	KindProtocol Kind = "PROTOCOL"
	// KindNegotiation covers SDP/ICE operation failures. Surfaced by failing
	// the triggering call; never auto-retried.
	KindNegotiation Kind = "NEGOTIATION"
	// KindResource covers missing local media. Fatal to starting a
	// broadcast, checked before joining the registry.
	KindResource Kind = "RESOURCE"
)

// Error carries a failure kind plus the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Transport(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

func Protocol(op string, err error) *Error {
	return &Error{Kind: KindProtocol, Op: op, Err: err}
}

func Negotiation(op string, err error) *Error {
	return &Error{Kind: KindNegotiation, Op: op, Err: err}
}

func Resource(op string, err error) *Error {
	return &Error{Kind: KindResource, Op: op, Err: err}
}

// IsKind reports whether err (or anything it wraps) is an Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

func IsTransport(err error) bool   { return IsKind(err, KindTransport) }
func IsNegotiation(err error) bool { return IsKind(err, KindNegotiation) }
func IsResource(err error) bool    { return IsKind(err, KindResource) }
