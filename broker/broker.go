// Package broker defines the client interface the dispatcher submits
// composed orders through, and the transient/permanent error taxonomy the
// retry executor classifies on.
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/tradewell/execution/order"
)

// Result is the broker's acknowledgement of a placed order.
type Result struct {
	Status   int    // HTTP status of the acknowledgement
	OrderID  string // broker-assigned order ID, when derivable
	Location string // Location header returned on creation
}

// Client places composed orders with a brokerage. Implementations classify
// their failures as transient or permanent via Error so the retry executor
// needs no broker-specific knowledge.
type Client interface {
	// Name returns the broker identifier (e.g. "schwab").
	Name() string

	// PlaceOrder sends the composed order tree for the given account.
	PlaceOrder(ctx context.Context, accountID string, spec *order.Spec) (Result, error)
}

// Kind splits broker failures into the two classes the retry policy cares
// about.
type Kind int

const (
	// KindTransient marks failures worth retrying: network errors,
	// timeouts, 5xx responses.
	KindTransient Kind = iota

	// KindPermanent marks failures that will not improve on retry: 4xx
	// responses, broker-side validation rejections.
	KindPermanent
)

func (k Kind) String() string {
	if k == KindPermanent {
		return "permanent"
	}
	return "transient"
}

// Error is a classified broker failure.
type Error struct {
	Kind   Kind
	Status int // HTTP status when applicable, else 0
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s broker error (http %d): %s", e.Kind, e.Status, e.Msg)
	}
	return fmt.Sprintf("%s broker error: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable broker failure.
func Transient(status int, msg string, err error) *Error {
	return &Error{Kind: KindTransient, Status: status, Msg: msg, Err: err}
}

// Permanent wraps err as a non-retryable broker failure.
func Permanent(status int, msg string, err error) *Error {
	return &Error{Kind: KindPermanent, Status: status, Msg: msg, Err: err}
}

// IsPermanent reports whether err is a classified permanent failure.
// Anything else, including plain network errors and unclassified failures,
// is treated as transient.
func IsPermanent(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == KindPermanent
}
