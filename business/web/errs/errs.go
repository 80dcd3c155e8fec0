// Package errs maps the errors the node's handlers return to the status and
// body the client sees.
package errs

import (
	"errors"
	"net/http"

	"github.com/ardanlabs/crossledger/foundation/blockchain/extrinsic"
	"github.com/ardanlabs/crossledger/foundation/blockchain/mempool"
)

// Reasons reported for transactions the mempool turned away.
const (
	ReasonAlreadyImported = "already imported"
	ReasonTooLowPriority  = "too low priority"
)

// Response is the body of every failed request. Reason is set when a
// transaction was refused and names why, so a wallet can decide whether to
// resubmit without parsing the message.
type Response struct {
	Error  string            `json:"error"`
	Reason string            `json:"reason,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Trusted is an error whose message is safe to show the client.
type Trusted struct {
	Err    error
	Status int
	Reason string
}

// NewTrusted wraps an expected error with the status to respond with.
func NewTrusted(err error, status int) error {
	return &Trusted{Err: err, Status: status}
}

// NewSubmitError wraps an error returned while admitting a transaction.
// Transactions clashing with the pool are a conflict, transactions the chain
// can't judge yet are unavailable and the rest are bad requests.
func NewSubmitError(err error) error {
	switch {
	case errors.Is(err, mempool.ErrAlreadyImported):
		return &Trusted{Err: err, Status: http.StatusConflict, Reason: ReasonAlreadyImported}
	case errors.Is(err, mempool.ErrTooLowPriority):
		return &Trusted{Err: err, Status: http.StatusConflict, Reason: ReasonTooLowPriority}
	}

	v, ok := extrinsic.AsValidity(err)
	switch {
	case !ok:
		return &Trusted{Err: err, Status: http.StatusBadRequest}
	case v.IsUnknown():
		return &Trusted{Err: err, Status: http.StatusServiceUnavailable, Reason: v.Reason()}
	}

	return &Trusted{Err: err, Status: http.StatusBadRequest, Reason: v.Reason()}
}

// Error implements the error interface.
func (te *Trusted) Error() string {
	return te.Err.Error()
}

// Unwrap returns the wrapped error.
func (te *Trusted) Unwrap() error {
	return te.Err
}

// IsTrusted checks if the error chain holds a *Trusted.
func IsTrusted(err error) bool {
	var te *Trusted
	return errors.As(err, &te)
}

// GetTrusted returns the *Trusted held by the error chain, nil if none.
func GetTrusted(err error) *Trusted {
	var te *Trusted
	if !errors.As(err, &te) {
		return nil
	}
	return te
}
