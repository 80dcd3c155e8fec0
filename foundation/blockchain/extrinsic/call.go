package extrinsic

import (
	"errors"

	"github.com/ardanlabs/crossledger/foundation/blockchain/weight"
)

// ErrNotSelfContained is returned by the self contained entry points of a
// call that turns out not to carry its own proof.
var ErrNotSelfContained = errors.New("call is not self contained")

// Dispatchable is a call that can be executed under an origin.
type Dispatchable interface {
	DispatchInfo() weight.DispatchInfo
	Dispatch(origin Origin) (weight.PostDispatchInfo, error)
}

// SelfContainedCall is the behavior of a call that authenticates itself.
// Each method returns ErrNotSelfContained when the call is not one.
type SelfContainedCall[S any] interface {
	ValidateSelfContained(info S, di weight.DispatchInfo, length int) (ValidTransaction, error)
	PreDispatchSelfContained(info S, di weight.DispatchInfo, length int) error
	ApplySelfContained(info S) (weight.PostDispatchInfo, error)
}

// GeneralAuthorizer is a call that may be dispatched without a signer
// because its arguments carry their own authorization. The validity it
// returns must provide at least one tag so the authorization can't be used
// twice.
type GeneralAuthorizer interface {
	AuthorizeGeneral() (ValidTransaction, error)
}

// Call is the behavior required of every call the pipeline handles.
type Call[S any] interface {
	Dispatchable
	SelfContainedCall[S]
}

// Extension is the extension state carried by signed and general
// transactions: nonce, tip and whatever checks come with them.
type Extension interface {
	ValidateOnly(origin Origin, call Dispatchable, info weight.DispatchInfo, length int) (ValidTransaction, error)
	DispatchTransaction(origin Origin, call Dispatchable, info weight.DispatchInfo, length int) (Outcome, error)
}

// BareExtension is the extension behavior applied to transactions that
// carry no extension state.
type BareExtension interface {
	BareValidate(call Dispatchable, info weight.DispatchInfo, length int) (ValidTransaction, error)
	BareValidateAndPrepare(call Dispatchable, info weight.DispatchInfo, length int) error
	BarePostDispatch(info weight.DispatchInfo, post *weight.PostDispatchInfo, length int, dispatchErr error) error
}

// InherentValidator decides on bare transactions.
type InherentValidator interface {
	ValidateUnsigned(source TransactionSource, call Dispatchable) (ValidTransaction, error)
	PreDispatch(call Dispatchable) error
}

// =============================================================================

// DispatchError is a failed dispatch. The extrinsic is still included and
// charged, using the post dispatch information carried here.
type DispatchError struct {
	Err      error
	PostInfo weight.PostDispatchInfo
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return "dispatch: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

// PostInfoOf returns the post dispatch information of a dispatch, taking
// it from the error when the dispatch failed with one.
func PostInfoOf(post weight.PostDispatchInfo, err error) weight.PostDispatchInfo {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.PostInfo
	}
	return post
}

// Outcome is the result of an extrinsic that made it into the block.
type Outcome struct {
	PostInfo weight.PostDispatchInfo
	Err      error
}

// Succeeded reports whether the call itself succeeded.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}
