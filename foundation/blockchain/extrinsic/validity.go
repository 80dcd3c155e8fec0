package extrinsic

import (
	"errors"
	"fmt"
	"math"
)

// TransactionSource identifies where a transaction came from.
type TransactionSource uint8

// Set of transaction sources.
const (
	SourceInBlock TransactionSource = iota
	SourceLocal
	SourceExternal
)

// String implements the fmt.Stringer interface.
func (s TransactionSource) String() string {
	switch s {
	case SourceInBlock:
		return "in_block"
	case SourceLocal:
		return "local"
	case SourceExternal:
		return "external"
	}
	return fmt.Sprintf("source(%d)", uint8(s))
}

// =============================================================================

// ValidTransaction describes how a valid transaction should be handled by
// the pool.
type ValidTransaction struct {
	Priority  uint64   `json:"priority"`
	Requires  [][]byte `json:"requires"`
	Provides  [][]byte `json:"provides"`
	Longevity uint64   `json:"longevity"`
	Propagate bool     `json:"propagate"`
}

// DefaultValid returns the neutral validity that combines with anything
// without changing it.
func DefaultValid() ValidTransaction {
	return ValidTransaction{
		Longevity: math.MaxUint64,
		Propagate: true,
	}
}

// CombineWith merges two validities. Priorities add up saturating, tags are
// joined, the shortest longevity wins and the transaction only propagates if
// both sides allow it.
func (v ValidTransaction) CombineWith(other ValidTransaction) ValidTransaction {
	priority := v.Priority + other.Priority
	if priority < v.Priority {
		priority = math.MaxUint64
	}

	return ValidTransaction{
		Priority:  priority,
		Requires:  append(append([][]byte{}, v.Requires...), other.Requires...),
		Provides:  append(append([][]byte{}, v.Provides...), other.Provides...),
		Longevity: min(v.Longevity, other.Longevity),
		Propagate: v.Propagate && other.Propagate,
	}
}

// =============================================================================

// InvalidTransaction is the reason a transaction is invalid.
type InvalidTransaction uint8

// Set of reasons a transaction is invalid.
const (
	InvalidCall InvalidTransaction = iota
	InvalidPayment
	InvalidFuture
	InvalidStale
	InvalidBadProof
	InvalidExhaustsResources
	InvalidCustom
	InvalidBadMandatory
	InvalidMandatoryValidation
	InvalidBadSigner
)

var invalidNames = map[InvalidTransaction]string{
	InvalidCall:                "call",
	InvalidPayment:             "payment",
	InvalidFuture:              "future",
	InvalidStale:               "stale",
	InvalidBadProof:            "bad proof",
	InvalidExhaustsResources:   "exhausts resources",
	InvalidCustom:              "custom",
	InvalidBadMandatory:        "bad mandatory",
	InvalidMandatoryValidation: "mandatory validation",
	InvalidBadSigner:           "bad signer",
}

// UnknownTransaction is the reason a transaction's validity can't be
// determined yet.
type UnknownTransaction uint8

// Set of reasons validity is unknown.
const (
	UnknownCannotLookup UnknownTransaction = iota
	UnknownNoUnsignedValidator
	UnknownCustom
)

var unknownNames = map[UnknownTransaction]string{
	UnknownCannotLookup:        "cannot lookup",
	UnknownNoUnsignedValidator: "no unsigned validator",
	UnknownCustom:              "custom",
}

// ValidityError reports why a transaction can't be included. Compare with
// errors.Is against the package level values.
type ValidityError struct {
	unknown bool
	reason  uint8
	custom  uint8
	cause   error
}

// Set of validity errors.
var (
	ErrCall                = Invalid(InvalidCall)
	ErrPayment             = Invalid(InvalidPayment)
	ErrFuture              = Invalid(InvalidFuture)
	ErrStale               = Invalid(InvalidStale)
	ErrBadProof            = Invalid(InvalidBadProof)
	ErrExhaustsResources   = Invalid(InvalidExhaustsResources)
	ErrBadMandatory        = Invalid(InvalidBadMandatory)
	ErrMandatoryValidation = Invalid(InvalidMandatoryValidation)
	ErrBadSigner           = Invalid(InvalidBadSigner)
	ErrCannotLookup        = Unknown(UnknownCannotLookup)
	ErrNoUnsignedValidator = Unknown(UnknownNoUnsignedValidator)
)

// Invalid constructs an invalid transaction error.
func Invalid(reason InvalidTransaction) *ValidityError {
	return &ValidityError{reason: uint8(reason)}
}

// InvalidCustomCode constructs an application specific invalid error.
func InvalidCustomCode(code uint8) *ValidityError {
	return &ValidityError{reason: uint8(InvalidCustom), custom: code}
}

// Unknown constructs an unknown validity error.
func Unknown(reason UnknownTransaction) *ValidityError {
	return &ValidityError{unknown: true, reason: uint8(reason)}
}

// WithCause returns a copy of the error carrying the underlying cause.
func (e *ValidityError) WithCause(cause error) *ValidityError {
	cpy := *e
	cpy.cause = cause
	return &cpy
}

// IsUnknown reports whether validity couldn't be determined, as opposed to
// the transaction being invalid.
func (e *ValidityError) IsUnknown() bool {
	return e.unknown
}

// Reason returns the readable reason.
func (e *ValidityError) Reason() string {
	var name string
	switch e.unknown {
	case true:
		name = unknownNames[UnknownTransaction(e.reason)]
	default:
		name = invalidNames[InvalidTransaction(e.reason)]
	}

	custom := (!e.unknown && e.reason == uint8(InvalidCustom)) || (e.unknown && e.reason == uint8(UnknownCustom))
	if custom {
		name = fmt.Sprintf("%s(%d)", name, e.custom)
	}
	return name
}

// Error implements the error interface.
func (e *ValidityError) Error() string {
	kind := "invalid transaction"
	if e.unknown {
		kind = "unknown transaction validity"
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", kind, e.Reason(), e.cause)
	}
	return fmt.Sprintf("%s: %s", kind, e.Reason())
}

// Is matches on the kind and reason, ignoring the cause.
func (e *ValidityError) Is(target error) bool {
	t, ok := target.(*ValidityError)
	if !ok {
		return false
	}
	return e.unknown == t.unknown && e.reason == t.reason && e.custom == t.custom
}

// Unwrap returns the cause.
func (e *ValidityError) Unwrap() error {
	return e.cause
}

// AsValidity returns the validity error held by err, if any.
func AsValidity(err error) (*ValidityError, bool) {
	var ve *ValidityError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// toValidity makes sure collaborators always surface a typed reason.
// Untyped errors are reported as an invalid call.
func toValidity(err error) error {
	if err == nil || IsFatal(err) {
		return err
	}
	if _, ok := AsValidity(err); ok {
		return err
	}
	return ErrCall.WithCause(err)
}

// =============================================================================

// FatalError marks a failure that invalidates the whole block rather than a
// single transaction.
type FatalError struct {
	Err error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	return "block invalid: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether the error must abort the block.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
