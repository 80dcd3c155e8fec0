package extrinsic

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ardanlabs/crossledger/foundation/blockchain/weight"
)

// ErrUnknownFormat is returned for an extrinsic that wasn't built with one
// of the format constructors.
var ErrUnknownFormat = errors.New("unknown extrinsic format")

// Kind identifies the format of a checked extrinsic.
type Kind uint8

// Set of formats. The zero value is deliberately not a format.
const (
	KindBare Kind = iota + 1
	KindSigned
	KindGeneral
	KindSelfContained
)

// String implements the fmt.Stringer interface.
func (k Kind) String() string {
	switch k {
	case KindBare:
		return "bare"
	case KindSigned:
		return "signed"
	case KindGeneral:
		return "general"
	case KindSelfContained:
		return "self_contained"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Format is the authentication shape of an extrinsic after its signature
// was checked. It's fixed at construction.
type Format[S any] struct {
	kind   Kind
	signer identity.NativeID
	ext    Extension
	info   S
}

// Bare is an unsigned extrinsic, typically an inherent.
func Bare[S any]() Format[S] {
	return Format[S]{kind: KindBare}
}

// Signed is an extrinsic signed by a native account.
func Signed[S any](signer identity.NativeID, ext Extension) Format[S] {
	return Format[S]{kind: KindSigned, signer: signer, ext: ext}
}

// General is an unsigned extrinsic gated by its extension.
func General[S any](ext Extension) Format[S] {
	return Format[S]{kind: KindGeneral, ext: ext}
}

// SelfContained is an extrinsic whose call carries its own proof. The info
// is what the call recovered from that proof.
func SelfContained[S any](info S) Format[S] {
	return Format[S]{kind: KindSelfContained, info: info}
}

// Kind returns the format kind.
func (f Format[S]) Kind() Kind {
	return f.kind
}

// Signer returns the native signer of a signed extrinsic.
func (f Format[S]) Signer() (identity.NativeID, bool) {
	return f.signer, f.kind == KindSigned
}

// Extension returns the extension of a signed or general extrinsic.
func (f Format[S]) Extension() (Extension, bool) {
	return f.ext, f.kind == KindSigned || f.kind == KindGeneral
}

// SignedInfo returns the recovered info of a self contained extrinsic.
func (f Format[S]) SignedInfo() (S, bool) {
	return f.info, f.kind == KindSelfContained
}

// =============================================================================

// Checked is an extrinsic whose signature, if any, has been verified.
type Checked[S any] struct {
	Format   Format[S]
	Function Call[S]
}

// DispatchInfo returns the declared cost of the call.
func (c Checked[S]) DispatchInfo() weight.DispatchInfo {
	return c.Function.DispatchInfo()
}
