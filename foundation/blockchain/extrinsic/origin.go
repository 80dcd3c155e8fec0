package extrinsic

import (
	"errors"

	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
)

// ErrBadOrigin is returned by a call dispatched under the wrong origin.
var ErrBadOrigin = errors.New("bad origin")

// originKind identifies who a call is dispatched as.
type originKind uint8

const (
	originNone originKind = iota
	originSigned
	originRoot
)

// Origin is the authority a call executes under.
type Origin struct {
	kind originKind
	who  identity.CrossAccountID
}

// NoneOrigin is the origin of unsigned calls and inherents.
func NoneOrigin() Origin {
	return Origin{kind: originNone}
}

// SignedOrigin is the origin of a call made by an account.
func SignedOrigin(who identity.CrossAccountID) Origin {
	return Origin{kind: originSigned, who: who}
}

// RootOrigin is the privileged origin.
func RootOrigin() Origin {
	return Origin{kind: originRoot}
}

// Signer returns the account the call executes as, if any.
func (o Origin) Signer() (identity.CrossAccountID, bool) {
	return o.who, o.kind == originSigned
}

// IsRoot reports whether the origin is privileged.
func (o Origin) IsRoot() bool {
	return o.kind == originRoot
}

// IsNone reports whether the origin has no signer.
func (o Origin) IsNone() bool {
	return o.kind == originNone
}

// String implements the fmt.Stringer interface.
func (o Origin) String() string {
	switch o.kind {
	case originSigned:
		return "signed(" + o.who.String() + ")"
	case originRoot:
		return "root"
	}
	return "none"
}

// EnsureSigned returns the signer or ErrBadOrigin.
func EnsureSigned(o Origin) (identity.CrossAccountID, error) {
	who, ok := o.Signer()
	if !ok {
		return identity.CrossAccountID{}, ErrBadOrigin
	}
	return who, nil
}

// EnsureRoot returns ErrBadOrigin unless the origin is root.
func EnsureRoot(o Origin) error {
	if !o.IsRoot() {
		return ErrBadOrigin
	}
	return nil
}

// EnsureNone returns ErrBadOrigin unless the origin has no signer.
func EnsureNone(o Origin) error {
	if !o.IsNone() {
		return ErrBadOrigin
	}
	return nil
}
