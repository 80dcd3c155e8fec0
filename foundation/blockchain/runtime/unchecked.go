package runtime

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ardanlabs/crossledger/foundation/blockchain/extension"
	"github.com/ardanlabs/crossledger/foundation/blockchain/extrinsic"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ardanlabs/crossledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// Version is the envelope version this runtime understands.
const Version uint8 = 1

// Unchecked is an extrinsic as it travels on the wire, before its signature
// was verified. Signer and Signature are both empty for an unsigned
// extrinsic, Extra is empty when the extrinsic carries no extension state.
type Unchecked struct {
	Version   uint8
	Signer    []byte
	Signature []byte
	Extra     []byte
	Call      RawCall
}

// NewUnsigned wraps a call that carries no signature and no extension
// state: an inherent or a self contained call.
func NewUnsigned(call RawCall) Unchecked {
	return Unchecked{Version: Version, Call: call}
}

// NewGeneral wraps a call with extension state but no signature.
func NewGeneral(call RawCall, extra extension.Extra) (Unchecked, error) {
	data, err := encodeExtra(extra)
	if err != nil {
		return Unchecked{}, err
	}

	return Unchecked{Version: Version, Extra: data, Call: call}, nil
}

// NewSigned signs the call and its extension state with the native key of
// the sender. The signature commits to the genesis hash of the chain.
func NewSigned(call RawCall, extra extension.Extra, genesisHash common.Hash, privateKey *ecdsa.PrivateKey) (Unchecked, error) {
	data, err := encodeExtra(extra)
	if err != nil {
		return Unchecked{}, err
	}

	payload, err := SigningPayload(call, data, genesisHash)
	if err != nil {
		return Unchecked{}, err
	}

	sig, err := signature.Sign(payload, privateKey)
	if err != nil {
		return Unchecked{}, err
	}

	signer := signature.PublicKeyToNativeID(privateKey.PublicKey)

	u := Unchecked{
		Version:   Version,
		Signer:    signer.Bytes(),
		Signature: sig,
		Extra:     data,
		Call:      call,
	}

	return u, nil
}

// SigningPayload returns the bytes a native signature covers.
func SigningPayload(call RawCall, extra []byte, genesisHash common.Hash) ([]byte, error) {
	data, err := call.Encode()
	if err != nil {
		return nil, err
	}

	payload := make([]byte, 0, len(data)+len(extra)+common.HashLength)
	payload = append(payload, data...)
	payload = append(payload, extra...)
	payload = append(payload, genesisHash.Bytes()...)

	return payload, nil
}

// Encode returns the RLP encoding of the extrinsic.
func (u Unchecked) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(u)
}

// DecodeUnchecked decodes an RLP encoded extrinsic.
func DecodeUnchecked(data []byte) (Unchecked, error) {
	var u Unchecked
	if err := rlp.DecodeBytes(data, &u); err != nil {
		return Unchecked{}, err
	}
	return u, nil
}

// IsSigned reports whether the extrinsic carries a signature.
func (u Unchecked) IsSigned() bool {
	return len(u.Signature) != 0 || len(u.Signer) != 0
}

// =============================================================================

// selfContained is a call that can recover its own signed info.
type selfContained interface {
	CheckSelfContained() (common.Address, error)
}

// Check verifies the extrinsic and fixes its format. Every failure is a
// validity error.
func (rt *Runtime) Check(u Unchecked) (extrinsic.Checked[common.Address], error) {
	if u.Version != Version {
		return extrinsic.Checked[common.Address]{}, extrinsic.ErrCall.WithCause(fmt.Errorf("unsupported version %d", u.Version))
	}

	call, err := rt.Decode(u.Call)
	if err != nil {
		return extrinsic.Checked[common.Address]{}, extrinsic.ErrCall.WithCause(err)
	}

	if sc, ok := call.(selfContained); ok {
		if u.IsSigned() || len(u.Extra) != 0 {
			return extrinsic.Checked[common.Address]{}, extrinsic.ErrCall.WithCause(errors.New("self contained calls carry no envelope signature or extension"))
		}

		from, err := sc.CheckSelfContained()
		if err != nil {
			return extrinsic.Checked[common.Address]{}, err
		}

		return extrinsic.Checked[common.Address]{Format: extrinsic.SelfContained(from), Function: call}, nil
	}

	switch {
	case !u.IsSigned() && len(u.Extra) == 0:
		return extrinsic.Checked[common.Address]{Format: extrinsic.Bare[common.Address](), Function: call}, nil

	case !u.IsSigned():
		extra, err := decodeExtra(u.Extra)
		if err != nil {
			return extrinsic.Checked[common.Address]{}, extrinsic.ErrCall.WithCause(err)
		}
		ext := extension.New(rt.env, extra)
		return extrinsic.Checked[common.Address]{Format: extrinsic.General[common.Address](ext), Function: call}, nil
	}

	if len(u.Signer) != identity.NativeLength {
		return extrinsic.Checked[common.Address]{}, extrinsic.ErrBadSigner.WithCause(fmt.Errorf("signer length %d", len(u.Signer)))
	}
	claimed := identity.BytesToNativeID(u.Signer)

	extra, err := decodeExtra(u.Extra)
	if err != nil {
		return extrinsic.Checked[common.Address]{}, extrinsic.ErrCall.WithCause(err)
	}

	payload, err := SigningPayload(u.Call, u.Extra, rt.genesisHash)
	if err != nil {
		return extrinsic.Checked[common.Address]{}, extrinsic.ErrCall.WithCause(err)
	}

	recovered, err := signature.Recover(payload, u.Signature)
	if err != nil {
		return extrinsic.Checked[common.Address]{}, extrinsic.ErrBadProof.WithCause(err)
	}

	if recovered != claimed {
		return extrinsic.Checked[common.Address]{}, extrinsic.ErrBadProof.WithCause(fmt.Errorf("signed by %s, claimed %s", recovered, claimed))
	}

	ext := extension.New(rt.env, extra)

	return extrinsic.Checked[common.Address]{Format: extrinsic.Signed[common.Address](claimed, ext), Function: call}, nil
}

// CheckBytes decodes and checks an encoded extrinsic.
func (rt *Runtime) CheckBytes(data []byte) (extrinsic.Checked[common.Address], error) {
	u, err := DecodeUnchecked(data)
	if err != nil {
		return extrinsic.Checked[common.Address]{}, extrinsic.ErrCall.WithCause(err)
	}

	return rt.Check(u)
}

// =============================================================================

func encodeExtra(extra extension.Extra) ([]byte, error) {
	if extra.Tip == nil {
		extra.Tip = new(uint256.Int)
	}
	return rlp.EncodeToBytes(extra)
}

func decodeExtra(data []byte) (extension.Extra, error) {
	var extra extension.Extra
	if err := rlp.DecodeBytes(data, &extra); err != nil {
		return extension.Extra{}, fmt.Errorf("extension: %w", err)
	}
	return extra, nil
}
