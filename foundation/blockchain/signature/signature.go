// Package signature provides helper functions for handling the blockchain
// signature needs.
package signature

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"
)

// Length is the size of a signature in the [R|S|V] format.
const Length = crypto.SignatureLength

// ErrInvalidSignature is returned when a signature can't be used to recover
// the account that produced it.
var ErrInvalidSignature = errors.New("invalid signature")

// =============================================================================

// Sign uses the specified private key to sign the payload. The signature is
// returned in the [R|S|V] format with V being 0 or 1.
func Sign(payload []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {

	// Prepare the data for signing.
	data := stamp(payload)

	// Sign the hash with the private key to produce a signature.
	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return nil, err
	}

	// Extract the public key from the data and the signature.
	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return nil, err
	}

	// Check the public key extracted from the data and signature.
	rs := sig[:crypto.RecoveryIDOffset]
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), data, rs) {
		return nil, ErrInvalidSignature
	}

	return sig, nil
}

// VerifySignature verifies the signature conforms to our standards.
func VerifySignature(sig []byte) error {
	if len(sig) != Length {
		return fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}

	// Check the recovery id is either 0 or 1.
	v := sig[crypto.RecoveryIDOffset]
	if v != 0 && v != 1 {
		return fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, v)
	}

	// Check the signature values are valid, rejecting malleable ones.
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return fmt.Errorf("%w: values out of range", ErrInvalidSignature)
	}

	return nil
}

// Recover extracts the native account that signed the payload.
func Recover(payload []byte, sig []byte) (identity.NativeID, error) {
	publicKey, err := recoverPublicKey(payload, sig)
	if err != nil {
		return identity.NativeID{}, err
	}

	return PublicKeyToNativeID(*publicKey), nil
}

// RecoverAddress extracts the ethereum address of the key that signed the
// payload.
func RecoverAddress(payload []byte, sig []byte) (common.Address, error) {
	publicKey, err := recoverPublicKey(payload, sig)
	if err != nil {
		return common.Address{}, err
	}

	return crypto.PubkeyToAddress(*publicKey), nil
}

func recoverPublicKey(payload []byte, sig []byte) (*ecdsa.PublicKey, error) {
	if err := VerifySignature(sig); err != nil {
		return nil, err
	}

	// NOTE: If the same exact payload for the given signature is not provided
	// we will get the wrong account back. There is no way to check this on the
	// node since the public key is extracted from the data and signature.

	publicKey, err := crypto.SigToPub(stamp(payload), sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	return publicKey, nil
}

// PublicKeyToNativeID derives the native account of a public key. It's the
// blake2b-256 hash of the compressed key.
func PublicKeyToNativeID(pk ecdsa.PublicKey) identity.NativeID {
	return identity.NativeID(blake2b.Sum256(crypto.CompressPubkey(&pk)))
}

// Accounts returns both identities controlled by a private key: the native
// account and the ethereum account.
func Accounts(privateKey *ecdsa.PrivateKey) (identity.NativeID, identity.CrossAccountID) {
	return PublicKeyToNativeID(privateKey.PublicKey), identity.FromEth(crypto.PubkeyToAddress(privateKey.PublicKey))
}

// String returns the signature as a hex string.
func String(sig []byte) string {
	return hexutil.Encode(sig)
}

// =============================================================================

// stamp returns a hash of 32 bytes that represents the payload with the
// crossledger stamp embedded into the final hash.
func stamp(payload []byte) []byte {

	// Hash the payload into a 32 byte array. This will provide a data length
	// consistency with all payloads.
	txHash := crypto.Keccak256(payload)

	// This stamp is used so signatures we produce are always unique to
	// native extrinsics and can't be replayed as ethereum messages.
	stamp := []byte("\x19Crossledger Signed Extrinsic:\n32")

	return crypto.Keccak256(stamp, txHash)
}
