package runtime

import (
	"fmt"

	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// CallID identifies a call the runtime can dispatch.
type CallID uint8

// Set of calls.
const (
	CallTransfer CallID = iota + 1
	CallSetBaseFee
	CallSetIsActive
	CallSetElasticity
	CallSudo
	CallSetTimestamp
	CallTransact
	CallClaimEth
)

var callNames = map[CallID]string{
	CallTransfer:      "balances.transfer",
	CallSetBaseFee:    "basefee.set_base_fee",
	CallSetIsActive:   "basefee.set_is_active",
	CallSetElasticity: "basefee.set_elasticity",
	CallSudo:          "sudo.sudo",
	CallSetTimestamp:  "timestamp.set",
	CallTransact:      "ethereum.transact",
	CallClaimEth:      "identity.claim_eth",
}

// String implements the fmt.Stringer interface.
func (id CallID) String() string {
	if name, exists := callNames[id]; exists {
		return name
	}
	return fmt.Sprintf("call(%d)", uint8(id))
}

// RawCall is the encoded form of a call: which call and its RLP encoded
// arguments.
type RawCall struct {
	ID   CallID
	Args []byte
}

// Encode returns the RLP encoding of the call.
func (c RawCall) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(c)
}

// DecodeCall decodes an RLP encoded call.
func DecodeCall(data []byte) (RawCall, error) {
	var c RawCall
	if err := rlp.DecodeBytes(data, &c); err != nil {
		return RawCall{}, err
	}
	return c, nil
}

// =============================================================================

// TransferArgs are the arguments of balances.transfer. The destination is
// carried in its external form and resolved by the runtime's mapper.
type TransferArgs struct {
	Dest  identity.Repr
	Value *uint256.Int
}

// SetBaseFeeArgs are the arguments of basefee.set_base_fee.
type SetBaseFeeArgs struct {
	Fee *uint256.Int
}

// SetIsActiveArgs are the arguments of basefee.set_is_active.
type SetIsActiveArgs struct {
	Active bool
}

// SetElasticityArgs are the arguments of basefee.set_elasticity, in parts
// per million.
type SetElasticityArgs struct {
	Elasticity uint32
}

// SudoArgs are the arguments of sudo.sudo.
type SudoArgs struct {
	Call RawCall
}

// SetTimestampArgs are the arguments of timestamp.set, in unix milliseconds.
type SetTimestampArgs struct {
	Now uint64
}

// TransactArgs are the arguments of ethereum.transact: the transaction in
// its binary encoding.
type TransactArgs struct {
	Tx []byte
}

// ClaimEthArgs are the arguments of identity.claim_eth. Both keys sign
// ClaimPayload, proving one holder controls both accounts.
type ClaimEthArgs struct {
	Native      identity.NativeID
	Address     common.Address
	NativeProof []byte
	EthProof    []byte
}

// ClaimPayload is the message both keys sign to link a native account to an
// ethereum address on the chain with the given genesis.
func ClaimPayload(native identity.NativeID, addr common.Address, genesisHash common.Hash) []byte {
	payload := make([]byte, 0, 10+len(native)+common.AddressLength+common.HashLength)
	payload = append(payload, "claim_eth:"...)
	payload = append(payload, native[:]...)
	payload = append(payload, addr[:]...)
	payload = append(payload, genesisHash[:]...)
	return payload
}

// =============================================================================

// Transfer constructs a balances.transfer call.
func Transfer(dest identity.CrossAccountID, value *uint256.Int) (RawCall, error) {
	return newCall(CallTransfer, TransferArgs{Dest: dest.Repr(), Value: value})
}

// ClaimEth constructs an identity.claim_eth call. It's submitted without a
// signer, the proofs authorize it.
func ClaimEth(args ClaimEthArgs) (RawCall, error) {
	return newCall(CallClaimEth, args)
}

// SetBaseFee constructs a basefee.set_base_fee call.
func SetBaseFee(fee *uint256.Int) (RawCall, error) {
	return newCall(CallSetBaseFee, SetBaseFeeArgs{Fee: fee})
}

// SetIsActive constructs a basefee.set_is_active call.
func SetIsActive(active bool) (RawCall, error) {
	return newCall(CallSetIsActive, SetIsActiveArgs{Active: active})
}

// SetElasticity constructs a basefee.set_elasticity call.
func SetElasticity(parts uint32) (RawCall, error) {
	return newCall(CallSetElasticity, SetElasticityArgs{Elasticity: parts})
}

// Sudo wraps a call so it's dispatched as root.
func Sudo(call RawCall) (RawCall, error) {
	return newCall(CallSudo, SudoArgs{Call: call})
}

// SetTimestamp constructs the timestamp inherent.
func SetTimestamp(now uint64) (RawCall, error) {
	return newCall(CallSetTimestamp, SetTimestampArgs{Now: now})
}

// Transact wraps a signed ethereum transaction.
func Transact(tx *types.Transaction) (RawCall, error) {
	data, err := tx.MarshalBinary()
	if err != nil {
		return RawCall{}, err
	}
	return newCall(CallTransact, TransactArgs{Tx: data})
}

func newCall(id CallID, args any) (RawCall, error) {
	data, err := rlp.EncodeToBytes(args)
	if err != nil {
		return RawCall{}, fmt.Errorf("encoding %s: %w", id, err)
	}
	return RawCall{ID: id, Args: data}, nil
}
