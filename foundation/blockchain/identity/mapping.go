package identity

import (
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/blake2b"
)

// AddressMapping derives a native id from an ethereum address.
type AddressMapping interface {
	IntoNative(addr common.Address) NativeID
}

// BackwardsMapping derives an ethereum address from a native id.
type BackwardsMapping interface {
	FromNative(id NativeID) common.Address
}

// =============================================================================

// HashedMapping derives the native id as blake2b-256("evm:" ++ address).
type HashedMapping struct{}

// IntoNative implements the AddressMapping interface.
func (HashedMapping) IntoNative(addr common.Address) NativeID {
	data := make([]byte, 0, 4+common.AddressLength)
	data = append(data, "evm:"...)
	data = append(data, addr.Bytes()...)

	return NativeID(blake2b.Sum256(data))
}

// TruncatedMapping derives the ethereum address from the first 20 bytes
// of the native id.
type TruncatedMapping struct{}

// FromNative implements the BackwardsMapping interface.
func (TruncatedMapping) FromNative(id NativeID) common.Address {
	var addr common.Address
	copy(addr[:], id[:common.AddressLength])
	return addr
}

// =============================================================================

// Claims looks up the pairs explicitly claimed between the two spaces.
// The chain state implements it, so a claim is part of consensus.
type Claims interface {
	ClaimedNative(addr common.Address) (NativeID, bool)
	ClaimedEth(id NativeID) (common.Address, bool)
}

// RegistryMapping consults the claims first and falls back to the
// underlying mappings when nothing has been claimed. A lookup miss is never
// an error.
type RegistryMapping struct {
	Claims   Claims
	Forward  AddressMapping
	Backward BackwardsMapping
}

// IntoNative implements the AddressMapping interface.
func (rm RegistryMapping) IntoNative(addr common.Address) NativeID {
	if rm.Claims != nil {
		if id, exists := rm.Claims.ClaimedNative(addr); exists {
			return id
		}
	}

	return rm.Forward.IntoNative(addr)
}

// FromNative implements the BackwardsMapping interface.
func (rm RegistryMapping) FromNative(id NativeID) common.Address {
	if rm.Claims != nil {
		if addr, exists := rm.Claims.ClaimedEth(id); exists {
			return addr
		}
	}

	return rm.Backward.FromNative(id)
}

// WithClaims returns a mapper that resolves claimed pairs before falling
// back to the strategies of m.
func (m Mapper) WithClaims(claims Claims) Mapper {
	rm := RegistryMapping{
		Claims:   claims,
		Forward:  m.Forward,
		Backward: m.Backward,
	}

	return Mapper{Forward: rm, Backward: rm}
}
