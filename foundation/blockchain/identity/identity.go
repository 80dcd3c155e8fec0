// Package identity provides an account identity that exists in two address
// spaces at once: the native 32 byte account space and the 20 byte ethereum
// address space. One side is canonical, the other is derived once at
// construction and frozen.
package identity

import (
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

// Mapper carries the strategies used to derive the non-canonical side of
// an identity.
type Mapper struct {
	Forward  AddressMapping
	Backward BackwardsMapping
}

// Default is the mapper used by the package level constructors and when
// decoding identities from their external representation.
var Default = Mapper{
	Forward:  HashedMapping{},
	Backward: TruncatedMapping{},
}

// FromNative constructs an identity where the native id is canonical.
func (m Mapper) FromNative(id NativeID) CrossAccountID {
	return CrossAccountID{
		native: id,
		eth:    m.Backward.FromNative(id),
	}
}

// FromEth constructs an identity where the ethereum address is canonical.
func (m Mapper) FromEth(addr common.Address) CrossAccountID {
	return CrossAccountID{
		fromEthereum: true,
		native:       m.Forward.IntoNative(addr),
		eth:          addr,
	}
}

// FromRepr rebuilds the identity from its external representation,
// deriving the non-canonical side again.
func (m Mapper) FromRepr(r Repr) (CrossAccountID, error) {
	switch r.Kind {
	case KindNative:
		if len(r.Data) != NativeLength {
			return CrossAccountID{}, fmt.Errorf("native repr: bad length %d", len(r.Data))
		}
		return m.FromNative(BytesToNativeID(r.Data)), nil

	case KindEthereum:
		if len(r.Data) != common.AddressLength {
			return CrossAccountID{}, fmt.Errorf("ethereum repr: bad length %d", len(r.Data))
		}
		return m.FromEth(common.BytesToAddress(r.Data)), nil
	}

	return CrossAccountID{}, fmt.Errorf("unknown repr kind %d", r.Kind)
}

// FromNative constructs an identity using the default mapper.
func FromNative(id NativeID) CrossAccountID {
	return Default.FromNative(id)
}

// FromEth constructs an identity using the default mapper.
func FromEth(addr common.Address) CrossAccountID {
	return Default.FromEth(addr)
}

// =============================================================================

// CrossAccountID is an immutable identity with both address spaces
// resolved. Use the constructors; the zero value is the native zero account
// without a derived address.
type CrossAccountID struct {
	fromEthereum bool
	native       NativeID
	eth          common.Address
}

// Native returns the id in the native space.
func (c CrossAccountID) Native() NativeID {
	return c.native
}

// Eth returns the address in the ethereum space.
func (c CrossAccountID) Eth() common.Address {
	return c.eth
}

// IsEthCanonical reports whether the ethereum address was the authoritative
// value at construction.
func (c CrossAccountID) IsEthCanonical() bool {
	return c.fromEthereum
}

// ConvEq compares two identities by their meaning rather than their
// encoding. Identities canonical in the same space must match on both
// sides. When the canonical spaces differ only the native side is compared,
// since the ethereum side of a native identity is a derived value.
func (c CrossAccountID) ConvEq(other CrossAccountID) bool {
	if c.fromEthereum == other.fromEthereum {
		return c.native == other.native && c.eth == other.eth
	}

	return c.native == other.native
}

// Compare orders identities by their native id only.
func (c CrossAccountID) Compare(other CrossAccountID) int {
	return c.native.Compare(other.native)
}

// String implements the fmt.Stringer interface.
func (c CrossAccountID) String() string {
	if c.fromEthereum {
		return "ethereum:" + c.eth.Hex()
	}
	return "native:" + c.native.String()
}

// Repr returns the external representation of the identity. Only the
// canonical side is carried.
func (c CrossAccountID) Repr() Repr {
	if c.fromEthereum {
		return Repr{Kind: KindEthereum, Data: c.eth.Bytes()}
	}
	return Repr{Kind: KindNative, Data: c.native.Bytes()}
}

// Sort orders the identities in place by their native id.
func Sort(ids []CrossAccountID) {
	slices.SortStableFunc(ids, CrossAccountID.Compare)
}
