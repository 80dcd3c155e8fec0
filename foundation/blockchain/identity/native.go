package identity

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// NativeLength is the number of bytes in a native account id.
const NativeLength = 32

// ss58Prefix is the generic substrate network prefix used when rendering
// native ids for humans.
const ss58Prefix = 42

// ErrInvalidNativeID is returned when a string can't be parsed into a
// native account id.
var ErrInvalidNativeID = errors.New("invalid native account id")

// =============================================================================

// NativeID represents an account id in the native 32 byte address space.
// This is the space that defines the total ordering of identities.
type NativeID [NativeLength]byte

// BytesToNativeID converts the slice into a native id. If the slice is
// larger than 32 bytes, the leading bytes are cropped.
func BytesToNativeID(b []byte) NativeID {
	var id NativeID
	if len(b) > NativeLength {
		b = b[len(b)-NativeLength:]
	}
	copy(id[NativeLength-len(b):], b)
	return id
}

// ParseNativeID accepts either the SS58 form or the 0x prefixed hex form
// of a native id.
func ParseNativeID(s string) (NativeID, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		b, err := hexutil.Decode(s)
		if err != nil || len(b) != NativeLength {
			return NativeID{}, fmt.Errorf("%w: %q", ErrInvalidNativeID, s)
		}
		return BytesToNativeID(b), nil
	}

	return decodeSS58(s)
}

// Bytes returns a copy of the id as a slice.
func (id NativeID) Bytes() []byte {
	b := make([]byte, NativeLength)
	copy(b, id[:])
	return b
}

// Hex returns the 0x prefixed hex form of the id.
func (id NativeID) Hex() string {
	return hexutil.Encode(id[:])
}

// String implements the fmt.Stringer interface and renders the SS58 form.
func (id NativeID) String() string {
	return encodeSS58(id)
}

// IsZero reports whether the id is all zeros.
func (id NativeID) IsZero() bool {
	return id == NativeID{}
}

// Compare provides the total ordering for native ids.
func (id NativeID) Compare(other NativeID) int {
	return bytes.Compare(id[:], other[:])
}

// MarshalText implements the encoding.TextMarshaler interface.
func (id NativeID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (id *NativeID) UnmarshalText(text []byte) error {
	v, err := ParseNativeID(string(text))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// =============================================================================

func ss58Checksum(payload []byte) []byte {
	h := blake2b.Sum512(append([]byte("SS58PRE"), payload...))
	return h[:2]
}

func encodeSS58(id NativeID) string {
	payload := make([]byte, 0, 1+NativeLength+2)
	payload = append(payload, ss58Prefix)
	payload = append(payload, id[:]...)
	payload = append(payload, ss58Checksum(payload)...)

	return base58.Encode(payload)
}

func decodeSS58(s string) (NativeID, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return NativeID{}, fmt.Errorf("%w: %s", ErrInvalidNativeID, err)
	}

	if len(raw) != 1+NativeLength+2 {
		return NativeID{}, fmt.Errorf("%w: length %d", ErrInvalidNativeID, len(raw))
	}

	payload := raw[:1+NativeLength]
	if !bytes.Equal(ss58Checksum(payload), raw[1+NativeLength:]) {
		return NativeID{}, fmt.Errorf("%w: bad checksum", ErrInvalidNativeID)
	}

	return BytesToNativeID(payload[1:]), nil
}
