package identity

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// Set of representation kinds.
const (
	KindNative   uint8 = 0
	KindEthereum uint8 = 1
)

// Repr is the two variant external form of an identity.
type Repr struct {
	Kind uint8
	Data []byte
}

// reprJSON is the JSON form of the representation. Exactly one of the
// fields is set.
type reprJSON struct {
	Native   *NativeID       `json:"native,omitempty"`
	Ethereum *common.Address `json:"ethereum,omitempty"`
}

// MarshalJSON implements the json.Marshaler interface.
func (c CrossAccountID) MarshalJSON() ([]byte, error) {
	if c.fromEthereum {
		return json.Marshal(reprJSON{Ethereum: &c.eth})
	}
	return json.Marshal(reprJSON{Native: &c.native})
}

// UnmarshalJSON implements the json.Unmarshaler interface. The derived side
// is rebuilt with the default mapper, which knows no claims. On chain
// values travel as a Repr and are resolved with the runtime's mapper.
func (c *CrossAccountID) UnmarshalJSON(data []byte) error {
	var r reprJSON
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}

	switch {
	case r.Native != nil && r.Ethereum != nil:
		return errors.New("identity: both native and ethereum set")
	case r.Native != nil:
		*c = Default.FromNative(*r.Native)
	case r.Ethereum != nil:
		*c = Default.FromEth(*r.Ethereum)
	default:
		return errors.New("identity: empty representation")
	}

	return nil
}

// EncodeRLP implements the rlp.Encoder interface.
func (c CrossAccountID) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, c.Repr())
}

// DecodeRLP implements the rlp.Decoder interface. The derived side is
// rebuilt with the default mapper, see UnmarshalJSON.
func (c *CrossAccountID) DecodeRLP(s *rlp.Stream) error {
	var r Repr
	if err := s.Decode(&r); err != nil {
		return err
	}

	v, err := Default.FromRepr(r)
	if err != nil {
		return err
	}
	*c = v

	return nil
}
