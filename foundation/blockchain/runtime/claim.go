package runtime

import (
	"fmt"

	"github.com/ardanlabs/crossledger/foundation/blockchain/extension"
	"github.com/ardanlabs/crossledger/foundation/blockchain/extrinsic"
	"github.com/ardanlabs/crossledger/foundation/blockchain/signature"
	"github.com/ardanlabs/crossledger/foundation/blockchain/weight"
)

// Custom invalid codes reported by identity.claim_eth.
const (
	InvalidClaimInUse uint8 = 1
)

// claimCall links a native account to an ethereum address. It arrives as a
// general transaction: nobody signs the envelope, the two proofs in its
// arguments authorize it.
type claimCall struct {
	notSelfContained
	rt   *Runtime
	raw  RawCall
	args ClaimEthArgs
}

func (c *claimCall) Raw() RawCall {
	return c.raw
}

func (c *claimCall) DispatchInfo() weight.DispatchInfo {
	return weight.DispatchInfo{Weight: ClaimWeight, Class: weight.Normal, PaysFee: weight.PaysNo}
}

// AuthorizeGeneral implements the extrinsic.GeneralAuthorizer interface.
// Each side of the pair can be claimed once, so the tags keep a claim from
// being replayed.
func (c *claimCall) AuthorizeGeneral() (extrinsic.ValidTransaction, error) {
	payload := ClaimPayload(c.args.Native, c.args.Address, c.rt.genesisHash)

	native, err := signature.Recover(payload, c.args.NativeProof)
	if err != nil || native != c.args.Native {
		return extrinsic.ValidTransaction{}, extrinsic.ErrBadProof.WithCause(fmt.Errorf("native proof doesn't match %s", c.args.Native))
	}

	addr, err := signature.RecoverAddress(payload, c.args.EthProof)
	if err != nil || addr != c.args.Address {
		return extrinsic.ValidTransaction{}, extrinsic.ErrBadProof.WithCause(fmt.Errorf("ethereum proof doesn't match %s", c.args.Address))
	}

	db := c.rt.env.DB

	if linked, exists := db.ClaimedEth(c.args.Native); exists {
		return extrinsic.ValidTransaction{}, extrinsic.ErrStale.WithCause(fmt.Errorf("%s already linked to %s", c.args.Native, linked))
	}
	if owner, exists := db.ClaimedNative(c.args.Address); exists {
		return extrinsic.ValidTransaction{}, extrinsic.ErrStale.WithCause(fmt.Errorf("%s already claimed by %s", c.args.Address, owner))
	}

	// The account the address derives to stops being reachable once the
	// address is claimed.
	derived := db.Query(c.rt.mapper.FromEth(c.args.Address).Native())
	if derived.Nonce != 0 || !derived.Balance.IsZero() {
		return extrinsic.ValidTransaction{}, extrinsic.InvalidCustomCode(InvalidClaimInUse).WithCause(fmt.Errorf("derived account %s is in use", derived.AccountID))
	}

	v := extrinsic.ValidTransaction{
		Provides:  [][]byte{claimTag(c.args.Native[:]), claimTag(c.args.Address[:])},
		Longevity: extension.Longevity,
		Propagate: true,
	}

	return v, nil
}

func (c *claimCall) Dispatch(origin extrinsic.Origin) (weight.PostDispatchInfo, error) {
	if err := extrinsic.EnsureNone(origin); err != nil {
		return weight.PostDispatchInfo{}, err
	}

	if _, err := c.AuthorizeGeneral(); err != nil {
		return weight.PostDispatchInfo{}, err
	}

	if err := c.rt.env.DB.Link(c.args.Native, c.args.Address); err != nil {
		return weight.PostDispatchInfo{}, err
	}

	c.rt.evHandler("runtime: ClaimEth: native[%s] address[%s]", c.args.Native, c.args.Address)

	return weight.PostDispatchInfo{}, nil
}

func claimTag(key []byte) []byte {
	tag := make([]byte, 0, 6+len(key))
	tag = append(tag, "claim:"...)
	return append(tag, key...)
}
