package runtime

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/crossledger/foundation/blockchain/basefee"
	"github.com/ardanlabs/crossledger/foundation/blockchain/extrinsic"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ardanlabs/crossledger/foundation/blockchain/weight"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// Declared weights of the calls.
const (
	TransferWeight  weight.Weight = 50_000_000
	AdminWeight     weight.Weight = 10_000_000
	SudoOverhead    weight.Weight = 10_000_000
	TimestampWeight weight.Weight = 5_000_000
	ClaimWeight     weight.Weight = 30_000_000
)

// Call is a call bound to the runtime. Ethereum addresses are the signed
// info of self contained calls.
type Call interface {
	extrinsic.Call[common.Address]
	Raw() RawCall
}

// notSelfContained provides the self contained entry points for calls that
// authenticate through the envelope.
type notSelfContained struct{}

func (notSelfContained) ValidateSelfContained(common.Address, weight.DispatchInfo, int) (extrinsic.ValidTransaction, error) {
	return extrinsic.ValidTransaction{}, extrinsic.ErrNotSelfContained
}

func (notSelfContained) PreDispatchSelfContained(common.Address, weight.DispatchInfo, int) error {
	return extrinsic.ErrNotSelfContained
}

func (notSelfContained) ApplySelfContained(common.Address) (weight.PostDispatchInfo, error) {
	return weight.PostDispatchInfo{}, extrinsic.ErrNotSelfContained
}

// =============================================================================

type transferCall struct {
	notSelfContained
	rt    *Runtime
	raw   RawCall
	dest  identity.CrossAccountID
	value *uint256.Int
}

func (c *transferCall) Raw() RawCall {
	return c.raw
}

func (c *transferCall) DispatchInfo() weight.DispatchInfo {
	return weight.DispatchInfo{Weight: TransferWeight, Class: weight.Normal, PaysFee: weight.PaysYes}
}

func (c *transferCall) Dispatch(origin extrinsic.Origin) (weight.PostDispatchInfo, error) {
	who, err := extrinsic.EnsureSigned(origin)
	if err != nil {
		return weight.PostDispatchInfo{}, err
	}

	from := who.Native()
	to := c.dest.Native()

	if err := c.rt.env.DB.Transfer(from, to, c.value); err != nil {
		return weight.PostDispatchInfo{}, err
	}

	c.rt.evHandler("runtime: Transfer: from[%s] to[%s] value[%s]", who, c.dest, c.value)

	return weight.PostDispatchInfo{}, nil
}

// =============================================================================

type feeAdminCall struct {
	notSelfContained
	rt    *Runtime
	raw   RawCall
	apply func(fee *basefee.Controller)
}

func (rt *Runtime) decodeFeeAdmin(raw RawCall) (Call, error) {
	c := feeAdminCall{rt: rt, raw: raw}

	switch raw.ID {
	case CallSetBaseFee:
		var args SetBaseFeeArgs
		if err := rlp.DecodeBytes(raw.Args, &args); err != nil {
			return nil, fmt.Errorf("%s: %w", raw.ID, err)
		}
		if args.Fee == nil {
			return nil, fmt.Errorf("%s: fee is required", raw.ID)
		}
		c.apply = func(fee *basefee.Controller) { fee.SetBaseFee(args.Fee) }

	case CallSetIsActive:
		var args SetIsActiveArgs
		if err := rlp.DecodeBytes(raw.Args, &args); err != nil {
			return nil, fmt.Errorf("%s: %w", raw.ID, err)
		}
		c.apply = func(fee *basefee.Controller) { fee.SetIsActive(args.Active) }

	case CallSetElasticity:
		var args SetElasticityArgs
		if err := rlp.DecodeBytes(raw.Args, &args); err != nil {
			return nil, fmt.Errorf("%s: %w", raw.ID, err)
		}
		if args.Elasticity > basefee.PermillOne {
			return nil, fmt.Errorf("%s: elasticity %d above 100%%", raw.ID, args.Elasticity)
		}
		c.apply = func(fee *basefee.Controller) { fee.SetElasticity(basefee.PermillFromParts(args.Elasticity)) }
	}

	return &c, nil
}

func (c *feeAdminCall) Raw() RawCall {
	return c.raw
}

func (c *feeAdminCall) DispatchInfo() weight.DispatchInfo {
	return weight.DispatchInfo{Weight: AdminWeight, Class: weight.Operational, PaysFee: weight.PaysYes}
}

func (c *feeAdminCall) Dispatch(origin extrinsic.Origin) (weight.PostDispatchInfo, error) {
	if err := extrinsic.EnsureRoot(origin); err != nil {
		return weight.PostDispatchInfo{}, err
	}

	c.apply(c.rt.env.Fee)

	return weight.PostDispatchInfo{}, nil
}

// =============================================================================

type sudoCall struct {
	notSelfContained
	rt    *Runtime
	raw   RawCall
	inner Call
}

func (c *sudoCall) Raw() RawCall {
	return c.raw
}

func (c *sudoCall) DispatchInfo() weight.DispatchInfo {
	info := c.inner.DispatchInfo()
	info.Weight = info.Weight.SaturatingAdd(SudoOverhead)
	info.PaysFee = weight.PaysYes
	return info
}

func (c *sudoCall) Dispatch(origin extrinsic.Origin) (weight.PostDispatchInfo, error) {
	who, err := extrinsic.EnsureSigned(origin)
	if err != nil {
		return weight.PostDispatchInfo{}, err
	}

	if who.Native() != c.rt.sudo {
		return weight.PostDispatchInfo{}, fmt.Errorf("%w: %s is not the sudo key", extrinsic.ErrBadOrigin, who)
	}

	declared := c.inner.DispatchInfo()

	post, err := c.inner.Dispatch(extrinsic.RootOrigin())
	post = extrinsic.PostInfoOf(post, err)

	actual := post.CalcActualWeight(declared).SaturatingAdd(SudoOverhead)
	result := weight.PostDispatchInfo{ActualWeight: &actual, PaysFee: weight.PaysYes}

	c.rt.evHandler("runtime: Sudo: call[%s] ok[%t]", c.inner.Raw().ID, err == nil)

	if err != nil {
		return result, &extrinsic.DispatchError{Err: err, PostInfo: result}
	}

	return result, nil
}

// =============================================================================

type timestampCall struct {
	notSelfContained
	rt  *Runtime
	raw RawCall
	now uint64
}

func (c *timestampCall) Raw() RawCall {
	return c.raw
}

func (c *timestampCall) DispatchInfo() weight.DispatchInfo {
	return weight.DispatchInfo{Weight: TimestampWeight, Class: weight.Mandatory, PaysFee: weight.PaysNo}
}

func (c *timestampCall) Dispatch(origin extrinsic.Origin) (weight.PostDispatchInfo, error) {
	if err := extrinsic.EnsureNone(origin); err != nil {
		return weight.PostDispatchInfo{}, err
	}

	c.rt.mu.Lock()
	defer c.rt.mu.Unlock()

	if c.rt.timestampSet {
		return weight.PostDispatchInfo{}, errors.New("timestamp already set in this block")
	}

	c.rt.now = c.now
	c.rt.timestampSet = true

	return weight.PostDispatchInfo{}, nil
}
