package runtime

import (
	"errors"
	"fmt"
	"math"

	"github.com/ardanlabs/crossledger/foundation/blockchain/dispatch"
	"github.com/ardanlabs/crossledger/foundation/blockchain/extension"
	"github.com/ardanlabs/crossledger/foundation/blockchain/extrinsic"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ardanlabs/crossledger/foundation/blockchain/weight"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// Custom validity codes reported for ethereum transactions.
const (
	CustomInvalidChainID uint8 = iota
	CustomGasPriceTooLow
	CustomFeeOverflow
)

// ErrContractCreation is returned when a transaction has no recipient.
var ErrContractCreation = errors.New("contract creation is not supported")

type transactCall struct {
	rt  *Runtime
	raw RawCall
	tx  *types.Transaction
}

func (c *transactCall) Raw() RawCall {
	return c.raw
}

// Tx returns the wrapped transaction.
func (c *transactCall) Tx() *types.Transaction {
	return c.tx
}

func (c *transactCall) DispatchInfo() weight.DispatchInfo {
	return weight.DispatchInfo{
		Weight:  c.rt.env.Gas.GasToWeight(c.tx.Gas()),
		Class:   weight.Normal,
		PaysFee: weight.PaysYes,
	}
}

// Dispatch refuses to run the transaction through an envelope origin, it
// must be applied as self contained.
func (c *transactCall) Dispatch(origin extrinsic.Origin) (weight.PostDispatchInfo, error) {
	return weight.PostDispatchInfo{}, fmt.Errorf("%w: ethereum transactions are self contained only", extrinsic.ErrBadOrigin)
}

// CheckSelfContained recovers the sender from the transaction signature.
func (c *transactCall) CheckSelfContained() (common.Address, error) {
	if err := c.checkChainID(); err != nil {
		return common.Address{}, err
	}

	from, err := types.Sender(c.rt.signer, c.tx)
	if err != nil {
		return common.Address{}, extrinsic.ErrBadProof.WithCause(err)
	}

	return from, nil
}

// ValidateSelfContained checks the transaction against the current state
// for the pool.
func (c *transactCall) ValidateSelfContained(from common.Address, di weight.DispatchInfo, length int) (extrinsic.ValidTransaction, error) {
	chk, err := c.check(from, di, length)
	if err != nil {
		return extrinsic.ValidTransaction{}, err
	}

	account := c.rt.env.DB.Query(chk.sender)
	if c.tx.Nonce() < account.Nonce {
		return extrinsic.ValidTransaction{}, extrinsic.ErrStale.WithCause(fmt.Errorf("nonce %d, account nonce %d", c.tx.Nonce(), account.Nonce))
	}

	v := extrinsic.ValidTransaction{
		Priority:  tipPriority(chk.tipPerGas),
		Provides:  [][]byte{extension.Tag(chk.sender, c.tx.Nonce())},
		Longevity: extension.Longevity,
		Propagate: true,
	}
	if c.tx.Nonce() > account.Nonce {
		v.Requires = [][]byte{extension.Tag(chk.sender, c.tx.Nonce()-1)}
	}

	return v, nil
}

// PreDispatchSelfContained repeats the checks against the block state and
// registers the weight of the transaction with the block.
func (c *transactCall) PreDispatchSelfContained(from common.Address, di weight.DispatchInfo, length int) error {
	chk, err := c.check(from, di, length)
	if err != nil {
		return err
	}

	account := c.rt.env.DB.Query(chk.sender)
	switch {
	case c.tx.Nonce() < account.Nonce:
		return extrinsic.ErrStale.WithCause(fmt.Errorf("nonce %d, account nonce %d", c.tx.Nonce(), account.Nonce))
	case c.tx.Nonce() > account.Nonce:
		return extrinsic.ErrFuture.WithCause(fmt.Errorf("nonce %d, account nonce %d", c.tx.Nonce(), account.Nonce))
	}

	if err := c.rt.env.Meter.Register(di, length); err != nil {
		return extrinsic.ErrExhaustsResources.WithCause(err)
	}

	return nil
}

// ApplySelfContained executes the transaction. The sender pays for the full
// gas limit up front and is refunded what wasn't used. Gas is charged and
// the nonce moves even when execution fails.
func (c *transactCall) ApplySelfContained(from common.Address) (weight.PostDispatchInfo, error) {
	env := c.rt.env
	sender := c.rt.mapper.FromEth(from)

	baseFee := env.Fee.BaseFee()
	tipPerGas, err := effectiveTip(c.tx, baseFee)
	if err != nil {
		return weight.PostDispatchInfo{}, err
	}
	price := addSaturating(baseFee, tipPerGas)

	env.DB.IncrementNonce(sender.Native())

	if err := env.DB.Withdraw(sender.Native(), mulGas(price, c.tx.Gas())); err != nil {
		actual := env.Gas.GasToWeight(c.tx.Gas())
		post := weight.PostDispatchInfo{ActualWeight: &actual, PaysFee: weight.PaysYes}
		return post, &extrinsic.DispatchError{Err: err, PostInfo: post}
	}

	gasUsed, execErr := c.execute(from, sender)
	gasUsed = min(gasUsed, c.tx.Gas())

	if refund := mulGas(price, c.tx.Gas()-gasUsed); !refund.IsZero() {
		env.DB.Deposit(sender.Native(), refund)
	}
	if tip := mulGas(tipPerGas, gasUsed); !tip.IsZero() {
		env.DB.Deposit(env.Author, tip)
	}

	actual := env.Gas.GasToWeight(gasUsed)
	post := weight.PostDispatchInfo{ActualWeight: &actual, PaysFee: weight.PaysYes}

	if execErr != nil {
		c.rt.evHandler("runtime: Transact: hash[%s] from[%s]: ERROR: %s", c.tx.Hash(), sender, execErr)
		return post, &extrinsic.DispatchError{Err: execErr, PostInfo: post}
	}

	c.rt.evHandler("runtime: Transact: hash[%s] from[%s] to[%s] value[%s] gas[%d]", c.tx.Hash(), sender, c.tx.To(), c.tx.Value(), gasUsed)

	return post, nil
}

// execute moves the value or runs the dispatch precompile. It returns the
// gas used.
func (c *transactCall) execute(from common.Address, sender identity.CrossAccountID) (uint64, error) {
	gas := intrinsicGas(c.tx)
	if gas > c.tx.Gas() {
		return c.tx.Gas(), fmt.Errorf("intrinsic gas %d above limit %d", gas, c.tx.Gas())
	}

	to := c.tx.To()
	if to == nil {
		return gas, ErrContractCreation
	}

	value, overflow := uint256.FromBig(c.tx.Value())
	if overflow {
		return gas, errors.New("value overflows 256 bits")
	}

	if *to == dispatch.Address {
		if !value.IsZero() {
			return gas, errors.New("dispatch precompile takes no value")
		}

		remaining := c.tx.Gas() - gas
		ctx := dispatch.NewContext(from, c.tx.Data(), &remaining)
		err := c.rt.precompile.Execute(ctx)

		return gas + ctx.Used(), err
	}

	dest := c.rt.mapper.FromEth(*to)
	if err := c.rt.env.DB.Transfer(sender.Native(), dest.Native(), value); err != nil {
		return gas, err
	}

	return gas, nil
}

// =============================================================================

type ethCheck struct {
	sender    identity.NativeID
	tipPerGas *uint256.Int
}

// check covers what doesn't depend on the nonce: chain id, weight, fee cap
// and balance.
func (c *transactCall) check(from common.Address, di weight.DispatchInfo, length int) (ethCheck, error) {
	env := c.rt.env

	if err := c.checkChainID(); err != nil {
		return ethCheck{}, err
	}

	if err := weight.NewMeter(env.Meter.Limits()).Check(di, length); err != nil {
		return ethCheck{}, extrinsic.ErrExhaustsResources.WithCause(err)
	}

	baseFee := env.Fee.BaseFee()
	feeCap, overflow := uint256.FromBig(c.tx.GasFeeCap())
	if overflow {
		return ethCheck{}, extrinsic.InvalidCustomCode(CustomFeeOverflow)
	}
	if feeCap.Lt(baseFee) {
		return ethCheck{}, extrinsic.InvalidCustomCode(CustomGasPriceTooLow).WithCause(fmt.Errorf("fee cap %s below base fee %s", feeCap, baseFee))
	}

	tipPerGas, err := effectiveTip(c.tx, baseFee)
	if err != nil {
		return ethCheck{}, err
	}

	value, overflow := uint256.FromBig(c.tx.Value())
	if overflow {
		return ethCheck{}, extrinsic.InvalidCustomCode(CustomFeeOverflow)
	}

	sender := c.rt.mapper.FromEth(from).Native()
	cost := addSaturating(mulGas(feeCap, c.tx.Gas()), value)
	if balance := env.DB.Query(sender).Balance; balance.Lt(cost) {
		return ethCheck{}, extrinsic.ErrPayment.WithCause(fmt.Errorf("balance %s, needed %s", balance, cost))
	}

	return ethCheck{sender: sender, tipPerGas: tipPerGas}, nil
}

func (c *transactCall) checkChainID() error {
	if id := c.tx.ChainId(); !id.IsUint64() || id.Uint64() != c.rt.genesis.EthChainID {
		return extrinsic.InvalidCustomCode(CustomInvalidChainID).WithCause(fmt.Errorf("chain id %s, expected %d", id, c.rt.genesis.EthChainID))
	}
	return nil
}

// effectiveTip is what the sender pays the author per gas on top of the base
// fee: the tip cap, limited by what the fee cap leaves after the base fee.
func effectiveTip(tx *types.Transaction, baseFee *uint256.Int) (*uint256.Int, error) {
	feeCap, overflow := uint256.FromBig(tx.GasFeeCap())
	if overflow {
		return nil, extrinsic.InvalidCustomCode(CustomFeeOverflow)
	}
	tipCap, overflow := uint256.FromBig(tx.GasTipCap())
	if overflow {
		return nil, extrinsic.InvalidCustomCode(CustomFeeOverflow)
	}

	if feeCap.Lt(baseFee) {
		return new(uint256.Int), nil
	}

	room := new(uint256.Int).Sub(feeCap, baseFee)
	if tipCap.Lt(room) {
		return tipCap, nil
	}
	return room, nil
}

// intrinsicGas is the gas charged for a plain value transfer and its data.
func intrinsicGas(tx *types.Transaction) uint64 {
	gas := params.TxGas
	for _, b := range tx.Data() {
		switch b {
		case 0:
			gas += params.TxDataZeroGas
		default:
			gas += params.TxDataNonZeroGasEIP2028
		}
	}
	return gas
}

func tipPriority(tip *uint256.Int) uint64 {
	if !tip.IsUint64() {
		return math.MaxUint64
	}
	return tip.Uint64()
}

func mulGas(price *uint256.Int, gas uint64) *uint256.Int {
	z, overflow := new(uint256.Int).MulOverflow(price, uint256.NewInt(gas))
	if overflow {
		return z.SetAllOne()
	}
	return z
}

func addSaturating(x, y *uint256.Int) *uint256.Int {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return z.SetAllOne()
	}
	return z
}
