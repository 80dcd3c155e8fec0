// Package extension implements the checks that travel with signed and
// general transactions: weight, nonce and fee payment. A bare variant covers
// transactions that carry no extension state.
package extension

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/ardanlabs/crossledger/foundation/blockchain/basefee"
	"github.com/ardanlabs/crossledger/foundation/blockchain/database"
	"github.com/ardanlabs/crossledger/foundation/blockchain/extrinsic"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ardanlabs/crossledger/foundation/blockchain/weight"
	"github.com/holiman/uint256"
)

// Longevity is the number of blocks a validated transaction stays valid in
// the pool.
const Longevity = 64

// Env is the chain state the extension works against. It's owned by the
// block execution context.
type Env struct {
	DB     *database.Database
	Fee    *basefee.Controller
	Meter  *weight.Meter
	Gas    weight.GasMapping
	Author identity.NativeID
}

// Extra is the extension state a transaction carries on the wire.
type Extra struct {
	Nonce uint64
	Tip   *uint256.Int
}

// tip returns the tip, treating a missing one as zero.
func (e Extra) tip() *uint256.Int {
	if e.Tip == nil {
		return new(uint256.Int)
	}
	return e.Tip
}

// =============================================================================

// Extension runs the checks for one transaction.
type Extension struct {
	env   *Env
	extra Extra
}

// New binds the extension state of a transaction to the chain state.
func New(env *Env, extra Extra) *Extension {
	return &Extension{env: env, extra: extra}
}

// Extra returns the extension state.
func (e *Extension) Extra() Extra {
	return e.extra
}

// ValidateOnly checks the transaction against the current state without
// changing anything.
func (e *Extension) ValidateOnly(origin extrinsic.Origin, call extrinsic.Dispatchable, info weight.DispatchInfo, length int) (extrinsic.ValidTransaction, error) {
	if err := checkLimits(e.env.Meter.Limits(), info, length); err != nil {
		return extrinsic.ValidTransaction{}, err
	}

	v := extrinsic.ValidTransaction{
		Longevity: Longevity,
		Propagate: true,
	}

	who, signed := origin.Signer()
	if !signed {
		gv, err := e.authorizeGeneral(call, info)
		if err != nil {
			return extrinsic.ValidTransaction{}, err
		}
		return v.CombineWith(gv), nil
	}
	signer := who.Native()

	account := e.env.DB.Query(signer)
	if e.extra.Nonce < account.Nonce {
		return extrinsic.ValidTransaction{}, extrinsic.ErrStale.WithCause(fmt.Errorf("nonce %d, account nonce %d", e.extra.Nonce, account.Nonce))
	}

	fee, gas := e.env.ComputeFee(info, length)
	total := saturatingAdd(fee, e.extra.tip())
	if account.Balance.Lt(total) {
		return extrinsic.ValidTransaction{}, extrinsic.ErrPayment.WithCause(fmt.Errorf("balance %s, needed %s", account.Balance, total))
	}

	v.Priority = Priority(total, gas)
	v.Provides = [][]byte{Tag(signer, e.extra.Nonce)}
	if e.extra.Nonce > account.Nonce {
		v.Requires = [][]byte{Tag(signer, e.extra.Nonce-1)}
	}

	return v, nil
}

// DispatchTransaction prepares, dispatches and settles the transaction.
func (e *Extension) DispatchTransaction(origin extrinsic.Origin, call extrinsic.Dispatchable, info weight.DispatchInfo, length int) (extrinsic.Outcome, error) {
	if err := e.env.Meter.Check(info, length); err != nil {
		return extrinsic.Outcome{}, extrinsic.ErrExhaustsResources.WithCause(err)
	}

	// Charge the fee up front, the unused part is refunded after dispatch.
	// Without a signer the call must authorize itself against the block
	// state instead.
	var charged *uint256.Int
	who, signed := origin.Signer()
	switch {
	case signed:
		var err error
		if charged, err = e.prepare(who.Native(), info, length); err != nil {
			return extrinsic.Outcome{}, err
		}

	default:
		if _, err := e.authorizeGeneral(call, info); err != nil {
			return extrinsic.Outcome{}, err
		}
	}

	if err := e.env.Meter.Register(info, length); err != nil {
		return extrinsic.Outcome{}, extrinsic.ErrExhaustsResources.WithCause(err)
	}

	post, dispatchErr := call.Dispatch(origin)
	post = extrinsic.PostInfoOf(post, dispatchErr)

	unspent := post.CalcUnspent(info)
	e.env.Meter.Refund(unspent, info.Class)

	if signed {
		e.settle(who.Native(), charged, info, post, unspent)
	}

	return extrinsic.Outcome{PostInfo: post, Err: dispatchErr}, nil
}

// authorizeGeneral accepts a transaction without a signer only when the
// call authorizes itself. Nobody pays for such a transaction, so the call
// must not pay fees and the extension can't carry a tip.
func (e *Extension) authorizeGeneral(call extrinsic.Dispatchable, info weight.DispatchInfo) (extrinsic.ValidTransaction, error) {
	auth, ok := call.(extrinsic.GeneralAuthorizer)
	if !ok {
		return extrinsic.ValidTransaction{}, extrinsic.ErrBadSigner.WithCause(errors.New("call requires a signed origin"))
	}

	if info.PaysFee != weight.PaysNo {
		return extrinsic.ValidTransaction{}, extrinsic.ErrPayment.WithCause(errors.New("unsigned call declares a fee nobody pays"))
	}

	if !e.extra.tip().IsZero() {
		return extrinsic.ValidTransaction{}, extrinsic.ErrPayment.WithCause(errors.New("unsigned transactions can't tip"))
	}

	v, err := auth.AuthorizeGeneral()
	if err != nil {
		return extrinsic.ValidTransaction{}, err
	}

	if len(v.Provides) == 0 {
		return extrinsic.ValidTransaction{}, extrinsic.ErrCall.WithCause(errors.New("authorized call provides no tag"))
	}

	return v, nil
}

// prepare checks the nonce, withdraws the fee and tip and moves the nonce.
// It returns the fee withdrawn, excluding the tip.
func (e *Extension) prepare(signer identity.NativeID, info weight.DispatchInfo, length int) (*uint256.Int, error) {
	account := e.env.DB.Query(signer)

	switch {
	case e.extra.Nonce < account.Nonce:
		return nil, extrinsic.ErrStale.WithCause(fmt.Errorf("nonce %d, account nonce %d", e.extra.Nonce, account.Nonce))
	case e.extra.Nonce > account.Nonce:
		return nil, extrinsic.ErrFuture.WithCause(fmt.Errorf("nonce %d, account nonce %d", e.extra.Nonce, account.Nonce))
	}

	fee, _ := e.env.ComputeFee(info, length)
	if err := e.env.DB.Withdraw(signer, saturatingAdd(fee, e.extra.tip())); err != nil {
		return nil, extrinsic.ErrPayment.WithCause(err)
	}

	e.env.DB.IncrementNonce(signer)

	return fee, nil
}

// settle refunds the fee for unused weight and pays the tip to the block
// author. What remains of the fee is burned.
func (e *Extension) settle(signer identity.NativeID, charged *uint256.Int, info weight.DispatchInfo, post weight.PostDispatchInfo, unspent weight.Weight) {
	refund := new(uint256.Int)
	switch {
	case post.PaysFee == weight.PaysNo:
		refund.Set(charged)
	case !charged.IsZero():
		refund = mulSaturating(e.env.Fee.BaseFee(), e.env.Gas.WeightToGas(unspent))
		if refund.Gt(charged) {
			refund.Set(charged)
		}
	}

	if !refund.IsZero() {
		e.env.DB.Deposit(signer, refund)
	}

	if tip := e.extra.tip(); !tip.IsZero() {
		e.env.DB.Deposit(e.env.Author, tip)
	}
}

// =============================================================================

// Bare is the extension behavior for transactions without extension state.
// It only accounts for weight.
type Bare struct {
	env *Env
}

// NewBare constructs the bare extension.
func NewBare(env *Env) *Bare {
	return &Bare{env: env}
}

// BareValidate checks the transaction fits the block limits.
func (b *Bare) BareValidate(call extrinsic.Dispatchable, info weight.DispatchInfo, length int) (extrinsic.ValidTransaction, error) {
	if err := checkLimits(b.env.Meter.Limits(), info, length); err != nil {
		return extrinsic.ValidTransaction{}, err
	}

	return extrinsic.DefaultValid(), nil
}

// BareValidateAndPrepare registers the transaction's weight with the block.
func (b *Bare) BareValidateAndPrepare(call extrinsic.Dispatchable, info weight.DispatchInfo, length int) error {
	if err := b.env.Meter.Register(info, length); err != nil {
		return extrinsic.ErrExhaustsResources.WithCause(err)
	}

	return nil
}

// BarePostDispatch gives back the weight the dispatch didn't use.
func (b *Bare) BarePostDispatch(info weight.DispatchInfo, post *weight.PostDispatchInfo, length int, dispatchErr error) error {
	b.env.Meter.Refund(post.CalcUnspent(info), info.Class)
	return nil
}

// =============================================================================

// ComputeFee returns the fee for the transaction, the base fee times the gas
// equivalent of its full weight, along with that gas.
func (env *Env) ComputeFee(info weight.DispatchInfo, length int) (*uint256.Int, uint64) {
	gas := env.Gas.WeightToGas(env.Meter.Limits().ExtrinsicWeight(info, length))
	if info.PaysFee == weight.PaysNo {
		return new(uint256.Int), gas
	}

	return mulSaturating(env.Fee.BaseFee(), gas), gas
}

// Priority orders transactions by what they pay per unit of gas.
func Priority(paid *uint256.Int, gas uint64) uint64 {
	perGas := new(uint256.Int).Div(paid, uint256.NewInt(max(gas, 1)))
	if !perGas.IsUint64() {
		return math.MaxUint64
	}
	return perGas.Uint64()
}

// Tag identifies the transaction an account sends with a nonce.
func Tag(signer identity.NativeID, nonce uint64) []byte {
	return binary.BigEndian.AppendUint64(signer.Bytes(), nonce)
}

func checkLimits(limits weight.Limits, info weight.DispatchInfo, length int) error {
	if info.Class == weight.Mandatory {
		return nil
	}

	// An empty meter tells whether the transaction could ever fit a block.
	if err := weight.NewMeter(limits).Check(info, length); err != nil {
		return extrinsic.ErrExhaustsResources.WithCause(err)
	}

	return nil
}

func mulSaturating(x *uint256.Int, y uint64) *uint256.Int {
	z, overflow := new(uint256.Int).MulOverflow(x, uint256.NewInt(y))
	if overflow {
		return z.SetAllOne()
	}
	return z
}

func saturatingAdd(x, y *uint256.Int) *uint256.Int {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return z.SetAllOne()
	}
	return z
}
