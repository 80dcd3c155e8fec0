// Package dispatch lets ethereum transactions execute runtime calls. The
// input is an encoded call, dispatched as the native account the caller
// maps to and charged in gas.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/crossledger/foundation/blockchain/extrinsic"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ardanlabs/crossledger/foundation/blockchain/weight"
	"github.com/ethereum/go-ethereum/common"
)

// Address is where ethereum transactions reach the precompile.
var Address = common.BytesToAddress([]byte{0x04, 0x01})

// Set of errors the precompile exits with.
var (
	ErrDecodeFailed   = errors.New("decode failed")
	ErrInvalidCall    = errors.New("invalid call")
	ErrOutOfGas       = errors.New("out of gas")
	ErrDispatchFailed = errors.New("dispatch execution failed")
)

// Decoder turns the input of the precompile into a call.
type Decoder func(input []byte) (extrinsic.Dispatchable, error)

// EventHandler defines a function that is called when events occur in the
// precompile.
type EventHandler func(v string, args ...any)

// Handle is the execution context of one precompile invocation.
type Handle interface {
	Input() []byte
	Caller() common.Address
	GasLimit() (uint64, bool)
	RecordCost(gas uint64) error
}

// Config represents the configuration required to construct the precompile.
type Config struct {
	Decode    Decoder
	Gas       weight.GasMapping
	Mapper    identity.Mapper
	EvHandler EventHandler
}

// Precompile executes runtime calls on behalf of ethereum callers.
type Precompile struct {
	decode    Decoder
	gas       weight.GasMapping
	mapper    identity.Mapper
	evHandler EventHandler
}

// New constructs the precompile.
func New(cfg Config) (*Precompile, error) {
	if cfg.Decode == nil {
		return nil, errors.New("decoder is required")
	}
	if cfg.Gas == nil {
		cfg.Gas = weight.FixedGasMapping{PerGas: weight.WeightPerGas}
	}
	if cfg.Mapper.Forward == nil || cfg.Mapper.Backward == nil {
		cfg.Mapper = identity.Default
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	p := Precompile{
		decode:    cfg.Decode,
		gas:       cfg.Gas,
		mapper:    cfg.Mapper,
		evHandler: ev,
	}

	return &p, nil
}

// Execute decodes the input, checks the call may be run from an ethereum
// context, dispatches it as the caller and records its cost.
func (p *Precompile) Execute(h Handle) error {
	call, err := p.decode(h.Input())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}

	info := call.DispatchInfo()
	if info.PaysFee != weight.PaysYes || info.Class != weight.Normal {
		return ErrInvalidCall
	}

	if limit, ok := h.GasLimit(); ok {
		if info.Weight >= p.gas.GasToWeight(limit) {
			return ErrOutOfGas
		}
	}

	who := p.mapper.FromEth(h.Caller())

	post, err := call.Dispatch(extrinsic.SignedOrigin(who))
	if err != nil {
		p.evHandler("dispatch: Execute: caller[%s]: ERROR: %s", who, err)
		return fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}

	cost := p.gas.WeightToGas(post.CalcActualWeight(info))
	if err := h.RecordCost(cost); err != nil {
		return err
	}

	p.evHandler("dispatch: Execute: caller[%s] gas[%d]", who, cost)

	return nil
}

// =============================================================================

// Context is a Handle backed by plain values.
type Context struct {
	input  []byte
	caller common.Address
	limit  *uint64
	used   uint64
}

// NewContext constructs a context. A nil limit means the caller didn't set
// one.
func NewContext(caller common.Address, input []byte, limit *uint64) *Context {
	return &Context{input: input, caller: caller, limit: limit}
}

// Input implements the Handle interface.
func (c *Context) Input() []byte {
	return c.input
}

// Caller implements the Handle interface.
func (c *Context) Caller() common.Address {
	return c.caller
}

// GasLimit implements the Handle interface.
func (c *Context) GasLimit() (uint64, bool) {
	if c.limit == nil {
		return 0, false
	}
	return *c.limit, true
}

// RecordCost implements the Handle interface.
func (c *Context) RecordCost(gas uint64) error {
	used := c.used + gas
	if used < c.used || (c.limit != nil && used > *c.limit) {
		return ErrOutOfGas
	}

	c.used = used
	return nil
}

// Used returns the gas recorded so far.
func (c *Context) Used() uint64 {
	return c.used
}
