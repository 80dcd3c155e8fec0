// Package runtime routes decoded calls to the state they change: balances,
// the fee controller, sudo, the timestamp inherent and ethereum transactions.
// It also checks the signature of the extrinsic envelope.
package runtime

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ardanlabs/crossledger/foundation/blockchain/dispatch"
	"github.com/ardanlabs/crossledger/foundation/blockchain/extension"
	"github.com/ardanlabs/crossledger/foundation/blockchain/extrinsic"
	"github.com/ardanlabs/crossledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// ErrTimestampMissing is returned when a block finishes without its
// timestamp inherent.
var ErrTimestampMissing = errors.New("timestamp inherent missing")

// EventHandler defines a function that is called when events occur in the
// processing of calls.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to construct the runtime.
type Config struct {
	Genesis   genesis.Genesis
	Env       *extension.Env
	Mapper    identity.Mapper
	EvHandler EventHandler
}

// Runtime decodes and executes calls against the chain state held by the
// extension environment.
type Runtime struct {
	genesis     genesis.Genesis
	genesisHash common.Hash
	env         *extension.Env
	mapper      identity.Mapper
	sudo        identity.NativeID
	signer      types.Signer
	precompile  *dispatch.Precompile
	evHandler   EventHandler

	mu           sync.RWMutex
	parentTime   uint64
	now          uint64
	timestampSet bool
}

// New constructs a runtime.
func New(cfg Config) (*Runtime, error) {
	if cfg.Env == nil {
		return nil, errors.New("extension environment is required")
	}
	if cfg.Mapper.Forward == nil || cfg.Mapper.Backward == nil {
		cfg.Mapper = identity.Default
	}

	sudo, err := genesis.ParseAccount(cfg.Genesis.Sudo)
	if err != nil {
		return nil, fmt.Errorf("sudo: %w", err)
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	rt := Runtime{
		genesis:     cfg.Genesis,
		genesisHash: cfg.Genesis.Hash(),
		env:         cfg.Env,
		mapper:      cfg.Mapper,
		sudo:        sudo,
		signer:      types.LatestSignerForChainID(new(big.Int).SetUint64(cfg.Genesis.EthChainID)),
		evHandler:   ev,
	}

	rt.precompile, err = dispatch.New(dispatch.Config{
		Decode:    rt.decodeDispatchable,
		Gas:       cfg.Env.Gas,
		Mapper:    cfg.Mapper,
		EvHandler: dispatch.EventHandler(ev),
	})
	if err != nil {
		return nil, err
	}

	return &rt, nil
}

// Env returns the chain state the runtime executes against.
func (rt *Runtime) Env() *extension.Env {
	return rt.env
}

// Mapper returns the identity mapping used for every conversion.
func (rt *Runtime) Mapper() identity.Mapper {
	return rt.mapper
}

// GenesisHash returns the hash every native signature commits to.
func (rt *Runtime) GenesisHash() common.Hash {
	return rt.genesisHash
}

// EthSigner returns the signer ethereum transactions are checked with.
func (rt *Runtime) EthSigner() types.Signer {
	return rt.signer
}

// =============================================================================

// Initialize prepares the per block state before the first extrinsic of a
// block is applied.
func (rt *Runtime) Initialize(parentTime uint64) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.parentTime = parentTime
	rt.now = 0
	rt.timestampSet = false
}

// Finalize checks the block carried everything mandatory.
func (rt *Runtime) Finalize() error {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	if !rt.timestampSet {
		return ErrTimestampMissing
	}

	return nil
}

// Now returns the timestamp set for the current block, zero if not set yet.
func (rt *Runtime) Now() uint64 {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	return rt.now
}

// =============================================================================

// Decode binds a raw call to the runtime so it can be dispatched.
func (rt *Runtime) Decode(raw RawCall) (Call, error) {
	switch raw.ID {
	case CallTransfer:
		var args TransferArgs
		if err := rlp.DecodeBytes(raw.Args, &args); err != nil {
			return nil, fmt.Errorf("%s: %w", raw.ID, err)
		}
		if args.Value == nil {
			return nil, fmt.Errorf("%s: value is required", raw.ID)
		}
		dest, err := rt.mapper.FromRepr(args.Dest)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", raw.ID, err)
		}
		return &transferCall{rt: rt, raw: raw, dest: dest, value: args.Value}, nil

	case CallSetBaseFee, CallSetIsActive, CallSetElasticity:
		return rt.decodeFeeAdmin(raw)

	case CallSudo:
		var args SudoArgs
		if err := rlp.DecodeBytes(raw.Args, &args); err != nil {
			return nil, fmt.Errorf("%s: %w", raw.ID, err)
		}
		if args.Call.ID == CallSudo {
			return nil, fmt.Errorf("%s: nested sudo", raw.ID)
		}
		inner, err := rt.Decode(args.Call)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", raw.ID, err)
		}
		return &sudoCall{rt: rt, raw: raw, inner: inner}, nil

	case CallSetTimestamp:
		var args SetTimestampArgs
		if err := rlp.DecodeBytes(raw.Args, &args); err != nil {
			return nil, fmt.Errorf("%s: %w", raw.ID, err)
		}
		return &timestampCall{rt: rt, raw: raw, now: args.Now}, nil

	case CallTransact:
		var args TransactArgs
		if err := rlp.DecodeBytes(raw.Args, &args); err != nil {
			return nil, fmt.Errorf("%s: %w", raw.ID, err)
		}
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(args.Tx); err != nil {
			return nil, fmt.Errorf("%s: %w", raw.ID, err)
		}
		return &transactCall{rt: rt, raw: raw, tx: tx}, nil

	case CallClaimEth:
		var args ClaimEthArgs
		if err := rlp.DecodeBytes(raw.Args, &args); err != nil {
			return nil, fmt.Errorf("%s: %w", raw.ID, err)
		}
		return &claimCall{rt: rt, raw: raw, args: args}, nil
	}

	return nil, fmt.Errorf("unknown call %s", raw.ID)
}

// DecodeBytes decodes an RLP encoded call and binds it to the runtime.
func (rt *Runtime) DecodeBytes(data []byte) (Call, error) {
	raw, err := DecodeCall(data)
	if err != nil {
		return nil, err
	}
	return rt.Decode(raw)
}

func (rt *Runtime) decodeDispatchable(input []byte) (extrinsic.Dispatchable, error) {
	call, err := rt.DecodeBytes(input)
	if err != nil {
		return nil, err
	}
	return call, nil
}

// =============================================================================

// Inherents returns the validator for bare extrinsics.
func (rt *Runtime) Inherents() extrinsic.InherentValidator {
	return inherents{rt: rt}
}

type inherents struct {
	rt *Runtime
}

// ValidateUnsigned only accepts the timestamp inherent, and only from a
// block.
func (in inherents) ValidateUnsigned(source extrinsic.TransactionSource, call extrinsic.Dispatchable) (extrinsic.ValidTransaction, error) {
	ts, ok := call.(*timestampCall)
	if !ok {
		return extrinsic.ValidTransaction{}, extrinsic.ErrNoUnsignedValidator
	}

	if source != extrinsic.SourceInBlock {
		return extrinsic.ValidTransaction{}, extrinsic.ErrCall.WithCause(fmt.Errorf("%s can't come from source %s", ts.raw.ID, source))
	}

	if err := in.rt.checkTimestamp(ts.now); err != nil {
		return extrinsic.ValidTransaction{}, err
	}

	return extrinsic.ValidTransaction{Longevity: 1}, nil
}

// PreDispatch checks the inherent against the state of the block being
// built.
func (in inherents) PreDispatch(call extrinsic.Dispatchable) error {
	ts, ok := call.(*timestampCall)
	if !ok {
		return extrinsic.ErrNoUnsignedValidator
	}

	in.rt.mu.RLock()
	set := in.rt.timestampSet
	in.rt.mu.RUnlock()

	if set {
		return extrinsic.ErrBadMandatory.WithCause(errors.New("timestamp already set in this block"))
	}

	return in.rt.checkTimestamp(ts.now)
}

func (rt *Runtime) checkTimestamp(now uint64) error {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	if now <= rt.parentTime {
		return extrinsic.ErrCall.WithCause(fmt.Errorf("timestamp %d not after parent %d", now, rt.parentTime))
	}

	return nil
}
