// Package state is the core API for the blockchain and implements all the
// business rules and processing. It owns the block execution context: every
// block is built or imported one at a time against a snapshot of the
// account and fee state, and committed all or nothing.
package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/crossledger/foundation/blockchain/basefee"
	"github.com/ardanlabs/crossledger/foundation/blockchain/database"
	"github.com/ardanlabs/crossledger/foundation/blockchain/extension"
	"github.com/ardanlabs/crossledger/foundation/blockchain/extrinsic"
	"github.com/ardanlabs/crossledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ardanlabs/crossledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/crossledger/foundation/blockchain/peer"
	"github.com/ardanlabs/crossledger/foundation/blockchain/runtime"
	"github.com/ardanlabs/crossledger/foundation/blockchain/weight"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus"
)

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for block production, peer updates, and
// transaction sharing.
type Worker interface {
	Shutdown()
	Sync()
	SignalStartBuilding()
	SignalShareTx(data hexutil.Bytes)
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	BeneficiaryID  identity.NativeID
	Host           string
	Storage        database.Storage
	Genesis        genesis.Genesis
	Mapper         identity.Mapper
	SelectStrategy string
	KnownPeers     *peer.PeerSet
	Registerer     prometheus.Registerer
	EvHandler      EventHandler
}

// State manages the blockchain database.
type State struct {
	mu sync.RWMutex

	beneficiaryID identity.NativeID
	host          string
	evHandler     EventHandler
	allowBuilding bool

	knownPeers *peer.PeerSet
	genesis    genesis.Genesis
	mempool    *mempool.Mempool
	db         *database.Database
	fee        *basefee.Controller
	env        *extension.Env
	rt         *runtime.Runtime
	pipeline   *extrinsic.Pipeline[common.Address]

	Worker Worker
}

// New constructs a new blockchain for data management.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.KnownPeers == nil {
		cfg.KnownPeers = peer.NewPeerSet()
	}

	// Access the storage for the blockchain, restoring the latest state or
	// applying the genesis balances.
	db, err := database.New(cfg.Genesis, cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	// The fee state is committed with every block, so a chain in storage
	// carries the fee it finished with.
	feeState, err := db.FeeState()
	switch {
	case errors.Is(err, database.ErrNotFound):
		feeState = cfg.Genesis.FeeState()
	case err != nil:
		return nil, fmt.Errorf("reading fee state: %w", err)
	}

	fee, err := basefee.New(feeState, basefee.Config{
		Threshold: cfg.Genesis.FeeThreshold(),
		Metrics:   basefee.NewMetrics(cfg.Registerer),
		EvHandler: basefee.EventHandler(ev),
	})
	if err != nil {
		return nil, fmt.Errorf("fee controller: %w", err)
	}

	env := extension.Env{
		DB:     db,
		Fee:    fee,
		Meter:  weight.NewMeter(cfg.Genesis.Limits),
		Gas:    weight.FixedGasMapping{PerGas: weight.WeightPerGas},
		Author: cfg.BeneficiaryID,
	}

	// Claimed pairs live in the account state, so every conversion sees the
	// claims of the block being executed.
	mapper := cfg.Mapper
	if mapper.Forward == nil || mapper.Backward == nil {
		mapper = identity.Default
	}

	rt, err := runtime.New(runtime.Config{
		Genesis:   cfg.Genesis,
		Env:       &env,
		Mapper:    mapper.WithClaims(db),
		EvHandler: runtime.EventHandler(ev),
	})
	if err != nil {
		return nil, err
	}

	pipeline, err := extrinsic.New[common.Address](extrinsic.Config{
		Inherents: rt.Inherents(),
		Bare:      extension.NewBare(&env),
		Mapper:    rt.Mapper(),
		Metrics:   extrinsic.NewMetrics(cfg.Registerer),
		EvHandler: extrinsic.EventHandler(ev),
	})
	if err != nil {
		return nil, err
	}

	// Construct a mempool with the specified sort strategy.
	if cfg.SelectStrategy == "" {
		cfg.SelectStrategy = mempool.StrategyPriority
	}
	mempool, err := mempool.NewWithStrategy(cfg.SelectStrategy)
	if err != nil {
		return nil, err
	}

	// Create the State to provide support for managing the blockchain.
	state := State{
		beneficiaryID: cfg.BeneficiaryID,
		host:          cfg.Host,
		evHandler:     ev,
		allowBuilding: true,

		knownPeers: cfg.KnownPeers,
		genesis:    cfg.Genesis,
		mempool:    mempool,
		db:         db,
		fee:        fee,
		env:        &env,
		rt:         rt,
		pipeline:   pipeline,
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Make sure the database file is properly closed.
	defer func() {
		s.db.Close()
	}()

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}

// IsBuildingAllowed identifies if we are allowed to produce blocks.
func (s *State) IsBuildingAllowed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.allowBuilding
}
