package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/crossledger/foundation/blockchain/basefee"
	"github.com/ardanlabs/crossledger/foundation/blockchain/database"
	"github.com/ardanlabs/crossledger/foundation/blockchain/extrinsic"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ardanlabs/crossledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/crossledger/foundation/blockchain/runtime"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// ErrNoTransactions is returned when a block is requested to be created
// and there are not enough transactions.
var ErrNoTransactions = errors.New("no transactions in mempool")

// InvalidBlockError is returned when a block can't be imported. The state is
// left as it was before the block.
type InvalidBlockError struct {
	Number uint64
	Index  int
	Err    error
}

// Error implements the error interface.
func (e *InvalidBlockError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid block %d: %s", e.Number, e.Err)
	}
	return fmt.Sprintf("invalid block %d: extrinsic %d: %s", e.Number, e.Index, e.Err)
}

// Unwrap returns the reason the block was rejected.
func (e *InvalidBlockError) Unwrap() error {
	return e.Err
}

// =============================================================================

// execution is the state a block is executed against and what's needed to
// put it back when the block fails.
type execution struct {
	parent  database.Block
	baseFee *uint256.Int
	db      database.Snapshot
	fee     basefee.State
}

// begin prepares the block execution context. The caller must hold the lock.
func (s *State) begin(author identity.NativeID) execution {
	parent := s.db.LatestBlock()

	exec := execution{
		parent:  parent,
		baseFee: s.fee.BaseFee(),
		db:      s.db.Snapshot(),
		fee:     s.fee.State(),
	}

	s.env.Author = author
	s.env.Meter.Reset()
	s.rt.Initialize(parent.Header.TimeStamp)

	return exec
}

// rollback puts the state back to where it was when the block began. The
// caller must hold the lock.
func (s *State) rollback(exec execution) {
	s.db.Restore(exec.db)
	s.fee.Restore(exec.fee)
	s.env.Meter.Reset()
	s.env.Author = s.beneficiaryID
}

// finalize runs the end of block hooks. The caller must hold the lock.
func (s *State) finalize() error {
	if err := s.rt.Finalize(); err != nil {
		return err
	}

	s.fee.OnFinalize(uint64(s.env.Meter.Total()), uint64(s.env.Meter.Limits().MaxBlock))

	return nil
}

// applyExtrinsic checks and applies one encoded extrinsic. The caller must
// hold the lock.
func (s *State) applyExtrinsic(data []byte) (extrinsic.Outcome, error) {
	xt, err := s.rt.CheckBytes(data)
	if err != nil {
		return extrinsic.Outcome{}, err
	}

	return s.pipeline.Apply(xt, xt.DispatchInfo(), len(data))
}

// =============================================================================

// BuildBlock creates the next block from the timestamp inherent and the best
// transactions in the mempool. Transactions that turn out invalid are dropped
// from the pool; a fatal error discards the whole block.
func (s *State) BuildBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: BuildBlock: BUILDING: check mempool count")

	// Are there enough transactions in the pool.
	if s.mempool.Count() == 0 {
		return database.Block{}, ErrNoTransactions
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exec := s.begin(s.beneficiaryID)

	now := uint64(time.Now().UnixMilli())
	if now <= exec.parent.Header.TimeStamp {
		now = exec.parent.Header.TimeStamp + 1
	}

	inherent, err := timestampInherent(now)
	if err != nil {
		s.rollback(exec)
		return database.Block{}, err
	}

	if _, err := s.applyExtrinsic(inherent); err != nil {
		s.rollback(exec)
		return database.Block{}, fmt.Errorf("timestamp inherent: %w", err)
	}

	extrinsics := []hexutil.Bytes{inherent}
	var included []mempool.Entry

	s.evHandler("state: BuildBlock: BUILDING: apply transactions")

	for _, e := range s.mempool.PickBest(-1) {
		if err := ctx.Err(); err != nil {
			s.rollback(exec)
			return database.Block{}, err
		}

		keep, err := s.tryInclude(e)
		switch {
		case extrinsic.IsFatal(err):
			s.rollback(exec)
			return database.Block{}, err

		case err != nil:
			s.evHandler("state: BuildBlock: BUILDING: tx[%s]: skipped: %s", e.Hash, err)
			if !keep {
				s.mempool.Delete(e.Hash)
			}
			continue
		}

		extrinsics = append(extrinsics, e.Data)
		included = append(included, e)
	}

	if len(included) == 0 {
		s.rollback(exec)
		return database.Block{}, ErrNoTransactions
	}

	s.evHandler("state: BuildBlock: BUILDING: finalize block")

	if err := s.finalize(); err != nil {
		s.rollback(exec)
		return database.Block{}, err
	}

	header := database.BlockHeader{
		Number:        exec.parent.Header.Number + 1,
		PrevBlockHash: exec.parent.Hash(),
		TimeStamp:     now,
		BeneficiaryID: s.beneficiaryID,
		BaseFee:       exec.baseFee,
		WeightUsed:    uint64(s.env.Meter.Total()),
	}
	block := database.NewBlock(header, extrinsics)

	if err := s.db.Commit(block, s.fee.State()); err != nil {
		s.rollback(exec)
		return database.Block{}, err
	}

	for _, e := range included {
		s.mempool.Delete(e.Hash)
	}

	s.completed(ctx, block)

	return block, nil
}

// tryInclude checks the transaction against the block being built and
// applies it. keep reports whether a rejected transaction may still make a
// later block.
func (s *State) tryInclude(e mempool.Entry) (keep bool, err error) {
	xt, err := s.rt.CheckBytes(e.Data)
	if err != nil {
		return false, err
	}

	info := xt.DispatchInfo()
	length := len(e.Data)

	// Validating first keeps extrinsics that would fail the self contained
	// checks out of the block, those failures are fatal once applied.
	v, err := s.pipeline.Validate(extrinsic.SourceInBlock, xt, info, length)
	if err != nil {
		return errors.Is(err, extrinsic.ErrFuture) || errors.Is(err, extrinsic.ErrExhaustsResources), err
	}

	// Against the state of the block being built, anything still required
	// was skipped earlier in this block.
	if len(v.Requires) != 0 {
		return true, extrinsic.ErrFuture.WithCause(errors.New("requires a transaction not in this block"))
	}

	if err := s.env.Meter.Check(info, length); err != nil {
		return true, extrinsic.ErrExhaustsResources.WithCause(err)
	}

	out, err := s.pipeline.Apply(xt, info, length)
	if err != nil {
		return errors.Is(err, extrinsic.ErrFuture) || errors.Is(err, extrinsic.ErrExhaustsResources), err
	}

	if !out.Succeeded() {
		s.evHandler("state: BuildBlock: BUILDING: tx[%s]: included, dispatch failed: %s", e.Hash, out.Err)
	}

	return false, nil
}

// ImportBlock takes a block received from a peer, executes it and if that
// passes, adds the block to the local blockchain. Any invalid extrinsic
// rejects the whole block.
func (s *State) ImportBlock(block database.Block) error {
	s.evHandler("state: ImportBlock: started: prevBlk[%s]: newBlk[%s]: numTrans[%d]", block.Header.PrevBlockHash, block.Hash(), len(block.Extrinsics))
	defer s.evHandler("state: ImportBlock: completed: newBlk[%s]", block.Hash())

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := block.ValidateBlock(s.db.LatestBlock(), s.evHandler); err != nil {
		if errors.Is(err, database.ErrChainForked) {
			return err
		}
		return &InvalidBlockError{Number: block.Header.Number, Index: -1, Err: err}
	}

	exec := s.begin(block.Header.BeneficiaryID)

	invalid := func(index int, err error) error {
		s.rollback(exec)
		return &InvalidBlockError{Number: block.Header.Number, Index: index, Err: err}
	}

	if block.Header.BaseFee == nil || !block.Header.BaseFee.Eq(exec.baseFee) {
		return invalid(-1, fmt.Errorf("base fee %s, expected %s", block.Header.BaseFee, exec.baseFee))
	}

	for i, data := range block.Extrinsics {
		out, err := s.applyExtrinsic(data)
		if err != nil {
			return invalid(i, err)
		}

		if !out.Succeeded() {
			s.evHandler("state: ImportBlock: extrinsic[%d]: dispatch failed: %s", i, out.Err)
		}
	}

	if err := s.finalize(); err != nil {
		return invalid(-1, err)
	}

	if now := s.rt.Now(); now != block.Header.TimeStamp {
		return invalid(-1, fmt.Errorf("timestamp %d, inherent set %d", block.Header.TimeStamp, now))
	}

	if used := uint64(s.env.Meter.Total()); used != block.Header.WeightUsed {
		return invalid(-1, fmt.Errorf("weight used %d, executed %d", block.Header.WeightUsed, used))
	}

	if err := s.db.Commit(block, s.fee.State()); err != nil {
		s.rollback(exec)
		return err
	}
	s.env.Author = s.beneficiaryID

	for _, data := range block.Extrinsics {
		s.mempool.Delete(crypto.Keccak256Hash(data))
	}

	s.completed(context.Background(), block)

	return nil
}

// =============================================================================

// completed runs the pool maintenance for the new block and sends the block
// event. The caller must hold the lock.
func (s *State) completed(ctx context.Context, block database.Block) {
	number := block.Header.Number

	if pruned := s.mempool.Prune(number); pruned > 0 {
		s.evHandler("state: completed: blk[%d]: pruned[%d]", number, pruned)
	}

	removed, err := s.mempool.Revalidate(ctx, func(ctx context.Context, e mempool.Entry) (extrinsic.ValidTransaction, error) {
		xt, err := s.rt.CheckBytes(e.Data)
		if err != nil {
			return extrinsic.ValidTransaction{}, err
		}
		return s.pipeline.Validate(e.Source, xt, xt.DispatchInfo(), len(e.Data))
	})
	switch {
	case err != nil:
		s.evHandler("state: completed: blk[%d]: revalidate: WARNING: %s", number, err)
	case removed > 0:
		s.evHandler("state: completed: blk[%d]: revalidate: removed[%d]", number, removed)
	}

	s.blockEvent(block)
}

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (s *State) blockEvent(block database.Block) {
	blockHeaderJSON, err := json.Marshal(block.Header)
	if err != nil {
		blockHeaderJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	blockTransJSON, err := json.Marshal(block.Extrinsics)
	if err != nil {
		blockTransJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	s.evHandler(`viewer: block: {"hash":%q,"header":%s,"extrinsics":%s}`, block.Hash(), string(blockHeaderJSON), string(blockTransJSON))
}

// timestampInherent encodes the inherent setting the block time.
func timestampInherent(now uint64) ([]byte, error) {
	call, err := runtime.SetTimestamp(now)
	if err != nil {
		return nil, err
	}

	return runtime.NewUnsigned(call).Encode()
}
