// Package mempool maintains the mempool for the blockchain.
package mempool

import (
	"context"
	"errors"
	"fmt"
	goruntime "runtime"
	"sort"
	"sync"

	"github.com/ardanlabs/crossledger/foundation/blockchain/extrinsic"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/sync/errgroup"
)

// Set of errors returned when a transaction can't enter the pool.
var (
	ErrAlreadyImported = errors.New("transaction already in the pool")
	ErrTooLowPriority  = errors.New("a transaction providing the same tag has a higher priority")
)

// Entry is a transaction in the pool along with the validity it was admitted
// under.
type Entry struct {
	Hash     common.Hash                 `json:"hash"`
	Data     hexutil.Bytes               `json:"data"`
	Kind     extrinsic.Kind              `json:"kind"`
	Source   extrinsic.TransactionSource `json:"source"`
	Validity extrinsic.ValidTransaction  `json:"validity"`
	Block    uint64                      `json:"block"`
	seq      uint64
}

// NewEntry constructs an entry for the encoded transaction, admitted while
// the chain was at the specified block.
func NewEntry(data []byte, kind extrinsic.Kind, source extrinsic.TransactionSource, v extrinsic.ValidTransaction, block uint64) Entry {
	return Entry{
		Hash:     crypto.Keccak256Hash(data),
		Data:     data,
		Kind:     kind,
		Source:   source,
		Validity: v,
		Block:    block,
	}
}

// expired reports whether the entry outlived its longevity at the block.
func (e Entry) expired(block uint64) bool {
	end := e.Block + e.Validity.Longevity
	if end < e.Block {
		return false
	}
	return block >= end
}

// =============================================================================

// Mempool represents a cache of transactions keyed by hash with a second
// index on the tags they provide.
type Mempool struct {
	mu       sync.RWMutex
	pool     map[common.Hash]Entry
	provides map[string]common.Hash
	seq      uint64
	selectFn selectFunc
}

// New constructs a new mempool using the default sort strategy.
func New() (*Mempool, error) {
	return NewWithStrategy(StrategyPriority)
}

// NewWithStrategy constructs a new mempool with specified sort strategy.
func NewWithStrategy(strategy string) (*Mempool, error) {
	selectFn, err := retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[common.Hash]Entry),
		provides: make(map[string]common.Hash),
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds a transaction to the mempool. A transaction providing a tag
// that's already provided replaces the existing one only when its priority
// is higher.
func (mp *Mempool) Upsert(e Entry) (int, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[e.Hash]; exists {
		return 0, ErrAlreadyImported
	}

	replaced := make(map[common.Hash]struct{})
	for _, tag := range e.Validity.Provides {
		hash, exists := mp.provides[string(tag)]
		if !exists {
			continue
		}

		if mp.pool[hash].Validity.Priority >= e.Validity.Priority {
			return 0, fmt.Errorf("%w: tag %x", ErrTooLowPriority, tag)
		}
		replaced[hash] = struct{}{}
	}

	for hash := range replaced {
		mp.remove(hash)
	}

	mp.seq++
	e.seq = mp.seq

	mp.pool[e.Hash] = e
	for _, tag := range e.Validity.Provides {
		mp.provides[string(tag)] = e.Hash
	}

	return len(mp.pool), nil
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(hash common.Hash) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.remove(hash)
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[common.Hash]Entry)
	mp.provides = make(map[string]common.Hash)
}

// Prune removes the transactions whose longevity ran out at the block.
func (mp *Mempool) Prune(block uint64) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var pruned int
	for hash, e := range mp.pool {
		if e.expired(block) {
			mp.remove(hash)
			pruned++
		}
	}

	return pruned
}

// Copy returns all the transactions in the pool ordered by priority, the
// oldest first for equal priorities.
func (mp *Mempool) Copy() []Entry {
	mp.mu.RLock()
	entries := mp.entries()
	mp.mu.RUnlock()

	sortByPriority(entries)
	return entries
}

// PickBest uses the configured sort strategy to return the next set of
// transactions for the next block. Pass -1 for all the ready transactions.
func (mp *Mempool) PickBest(howMany int) []Entry {
	mp.mu.RLock()
	entries := mp.entries()
	mp.mu.RUnlock()

	if howMany == -1 {
		howMany = len(entries)
	}

	return mp.selectFn(entries, howMany)
}

// RevalidateFunc decides on a transaction again against the latest state.
type RevalidateFunc func(ctx context.Context, e Entry) (extrinsic.ValidTransaction, error)

// Revalidate runs fn over every transaction in the pool in parallel. The
// transactions it rejects are removed, the rest keep their new validity. It
// returns the number of transactions removed.
func (mp *Mempool) Revalidate(ctx context.Context, fn RevalidateFunc) (int, error) {
	mp.mu.RLock()
	entries := mp.entries()
	mp.mu.RUnlock()

	type result struct {
		validity extrinsic.ValidTransaction
		err      error
	}
	results := make([]result, len(entries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(goruntime.NumCPU())

	for i, e := range entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			v, err := fn(ctx, e)
			results[i] = result{validity: v, err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	var removed int
	for i, e := range entries {
		current, exists := mp.pool[e.Hash]
		if !exists {
			continue
		}

		if results[i].err != nil {
			mp.remove(e.Hash)
			removed++
			continue
		}

		current.Validity = results[i].validity
		mp.pool[e.Hash] = current
	}

	return removed, nil
}

// =============================================================================

// entries returns the pool as a slice. The caller must hold the lock.
func (mp *Mempool) entries() []Entry {
	entries := make([]Entry, 0, len(mp.pool))
	for _, e := range mp.pool {
		entries = append(entries, e)
	}
	return entries
}

// remove drops the transaction and the tags it provides. The caller must
// hold the lock.
func (mp *Mempool) remove(hash common.Hash) {
	e, exists := mp.pool[hash]
	if !exists {
		return
	}

	for _, tag := range e.Validity.Provides {
		if mp.provides[string(tag)] == hash {
			delete(mp.provides, string(tag))
		}
	}

	delete(mp.pool, hash)
}

func sortByPriority(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Validity.Priority != entries[j].Validity.Priority {
			return entries[i].Validity.Priority > entries[j].Validity.Priority
		}
		return entries[i].seq < entries[j].seq
	})
}
