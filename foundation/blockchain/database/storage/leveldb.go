package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/crossledger/foundation/blockchain/basefee"
	"github.com/ardanlabs/crossledger/foundation/blockchain/database"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key layout.
var (
	prefixBlock   = []byte("b/")
	prefixAccount = []byte("a/")
	keyHead       = []byte("head")
	keyFee        = []byte("basefee")
)

// LevelDB represents the storage implementation for keeping blocks, accounts
// and the fee state in a LevelDB key value store. Every commit is written in
// a single batch. This implements the database.Storage interface.
type LevelDB struct {
	mu sync.Mutex
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}

	return &LevelDB{db: db}, nil
}

// NewMemory constructs a LevelDB database that lives only in memory. It's
// used for tests and throw away nodes.
func NewMemory() (*LevelDB, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}

	return &LevelDB{db: db}, nil
}

// Close closes the database.
func (l *LevelDB) Close() error {
	return l.db.Close()
}

// Write stores the block, the changed accounts, the fee state and the new
// head in one atomic batch.
func (l *LevelDB) Write(commit database.Commit) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	batch := new(leveldb.Batch)

	blockData, err := json.Marshal(commit.Block)
	if err != nil {
		return err
	}
	batch.Put(blockKey(commit.Block.Header.Number), blockData)

	for _, account := range commit.Accounts {
		data, err := json.Marshal(account)
		if err != nil {
			return err
		}
		batch.Put(append(append([]byte{}, prefixAccount...), account.AccountID.Bytes()...), data)
	}

	fee, err := json.Marshal(commit.Fee)
	if err != nil {
		return err
	}
	batch.Put(keyFee, fee)
	batch.Put(keyHead, binary.BigEndian.AppendUint64(nil, commit.Block.Header.Number))

	return l.db.Write(batch, &opt.WriteOptions{Sync: true})
}

// GetBlock returns the block for the specified number.
func (l *LevelDB) GetBlock(num uint64) (database.BlockData, error) {
	var blockData database.BlockData
	if err := l.get(blockKey(num), &blockData); err != nil {
		return database.BlockData{}, err
	}

	return blockData, nil
}

// LatestBlock returns the block at the head of the chain.
func (l *LevelDB) LatestBlock() (database.BlockData, error) {
	head, err := l.db.Get(keyHead, nil)
	if err != nil {
		return database.BlockData{}, notFound(err)
	}

	if len(head) != 8 {
		return database.BlockData{}, fmt.Errorf("corrupted head of length %d", len(head))
	}

	return l.GetBlock(binary.BigEndian.Uint64(head))
}

// Accounts returns every stored account.
func (l *LevelDB) Accounts() ([]database.Account, error) {
	iter := l.db.NewIterator(util.BytesPrefix(prefixAccount), nil)
	defer iter.Release()

	var accounts []database.Account
	for iter.Next() {
		var account database.Account
		if err := json.Unmarshal(iter.Value(), &account); err != nil {
			return nil, fmt.Errorf("decoding account %x: %w", iter.Key(), err)
		}
		accounts = append(accounts, account)
	}

	return accounts, iter.Error()
}

// FeeState returns the stored fee controller state.
func (l *LevelDB) FeeState() (basefee.State, error) {
	var state basefee.State
	if err := l.get(keyFee, &state); err != nil {
		return basefee.State{}, err
	}

	return state, nil
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 1.
func (l *LevelDB) ForEach() database.Iterator {
	return &BlockIterator{get: l.GetBlock}
}

// Reset will clear out everything in the store.
func (l *LevelDB) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	iter := l.db.NewIterator(nil, nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte{}, iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return err
	}

	return l.db.Write(batch, &opt.WriteOptions{Sync: true})
}

func (l *LevelDB) get(key []byte, v any) error {
	data, err := l.db.Get(key, nil)
	if err != nil {
		return notFound(err)
	}

	return json.Unmarshal(data, v)
}

// =============================================================================

func blockKey(num uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, prefixBlock...), num)
}

func notFound(err error) error {
	if errors.Is(err, leveldb.ErrNotFound) {
		return database.ErrNotFound
	}
	return err
}
