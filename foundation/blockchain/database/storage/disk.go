// Package storage provides the implementations for persisting the blockchain.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"sync"

	"github.com/ardanlabs/crossledger/foundation/blockchain/basefee"
	"github.com/ardanlabs/crossledger/foundation/blockchain/database"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
)

// diskState is the account and fee state written next to the blocks.
type diskState struct {
	Latest   uint64             `json:"latest"`
	Accounts []database.Account `json:"accounts"`
	Fee      basefee.State      `json:"fee"`
}

// Disk represents the serialization implementation for reading and storing
// blocks in their own separate files on disk. The account and fee state is
// kept in a single file that's replaced on every commit. This implements the
// database.Storage interface.
type Disk struct {
	mu     sync.Mutex
	dbPath string
}

// NewDisk constructs a Disk value for use.
func NewDisk(dbPath string) (*Disk, error) {
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, err
	}

	return &Disk{dbPath: dbPath}, nil
}

// Close in this implementation has nothing to do since a new file is
// written to disk for each new block and then immediately closed.
func (d *Disk) Close() error {
	return nil
}

// Write takes the specified commit and stores the block in a file labeled
// with the block number, then replaces the state file.
func (d *Disk) Write(commit database.Commit) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Marshal the block for writing to disk in a more human readable format.
	if err := writeJSON(d.getPath(commit.Block.Header.Number), commit.Block); err != nil {
		return err
	}

	state, err := d.readState()
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return err
	}

	// Merge the changed accounts into the stored set.
	accounts := make(map[identity.NativeID]database.Account, len(state.Accounts))
	for _, account := range state.Accounts {
		accounts[account.AccountID] = account
	}
	for _, account := range commit.Accounts {
		accounts[account.AccountID] = account
	}

	state = diskState{
		Latest:   commit.Block.Header.Number,
		Accounts: database.SortedAccounts(accounts),
		Fee:      commit.Fee,
	}

	// The rename makes the block visible as the head only once the state
	// matching it is complete on disk.
	tmp := d.statePath() + ".tmp"
	if err := writeJSON(tmp, state); err != nil {
		return err
	}

	return os.Rename(tmp, d.statePath())
}

// GetBlock searches the blockchain on disk to locate and return the
// contents of the specified block by number.
func (d *Disk) GetBlock(num uint64) (database.BlockData, error) {

	// Open the block file for the specified number.
	f, err := os.OpenFile(d.getPath(num), os.O_RDONLY, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return database.BlockData{}, database.ErrNotFound
		}
		return database.BlockData{}, err
	}
	defer f.Close()

	// Decode the contents of the block.
	var blockData database.BlockData
	if err := json.NewDecoder(f).Decode(&blockData); err != nil {
		return database.BlockData{}, err
	}

	return blockData, nil
}

// LatestBlock returns the block at the head of the chain.
func (d *Disk) LatestBlock() (database.BlockData, error) {
	d.mu.Lock()
	state, err := d.readState()
	d.mu.Unlock()

	if err != nil {
		return database.BlockData{}, err
	}

	return d.GetBlock(state.Latest)
}

// Accounts returns every stored account.
func (d *Disk) Accounts() ([]database.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, err := d.readState()
	if err != nil {
		return nil, err
	}

	return state.Accounts, nil
}

// FeeState returns the stored fee controller state.
func (d *Disk) FeeState() (basefee.State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, err := d.readState()
	if err != nil {
		return basefee.State{}, err
	}

	return state.Fee, nil
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 1.
func (d *Disk) ForEach() database.Iterator {
	return &BlockIterator{get: d.GetBlock}
}

// Reset will clear out the blockchain on disk.
func (d *Disk) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.RemoveAll(d.dbPath); err != nil {
		return err
	}

	return os.MkdirAll(d.dbPath, 0755)
}

// getPath forms the path to the specified block.
func (d *Disk) getPath(blockNum uint64) string {
	name := strconv.FormatUint(blockNum, 10)
	return path.Join(d.dbPath, fmt.Sprintf("%s.json", name))
}

// statePath forms the path to the state file.
func (d *Disk) statePath() string {
	return path.Join(d.dbPath, "state.json")
}

func (d *Disk) readState() (diskState, error) {
	data, err := os.ReadFile(d.statePath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return diskState{}, database.ErrNotFound
		}
		return diskState{}, err
	}

	var state diskState
	if err := json.Unmarshal(data, &state); err != nil {
		return diskState{}, err
	}

	return state, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// =============================================================================

// BlockIterator represents the iteration implementation for walking
// through and reading blocks in storage. This implements the database
// Iterator interface.
type BlockIterator struct {
	get     func(num uint64) (database.BlockData, error) // Access to the storage.
	current uint64                                       // Current block number being iterated over.
	eoc     bool                                         // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from storage.
func (bi *BlockIterator) Next() (database.BlockData, error) {
	if bi.eoc {
		return database.BlockData{}, errors.New("end of chain")
	}

	bi.current++
	blockData, err := bi.get(bi.current)
	if errors.Is(err, database.ErrNotFound) {
		bi.eoc = true
	}

	return blockData, err
}

// Done returns the end of chain value.
func (bi *BlockIterator) Done() bool {
	return bi.eoc
}
