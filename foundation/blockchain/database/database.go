// Package database handles all the lower level support for maintaining the
// blockchain in storage and maintaining an in memory database of account
// information.
package database

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/crossledger/foundation/blockchain/basefee"
	"github.com/ardanlabs/crossledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrNotFound is returned by storage when a value doesn't exist.
var ErrNotFound = errors.New("not found")

// Commit is everything written to storage for one block. It's applied
// atomically by the storage implementation.
type Commit struct {
	Block    BlockData
	Accounts []Account
	Fee      basefee.State
}

// Storage interface represents the behavior required to be implemented by any
// package providing support for storing and reading the blockchain.
type Storage interface {
	Write(commit Commit) error
	GetBlock(num uint64) (BlockData, error)
	LatestBlock() (BlockData, error)
	Accounts() ([]Account, error)
	FeeState() (basefee.State, error)
	ForEach() Iterator
	Close() error
	Reset() error
}

// Iterator interface represents the behavior required to be implemented by any
// package providing support to iterate over the blocks.
type Iterator interface {
	Next() (BlockData, error)
	Done() bool
}

// =============================================================================

// DatabaseIterator provides support for iterating over the blocks in storage.
type DatabaseIterator struct {
	iterator Iterator
}

// Next retrieves the next block from storage.
func (di *DatabaseIterator) Next() (Block, error) {
	blockData, err := di.iterator.Next()
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData)
}

// Done returns the end of chain value.
func (di *DatabaseIterator) Done() bool {
	return di.iterator.Done()
}

// =============================================================================

// Snapshot is a point in time copy of the account state.
type Snapshot struct {
	accounts map[identity.NativeID]Account
	dirty    map[identity.NativeID]struct{}
	claims   map[common.Address]identity.NativeID
}

// Database manages data related to accounts who have transacted on the blockchain.
type Database struct {
	mu sync.RWMutex

	genesis     genesis.Genesis
	latestBlock Block
	accounts    map[identity.NativeID]Account
	dirty       map[identity.NativeID]struct{}
	claims      map[common.Address]identity.NativeID

	storage Storage
}

// New constructs a new database and applies account genesis information. When
// storage already holds a chain, the accounts and latest block are restored
// from it instead.
func New(genesis genesis.Genesis, storage Storage, evHandler func(v string, args ...any)) (*Database, error) {
	db := Database{
		genesis:  genesis,
		accounts: make(map[identity.NativeID]Account),
		dirty:    make(map[identity.NativeID]struct{}),
		claims:   make(map[common.Address]identity.NativeID),
		storage:  storage,
	}

	blockData, err := storage.LatestBlock()
	switch {
	case errors.Is(err, ErrNotFound):
		evHandler("database: New: no chain in storage, applying genesis")
		if err := db.applyGenesis(); err != nil {
			return nil, err
		}
		return &db, nil

	case err != nil:
		return nil, fmt.Errorf("reading latest block: %w", err)
	}

	latestBlock, err := ToBlock(blockData)
	if err != nil {
		return nil, err
	}

	accounts, err := storage.Accounts()
	if err != nil {
		return nil, fmt.Errorf("reading accounts: %w", err)
	}

	for _, account := range accounts {
		db.accounts[account.AccountID] = account.copy()
		if account.Linked != nil {
			db.claims[*account.Linked] = account.AccountID
		}
	}
	db.latestBlock = latestBlock

	evHandler("database: New: restored chain: blk[%d] accounts[%d]", latestBlock.Header.Number, len(accounts))

	return &db, nil
}

// applyGenesis loads the genesis balances.
func (db *Database) applyGenesis() error {
	for accountStr, balance := range db.genesis.Balances {
		accountID, err := genesis.ParseAccount(accountStr)
		if err != nil {
			return err
		}

		db.accounts[accountID] = newAccount(accountID, balance)
		db.dirty[accountID] = struct{}{}
	}

	return nil
}

// Close closes the open blocks database.
func (db *Database) Close() error {
	return db.storage.Close()
}

// Reset re-initalizes the database back to the genesis state.
func (db *Database) Reset() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.storage.Reset(); err != nil {
		return err
	}

	db.latestBlock = Block{}
	db.accounts = make(map[identity.NativeID]Account)
	db.dirty = make(map[identity.NativeID]struct{})
	db.claims = make(map[common.Address]identity.NativeID)

	return db.applyGenesis()
}

// Genesis returns the genesis information the database was started with.
func (db *Database) Genesis() genesis.Genesis {
	return db.genesis
}

// =============================================================================

// Query returns the account. An unknown account is returned with a zero
// balance and nonce.
func (db *Database) Query(accountID identity.NativeID) Account {
	db.mu.RLock()
	defer db.mu.RUnlock()

	account, exists := db.accounts[accountID]
	if !exists {
		return newAccount(accountID, nil)
	}

	return account.copy()
}

// CopyAccounts makes a copy of the current accounts in the database.
func (db *Database) CopyAccounts() map[identity.NativeID]Account {
	db.mu.RLock()
	defer db.mu.RUnlock()

	accounts := make(map[identity.NativeID]Account, len(db.accounts))
	for accountID, account := range db.accounts {
		accounts[accountID] = account.copy()
	}
	return accounts
}

// Deposit credits the account, saturating at the maximum balance.
func (db *Database) Deposit(accountID identity.NativeID, amount *uint256.Int) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.deposit(accountID, amount)
}

// Withdraw debits the account.
func (db *Database) Withdraw(accountID identity.NativeID, amount *uint256.Int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.withdraw(accountID, amount)
}

// Transfer moves value between two accounts.
func (db *Database) Transfer(from identity.NativeID, to identity.NativeID, value *uint256.Int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.withdraw(from, value); err != nil {
		return err
	}
	db.deposit(to, value)

	return nil
}

// IncrementNonce moves the account to its next nonce.
func (db *Database) IncrementNonce(accountID identity.NativeID) {
	db.mu.Lock()
	defer db.mu.Unlock()

	account := db.account(accountID)
	account.Nonce++

	db.accounts[accountID] = account
	db.dirty[accountID] = struct{}{}
}

// Link records that the native account claimed the ethereum address. From
// then on the address resolves to the account instead of its derived one.
func (db *Database) Link(accountID identity.NativeID, addr common.Address) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if owner, exists := db.claims[addr]; exists {
		return fmt.Errorf("%w: address %s claimed by %s", ErrAlreadyLinked, addr, owner)
	}

	account := db.account(accountID)
	if account.Linked != nil {
		return fmt.Errorf("%w: account %s linked to %s", ErrAlreadyLinked, accountID, *account.Linked)
	}
	account.Linked = &addr

	db.accounts[accountID] = account
	db.dirty[accountID] = struct{}{}
	db.claims[addr] = accountID

	return nil
}

// ClaimedNative returns the native account that claimed the address.
func (db *Database) ClaimedNative(addr common.Address) (identity.NativeID, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	accountID, exists := db.claims[addr]
	return accountID, exists
}

// ClaimedEth returns the address the native account claimed.
func (db *Database) ClaimedEth(accountID identity.NativeID) (common.Address, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	account, exists := db.accounts[accountID]
	if !exists || account.Linked == nil {
		return common.Address{}, false
	}
	return *account.Linked, true
}

func (db *Database) account(accountID identity.NativeID) Account {
	account, exists := db.accounts[accountID]
	if !exists {
		return newAccount(accountID, nil)
	}
	return account
}

func (db *Database) deposit(accountID identity.NativeID, amount *uint256.Int) {
	account := db.account(accountID)

	balance, overflow := new(uint256.Int).AddOverflow(account.Balance, amount)
	if overflow {
		balance.SetAllOne()
	}
	account.Balance = balance

	db.accounts[accountID] = account
	db.dirty[accountID] = struct{}{}
}

func (db *Database) withdraw(accountID identity.NativeID, amount *uint256.Int) error {
	account := db.account(accountID)

	if account.Balance.Lt(amount) {
		return fmt.Errorf("%w: account %s, balance %s, needed %s", ErrInsufficientBalance, accountID, account.Balance, amount)
	}
	account.Balance = new(uint256.Int).Sub(account.Balance, amount)

	db.accounts[accountID] = account
	db.dirty[accountID] = struct{}{}

	return nil
}

// =============================================================================

// Snapshot captures the account state so a failed block can be rolled back.
func (db *Database) Snapshot() Snapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()

	snap := Snapshot{
		accounts: make(map[identity.NativeID]Account, len(db.accounts)),
		dirty:    make(map[identity.NativeID]struct{}, len(db.dirty)),
		claims:   make(map[common.Address]identity.NativeID, len(db.claims)),
	}
	for accountID, account := range db.accounts {
		snap.accounts[accountID] = account.copy()
	}
	for accountID := range db.dirty {
		snap.dirty[accountID] = struct{}{}
	}
	for addr, accountID := range db.claims {
		snap.claims[addr] = accountID
	}

	return snap
}

// Restore puts the account state back to the snapshot.
func (db *Database) Restore(snap Snapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.accounts = make(map[identity.NativeID]Account, len(snap.accounts))
	for accountID, account := range snap.accounts {
		db.accounts[accountID] = account.copy()
	}

	db.dirty = make(map[identity.NativeID]struct{}, len(snap.dirty))
	for accountID := range snap.dirty {
		db.dirty[accountID] = struct{}{}
	}

	db.claims = make(map[common.Address]identity.NativeID, len(snap.claims))
	for addr, accountID := range snap.claims {
		db.claims[addr] = accountID
	}
}

// Commit writes the block, every account changed since the last commit and
// the fee state to storage, then makes the block the latest block.
func (db *Database) Commit(block Block, fee basefee.State) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	changed := make(map[identity.NativeID]Account, len(db.dirty))
	for accountID := range db.dirty {
		changed[accountID] = db.accounts[accountID]
	}

	commit := Commit{
		Block:    NewBlockData(block),
		Accounts: SortedAccounts(changed),
		Fee:      fee.Copy(),
	}

	if err := db.storage.Write(commit); err != nil {
		return fmt.Errorf("writing block %d: %w", block.Header.Number, err)
	}

	db.dirty = make(map[identity.NativeID]struct{})
	db.latestBlock = block

	return nil
}

// FeeState returns the fee controller state stored with the latest block.
func (db *Database) FeeState() (basefee.State, error) {
	return db.storage.FeeState()
}

// =============================================================================

// LatestBlock returns the latest block.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 1.
func (db *Database) ForEach() DatabaseIterator {
	return DatabaseIterator{iterator: db.storage.ForEach()}
}

// GetBlock searches the blockchain in storage to locate and return the
// contents of the specified block by number.
func (db *Database) GetBlock(num uint64) (Block, error) {
	blockData, err := db.storage.GetBlock(num)
	if err != nil {
		return Block{}, err
	}
	return ToBlock(blockData)
}
