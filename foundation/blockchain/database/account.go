package database

import (
	"errors"
	"slices"

	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Set of account errors.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyLinked       = errors.New("already linked")
)

// Account represents information stored in the database for an individual account.
type Account struct {
	AccountID identity.NativeID `json:"account"`
	Nonce     uint64            `json:"nonce"`
	Balance   *uint256.Int      `json:"balance"`
	Linked    *common.Address   `json:"linked,omitempty"`
}

// newAccount constructs a new account value for use.
func newAccount(accountID identity.NativeID, balance *uint256.Int) Account {
	if balance == nil {
		balance = new(uint256.Int)
	}

	return Account{
		AccountID: accountID,
		Balance:   balance.Clone(),
	}
}

// copy returns an account that shares no memory with the original.
func (a Account) copy() Account {
	cpy := a
	cpy.Balance = new(uint256.Int)
	if a.Balance != nil {
		cpy.Balance.Set(a.Balance)
	}
	if a.Linked != nil {
		addr := *a.Linked
		cpy.Linked = &addr
	}
	return cpy
}

// =============================================================================

// SortedAccounts returns the accounts ordered by account id.
func SortedAccounts(accounts map[identity.NativeID]Account) []Account {
	list := make([]Account, 0, len(accounts))
	for _, account := range accounts {
		list = append(list, account)
	}

	slices.SortFunc(list, func(a, b Account) int {
		return a.AccountID.Compare(b.AccountID)
	})

	return list
}
