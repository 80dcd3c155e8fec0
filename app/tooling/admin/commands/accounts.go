package commands

import (
	"fmt"
	"io"

	"github.com/ardanlabs/crossledger/foundation/blockchain/database"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ethereum/go-ethereum/common"
)

// Accounts prints the persisted accounts. The filter is a native id or an
// ethereum address, empty prints every account.
func Accounts(w io.Writer, store database.Storage, filter string) error {
	accounts, err := store.Accounts()
	if err != nil {
		return err
	}

	var only *identity.NativeID
	if filter != "" {
		id, err := parseNative(filter)
		if err != nil {
			return err
		}
		only = &id
	}

	for _, act := range accounts {
		if only != nil && act.AccountID != *only {
			continue
		}

		fmt.Fprintf(w, "Account: %s  Nonce: %d  Balance: %s\n", act.AccountID, act.Nonce, act.Balance.Dec())
	}

	return nil
}

// parseNative resolves the native account behind a native id or an
// ethereum address.
func parseNative(s string) (identity.NativeID, error) {
	if common.IsHexAddress(s) {
		return identity.FromEth(common.HexToAddress(s)).Native(), nil
	}
	return identity.ParseNativeID(s)
}
