package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/ardanlabs/crossledger/foundation/blockchain/database"
)

// Fee prints the fee controller state committed with the latest block.
func Fee(w io.Writer, store database.Storage) error {
	fee, err := store.FeeState()
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			fmt.Fprintln(w, "no block committed, the genesis fee is in force")
			return nil
		}
		return err
	}

	fmt.Fprintf(w, "BaseFee: %s  Elasticity: %s  IsActive: %t\n", fee.BaseFee.Dec(), fee.Elasticity, fee.IsActive)

	return nil
}
