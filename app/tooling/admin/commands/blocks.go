package commands

import (
	"fmt"
	"io"

	"github.com/ardanlabs/crossledger/foundation/blockchain/database"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ardanlabs/crossledger/foundation/blockchain/runtime"
	"github.com/ethereum/go-ethereum/crypto"
)

// Blocks walks the chain in storage and prints every block with the calls
// its extrinsics carry.
func Blocks(w io.Writer, store database.Storage) error {
	iter := store.ForEach()

	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err != nil {
			return err
		}

		h := blockData.Header
		fmt.Fprintf(w, "Block: %d  Hash: %s  Time: %d  BaseFee: %s  WeightUsed: %d\n",
			h.Number, blockData.Hash, h.TimeStamp, h.BaseFee.Dec(), h.WeightUsed)

		for i, data := range blockData.Extrinsics {
			fmt.Fprintf(w, "  %d: %s  %s\n", i, crypto.Keccak256Hash(data), describe(data))
		}
	}

	return nil
}

func describe(data []byte) string {
	u, err := runtime.DecodeUnchecked(data)
	if err != nil {
		return fmt.Sprintf("undecodable: %s", err)
	}

	if !u.IsSigned() {
		return fmt.Sprintf("call: %s  unsigned", u.Call.ID)
	}

	return fmt.Sprintf("call: %s  signer: %s", u.Call.ID, identity.BytesToNativeID(u.Signer))
}
