package cmd

import (
	"fmt"

	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ardanlabs/crossledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Print both identities controlled by the wallet key",
	RunE:  accountRun,
}

func init() {
	rootCmd.AddCommand(accountCmd)
}

func accountRun(cmd *cobra.Command, args []string) error {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		return err
	}

	native, eth := signature.Accounts(privateKey)
	out := cmd.OutOrStdout()

	// The native identity signs native extrinsics. The ethereum identity
	// signs ethereum transactions and holds its own balance under the
	// native account its address maps to.
	fmt.Fprintln(out, "native:        ", native)
	fmt.Fprintln(out, "native as eth: ", identity.FromNative(native).Eth())
	fmt.Fprintln(out, "eth:           ", eth.Eth())
	fmt.Fprintln(out, "eth as native: ", eth.Native())

	return nil
}
