package cmd

import (
	"fmt"

	"github.com/ardanlabs/crossledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate new key pair",
	RunE:  generateRun,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func generateRun(cmd *cobra.Command, args []string) error {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return err
	}

	if err := crypto.SaveECDSA(getPrivateKeyPath(), privateKey); err != nil {
		return err
	}

	native, eth := signature.Accounts(privateKey)
	fmt.Fprintln(cmd.OutOrStdout(), "native:", native)
	fmt.Fprintln(cmd.OutOrStdout(), "eth:   ", eth.Eth())

	return nil
}
