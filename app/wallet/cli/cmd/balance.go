package cmd

import (
	"fmt"

	"github.com/ardanlabs/crossledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the balances of both wallet identities",
	RunE:  balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) error {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		return err
	}

	native, eth := signature.Accounts(privateKey)
	out := cmd.OutOrStdout()

	act, err := queryAccount(native.String())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "native %s: balance %s nonce %d\n", act.Account, act.Balance.Dec(), act.Nonce)

	act, err = queryAccount(eth.Eth().Hex())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "eth    %s: balance %s nonce %d\n", eth.Eth(), act.Balance.Dec(), act.Nonce)

	return nil
}
