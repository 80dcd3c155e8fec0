package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ardanlabs/crossledger/foundation/blockchain/runtime"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
)

var (
	setBaseFee    string
	setActive     string
	setElasticity int64
)

var sudoCmd = &cobra.Command{
	Use:   "sudo",
	Short: "Change the fee controller with the sudo key",
	RunE:  sudoRun,
}

func init() {
	rootCmd.AddCommand(sudoCmd)
	sudoCmd.Flags().StringVar(&setBaseFee, "base-fee", "", "New base fee per gas.")
	sudoCmd.Flags().StringVar(&setActive, "active", "", "Turn fee adjustment on or off.")
	sudoCmd.Flags().Int64Var(&setElasticity, "elasticity", -1, "New elasticity in parts per million.")
	sudoCmd.Flags().StringVarP(&tip, "tip", "c", "0", "Tip for the block author.")
	sudoCmd.Flags().Int64VarP(&nonce, "nonce", "n", -1, "Nonce to sign with, -1 asks the node.")
	sudoCmd.MarkFlagsMutuallyExclusive("base-fee", "active", "elasticity")
}

func sudoRun(cmd *cobra.Command, args []string) error {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		return err
	}

	var inner runtime.RawCall
	switch {
	case setBaseFee != "":
		fee, err := uint256.FromDecimal(setBaseFee)
		if err != nil {
			return fmt.Errorf("base fee: %w", err)
		}
		inner, err = runtime.SetBaseFee(fee)
		if err != nil {
			return err
		}

	case setActive != "":
		active, err := strconv.ParseBool(setActive)
		if err != nil {
			return fmt.Errorf("active: %w", err)
		}
		inner, err = runtime.SetIsActive(active)
		if err != nil {
			return err
		}

	case setElasticity >= 0:
		inner, err = runtime.SetElasticity(uint32(setElasticity))
		if err != nil {
			return err
		}

	default:
		return errors.New("one of base-fee, active or elasticity is required")
	}

	call, err := runtime.Sudo(inner)
	if err != nil {
		return err
	}

	return signAndSubmit(cmd.OutOrStdout(), privateKey, call)
}
