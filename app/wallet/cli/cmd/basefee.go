package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var basefeeCmd = &cobra.Command{
	Use:   "basefee",
	Short: "Print the current base fee of the chain",
	RunE:  basefeeRun,
}

func init() {
	rootCmd.AddCommand(basefeeCmd)
}

func basefeeRun(cmd *cobra.Command, args []string) error {
	fee, err := queryBaseFee()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "base fee %s elasticity %s active %t\n", fee.BaseFee.Dec(), fee.Elasticity, fee.IsActive)

	return nil
}
