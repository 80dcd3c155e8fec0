package cmd

import (
	"crypto/ecdsa"
	"fmt"
	"io"

	"github.com/ardanlabs/crossledger/foundation/blockchain/extension"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ardanlabs/crossledger/foundation/blockchain/runtime"
	"github.com/ardanlabs/crossledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
)

var (
	to    string
	value string
	tip   string
	nonce int64
)

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Sign a native transfer and submit it",
	RunE:  transferRun,
}

func init() {
	rootCmd.AddCommand(transferCmd)
	transferCmd.Flags().StringVarP(&to, "to", "t", "", "Native id or ethereum address to send to.")
	transferCmd.Flags().StringVarP(&value, "value", "v", "0", "Value to send.")
	transferCmd.Flags().StringVarP(&tip, "tip", "c", "0", "Tip for the block author.")
	transferCmd.Flags().Int64VarP(&nonce, "nonce", "n", -1, "Nonce to sign with, -1 asks the node.")
	transferCmd.MarkFlagRequired("to")
}

func transferRun(cmd *cobra.Command, args []string) error {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		return err
	}

	dest, err := parseAccount(to)
	if err != nil {
		return err
	}

	amount, err := uint256.FromDecimal(value)
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}

	call, err := runtime.Transfer(dest, amount)
	if err != nil {
		return err
	}

	return signAndSubmit(cmd.OutOrStdout(), privateKey, call)
}

// signAndSubmit signs the call with the native key of the wallet and
// submits it.
func signAndSubmit(out io.Writer, privateKey *ecdsa.PrivateKey, call runtime.RawCall) error {
	gen, err := loadGenesis()
	if err != nil {
		return err
	}

	tipValue, err := uint256.FromDecimal(tip)
	if err != nil {
		return fmt.Errorf("tip: %w", err)
	}

	extra := extension.Extra{
		Nonce: uint64(nonce),
		Tip:   tipValue,
	}

	if nonce < 0 {
		native := signature.PublicKeyToNativeID(privateKey.PublicKey)
		act, err := queryAccount(native.String())
		if err != nil {
			return err
		}
		extra.Nonce = act.Nonce
	}

	u, err := runtime.NewSigned(call, extra, gen.Hash(), privateKey)
	if err != nil {
		return err
	}

	data, err := u.Encode()
	if err != nil {
		return err
	}

	resp, err := submit(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s: hash %s kind %s nonce %d priority %d\n", resp.Status, resp.Hash, resp.Kind, extra.Nonce, resp.Priority)

	return nil
}

// parseAccount accepts an ethereum address or a native id in SS58 or hex.
func parseAccount(s string) (identity.CrossAccountID, error) {
	if common.IsHexAddress(s) {
		return identity.FromEth(common.HexToAddress(s)), nil
	}

	id, err := identity.ParseNativeID(s)
	if err != nil {
		return identity.CrossAccountID{}, err
	}

	return identity.FromNative(id), nil
}
