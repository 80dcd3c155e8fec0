package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/crossledger/foundation/blockchain/extension"
	"github.com/ardanlabs/crossledger/foundation/blockchain/runtime"
	"github.com/ardanlabs/crossledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var ethAccount string

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Link the wallet's native account to an ethereum address",
	Long: `Signs a claim with the wallet key and the ethereum key and submits it
without a signer. Once the claim is in a block, the ethereum address
resolves to the wallet's native account. The claim is refused while the
account the address derives to holds funds or has been used.`,
	RunE: claimRun,
}

func init() {
	rootCmd.AddCommand(claimCmd)
	claimCmd.Flags().StringVarP(&ethAccount, "eth-account", "e", "", "Name of the private key holding the ethereum address, defaults to the wallet key.")
}

func claimRun(cmd *cobra.Command, args []string) error {
	nativeKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		return err
	}

	ethKey := nativeKey
	if ethAccount != "" {
		name := ethAccount
		if !strings.HasSuffix(name, keyExtension) {
			name += keyExtension
		}
		if ethKey, err = crypto.LoadECDSA(filepath.Join(accountPath, name)); err != nil {
			return err
		}
	}

	gen, err := loadGenesis()
	if err != nil {
		return err
	}

	native := signature.PublicKeyToNativeID(nativeKey.PublicKey)
	addr := crypto.PubkeyToAddress(ethKey.PublicKey)
	payload := runtime.ClaimPayload(native, addr, gen.Hash())

	nativeProof, err := signature.Sign(payload, nativeKey)
	if err != nil {
		return err
	}

	ethProof, err := signature.Sign(payload, ethKey)
	if err != nil {
		return err
	}

	call, err := runtime.ClaimEth(runtime.ClaimEthArgs{
		Native:      native,
		Address:     addr,
		NativeProof: nativeProof,
		EthProof:    ethProof,
	})
	if err != nil {
		return err
	}

	u, err := runtime.NewGeneral(call, extension.Extra{})
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

	fmt.Fprintf(cmd.OutOrStdout(), "%s: hash %s kind %s: %s claims %s\n", resp.Status, resp.Hash, resp.Kind, native, addr)

	return nil
}
