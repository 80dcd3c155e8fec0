package cmd

import (
	"fmt"
	"math/big"

	"github.com/ardanlabs/crossledger/foundation/blockchain/dispatch"
	"github.com/ardanlabs/crossledger/foundation/blockchain/runtime"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
)

var (
	gasLimit  uint64
	tipPerGas string
)

var ethsendCmd = &cobra.Command{
	Use:   "ethsend",
	Short: "Sign an ethereum transaction and submit it self contained",
	Long: `Sends value from the ethereum identity of the wallet. An ethereum
destination receives the value directly. A native destination is paid
through the dispatch precompile, which runs a transfer as the native
account the sender maps to.`,
	RunE: ethsendRun,
}

func init() {
	rootCmd.AddCommand(ethsendCmd)
	ethsendCmd.Flags().StringVarP(&to, "to", "t", "", "Ethereum address or native id to send to.")
	ethsendCmd.Flags().StringVarP(&value, "value", "v", "0", "Value to send.")
	ethsendCmd.Flags().Uint64Var(&gasLimit, "gas", 100_000, "Gas limit of the transaction.")
	ethsendCmd.Flags().StringVar(&tipPerGas, "tip-per-gas", "0", "Priority fee per gas.")
	ethsendCmd.Flags().Int64VarP(&nonce, "nonce", "n", -1, "Nonce to sign with, -1 asks the node.")
	ethsendCmd.MarkFlagRequired("to")
}

func ethsendRun(cmd *cobra.Command, args []string) error {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		return err
	}

	gen, err := loadGenesis()
	if err != nil {
		return err
	}

	amount, err := uint256.FromDecimal(value)
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}

	tipCap, err := uint256.FromDecimal(tipPerGas)
	if err != nil {
		return fmt.Errorf("tip per gas: %w", err)
	}

	from := crypto.PubkeyToAddress(privateKey.PublicKey)

	txNonce := uint64(nonce)
	if nonce < 0 {
		act, err := queryAccount(from.Hex())
		if err != nil {
			return err
		}
		txNonce = act.Nonce
	}

	fee, err := queryBaseFee()
	if err != nil {
		return err
	}

	// Leave room for the fee to rise before the transaction is included.
	feeCap := new(uint256.Int).Mul(fee.BaseFee, uint256.NewInt(2))
	feeCap.Add(feeCap, tipCap)

	dest, data, txValue, err := ethDestination(amount)
	if err != nil {
		return err
	}

	chainID := new(big.Int).SetUint64(gen.EthChainID)

	tx, err := types.SignNewTx(privateKey, types.LatestSignerForChainID(chainID), &types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     txNonce,
		GasTipCap: tipCap.ToBig(),
		GasFeeCap: feeCap.ToBig(),
		Gas:       gasLimit,
		To:        &dest,
		Value:     txValue.ToBig(),
		Data:      data,
	})
	if err != nil {
		return err
	}

	call, err := runtime.Transact(tx)
	if err != nil {
		return err
	}

	encoded, err := runtime.NewUnsigned(call).Encode()
	if err != nil {
		return err
	}

	resp, err := submit(encoded)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: hash %s eth-hash %s kind %s nonce %d\n", resp.Status, resp.Hash, tx.Hash(), resp.Kind, txNonce)

	return nil
}

// ethDestination returns where the transaction goes, its input and the value
// it carries for the destination flag.
func ethDestination(amount *uint256.Int) (common.Address, []byte, *uint256.Int, error) {
	if common.IsHexAddress(to) {
		return common.HexToAddress(to), nil, amount, nil
	}

	dest, err := parseAccount(to)
	if err != nil {
		return common.Address{}, nil, nil, err
	}

	call, err := runtime.Transfer(dest, amount)
	if err != nil {
		return common.Address{}, nil, nil, err
	}

	input, err := call.Encode()
	if err != nil {
		return common.Address{}, nil, nil, err
	}

	return dispatch.Address, input, new(uint256.Int), nil
}
