package state

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ardanlabs/crossledger/foundation/blockchain/database/storage"
	"github.com/ardanlabs/crossledger/foundation/blockchain/extrinsic"
	"github.com/ardanlabs/crossledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ardanlabs/crossledger/foundation/blockchain/runtime"
	"github.com/ardanlabs/crossledger/foundation/blockchain/signature"
	"github.com/ardanlabs/crossledger/foundation/blockchain/weight"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_BuildBlockFatal(t *testing.T) {
	t.Log("Given the need to discard a block when an included transaction turns fatal.")
	{
		alice, err := crypto.HexToECDSA("fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959")
		require.NoError(t, err)
		aliceID, aliceEth := signature.Accounts(alice)

		elasticity := uint32(125_000)
		active := true
		gen := genesis.Genesis{
			ChainID:    1,
			EthChainID: 8880,
			Limits:     weight.Limits{MaxBlock: 1_000_000_000_000, NormalPercent: 75},
			BaseFee:    genesis.Fee{BaseFee: uint256.NewInt(10), Elasticity: &elasticity, IsActive: &active},
			Sudo:       aliceID.Hex(),
			Balances:   map[string]*uint256.Int{aliceEth.Eth().Hex(): uint256.NewInt(1_000_000_000)},
		}

		store, err := storage.NewMemory()
		require.NoError(t, err)

		st, err := New(Config{BeneficiaryID: identity.NativeID{9}, Storage: store, Genesis: gen})
		require.NoError(t, err)

		to := crypto.PubkeyToAddress(alice.PublicKey)
		tx, err := types.SignNewTx(alice, types.LatestSignerForChainID(big.NewInt(8880)), &types.DynamicFeeTx{
			ChainID:   big.NewInt(8880),
			GasFeeCap: big.NewInt(100),
			Gas:       21_000,
			To:        &to,
			Value:     big.NewInt(1),
		})
		require.NoError(t, err)

		call, err := runtime.Transact(tx)
		require.NoError(t, err)
		data, err := runtime.NewUnsigned(call).Encode()
		require.NoError(t, err)

		_, err = st.SubmitTransaction(data)
		require.NoError(t, err, "Should accept the ethereum transaction.")

		// The runtime registers pre-dispatch weight on its own meter, the
		// block builder checks a separate one that still has room.
		executed := st.env
		building := *executed
		building.Meter = weight.NewMeter(executed.Meter.Limits())
		st.env = &building

		normal := weight.DispatchInfo{Weight: gen.Limits.ClassMax(weight.Normal), Class: weight.Normal}
		require.NoError(t, executed.Meter.Register(normal, 0))

		before := st.QueryAccount(aliceEth)
		latest := st.QueryLatestBlock()

		testID := 0
		t.Logf("\tTest %d:\tWhen the pre-dispatch checks fail for a validated transaction.", testID)
		{
			_, err := st.BuildBlock(context.Background())

			var fatal *extrinsic.FatalError
			if !errors.As(err, &fatal) {
				t.Fatalf("\t%s\tTest %d:\tShould abort with a fatal error: %v", failed, testID, err)
			}
			if !errors.Is(err, extrinsic.ErrExhaustsResources) {
				t.Fatalf("\t%s\tTest %d:\tShould carry the validity reason: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould abort with a fatal error.", success, testID)

			require.Equal(t, latest.Hash(), st.QueryLatestBlock().Hash(), "Should not commit a block.")
			require.Equal(t, before, st.QueryAccount(aliceEth), "Should restore the sender account.")
			require.Equal(t, 1, st.QueryMempoolLength(), "Should leave the transaction in the pool.")
			require.Zero(t, building.Meter.Total(), "Should reset the block meter.")
			t.Logf("\t%s\tTest %d:\tShould roll the block back.", success, testID)
		}
	}
}
