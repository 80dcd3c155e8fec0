package worker_test

import (
	"testing"
	"time"

	"github.com/ardanlabs/crossledger/foundation/blockchain/database/storage"
	"github.com/ardanlabs/crossledger/foundation/blockchain/extension"
	"github.com/ardanlabs/crossledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ardanlabs/crossledger/foundation/blockchain/runtime"
	"github.com/ardanlabs/crossledger/foundation/blockchain/signature"
	"github.com/ardanlabs/crossledger/foundation/blockchain/state"
	"github.com/ardanlabs/crossledger/foundation/blockchain/weight"
	"github.com/ardanlabs/crossledger/foundation/blockchain/worker"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	aliceKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	sudoKey  = "aed31b6b5a0ba8f8ca3e6bea9a3b1e9f4b4c3ee4ed1e1b1a3dd4e6e2b1b0cfa1"
)

func Test_BuildOnSubmit(t *testing.T) {
	t.Log("Given the need to produce blocks as transactions arrive.")
	{
		alice, err := crypto.HexToECDSA(aliceKey)
		require.NoError(t, err)
		sudo, err := crypto.HexToECDSA(sudoKey)
		require.NoError(t, err)

		aliceID, _ := signature.Accounts(alice)
		sudoID, _ := signature.Accounts(sudo)

		elasticity := uint32(125_000)
		active := true

		gen := genesis.Genesis{
			ChainID:    1,
			EthChainID: 8880,
			Limits:     weight.Limits{MaxBlock: 1_000_000_000_000, NormalPercent: 75},
			BaseFee:    genesis.Fee{BaseFee: uint256.NewInt(10), Elasticity: &elasticity, IsActive: &active},
			Sudo:       sudoID.Hex(),
			Balances:   map[string]*uint256.Int{aliceID.Hex(): uint256.NewInt(1_000_000_000)},
		}

		store, err := storage.NewMemory()
		require.NoError(t, err)

		st, err := state.New(state.Config{
			BeneficiaryID: sudoID,
			Host:          "localhost:9080",
			Storage:       store,
			Genesis:       gen,
		})
		require.NoError(t, err)

		worker.Run(st, func(v string, args ...any) { t.Logf(v, args...) })
		defer st.Shutdown()

		testID := 0
		t.Logf("\tTest %d:\tWhen the only node receives a transaction.", testID)
		{
			call, err := runtime.Transfer(identity.FromNative(sudoID), uint256.NewInt(5))
			require.NoError(t, err)

			u, err := runtime.NewSigned(call, extension.Extra{}, st.RetrieveRuntime().GenesisHash(), alice)
			require.NoError(t, err)

			data, err := u.Encode()
			require.NoError(t, err)

			if _, err := st.SubmitTransaction(data); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the transaction: %v", failed, testID, err)
			}

			built := func() bool {
				return st.QueryLatestBlock().Header.Number == 1 && st.QueryMempoolLength() == 0
			}
			require.Eventually(t, built, 5*time.Second, 10*time.Millisecond, "Should produce a block.")
			t.Logf("\t%s\tTest %d:\tShould produce a block without waiting for the cycle.", success, testID)
		}
	}
}
