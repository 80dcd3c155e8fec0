package state_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"testing"

	"github.com/ardanlabs/crossledger/foundation/blockchain/database"
	"github.com/ardanlabs/crossledger/foundation/blockchain/database/storage"
	"github.com/ardanlabs/crossledger/foundation/blockchain/extension"
	"github.com/ardanlabs/crossledger/foundation/blockchain/extrinsic"
	"github.com/ardanlabs/crossledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ardanlabs/crossledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/crossledger/foundation/blockchain/runtime"
	"github.com/ardanlabs/crossledger/foundation/blockchain/signature"
	"github.com/ardanlabs/crossledger/foundation/blockchain/state"
	"github.com/ardanlabs/crossledger/foundation/blockchain/weight"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	aliceKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	bobKey   = "9f332e3700d8fc2446eaf6d15034cf96e0c2745e40353deef032a5dbf1dfed93"
	sudoKey  = "aed31b6b5a0ba8f8ca3e6bea9a3b1e9f4b4c3ee4ed1e1b1a3dd4e6e2b1b0cfa1"

	funds = 1_000_000_000_000
)

type mockWorker struct {
	mock.Mock
}

func (m *mockWorker) Shutdown()                        { m.Called() }
func (m *mockWorker) Sync()                            { m.Called() }
func (m *mockWorker) SignalStartBuilding()             { m.Called() }
func (m *mockWorker) SignalShareTx(data hexutil.Bytes) { m.Called(data) }

func key(t *testing.T, hex string) *ecdsa.PrivateKey {
	t.Helper()

	pk, err := crypto.HexToECDSA(hex)
	require.NoError(t, err, "Should be able to load the key.")
	return pk
}

func testGenesis(t *testing.T) genesis.Genesis {
	t.Helper()

	aliceID, _ := signature.Accounts(key(t, aliceKey))
	sudoID, _ := signature.Accounts(key(t, sudoKey))

	elasticity := uint32(125_000)
	active := true

	return genesis.Genesis{
		ChainID:    1,
		EthChainID: 8880,
		Limits:     weight.Limits{MaxBlock: 1_000_000_000_000, NormalPercent: 75},
		BaseFee: genesis.Fee{
			BaseFee:    uint256.NewInt(10),
			Elasticity: &elasticity,
			IsActive:   &active,
		},
		Sudo: sudoID.Hex(),
		Balances: map[string]*uint256.Int{
			aliceID.Hex(): uint256.NewInt(funds),
		},
	}
}

func newNode(t *testing.T, gen genesis.Genesis, beneficiary identity.NativeID) (*state.State, *mockWorker) {
	t.Helper()

	store, err := storage.NewMemory()
	require.NoError(t, err, "Should be able to open storage.")

	st, err := state.New(state.Config{
		BeneficiaryID: beneficiary,
		Host:          "localhost:9080",
		Storage:       store,
		Genesis:       gen,
	})
	require.NoError(t, err, "Should be able to construct the state.")

	w := new(mockWorker)
	w.On("SignalStartBuilding").Return().Maybe()
	w.On("SignalShareTx", mock.Anything).Return().Maybe()
	st.Worker = w

	return st, w
}

func transfer(t *testing.T, st *state.State, pk *ecdsa.PrivateKey, to identity.NativeID, value uint64, nonce uint64) []byte {
	t.Helper()

	call, err := runtime.Transfer(identity.FromNative(to), uint256.NewInt(value))
	require.NoError(t, err)

	u, err := runtime.NewSigned(call, extension.Extra{Nonce: nonce}, st.RetrieveRuntime().GenesisHash(), pk)
	require.NoError(t, err)

	data, err := u.Encode()
	require.NoError(t, err)

	return data
}

func inherent(t *testing.T, now uint64) []byte {
	t.Helper()

	call, err := runtime.SetTimestamp(now)
	require.NoError(t, err)

	data, err := runtime.NewUnsigned(call).Encode()
	require.NoError(t, err)

	return data
}

// =============================================================================

func Test_SubmitAndBuild(t *testing.T) {
	t.Log("Given the need to produce blocks from submitted transactions.")
	{
		alice := key(t, aliceKey)
		bobID, _ := signature.Accounts(key(t, bobKey))
		aliceID, _ := signature.Accounts(alice)

		st, w := newNode(t, testGenesis(t), identity.NativeID{9})

		testID := 0
		t.Logf("\tTest %d:\tWhen the mempool is empty.", testID)
		{
			if _, err := st.BuildBlock(context.Background()); !errors.Is(err, state.ErrNoTransactions) {
				t.Fatalf("\t%s\tTest %d:\tShould refuse to build an empty block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse to build an empty block.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a wallet submits transactions.", testID)
		{
			first := transfer(t, st, alice, bobID, 1000, 0)
			second := transfer(t, st, alice, bobID, 1000, 1)

			// Submit out of order, the second one waits for the first.
			e, err := st.SubmitTransaction(second)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept a future nonce: %v", failed, testID, err)
			}
			if len(e.Validity.Requires) != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould require the previous nonce.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould accept a future nonce waiting on the previous one.", success, testID)

			if _, err := st.SubmitTransaction(first); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the transaction: %v", failed, testID, err)
			}

			if _, err := st.SubmitTransaction(first); !errors.Is(err, mempool.ErrAlreadyImported) {
				t.Fatalf("\t%s\tTest %d:\tShould reject a duplicate: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a duplicate.", success, testID)

			if _, err := st.SubmitTransaction([]byte{1, 2, 3}); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject garbage.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject garbage.", success, testID)

			w.AssertNumberOfCalls(t, "SignalShareTx", 2)
			t.Logf("\t%s\tTest %d:\tShould share each accepted transaction.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the node builds the block.", testID)
		{
			block, err := st.BuildBlock(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build the block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to build the block.", success, testID)

			if block.Header.Number != 1 || len(block.Extrinsics) != 3 {
				t.Fatalf("\t%s\tTest %d:\tShould hold the inherent and both transfers, got blk[%d] extrinsics[%d].", failed, testID, block.Header.Number, len(block.Extrinsics))
			}
			t.Logf("\t%s\tTest %d:\tShould hold the inherent and both transfers.", success, testID)

			if st.QueryMempoolLength() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould empty the mempool.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould empty the mempool.", success, testID)

			bob := st.QueryAccount(identity.FromNative(bobID))
			require.Equal(t, uint64(2000), bob.Balance.Uint64(), "Should credit bob.")

			a := st.QueryAccount(identity.FromNative(aliceID))
			require.Equal(t, uint64(2), a.Nonce, "Should move alice's nonce.")
			require.Equal(t, uint64(funds-2*(1000+25_000)), a.Balance.Uint64(), "Should charge alice the value and the fee.")
			t.Logf("\t%s\tTest %d:\tShould apply the transfers.", success, testID)

			require.Equal(t, uint64(10), block.Header.BaseFee.Uint64(), "Should record the fee the block ran with.")
			if fee := st.QueryBaseFee().BaseFee.Uint64(); fee >= 10 {
				t.Fatalf("\t%s\tTest %d:\tShould lower the fee after an empty block, got %d.", failed, testID, fee)
			}
			t.Logf("\t%s\tTest %d:\tShould adjust the fee on finalize.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a transaction replays a used nonce.", testID)
		{
			_, err := st.SubmitTransaction(transfer(t, st, alice, bobID, 5, 0))
			if !errors.Is(err, extrinsic.ErrStale) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the stale nonce: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the stale nonce.", success, testID)
		}
	}
}

func Test_ImportBlock(t *testing.T) {
	t.Log("Given the need to import blocks produced by a peer.")
	{
		alice := key(t, aliceKey)
		aliceID, _ := signature.Accounts(alice)
		bobID, _ := signature.Accounts(key(t, bobKey))

		gen := testGenesis(t)
		producer, _ := newNode(t, gen, identity.NativeID{9})
		follower, _ := newNode(t, gen, identity.NativeID{7})

		_, err := producer.SubmitTransaction(transfer(t, producer, alice, bobID, 1000, 0))
		require.NoError(t, err)

		block, err := producer.BuildBlock(context.Background())
		require.NoError(t, err, "Should be able to build the block.")

		testID := 0
		t.Logf("\tTest %d:\tWhen the block is valid.", testID)
		{
			if err := follower.ImportBlock(block); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to import the block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to import the block.", success, testID)

			require.Equal(t, block.Hash(), follower.QueryLatestBlock().Hash(), "Should make it the latest block.")
			require.Equal(t, producer.QueryAccounts(), follower.QueryAccounts(), "Should end with the same accounts.")
			require.Equal(t, producer.QueryBaseFee(), follower.QueryBaseFee(), "Should end with the same fee.")
			t.Logf("\t%s\tTest %d:\tShould end in the same state as the producer.", success, testID)
		}

		prev := follower.QueryLatestBlock()
		next := func(extrinsics ...[]byte) database.Block {
			list := make([]hexutil.Bytes, len(extrinsics))
			for i, xt := range extrinsics {
				list[i] = xt
			}

			header := database.BlockHeader{
				Number:        prev.Header.Number + 1,
				PrevBlockHash: prev.Hash(),
				TimeStamp:     prev.Header.TimeStamp + 1,
				BeneficiaryID: identity.NativeID{9},
				BaseFee:       follower.QueryBaseFee().BaseFee,
			}
			return database.NewBlock(header, list)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the block carries a stale transaction.", testID)
		{
			before := follower.QueryAccount(identity.FromNative(aliceID))

			err := follower.ImportBlock(next(inherent(t, prev.Header.TimeStamp+1), transfer(t, follower, alice, bobID, 1000, 0)))

			var ibe *state.InvalidBlockError
			if !errors.As(err, &ibe) || ibe.Index != 1 || !errors.Is(err, extrinsic.ErrStale) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the block at the stale transaction: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the block at the stale transaction.", success, testID)

			require.Equal(t, before, follower.QueryAccount(identity.FromNative(aliceID)), "Should leave alice untouched.")
			require.Equal(t, prev.Hash(), follower.QueryLatestBlock().Hash(), "Should keep the latest block.")
			t.Logf("\t%s\tTest %d:\tShould roll the state back.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the block misses the timestamp.", testID)
		{
			err := follower.ImportBlock(next(transfer(t, follower, alice, bobID, 1000, 1)))
			if !errors.Is(err, runtime.ErrTimestampMissing) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a block without its timestamp.", success, testID)

			require.Equal(t, uint64(1), follower.QueryAccount(identity.FromNative(aliceID)).Nonce, "Should roll the transfer back.")
			t.Logf("\t%s\tTest %d:\tShould roll the state back.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the block skips ahead.", testID)
		{
			b := next(inherent(t, prev.Header.TimeStamp+1))
			b.Header.Number += 5

			if err := follower.ImportBlock(b); !errors.Is(err, database.ErrChainForked) {
				t.Fatalf("\t%s\tTest %d:\tShould report the fork: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould report the fork.", success, testID)
		}
	}
}
