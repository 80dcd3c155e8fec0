package database_test

import (
	"errors"
	"testing"

	"github.com/ardanlabs/crossledger/foundation/blockchain/basefee"
	"github.com/ardanlabs/crossledger/foundation/blockchain/database"
	"github.com/ardanlabs/crossledger/foundation/blockchain/database/storage"
	"github.com/ardanlabs/crossledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

var (
	alice = identity.NativeID{1}
	bob   = identity.NativeID{2}
	miner = identity.NativeID{3}

	aliceEth = common.HexToAddress("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")
)

func noop(v string, args ...any) {}

func newGenesis() genesis.Genesis {
	return genesis.Genesis{
		ChainID: 1,
		Balances: map[string]*uint256.Int{
			alice.Hex(): uint256.NewInt(1000),
			bob.Hex():   uint256.NewInt(0),
		},
	}
}

// =============================================================================

func Test_Accounts(t *testing.T) {
	t.Log("Given the need to maintain account balances.")
	{
		t.Logf("\tTest 0:\tWhen moving value between accounts.")
		{
			store, err := storage.NewMemory()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to open storage: %v", failed, err)
			}

			db, err := database.New(newGenesis(), store, noop)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to open database: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to open database.", success)

			if err := db.Transfer(alice, bob, uint256.NewInt(300)); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to transfer: %v", failed, err)
			}
			db.Deposit(miner, uint256.NewInt(5))
			db.IncrementNonce(alice)

			exp := map[identity.NativeID]uint64{alice: 700, bob: 300, miner: 5}
			for id, balance := range exp {
				if got := db.Query(id).Balance.Uint64(); got != balance {
					t.Errorf("\t%s\tTest 0:\tShould have balance %d for %s, got %d.", failed, balance, id, got)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould have the correct balances.", success)

			if db.Query(alice).Nonce != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould have moved the nonce.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould have moved the nonce.", success)

			err = db.Withdraw(bob, uint256.NewInt(301))
			if !errors.Is(err, database.ErrInsufficientBalance) {
				t.Fatalf("\t%s\tTest 0:\tShould refuse to overdraw: %v", failed, err)
			}
			if db.Query(bob).Balance.Uint64() != 300 {
				t.Fatalf("\t%s\tTest 0:\tShould leave the balance untouched on failure.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould refuse to overdraw.", success)

			db.Deposit(miner, new(uint256.Int).SetAllOne())
			if !db.Query(miner).Balance.Eq(new(uint256.Int).SetAllOne()) {
				t.Fatalf("\t%s\tTest 0:\tShould saturate deposits.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould saturate deposits.", success)
		}

		t.Logf("\tTest 1:\tWhen rolling back to a snapshot.")
		{
			store, _ := storage.NewMemory()
			db, err := database.New(newGenesis(), store, noop)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to open database: %v", failed, err)
			}

			snap := db.Snapshot()
			db.Transfer(alice, bob, uint256.NewInt(999))
			db.IncrementNonce(alice)

			db.Restore(snap)
			if db.Query(alice).Balance.Uint64() != 1000 || db.Query(alice).Nonce != 0 || db.Query(bob).Balance.Uint64() != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould restore the snapshot.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould restore the snapshot.", success)
		}
	}
}

func Test_Claims(t *testing.T) {
	t.Log("Given the need to link native accounts to ethereum addresses.")
	{
		store, err := storage.NewMemory()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open storage: %v", failed, err)
		}

		db, err := database.New(newGenesis(), store, noop)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open database: %v", failed, err)
		}

		t.Logf("\tTest 0:\tWhen an account claims an address.")
		{
			snap := db.Snapshot()

			if err := db.Link(alice, aliceEth); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to link: %v", failed, err)
			}
			if id, ok := db.ClaimedNative(aliceEth); !ok || id != alice {
				t.Fatalf("\t%s\tTest 0:\tShould resolve the address to the account.", failed)
			}
			if addr, ok := db.ClaimedEth(alice); !ok || addr != aliceEth {
				t.Fatalf("\t%s\tTest 0:\tShould resolve the account to the address.", failed)
			}
			if db.Query(alice).Balance.Uint64() != 1000 {
				t.Fatalf("\t%s\tTest 0:\tShould keep the balance of the account.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould resolve the pair both ways.", success)

			t.Logf("\tTest 1:\tWhen either side is claimed again.")
			{
				if err := db.Link(bob, aliceEth); !errors.Is(err, database.ErrAlreadyLinked) {
					t.Fatalf("\t%s\tTest 1:\tShould refuse a claimed address: %v", failed, err)
				}
				if err := db.Link(alice, common.Address{0x42}); !errors.Is(err, database.ErrAlreadyLinked) {
					t.Fatalf("\t%s\tTest 1:\tShould refuse a linked account: %v", failed, err)
				}
				if _, ok := db.ClaimedEth(bob); ok {
					t.Fatalf("\t%s\tTest 1:\tShould leave the other account unlinked.", failed)
				}
				t.Logf("\t%s\tTest 1:\tShould refuse the second claim.", success)
			}

			t.Logf("\tTest 2:\tWhen the block holding the claim is rolled back.")
			{
				db.Restore(snap)

				if _, ok := db.ClaimedNative(aliceEth); ok {
					t.Fatalf("\t%s\tTest 2:\tShould forget the claim.", failed)
				}
				if _, ok := db.ClaimedEth(alice); ok {
					t.Fatalf("\t%s\tTest 2:\tShould unlink the account.", failed)
				}
				t.Logf("\t%s\tTest 2:\tShould forget the claim.", success)
			}
		}
	}
}

func Test_Persistence(t *testing.T) {
	type table struct {
		name string
		open func(t *testing.T) database.Storage
	}

	dir := t.TempDir()

	tt := []table{
		{
			name: "leveldb",
			open: func(t *testing.T) database.Storage {
				s, err := storage.NewLevelDB(dir + "/leveldb")
				if err != nil {
					t.Fatalf("\t%s\tShould be able to open leveldb: %v", failed, err)
				}
				return s
			},
		},
		{
			name: "disk",
			open: func(t *testing.T) database.Storage {
				s, err := storage.NewDisk(dir + "/disk")
				if err != nil {
					t.Fatalf("\t%s\tShould be able to open disk: %v", failed, err)
				}
				return s
			},
		},
	}

	t.Log("Given the need to restore the chain from storage.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen committing a block to %s.", testID, tst.name)
				{
					store := tst.open(t)

					db, err := database.New(newGenesis(), store, noop)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to open database: %v", failed, testID, err)
					}

					db.Transfer(alice, bob, uint256.NewInt(250))
					db.IncrementNonce(alice)
					if err := db.Link(alice, aliceEth); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to link: %v", failed, testID, err)
					}

					block := database.NewBlock(database.BlockHeader{
						Number:        1,
						PrevBlockHash: db.LatestBlock().Hash(),
						TimeStamp:     1_000,
						BeneficiaryID: miner,
						BaseFee:       uint256.NewInt(7),
					}, []hexutil.Bytes{{0x01}, {0x02, 0x03}})

					fee := basefee.State{BaseFee: uint256.NewInt(7), Elasticity: basefee.DefaultElasticity, IsActive: true}
					if err := db.Commit(block, fee); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to commit: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to commit.", success, testID)

					db.Close()

					reopened, err := database.New(newGenesis(), tst.open(t), noop)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to reopen database: %v", failed, testID, err)
					}
					defer reopened.Close()

					if reopened.LatestBlock().Hash() != block.Hash() {
						t.Fatalf("\t%s\tTest %d:\tShould restore the latest block.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould restore the latest block.", success, testID)

					if reopened.Query(bob).Balance.Uint64() != 250 || reopened.Query(alice).Nonce != 1 {
						t.Fatalf("\t%s\tTest %d:\tShould restore the accounts.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould restore the accounts.", success, testID)

					if id, ok := reopened.ClaimedNative(aliceEth); !ok || id != alice {
						t.Fatalf("\t%s\tTest %d:\tShould restore the claimed addresses.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould restore the claimed addresses.", success, testID)

					got, err := reopened.FeeState()
					if err != nil || got.BaseFee.Uint64() != 7 || !got.IsActive {
						t.Fatalf("\t%s\tTest %d:\tShould restore the fee state: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould restore the fee state.", success, testID)

					var count int
					iter := reopened.ForEach()
					for _, err := iter.Next(); !iter.Done(); _, err = iter.Next() {
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to iterate: %v", failed, testID, err)
						}
						count++
					}
					if count != 1 {
						t.Fatalf("\t%s\tTest %d:\tShould iterate one block, got %d.", failed, testID, count)
					}
					t.Logf("\t%s\tTest %d:\tShould iterate the stored blocks.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_ValidateBlock(t *testing.T) {
	parent := database.NewBlock(database.BlockHeader{Number: 1, TimeStamp: 1_000, BaseFee: uint256.NewInt(1)}, nil)

	next := func(mod func(h *database.BlockHeader)) database.Block {
		h := database.BlockHeader{Number: 2, PrevBlockHash: parent.Hash(), TimeStamp: 2_000, BaseFee: uint256.NewInt(1)}
		if mod != nil {
			mod(&h)
		}
		return database.NewBlock(h, []hexutil.Bytes{{0xaa}})
	}

	tampered := next(nil)
	tampered.Extrinsics = []hexutil.Bytes{{0xbb}}

	tt := []struct {
		name  string
		block database.Block
		valid bool
	}{
		{name: "valid", block: next(nil), valid: true},
		{name: "forked", block: next(func(h *database.BlockHeader) { h.Number = 4 })},
		{name: "parent", block: next(func(h *database.BlockHeader) { h.PrevBlockHash[0] ^= 1 })},
		{name: "timestamp", block: next(func(h *database.BlockHeader) { h.TimeStamp = 1_000 })},
		{name: "extrinsics", block: tampered},
	}

	t.Log("Given the need to validate a block against its parent.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen the block is %s.", testID, tst.name)
				{
					err := tst.block.ValidateBlock(parent, noop)
					if (err == nil) != tst.valid {
						t.Fatalf("\t%s\tTest %d:\tShould get the expected result, valid %t: %v", failed, testID, tst.valid, err)
					}
					t.Logf("\t%s\tTest %d:\tShould get the expected result.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}
