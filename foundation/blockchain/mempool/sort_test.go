package mempool_test

import (
	"testing"

	"github.com/ardanlabs/crossledger/foundation/blockchain/mempool"
	"github.com/stretchr/testify/require"
)

func TestPickBest(t *testing.T) {
	type table struct {
		name     string
		strategy string
		txs      []tx
		howMany  int
		best     []string
	}

	// Bill's second transaction pays a lot but sits behind a cheap one.
	stuck := []tx{
		{name: "bill-0", priority: 1, provides: "bill-0"},
		{name: "bill-1", priority: 100, provides: "bill-1", requires: "bill-0"},
		{name: "ed-0", priority: 50, provides: "ed-0"},
	}

	tt := []table{
		{
			name:     "priority-ready",
			strategy: mempool.StrategyPriority,
			txs: []tx{
				{name: "bill-1", priority: 100, provides: "bill-1", requires: "bill-0"},
				{name: "bill-0", priority: 10, provides: "bill-0"},
				{name: "ed-0", priority: 50, provides: "ed-0"},
			},
			howMany: -1,
			best:    []string{"ed-0", "bill-0", "bill-1"},
		},
		{
			name:     "priority-missing",
			strategy: mempool.StrategyPriority,
			txs: []tx{
				{name: "bill-2", priority: 100, provides: "bill-2", requires: "bill-1"},
				{name: "ed-0", priority: 50, provides: "ed-0"},
			},
			howMany: -1,
			best:    []string{"ed-0"},
		},
		{
			name:     "priority-stuck",
			strategy: mempool.StrategyPriority,
			txs:      stuck,
			howMany:  2,
			best:     []string{"ed-0", "bill-0"},
		},
		{
			name:     "chain-stuck",
			strategy: mempool.StrategyChain,
			txs:      stuck,
			howMany:  2,
			best:     []string{"bill-0", "bill-1"},
		},
		{
			name:     "chain-all",
			strategy: mempool.StrategyChain,
			txs:      stuck,
			howMany:  -1,
			best:     []string{"ed-0", "bill-0", "bill-1"},
		},
	}

	t.Log("Given the need to pick the best transactions for a block.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen using the %s case.", testID, tst.name)
				{
					mp, err := mempool.NewWithStrategy(tst.strategy)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to construct the mempool: %v", failed, testID, err)
					}

					for _, tx := range tst.txs {
						_, err := mp.Upsert(entry(tx, 1))
						require.NoError(t, err)
					}

					got := names(mp.PickBest(tst.howMany))
					if len(got) != len(tst.best) {
						t.Logf("\t%s\tTest %d:\tgot: %v", failed, testID, got)
						t.Logf("\t%s\tTest %d:\texp: %v", failed, testID, tst.best)
						t.Fatalf("\t%s\tTest %d:\tShould get back the right transactions.", failed, testID)
					}
					require.Equal(t, tst.best, got, "Should get back the transactions in order.")
					t.Logf("\t%s\tTest %d:\tShould get back the right transactions in order.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func TestStrategy(t *testing.T) {
	t.Log("Given the need to select a strategy by name.")
	{
		t.Logf("\tTest 0:\tWhen the strategy is unknown.")
		{
			if _, err := mempool.NewWithStrategy("tip"); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould reject the unknown strategy.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the unknown strategy.", success)
		}
	}
}
