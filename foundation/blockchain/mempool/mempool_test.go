package mempool_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ardanlabs/crossledger/foundation/blockchain/extrinsic"
	"github.com/ardanlabs/crossledger/foundation/blockchain/mempool"
	"github.com/stretchr/testify/require"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

type tx struct {
	name      string
	priority  uint64
	provides  string
	requires  string
	longevity uint64
}

func entry(t tx, block uint64) mempool.Entry {
	v := extrinsic.ValidTransaction{
		Priority:  t.priority,
		Longevity: t.longevity,
		Propagate: true,
	}
	if v.Longevity == 0 {
		v.Longevity = 64
	}
	if t.provides != "" {
		v.Provides = [][]byte{[]byte(t.provides)}
	}
	if t.requires != "" {
		v.Requires = [][]byte{[]byte(t.requires)}
	}

	return mempool.NewEntry([]byte(t.name), extrinsic.KindSigned, extrinsic.SourceExternal, v, block)
}

func names(entries []mempool.Entry) []string {
	var out []string
	for _, e := range entries {
		out = append(out, string(e.Data))
	}
	return out
}

// =============================================================================

func TestCRUD(t *testing.T) {
	t.Log("Given the need to validate mempool api.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen handling a set of transactions.", testID)
		{
			mp, err := mempool.New()
			require.NoError(t, err, "Should be able to construct the mempool.")

			txs := []tx{
				{name: "bill-0", priority: 10, provides: "bill-0"},
				{name: "ed-0", priority: 50, provides: "ed-0"},
				{name: "pavel-0", priority: 100, provides: "pavel-0"},
				{name: "jack-0", priority: 10, provides: "jack-0"},
			}

			for _, tx := range txs {
				if _, err := mp.Upsert(entry(tx, 1)); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to add transaction %s: %v", failed, testID, tx.name, err)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould be able to add new transactions.", success, testID)

			exp := []string{"pavel-0", "ed-0", "bill-0", "jack-0"}
			require.Equal(t, exp, names(mp.Copy()), "Should get back the transactions by priority, oldest first.")
			t.Logf("\t%s\tTest %d:\tShould get back the transactions by priority.", success, testID)

			_, err = mp.Upsert(entry(txs[0], 1))
			if !errors.Is(err, mempool.ErrAlreadyImported) {
				t.Fatalf("\t%s\tTest %d:\tShould reject a duplicate: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a duplicate.", success, testID)

			mp.Delete(entry(txs[2], 1).Hash)
			if mp.Count() != 3 {
				t.Fatalf("\t%s\tTest %d:\tShould have 3 transactions after delete, got %d.", failed, testID, mp.Count())
			}
			t.Logf("\t%s\tTest %d:\tShould be able to delete a transaction.", success, testID)

			mp.Truncate()
			if mp.Count() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould be empty after truncate.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to truncate the pool.", success, testID)
		}
	}
}

func TestReplace(t *testing.T) {
	t.Log("Given the need for transactions to compete for the same tag.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen two transactions provide the same tag.", testID)
		{
			mp, err := mempool.New()
			require.NoError(t, err)

			_, err = mp.Upsert(entry(tx{name: "low", priority: 10, provides: "bill-0"}, 1))
			require.NoError(t, err)

			_, err = mp.Upsert(entry(tx{name: "same", priority: 10, provides: "bill-0"}, 1))
			if !errors.Is(err, mempool.ErrTooLowPriority) {
				t.Fatalf("\t%s\tTest %d:\tShould reject an equal priority: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject an equal priority.", success, testID)

			_, err = mp.Upsert(entry(tx{name: "high", priority: 20, provides: "bill-0"}, 1))
			require.NoError(t, err, "Should accept a higher priority.")

			require.Equal(t, []string{"high"}, names(mp.Copy()), "Should replace the lower priority transaction.")
			t.Logf("\t%s\tTest %d:\tShould replace the lower priority transaction.", success, testID)

			_, err = mp.Upsert(entry(tx{name: "low", priority: 10, provides: "bill-1"}, 1))
			require.NoError(t, err, "Should accept the replaced transaction again once its tag is free.")
			t.Logf("\t%s\tTest %d:\tShould forget the tags of a replaced transaction.", success, testID)
		}
	}
}

func TestPrune(t *testing.T) {
	t.Log("Given the need to drop transactions that outlived their longevity.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the chain moves past a transaction's longevity.", testID)
		{
			mp, err := mempool.New()
			require.NoError(t, err)

			_, err = mp.Upsert(entry(tx{name: "short", priority: 1, provides: "a", longevity: 2}, 10))
			require.NoError(t, err)
			_, err = mp.Upsert(entry(tx{name: "long", priority: 1, provides: "b", longevity: 64}, 10))
			require.NoError(t, err)

			if n := mp.Prune(11); n != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould prune nothing at block 11, pruned %d.", failed, testID, n)
			}
			if n := mp.Prune(12); n != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould prune one at block 12, pruned %d.", failed, testID, n)
			}
			require.Equal(t, []string{"long"}, names(mp.Copy()))
			t.Logf("\t%s\tTest %d:\tShould prune only the expired transaction.", success, testID)

			_, err = mp.Upsert(entry(tx{name: "other", priority: 1, provides: "a"}, 12))
			require.NoError(t, err, "Should free the tags of a pruned transaction.")
			t.Logf("\t%s\tTest %d:\tShould free the tags of a pruned transaction.", success, testID)
		}
	}
}

func TestRevalidate(t *testing.T) {
	t.Log("Given the need to check the pool against a new state.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen some transactions are no longer valid.", testID)
		{
			mp, err := mempool.New()
			require.NoError(t, err)

			for _, tx := range []tx{
				{name: "stale", priority: 5, provides: "a"},
				{name: "fine", priority: 5, provides: "b"},
				{name: "bumped", priority: 5, provides: "c"},
			} {
				_, err := mp.Upsert(entry(tx, 1))
				require.NoError(t, err)
			}

			fn := func(ctx context.Context, e mempool.Entry) (extrinsic.ValidTransaction, error) {
				switch string(e.Data) {
				case "stale":
					return extrinsic.ValidTransaction{}, extrinsic.ErrStale
				case "bumped":
					v := e.Validity
					v.Priority = 50
					return v, nil
				}
				return e.Validity, nil
			}

			removed, err := mp.Revalidate(context.Background(), fn)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to revalidate: %v", failed, testID, err)
			}
			if removed != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould remove one transaction, removed %d.", failed, testID, removed)
			}
			t.Logf("\t%s\tTest %d:\tShould remove the rejected transaction.", success, testID)

			require.Equal(t, []string{"bumped", "fine"}, names(mp.Copy()), "Should keep the new validity.")
			t.Logf("\t%s\tTest %d:\tShould keep the new validity.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the context is already canceled.", testID)
		{
			mp, err := mempool.New()
			require.NoError(t, err)
			_, err = mp.Upsert(entry(tx{name: "a", priority: 1, provides: "a"}, 1))
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err = mp.Revalidate(ctx, func(ctx context.Context, e mempool.Entry) (extrinsic.ValidTransaction, error) {
				return e.Validity, nil
			})
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("\t%s\tTest %d:\tShould return the context error: %v", failed, testID, err)
			}
			if mp.Count() != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould leave the pool untouched.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould stop and leave the pool untouched.", success, testID)
		}
	}
}
