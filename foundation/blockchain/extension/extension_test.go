package extension_test

import (
	"errors"
	"testing"

	"github.com/ardanlabs/crossledger/foundation/blockchain/basefee"
	"github.com/ardanlabs/crossledger/foundation/blockchain/database"
	"github.com/ardanlabs/crossledger/foundation/blockchain/database/storage"
	"github.com/ardanlabs/crossledger/foundation/blockchain/extension"
	"github.com/ardanlabs/crossledger/foundation/blockchain/extrinsic"
	"github.com/ardanlabs/crossledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ardanlabs/crossledger/foundation/blockchain/weight"
	"github.com/holiman/uint256"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

var (
	alice  = identity.NativeID{1}
	author = identity.NativeID{9}
)

// call is a dispatchable that reports a fixed result.
type call struct {
	info  weight.DispatchInfo
	post  weight.PostDispatchInfo
	err   error
	calls int
}

func (c *call) DispatchInfo() weight.DispatchInfo {
	return c.info
}

func (c *call) Dispatch(origin extrinsic.Origin) (weight.PostDispatchInfo, error) {
	c.calls++
	return c.post, c.err
}

var info = weight.DispatchInfo{Weight: 20_000_000, Class: weight.Normal, PaysFee: weight.PaysYes}

func newEnv(t *testing.T) *extension.Env {
	t.Helper()

	store, err := storage.NewMemory()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open storage: %v", failed, err)
	}

	gen := genesis.Genesis{
		Balances: map[string]*uint256.Int{alice.Hex(): uint256.NewInt(1_000_000)},
	}

	db, err := database.New(gen, store, func(string, ...any) {})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open database: %v", failed, err)
	}

	fee, err := basefee.New(basefee.State{BaseFee: uint256.NewInt(10), Elasticity: basefee.DefaultElasticity, IsActive: true}, basefee.Config{})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the fee controller: %v", failed, err)
	}

	return &extension.Env{
		DB:     db,
		Fee:    fee,
		Meter:  weight.NewMeter(weight.Limits{MaxBlock: 1_000_000_000_000, NormalPercent: 75}),
		Gas:    weight.FixedGasMapping{PerGas: weight.WeightPerGas},
		Author: author,
	}
}

func signedBy(id identity.NativeID) extrinsic.Origin {
	return extrinsic.SignedOrigin(identity.FromNative(id))
}

// =============================================================================

func Test_Validate(t *testing.T) {
	type table struct {
		name     string
		nonce    uint64
		tip      uint64
		info     weight.DispatchInfo
		err      error
		requires bool
	}

	tt := []table{
		{name: "ready", nonce: 0, tip: 5, info: info},
		{name: "future", nonce: 3, info: info, requires: true},
		{name: "payment", nonce: 0, tip: 2_000_000, info: info, err: extrinsic.ErrPayment},
		{name: "too-heavy", nonce: 0, info: weight.DispatchInfo{Weight: 900_000_000_000, Class: weight.Normal}, err: extrinsic.ErrExhaustsResources},
	}

	t.Log("Given the need to validate signed transactions.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen the transaction is %s.", testID, tst.name)
				{
					env := newEnv(t)
					ext := extension.New(env, extension.Extra{Nonce: tst.nonce, Tip: uint256.NewInt(tst.tip)})

					v, err := ext.ValidateOnly(signedBy(alice), &call{info: tst.info}, tst.info, 0)
					if tst.err != nil {
						if !errors.Is(err, tst.err) {
							t.Fatalf("\t%s\tTest %d:\tShould fail with %v: %v", failed, testID, tst.err, err)
						}
						t.Logf("\t%s\tTest %d:\tShould fail with %v.", success, testID, tst.err)
						return
					}

					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be valid: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be valid.", success, testID)

					if v.Longevity != extension.Longevity || len(v.Provides) != 1 {
						t.Fatalf("\t%s\tTest %d:\tShould provide the signer and nonce tag.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould provide the signer and nonce tag.", success, testID)

					if tst.requires != (len(v.Requires) == 1) {
						t.Fatalf("\t%s\tTest %d:\tShould require the previous nonce only for future transactions.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould require the previous nonce only for future transactions.", success, testID)

					// 1000 gas at a base fee of 10 plus the tip.
					exp := (10_000 + tst.tip) / 1_000
					if v.Priority != exp {
						t.Fatalf("\t%s\tTest %d:\tShould order by paid per gas, got %d, exp %d.", failed, testID, v.Priority, exp)
					}
					t.Logf("\t%s\tTest %d:\tShould order by paid per gas.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}

		t.Logf("\tTest %d:\tWhen the nonce was already used.", len(tt))
		{
			env := newEnv(t)
			env.DB.IncrementNonce(alice)

			_, err := extension.New(env, extension.Extra{Nonce: 0}).ValidateOnly(signedBy(alice), &call{info: info}, info, 0)
			if !errors.Is(err, extrinsic.ErrStale) {
				t.Fatalf("\t%s\tTest %d:\tShould be stale: %v", failed, len(tt), err)
			}
			t.Logf("\t%s\tTest %d:\tShould be stale.", success, len(tt))
		}
	}
}

func Test_Dispatch(t *testing.T) {
	t.Log("Given the need to dispatch signed transactions.")
	{
		t.Logf("\tTest 0:\tWhen the call uses half its declared weight.")
		{
			env := newEnv(t)
			c := &call{info: info, post: weight.Actual(10_000_000)}

			out, err := extension.New(env, extension.Extra{Nonce: 0, Tip: uint256.NewInt(5)}).DispatchTransaction(signedBy(alice), c, info, 0)
			if err != nil || !out.Succeeded() {
				t.Fatalf("\t%s\tTest 0:\tShould dispatch: %v %v", failed, err, out.Err)
			}
			t.Logf("\t%s\tTest 0:\tShould dispatch.", success)

			if got := env.DB.Query(alice).Balance.Uint64(); got != 994_995 {
				t.Fatalf("\t%s\tTest 0:\tShould refund the unused fee, got %d.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould refund the unused fee.", success)

			if got := env.DB.Query(author).Balance.Uint64(); got != 5 {
				t.Fatalf("\t%s\tTest 0:\tShould pay the tip to the author, got %d.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould pay the tip to the author.", success)

			if env.DB.Query(alice).Nonce != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould move the nonce.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould move the nonce.", success)

			if got := env.Meter.Consumed(weight.Normal); got != 10_000_000 {
				t.Fatalf("\t%s\tTest 0:\tShould keep only the actual weight, got %d.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould keep only the actual weight.", success)
		}

		t.Logf("\tTest 1:\tWhen the call fails.")
		{
			env := newEnv(t)
			c := &call{info: info, err: errors.New("boom")}

			out, err := extension.New(env, extension.Extra{Nonce: 0}).DispatchTransaction(signedBy(alice), c, info, 0)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould still include the transaction: %v", failed, err)
			}
			if out.Succeeded() {
				t.Fatalf("\t%s\tTest 1:\tShould report the failure.", failed)
			}
			if got := env.DB.Query(alice).Balance.Uint64(); got != 990_000 {
				t.Fatalf("\t%s\tTest 1:\tShould charge the full fee, got %d.", failed, got)
			}
			t.Logf("\t%s\tTest 1:\tShould charge the full fee and report the failure.", success)
		}

		t.Logf("\tTest 2:\tWhen the nonce is ahead of the account.")
		{
			env := newEnv(t)
			c := &call{info: info}

			_, err := extension.New(env, extension.Extra{Nonce: 1}).DispatchTransaction(signedBy(alice), c, info, 0)
			if !errors.Is(err, extrinsic.ErrFuture) {
				t.Fatalf("\t%s\tTest 2:\tShould reject a future nonce: %v", failed, err)
			}
			if c.calls != 0 || env.DB.Query(alice).Balance.Uint64() != 1_000_000 {
				t.Fatalf("\t%s\tTest 2:\tShould not dispatch or charge.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould reject a future nonce without side effects.", success)
		}

		t.Logf("\tTest 3:\tWhen the call declares it pays no fee after all.")
		{
			env := newEnv(t)
			c := &call{info: info, post: weight.PostDispatchInfo{PaysFee: weight.PaysNo}}

			if _, err := extension.New(env, extension.Extra{Nonce: 0}).DispatchTransaction(signedBy(alice), c, info, 0); err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould dispatch: %v", failed, err)
			}
			if got := env.DB.Query(alice).Balance.Uint64(); got != 1_000_000 {
				t.Fatalf("\t%s\tTest 3:\tShould refund the whole fee, got %d.", failed, got)
			}
			t.Logf("\t%s\tTest 3:\tShould refund the whole fee.", success)
		}

		t.Logf("\tTest 4:\tWhen a general transaction carries a call that needs a signer.")
		{
			env := newEnv(t)
			c := &call{info: info}

			_, err := extension.New(env, extension.Extra{}).DispatchTransaction(extrinsic.NoneOrigin(), c, info, 0)
			if !errors.Is(err, extrinsic.ErrBadSigner) {
				t.Fatalf("\t%s\tTest 4:\tShould reject the transaction: %v", failed, err)
			}
			if c.calls != 0 || env.Meter.Total() != 0 {
				t.Fatalf("\t%s\tTest 4:\tShould neither dispatch nor register weight.", failed)
			}
			t.Logf("\t%s\tTest 4:\tShould reject it without side effects.", success)
		}

		t.Logf("\tTest 5:\tWhen a general transaction carries a call that authorizes itself.")
		{
			env := newEnv(t)
			c := &authorizedCall{call: call{info: free}, tag: []byte("claim")}

			if _, err := extension.New(env, extension.Extra{}).DispatchTransaction(extrinsic.NoneOrigin(), c, free, 0); err != nil {
				t.Fatalf("\t%s\tTest 5:\tShould dispatch: %v", failed, err)
			}
			if c.calls != 1 || env.Meter.Consumed(weight.Normal) != free.Weight {
				t.Fatalf("\t%s\tTest 5:\tShould dispatch once and register the weight.", failed)
			}
			t.Logf("\t%s\tTest 5:\tShould dispatch once and register the weight.", success)
		}
	}
}

// authorizedCall is a call that authorizes itself when it arrives without
// a signer.
type authorizedCall struct {
	call
	tag []byte
	err error
}

func (c *authorizedCall) AuthorizeGeneral() (extrinsic.ValidTransaction, error) {
	if c.err != nil {
		return extrinsic.ValidTransaction{}, c.err
	}

	v := extrinsic.ValidTransaction{Longevity: 10, Propagate: true}
	if c.tag != nil {
		v.Provides = [][]byte{c.tag}
	}
	return v, nil
}

var free = weight.DispatchInfo{Weight: 20_000_000, Class: weight.Normal, PaysFee: weight.PaysNo}

func Test_General(t *testing.T) {
	type table struct {
		name string
		call extrinsic.Dispatchable
		info weight.DispatchInfo
		tip  uint64
		err  error
	}

	tt := []table{
		{name: "authorized", call: &authorizedCall{call: call{info: free}, tag: []byte("claim")}, info: free},
		{name: "needs-signer", call: &call{info: free}, info: free, err: extrinsic.ErrBadSigner},
		{name: "pays-fee", call: &authorizedCall{call: call{info: info}, tag: []byte("claim")}, info: info, err: extrinsic.ErrPayment},
		{name: "tipped", call: &authorizedCall{call: call{info: free}, tag: []byte("claim")}, info: free, tip: 5, err: extrinsic.ErrPayment},
		{name: "untagged", call: &authorizedCall{call: call{info: free}}, info: free, err: extrinsic.ErrCall},
		{name: "refused", call: &authorizedCall{call: call{info: free}, tag: []byte("claim"), err: extrinsic.ErrBadProof}, info: free, err: extrinsic.ErrBadProof},
	}

	t.Log("Given the need to validate transactions without a signer.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen the transaction is %s.", testID, tst.name)
				{
					env := newEnv(t)
					ext := extension.New(env, extension.Extra{Tip: uint256.NewInt(tst.tip)})

					v, err := ext.ValidateOnly(extrinsic.NoneOrigin(), tst.call, tst.info, 0)
					if tst.err != nil {
						if !errors.Is(err, tst.err) {
							t.Fatalf("\t%s\tTest %d:\tShould fail with %v: %v", failed, testID, tst.err, err)
						}
						t.Logf("\t%s\tTest %d:\tShould fail with %v.", success, testID, tst.err)
						return
					}

					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould validate: %v", failed, testID, err)
					}
					if len(v.Provides) != 1 || string(v.Provides[0]) != "claim" {
						t.Fatalf("\t%s\tTest %d:\tShould provide the tag of the call: %q", failed, testID, v.Provides)
					}
					if v.Longevity != 10 || v.Priority != 0 {
						t.Fatalf("\t%s\tTest %d:\tShould combine with the call validity: %+v", failed, testID, v)
					}
					t.Logf("\t%s\tTest %d:\tShould take the tags and longevity of the call.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_Bare(t *testing.T) {
	t.Log("Given the need to account for bare transactions.")
	{
		t.Logf("\tTest 0:\tWhen preparing and settling a mandatory call.")
		{
			env := newEnv(t)
			bare := extension.NewBare(env)
			mandatory := weight.DispatchInfo{Weight: 5_000, Class: weight.Mandatory, PaysFee: weight.PaysNo}

			if _, err := bare.BareValidate(&call{}, mandatory, 0); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould validate: %v", failed, err)
			}

			if err := bare.BareValidateAndPrepare(&call{}, mandatory, 0); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould prepare: %v", failed, err)
			}
			if env.Meter.Consumed(weight.Mandatory) != 5_000 {
				t.Fatalf("\t%s\tTest 0:\tShould register the weight.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould register the weight.", success)

			post := weight.Actual(1_000)
			if err := bare.BarePostDispatch(mandatory, &post, 0, nil); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould settle: %v", failed, err)
			}
			if env.Meter.Consumed(weight.Mandatory) != 1_000 {
				t.Fatalf("\t%s\tTest 0:\tShould refund the unused weight, got %d.", failed, env.Meter.Consumed(weight.Mandatory))
			}
			t.Logf("\t%s\tTest 0:\tShould refund the unused weight.", success)
		}
	}
}
