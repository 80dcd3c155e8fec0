package errs_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ardanlabs/crossledger/business/web/errs"
	"github.com/ardanlabs/crossledger/foundation/blockchain/extrinsic"
	"github.com/ardanlabs/crossledger/foundation/blockchain/mempool"
	"github.com/stretchr/testify/require"
)

func TestSubmitError(t *testing.T) {
	tt := []struct {
		name   string
		err    error
		status int
		reason string
	}{
		{"stale", extrinsic.ErrStale.WithCause(errors.New("nonce 0, account nonce 1")), http.StatusBadRequest, "stale"},
		{"bad-signer", fmt.Errorf("checking: %w", extrinsic.ErrBadSigner), http.StatusBadRequest, "bad signer"},
		{"custom", extrinsic.InvalidCustomCode(1), http.StatusBadRequest, "custom(1)"},
		{"lookup", extrinsic.ErrCannotLookup, http.StatusServiceUnavailable, "cannot lookup"},
		{"duplicate", mempool.ErrAlreadyImported, http.StatusConflict, errs.ReasonAlreadyImported},
		{"outbid", mempool.ErrTooLowPriority, http.StatusConflict, errs.ReasonTooLowPriority},
		{"garbage", errors.New("rlp: expected input list"), http.StatusBadRequest, ""},
	}

	for _, tst := range tt {
		t.Run(tst.name, func(t *testing.T) {
			err := errs.NewSubmitError(tst.err)

			te := errs.GetTrusted(fmt.Errorf("handler: %w", err))
			require.NotNil(t, te, "Should find the trusted error through wrapping.")
			require.Equal(t, tst.status, te.Status)
			require.Equal(t, tst.reason, te.Reason)
			require.ErrorIs(t, err, tst.err, "Should keep the original error in the chain.")
		})
	}
}
