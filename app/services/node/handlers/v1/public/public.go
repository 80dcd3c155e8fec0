// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"net/http"
	"time"

	"github.com/ardanlabs/crossledger/business/web/errs"
	"github.com/ardanlabs/crossledger/foundation/blockchain/database"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ardanlabs/crossledger/foundation/blockchain/state"
	"github.com/ardanlabs/crossledger/foundation/events"
	"github.com/ardanlabs/crossledger/foundation/nameservice"
	"github.com/ardanlabs/crossledger/foundation/web"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client. The client
// picks the subsystems it wants with the topic query parameter.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// This upgrades the HTTP connection to a websocket connection.
	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	// This provides a channel for receiving events from the blockchain,
	// limited to the subsystems named in ?topic=runtime&topic=state.
	ch := h.Evts.Acquire(v.TraceID, r.URL.Query()["topic"]...)
	defer h.Evts.Release(v.TraceID)

	// Starting a ticker to send a ping message over the websocket.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:

			// If the channel is closed, release the websocket.
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitTransaction adds a new encoded extrinsic to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var tx state.SubmitTx
	if err := web.Decode(r, &tx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	entry, err := h.State.SubmitTransaction(tx.Data)
	if err != nil {
		return errs.NewSubmitError(err)
	}

	h.Log.Infow("submit tran", "traceid", v.TraceID, "hash", entry.Hash, "kind", entry.Kind, "priority", entry.Validity.Priority)

	resp := submitted{
		Status:   "transaction added to mempool",
		Hash:     entry.Hash,
		Kind:     entry.Kind.String(),
		Priority: entry.Validity.Priority,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// BaseFee returns the state of the fee controller.
func (h Handlers) BaseFee(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	st := h.State.QueryBaseFee()

	resp := baseFee{
		BaseFee:    st.BaseFee,
		Elasticity: st.Elasticity.String(),
		IsActive:   st.IsActive,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.QueryMempool(), http.StatusOK)
}

// Accounts returns the current balances for all accounts or the one
// specified. Accounts can be named by their native id or ethereum address.
func (h Handlers) Accounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var dbAccounts []database.Account

	switch param := web.Param(r, "account"); param {
	case "":
		dbAccounts = h.State.QueryAccounts()

	default:
		id, err := parseAccount(h.State.RetrieveRuntime().Mapper(), param)
		if err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		dbAccounts = []database.Account{h.State.QueryAccount(id)}
	}

	mapper := h.State.RetrieveRuntime().Mapper()

	acts := make([]account, len(dbAccounts))
	for i, dbAccount := range dbAccounts {
		acts[i] = account{
			Account: dbAccount.AccountID,
			Eth:     mapper.FromNative(dbAccount.AccountID).Eth(),
			Name:    h.NS.Lookup(dbAccount.AccountID),
			Nonce:   dbAccount.Nonce,
			Balance: dbAccount.Balance,
		}
	}

	ai := actInfo{
		LatestBlock: h.State.QueryLatestBlock().Hash(),
		Uncommitted: h.State.QueryMempoolLength(),
		Accounts:    acts,
	}

	return web.Respond(ctx, w, ai, http.StatusOK)
}

// LatestBlock returns the header of the latest block.
func (h Handlers) LatestBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latest := h.State.QueryLatestBlock()

	resp := block{
		Hash:        latest.Hash(),
		Header:      latest.Header,
		Beneficiary: h.NS.Lookup(latest.Header.BeneficiaryID),
		Extrinsics:  len(latest.Extrinsics),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// =============================================================================

// parseAccount accepts an ethereum address or a native id in SS58 or hex.
func parseAccount(mapper identity.Mapper, s string) (identity.CrossAccountID, error) {
	if common.IsHexAddress(s) {
		return mapper.FromEth(common.HexToAddress(s)), nil
	}

	id, err := identity.ParseNativeID(s)
	if err != nil {
		return identity.CrossAccountID{}, err
	}

	return mapper.FromNative(id), nil
}
