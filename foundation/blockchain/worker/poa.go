package worker

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/ardanlabs/crossledger/foundation/blockchain/peer"
	"github.com/ardanlabs/crossledger/foundation/blockchain/state"
)

// CORE NOTE: Block production is managed by this function which runs on its
// own goroutine. The node starts a loop that is on a 12 second timer. At the
// beginning of each cycle the selection algorithm is executed which
// determines if this node needs to produce the next block. A submitted
// transaction runs the same selection right away.

// cycleDuration sets the production operation to happen every 12 seconds
const secondsPerCycle = 12
const cycleDuration = secondsPerCycle * time.Second

// poaOperations handles block production.
func (w *Worker) poaOperations() {
	w.evHandler("worker: poaOperations: G started")
	defer w.evHandler("worker: poaOperations: G completed")

	ticker := time.NewTicker(cycleDuration)
	defer ticker.Stop()

	// Start this on a secondsPerCycle mark: ex. MM.00, MM.12, MM.24, MM.36.
	resetTicker(ticker, secondsPerCycle*time.Second)

	for {
		select {
		case <-ticker.C:
			if !w.isShutdown() {
				w.runPoaOperation()
			}

			// Reset the ticker for the next cycle.
			resetTicker(ticker, 0)

		case <-w.startBuilding:
			if !w.isShutdown() {
				w.runPoaOperation()
			}

		case <-w.shut:
			w.evHandler("worker: poaOperations: received shut signal")
			return
		}
	}
}

// runPoaOperation takes the best transactions from the mempool and writes a
// new block to the database.
func (w *Worker) runPoaOperation() {
	w.evHandler("worker: runPoaOperation: started")
	defer w.evHandler("worker: runPoaOperation: completed")

	// Run the selection algorithm.
	host := w.selection()
	w.evHandler("worker: runPoaOperation: SELECTED: %s", host)

	// If we are not selected, return and wait for the new block.
	if host != w.state.RetrieveHost() {
		return
	}

	// Validate we are allowed to build and we are not in a resync.
	if !w.state.IsBuildingAllowed() {
		w.evHandler("worker: runPoaOperation: BUILDING: turned off")
		return
	}

	// Make sure there are transactions in the mempool.
	length := w.state.QueryMempoolLength()
	if length == 0 {
		w.evHandler("worker: runPoaOperation: BUILDING: no transactions to include: Txs[%d]", length)
		return
	}

	// The block must be done before the next cycle starts.
	ctx, cancel := context.WithTimeout(context.Background(), cycleDuration)
	defer cancel()

	t := time.Now()
	block, err := w.state.BuildBlock(ctx)
	duration := time.Since(t)

	w.evHandler("worker: runPoaOperation: BUILDING: duration[%v]", duration)

	if err != nil {
		switch {
		case errors.Is(err, state.ErrNoTransactions):
			w.evHandler("worker: runPoaOperation: BUILDING: WARNING: no transactions could be included")
		case ctx.Err() != nil:
			w.evHandler("worker: runPoaOperation: BUILDING: CANCEL: complete")
		default:
			w.evHandler("worker: runPoaOperation: BUILDING: ERROR: %s", err)
		}
		return
	}

	// The block is built. Propose the new block to the network.
	// Log the error, but that's it.
	if err := w.state.NetSendBlockToPeers(block); err != nil {
		w.evHandler("worker: runPoaOperation: BUILDING: proposeBlockToPeers: WARNING %s", err)
	}
}

// selection selects a peer to be the next one to produce a block.
func (w *Worker) selection() string {

	// Retrieve the known peers list, ordered by host, and include this node.
	peers := append(w.state.RetrieveKnownPeers(), peer.New(w.state.RetrieveHost()))

	// Just log information so we are clear what the list looks like.
	w.evHandler("worker: runPoaOperation: selection: Host %s, List %v", w.state.RetrieveHost(), peers)

	names := sortedHosts(peers)

	// Based on the latest block, pick an index number from the registry.
	h := fnv.New32a()
	h.Write(w.state.QueryLatestBlock().Hash().Bytes())
	integerHash := h.Sum32()
	i := integerHash % uint32(len(names))

	// Return the name of the node selected.
	return names[i]
}

// =============================================================================

// resetTicker makes sure the next tick happens on the described cadence.
func resetTicker(ticker *time.Ticker, waitOnSecond time.Duration) {
	nextTick := time.Now().Add(cycleDuration).Round(waitOnSecond)
	diff := time.Until(nextTick)
	ticker.Reset(diff)
}
