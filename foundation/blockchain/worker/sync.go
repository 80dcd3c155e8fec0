package worker

import (
	"errors"

	"github.com/ardanlabs/crossledger/foundation/blockchain/database"
)

// Sync updates the peer list, mempool and blocks.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	for _, pr := range w.state.RetrieveKnownPeers() {

		// Retrieve the status of this peer.
		peerStatus, err := w.state.NetRequestPeerStatus(pr)
		if err != nil {
			w.evHandler("worker: sync: queryPeerStatus: %s: ERROR: %s", pr.Host, err)
			continue
		}

		// Add new peers to this nodes list.
		w.addNewPeers(peerStatus.KnownPeers)

		// If this peer has blocks we don't have, we need to add them.
		if peerStatus.LatestBlockNumber > w.state.QueryLatestBlock().Header.Number {
			w.evHandler("worker: sync: retrievePeerBlocks: %s: latestBlockNumber[%d]", pr.Host, peerStatus.LatestBlockNumber)

			if err := w.state.NetRequestPeerBlocks(pr); err != nil {
				w.evHandler("worker: sync: retrievePeerBlocks: %s: ERROR %s", pr.Host, err)

				if errors.Is(err, database.ErrChainForked) {
					w.state.Reorganize()
					return
				}
			}
		}

		// Retrieve the mempool from the peer. Transactions are checked against
		// the state this node has now.
		pool, err := w.state.NetRequestPeerMempool(pr)
		if err != nil {
			w.evHandler("worker: sync: retrievePeerMempool: %s: ERROR: %s", pr.Host, err)
			continue
		}
		for _, e := range pool {
			w.evHandler("worker: sync: retrievePeerMempool: %s: Add Tx: %s", pr.Host, e.Hash)
			if _, err := w.state.UpsertNodeTransaction(e.Data); err != nil {
				w.evHandler("worker: sync: retrievePeerMempool: %s: tx[%s]: WARNING: %s", pr.Host, e.Hash, err)
			}
		}
	}
}
