package state

import (
	"github.com/ardanlabs/crossledger/foundation/blockchain/extrinsic"
	"github.com/ardanlabs/crossledger/foundation/blockchain/mempool"
)

// SubmitTransaction accepts an encoded extrinsic from a wallet for inclusion
// and shares it with the known peers.
func (s *State) SubmitTransaction(data []byte) (mempool.Entry, error) {
	e, err := s.submit(data, extrinsic.SourceExternal)
	if err != nil {
		return mempool.Entry{}, err
	}

	if e.Validity.Propagate && s.Worker != nil {
		s.Worker.SignalShareTx(e.Data)
	}
	s.signalStartBuilding()

	return e, nil
}

// UpsertNodeTransaction accepts an encoded extrinsic shared by a peer.
func (s *State) UpsertNodeTransaction(data []byte) (mempool.Entry, error) {
	e, err := s.submit(data, extrinsic.SourceExternal)
	if err != nil {
		return mempool.Entry{}, err
	}

	s.signalStartBuilding()

	return e, nil
}

// =============================================================================

// submit checks the extrinsic and validates it against the latest committed
// state before adding it to the mempool.
func (s *State) submit(data []byte, source extrinsic.TransactionSource) (mempool.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	xt, err := s.rt.CheckBytes(data)
	if err != nil {
		return mempool.Entry{}, err
	}

	v, err := s.pipeline.Validate(source, xt, xt.DispatchInfo(), len(data))
	if err != nil {
		return mempool.Entry{}, err
	}

	e := mempool.NewEntry(data, xt.Format.Kind(), source, v, s.db.LatestBlock().Header.Number)
	if _, err := s.mempool.Upsert(e); err != nil {
		return mempool.Entry{}, err
	}

	s.evHandler("state: submit: tx[%s]: kind[%s]: priority[%d]", e.Hash, e.Kind, v.Priority)

	return e, nil
}

func (s *State) signalStartBuilding() {
	if s.Worker != nil {
		s.Worker.SignalStartBuilding()
	}
}
