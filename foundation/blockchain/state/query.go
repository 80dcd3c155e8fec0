package state

import (
	"github.com/ardanlabs/crossledger/foundation/blockchain/basefee"
	"github.com/ardanlabs/crossledger/foundation/blockchain/database"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ardanlabs/crossledger/foundation/blockchain/mempool"
)

// QueryLatest represents to query the latest block in the chain.
const QueryLatest = ^uint64(0) >> 1

// =============================================================================

// QueryAccount returns a copy of the account from the database. Either side
// of the identity finds the same account.
func (s *State) QueryAccount(account identity.CrossAccountID) database.Account {
	return s.db.Query(account.Native())
}

// QueryAccounts returns a copy of every account in the database.
func (s *State) QueryAccounts() []database.Account {
	return database.SortedAccounts(s.db.CopyAccounts())
}

// QueryBaseFee returns the current fee controller state.
func (s *State) QueryBaseFee() basefee.State {
	return s.fee.State()
}

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryMempool returns a copy of the mempool ordered by priority.
func (s *State) QueryMempool() []mempool.Entry {
	return s.mempool.Copy()
}

// QueryLatestBlock returns a copy the current latest block.
func (s *State) QueryLatestBlock() database.Block {
	return s.db.LatestBlock()
}

// QueryBlocksByNumber returns the set of blocks based on block numbers. This
// function reads the blockchain from storage.
func (s *State) QueryBlocksByNumber(from uint64, to uint64) []database.Block {
	latest := s.db.LatestBlock().Header.Number

	if from == QueryLatest {
		from = latest
		to = from
	}
	if to == QueryLatest {
		to = latest
	}

	var out []database.Block
	for i := from; i <= to && i <= latest; i++ {
		if i == 0 {
			continue
		}

		block, err := s.db.GetBlock(i)
		if err != nil {
			s.evHandler("state: getblock: ERROR: %s", err)
			return nil
		}
		out = append(out, block)
	}

	return out
}
