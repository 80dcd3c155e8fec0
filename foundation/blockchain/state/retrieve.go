package state

import (
	"github.com/ardanlabs/crossledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/crossledger/foundation/blockchain/identity"
	"github.com/ardanlabs/crossledger/foundation/blockchain/peer"
	"github.com/ardanlabs/crossledger/foundation/blockchain/runtime"
)

// RetrieveHost returns a copy of host information.
func (s *State) RetrieveHost() string {
	return s.host
}

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveBeneficiary returns the account receiving the tips of the blocks
// this node produces.
func (s *State) RetrieveBeneficiary() identity.NativeID {
	return s.beneficiaryID
}

// RetrieveRuntime returns the runtime the node executes calls with.
func (s *State) RetrieveRuntime() *runtime.Runtime {
	return s.rt
}

// RetrieveKnownPeers retrieves a copy of the known peer list.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}
