package state

// Reorganize corrects an identified fork. No blocks are produced while this
// process is running. New transactions can be placed into the mempool.
func (s *State) Reorganize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Don't allow block production to continue.
	s.allowBuilding = false

	// Reset the state of the blockchain node.
	if err := s.db.Reset(); err != nil {
		s.allowBuilding = true
		return err
	}
	s.fee.Restore(s.genesis.FeeState())
	s.mempool.Truncate()

	// Resync the state of the blockchain.
	go func() {
		s.evHandler("state: Resync: started: *****************************")
		defer func() {
			s.turnBuildingOn()
			s.evHandler("state: Resync: completed: *****************************")
		}()

		if s.Worker != nil {
			s.Worker.Sync()
		}
	}()

	return nil
}

// turnBuildingOn sets the allowBuilding flag back to true.
func (s *State) turnBuildingOn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allowBuilding = true
}
