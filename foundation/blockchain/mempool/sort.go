package mempool

import (
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
)

// List of different select strategies.
const (
	StrategyPriority = "priority"
	StrategyChain    = "chain"
)

// selectFunc takes the transactions in the pool and selects howMany of them
// in an order based on the strategy. Every strategy MUST only select a
// transaction once the tags it requires are provided by a transaction
// selected before it.
type selectFunc func(entries []Entry, howMany int) []Entry

// Map of different select strategies with functions.
var strategies = map[string]selectFunc{
	StrategyPriority: prioritySelect,
	StrategyChain:    chainSelect,
}

// retrieve returns the specified select strategy function.
func retrieve(strategy string) (selectFunc, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// prioritySelect repeatedly takes the highest priority transaction whose
// requirements are met.
func prioritySelect(entries []Entry, howMany int) []Entry {
	sortByPriority(entries)

	provided := make(map[string]struct{})
	final := []Entry{}

	for len(final) < howMany {
		next := -1
		for i, e := range entries {
			if ready(e, provided) {
				next = i
				break
			}
		}
		if next == -1 {
			break
		}

		e := entries[next]
		entries = append(entries[:next], entries[next+1:]...)

		final = append(final, e)
		for _, tag := range e.Validity.Provides {
			provided[string(tag)] = struct{}{}
		}
	}

	return final
}

func ready(e Entry, provided map[string]struct{}) bool {
	for _, tag := range e.Validity.Requires {
		if _, exists := provided[string(tag)]; !exists {
			return false
		}
	}
	return true
}

// =============================================================================

// chainSelect groups the transactions into chains, each one requiring the
// one before it, and picks the prefixes of those chains with the best total
// priority. This takes into account high priority transactions that happen
// to be stuck behind a low priority one.
func chainSelect(entries []Entry, howMany int) []Entry {
	sortByPriority(entries)

	chains, heads := buildChains(entries)

	at := newAdvancedPriority(chains, heads, howMany)
	best := at.findBest()

	final := []Entry{}
	for _, head := range heads {
		final = append(final, chains[head][:best[head]]...)
	}

	return final
}

// buildChains links every ready transaction to the highest priority
// transaction that requires what it provides. Heads are returned in
// priority order.
func buildChains(entries []Entry) (map[common.Hash][]Entry, []common.Hash) {
	byRequire := make(map[string][]Entry)
	for _, e := range entries {
		for _, tag := range e.Validity.Requires {
			byRequire[string(tag)] = append(byRequire[string(tag)], e)
		}
	}

	chains := make(map[common.Hash][]Entry)
	var heads []common.Hash
	used := make(map[common.Hash]struct{})

	for _, head := range entries {
		if len(head.Validity.Requires) != 0 {
			continue
		}

		chain := []Entry{head}
		used[head.Hash] = struct{}{}
		provided := make(map[string]struct{})

		for cur := head; ; {
			for _, tag := range cur.Validity.Provides {
				provided[string(tag)] = struct{}{}
			}

			var next *Entry
			for _, tag := range cur.Validity.Provides {
				for _, child := range byRequire[string(tag)] {
					if _, taken := used[child.Hash]; taken || !ready(child, provided) {
						continue
					}
					if next == nil || child.Validity.Priority > next.Validity.Priority {
						next = &child
					}
				}
			}
			if next == nil {
				break
			}

			chain = append(chain, *next)
			used[next.Hash] = struct{}{}
			cur = *next
		}

		chains[head.Hash] = chain
		heads = append(heads, head.Hash)
	}

	return chains, heads
}

// =============================================================================

type advancedPriority struct {
	howMany       int
	bestPriority  uint64
	bestPos       map[common.Hash]int
	groupPriority map[common.Hash][]uint64
	groups        []common.Hash
}

func newAdvancedPriority(chains map[common.Hash][]Entry, heads []common.Hash, howMany int) *advancedPriority {
	groupPriority := map[common.Hash][]uint64{}

	for _, head := range heads {
		groupPriority[head] = []uint64{0}
		for i, e := range chains[head] {
			if i >= howMany {
				break
			}
			groupPriority[head] = append(groupPriority[head], saturatingAdd(e.Validity.Priority, groupPriority[head][i]))
		}
	}

	return &advancedPriority{
		howMany:       howMany,
		bestPos:       map[common.Hash]int{},
		groupPriority: groupPriority,
		groups:        heads,
	}
}

func (at *advancedPriority) findBest() map[common.Hash]int {
	at.findBestTransactions(0, at.howMany, map[common.Hash]int{}, 0)
	return at.bestPos
}

func (at *advancedPriority) findBestTransactions(groupID int, left int, currPos map[common.Hash]int, prevPriority uint64) {
	if prevPriority > at.bestPriority {
		at.bestPriority = prevPriority
		at.bestPos = currPos
	}

	if groupID >= len(at.groups) {
		return
	}
	head := at.groups[groupID]

	for pos, priority := range at.groupPriority[head] {
		if left-pos < 0 {
			break
		}

		newCurrPos := copyMap(currPos)
		newCurrPos[head] = pos
		at.findBestTransactions(groupID+1, left-pos, newCurrPos, saturatingAdd(prevPriority, priority))
	}
}

// =============================================================================

func copyMap(m map[common.Hash]int) map[common.Hash]int {
	newCurrPos := map[common.Hash]int{}
	for head, pos := range m {
		newCurrPos[head] = pos
	}

	return newCurrPos
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
