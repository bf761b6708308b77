package tokens

import (
	"sync"
)

// StatusBoard folds the engine's started/synced signals into a per-chain
// busy view for observers like the HTTP API and the CLI.
type StatusBoard struct {
	mu   sync.Mutex
	busy map[int64]int
}

func NewStatusBoard(engine *Engine) *StatusBoard {
	board := &StatusBoard{busy: map[int64]int{}}
	engine.Subscribe(board.onEvent)
	return board
}

func (b *StatusBoard) onEvent(ev SyncEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ev.Started {
		b.busy[ev.ChainID]++
		return
	}
	if b.busy[ev.ChainID] > 0 {
		b.busy[ev.ChainID]--
	}
	if b.busy[ev.ChainID] == 0 {
		delete(b.busy, ev.ChainID)
	}
}

// Busy reports whether the chain has refreshes in flight or settling.
func (b *StatusBoard) Busy(chainID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.busy[chainID] > 0
}

// Snapshot returns the chains currently syncing.
func (b *StatusBoard) Snapshot() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	chains := []int64{}
	for chainID := range b.busy {
		chains = append(chains, chainID)
	}
	return chains
}
