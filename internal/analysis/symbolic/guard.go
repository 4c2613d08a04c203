package symbolic

import "github.com/gnolang/flowsym/internal/analysis/cfg"

type guardEntry struct {
	block int
	state *ProgramState
}

// explosionGuard remembers every (block, state) pair explored during one
// run. It is not safe for concurrent use and must not outlive the run.
type explosionGuard struct {
	seen map[uint64][]guardEntry
	size int
}

func newExplosionGuard() *explosionGuard {
	return &explosionGuard{seen: make(map[uint64][]guardEntry)}
}

func guardKey(block *cfg.Block, state *ProgramState) uint64 {
	// mix the block index into the state hash
	return state.Fingerprint() ^ (uint64(block.Index+1) * 0x9e3779b97f4a7c15)
}

// Seen reports whether an equal state was already recorded for block.
func (g *explosionGuard) Seen(block *cfg.Block, state *ProgramState) bool {
	for _, e := range g.seen[guardKey(block, state)] {
		if e.block == block.Index && e.state.Equal(state) {
			return true
		}
	}
	return false
}

// Record adds the pair. Recording a pair twice is harmless.
func (g *explosionGuard) Record(block *cfg.Block, state *ProgramState) {
	if g.Seen(block, state) {
		return
	}
	key := guardKey(block, state)
	g.seen[key] = append(g.seen[key], guardEntry{block: block.Index, state: state})
	g.size++
}

func (g *explosionGuard) Len() int { return g.size }
