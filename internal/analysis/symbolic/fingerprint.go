package symbolic

import (
	"crypto/sha256"
	"encoding/binary"
	"strconv"

	"github.com/gnolang/flowsym/internal/analysis/lattice"
)

func itoa(i int) string { return strconv.Itoa(i) }

// Fingerprint returns a hash over the same fields Equal compares. Equal
// states always share a fingerprint; the explosion guard confirms
// collisions with Equal.
//
// The value is cached on first use. Concurrent callers may both compute it;
// they store the same value.
func (s *ProgramState) Fingerprint() uint64 {
	if s == nil {
		return 0
	}
	if s.hasFP.Load() {
		return s.fp.Load()
	}
	h := sha256.New()
	var buf [8]byte
	writeInt := func(i int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(i))
		h.Write(buf[:])
	}
	writeSet := func(set lattice.Set) {
		for f := lattice.Family(0); f < lattice.FamilyCount; f++ {
			c, ok := set.Get(f)
			if !ok {
				h.Write([]byte{0})
				continue
			}
			h.Write([]byte{1})
			h.Write([]byte(c.String()))
		}
	}

	h.Write([]byte("sym"))
	for _, sym := range s.Symbols() {
		writeInt(sym.ID)
		h.Write([]byte(sym.Name))
		writeSet(s.symbols[sym].Constraints())
	}
	h.Write([]byte("op"))
	for _, id := range sortedOpIDs(s.ops) {
		writeInt(id)
		writeSet(s.ops[id].Constraints())
	}
	h.Write([]byte("stack"))
	for _, v := range s.stack {
		writeSet(v.Constraints())
	}

	fp := binary.LittleEndian.Uint64(h.Sum(nil)[:8])
	s.fp.Store(fp)
	s.hasFP.Store(true)
	return fp
}
