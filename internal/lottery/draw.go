package lottery

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

// Drawer produces uniform draws in [0, TotalWeight).
//
// Draws are generated locally by the oracle operator. They are not verifiable
// by users; fairness rests on trusting the operator and the host's entropy.
type Drawer interface {
	Draw() uint32
}

// RandDrawer draws from a ChaCha8 stream. Safe for concurrent use.
type RandDrawer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewDrawer returns a drawer seeded from the operating system's entropy source.
func NewDrawer() *RandDrawer {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic("lottery: read seed: " + err.Error())
	}
	return &RandDrawer{rng: rand.New(rand.NewChaCha8(seed))}
}

// NewSeededDrawer returns a deterministic drawer, for tests and simulation.
func NewSeededDrawer(seed uint64) *RandDrawer {
	var s [32]byte
	binary.LittleEndian.PutUint64(s[:8], seed)
	return &RandDrawer{rng: rand.New(rand.NewChaCha8(s))}
}

// Draw returns the next draw.
func (d *RandDrawer) Draw() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Uint32N(TotalWeight)
}
