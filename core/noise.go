package core

import "math/rand/v2"

// NoiseSource supplies standard-normal samples for technique selection and
// contest scoring. *rand.Rand satisfies it.
type NoiseSource interface {
	NormFloat64() float64
}

// rewinder is implemented by sources that can return to an earlier point
// in their stream, which is what makes Replay reproducible.
type rewinder interface {
	// Mark records the current stream position.
	Mark()
	// Rewind returns the stream to the last mark.
	Rewind()
}

// seededNoise is a PCG stream keyed by a 64-bit seed. rand.Rand keeps no
// state of its own, so the PCG state is the whole stream position.
type seededNoise struct {
	src  *rand.PCG
	r    *rand.Rand
	mark rand.PCG
}

func newSeededNoise(seed uint64) *seededNoise {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	n := &seededNoise{src: src, r: rand.New(src)}
	n.Mark()
	return n
}

func (n *seededNoise) NormFloat64() float64 { return n.r.NormFloat64() }

func (n *seededNoise) Mark() { n.mark = *n.src }

func (n *seededNoise) Rewind() { *n.src = n.mark }

// NewSeed draws a fresh non-zero seed. Zero is reserved for "pick one".
func NewSeed() uint64 {
	for {
		if s := rand.Uint64(); s != 0 {
			return s
		}
	}
}
