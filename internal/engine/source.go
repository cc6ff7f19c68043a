package engine

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// Source is a uniform random stream in [0, 1). Every raid owns its own
// Source; there is no process-wide generator.
type Source interface {
	Float64() float64
}

// Range draws a uniform value in [lo, hi) from src.
func Range(src Source, lo, hi float64) float64 {
	return lo + (hi-lo)*src.Float64()
}

// Chance reports whether a roll from src lands under p.
func Chance(src Source, p float64) bool {
	return src.Float64() < p
}

// NewSeededSource exposes the fair stream for (seeds, nonce) as a Source.
// The same inputs always replay the same sequence.
func NewSeededSource(seeds Seeds, nonce uint64) Source {
	return seeds.Stream(nonce, 0)
}

type pcgSource struct{ r *rand.Rand }

// NewPCGSource returns a reproducible PCG stream for the given seed.
func NewPCGSource(seed uint64) Source {
	return &pcgSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *pcgSource) Float64() float64 { return s.r.Float64() }

// NewRandomSource returns a PCG stream seeded from crypto/rand.
func NewRandomSource() Source {
	var buf [16]byte
	if _, err := cryptorand.Read(buf[:]); err != nil {
		return &pcgSource{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
	}
	return &pcgSource{r: rand.New(rand.NewPCG(
		binary.BigEndian.Uint64(buf[:8]),
		binary.BigEndian.Uint64(buf[8:]),
	))}
}
