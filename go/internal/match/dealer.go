package match

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"

	"github.com/mcdev12/memoria/go/internal/models"
)

// Dealer deals boards for a single room from its own random source.
// A Dealer is not safe for concurrent use; each room owns one.
type Dealer struct {
	rng *rand.Rand
}

// NewDealer creates a dealer seeded with seed.
func NewDealer(seed uint64) *Dealer {
	return &Dealer{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Deal returns a fresh shuffled board of n cards.
func (d *Dealer) Deal(n int) ([]models.Card, error) {
	return DealBoard(n, d.rng)
}

// NewSeed draws a seed from crypto/rand.
func NewSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
