package game

import (
	"math/rand"
	"sync"
)

// Cowries is the number of shells thrown per roll.
const Cowries = 4

// Roll is one throw of the cowries. Value is the number of shells that
// landed mouth up, except that none up counts as 8.
type Roll struct {
	Shells [Cowries]bool `json:"shells"`
	Value  int           `json:"value"`
}

// Dice throws cowries from its own random source.
type Dice struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewDice returns dice seeded with seed.
func NewDice(seed int64) *Dice {
	return &Dice{rng: rand.New(rand.NewSource(seed))}
}

// Throw rolls the cowries.
func (d *Dice) Throw() Roll {
	d.mu.Lock()
	defer d.mu.Unlock()
	var r Roll
	for i := range r.Shells {
		if d.rng.Intn(2) == 1 {
			r.Shells[i] = true
			r.Value++
		}
	}
	if r.Value == 0 {
		r.Value = 8
	}
	return r
}
