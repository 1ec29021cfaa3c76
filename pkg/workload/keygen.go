// Package workload provides example transaction bodies and key
// generators for driving a Processor from a benchmark or a test: the
// kind of synthetic load the original assignment's -txn_type and
// -distribution flags described, reworked as reusable Logic values.
package workload

import (
	"math/rand"

	"github.com/cespare/xxhash"

	"ccengine/pkg/txn"
)

// KeyGen produces keys in [0, n).
type KeyGen interface {
	Next() txn.Key
}

// Uniform draws keys uniformly at random from [0, n).
type Uniform struct {
	n   uint64
	rnd *rand.Rand
}

// NewUniform returns a Uniform generator over [0, n), seeded from
// seed.
func NewUniform(n uint64, seed int64) *Uniform {
	return &Uniform{n: n, rnd: rand.New(rand.NewSource(seed))}
}

func (u *Uniform) Next() txn.Key {
	return txn.Key(u.rnd.Int63n(int64(u.n)))
}

// Zipfian draws keys from [0, n) with a Zipfian skew: a small set of
// keys is drawn far more often than the rest, the way real key-value
// traffic tends to cluster around a hot set.
type Zipfian struct {
	z *rand.Zipf
}

// NewZipfian returns a Zipfian generator over [0, n), seeded from
// seed, with skew s (s > 1; closer to 1 is flatter, though never
// uniform) and offset v (v >= 1; larger v flattens the head of the
// distribution), as rand.NewZipf defines them.
func NewZipfian(n uint64, seed int64, s, v float64) *Zipfian {
	rnd := rand.New(rand.NewSource(seed))
	return &Zipfian{z: rand.NewZipf(rnd, s, v, n-1)}
}

func (z *Zipfian) Next() txn.Key {
	return txn.Key(z.z.Uint64())
}

// HashKey maps an arbitrary string identifier into [0, n), using the
// same hash the teacher's string-keyed engine uses for its Key
// conversion.
func HashKey(id string, n uint64) txn.Key {
	return txn.Key(xxhash.Sum64String(id) % n)
}
