package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptedRandom replays queued values, then repeats the fallbacks forever.
type scriptedRandom struct {
	floats        []float64
	ints          []int
	fallbackFloat float64
	fallbackInt   int
}

func (r *scriptedRandom) Float64() float64 {
	if len(r.floats) > 0 {
		v := r.floats[0]
		r.floats = r.floats[1:]
		return v
	}
	return r.fallbackFloat
}

func (r *scriptedRandom) Intn(n int) int {
	v := r.fallbackInt
	if len(r.ints) > 0 {
		v = r.ints[0]
		r.ints = r.ints[1:]
	}
	return v % n
}

var fixedNow = time.Date(2024, 5, 17, 8, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newTestSimulator(t *testing.T, rnd Random, opts ...Option) *Simulator {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	return NewSimulator(rnd, opts...)
}

func newSeededSimulator(t *testing.T, rnd Random, opts ...Option) *Simulator {
	t.Helper()
	sim := newTestSimulator(t, rnd, opts...)
	require.NoError(t, sim.Seed(DefaultStations(), DefaultProducts()))
	return sim
}

func mustAddStation(t *testing.T, sim *Simulator, st Station) {
	t.Helper()
	_, err := sim.AddStation(st)
	require.NoError(t, err)
}
