package flow

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	london := GPS{Lat: 51.5074, Lng: -0.1278}
	paris := GPS{Lat: 48.8566, Lng: 2.3522}

	assert.InDelta(t, 343.5, Distance(london, paris), 1.0)
	assert.Equal(t, 0.0, Distance(london, london))

	// One degree of longitude on the equator.
	assert.InDelta(t, 111.19, Distance(GPS{0, 0}, GPS{0, 1}), 0.01)
}

func TestDistance_Symmetric(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	for i := 0; i < 500; i++ {
		a := RandomGlobalGPS(rnd)
		b := RandomGlobalGPS(rnd)
		assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
		assert.InDelta(t, 0.0, Distance(a, a), 1e-9)
	}
}

func TestFindNearest(t *testing.T) {
	far := Station{ID: "SB-01", GPS: &GPS{Lat: 0, Lng: 10}}
	near := Station{ID: "SB-02", GPS: &GPS{Lat: 0, Lng: 1}}
	twin := Station{ID: "SB-03", GPS: &GPS{Lat: 0, Lng: 1}}
	noGPS := Station{ID: "SB-04"}

	t.Run("closest wins", func(t *testing.T) {
		got, ok := FindNearest([]Station{far, near}, GPS{})
		assert.True(t, ok)
		assert.Equal(t, "SB-02", got.ID)
	})

	t.Run("ties go to the first candidate", func(t *testing.T) {
		got, ok := FindNearest([]Station{twin, near, far}, GPS{})
		assert.True(t, ok)
		assert.Equal(t, "SB-03", got.ID)
	})

	t.Run("candidates without gps are skipped", func(t *testing.T) {
		got, ok := FindNearest([]Station{noGPS, far}, GPS{})
		assert.True(t, ok)
		assert.Equal(t, "SB-01", got.ID)
	})

	t.Run("no usable candidate", func(t *testing.T) {
		_, ok := FindNearest([]Station{noGPS}, GPS{})
		assert.False(t, ok)

		_, ok = FindNearest(nil, GPS{})
		assert.False(t, ok)
	})
}
