package flow

import (
	"math"
	"math/rand"
	"time"
)

// Random is the source of randomness used by the simulator. *rand.Rand satisfies it.
type Random interface {
	Float64() float64
	Intn(n int) int
}

// NewRandom returns a seeded source; seed 0 seeds from the clock.
func NewRandom(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// dataLossProbability is the chance that any single sensor field is missing in a tick.
const dataLossProbability = 0.1

type zone struct {
	name           string
	latMin, latMax float64
	lngMin, lngMax float64
}

var deliveryZones = []zone{
	{name: "Europe", latMin: 35.0, latMax: 60.0, lngMin: -10.0, lngMax: 25.0},
	{name: "North America", latMin: 25.0, latMax: 50.0, lngMin: -125.0, lngMax: -70.0},
	{name: "Asia Pacific", latMin: 10.0, latMax: 45.0, lngMin: 100.0, lngMax: 145.0},
	{name: "South America", latMin: -35.0, latMax: 5.0, lngMin: -75.0, lngMax: -35.0},
	{name: "Australia", latMin: -40.0, latMax: -10.0, lngMin: 110.0, lngMax: 155.0},
}

// RandomTemperature returns °C in [15.0, 40.0) rounded to one decimal, or nil on data loss.
func RandomTemperature(r Random) *float64 {
	if r.Float64() < dataLossProbability {
		return nil
	}
	v := Round(r.Float64()*25+15, 1)
	return &v
}

// RandomHumidity returns a relative humidity percentage in [30, 90), or nil on data loss.
func RandomHumidity(r Random) *int {
	if r.Float64() < dataLossProbability {
		return nil
	}
	v := r.Intn(60) + 30
	return &v
}

// RandomLight returns lux in [0, 1000), or nil on data loss.
func RandomLight(r Random) *int {
	if r.Float64() < dataLossProbability {
		return nil
	}
	v := r.Intn(1000)
	return &v
}

// RandomGlobalGPS picks one delivery zone uniformly and samples a point inside it.
func RandomGlobalGPS(r Random) GPS {
	z := deliveryZones[r.Intn(len(deliveryZones))]
	return GPS{
		Lat: Round(r.Float64()*(z.latMax-z.latMin)+z.latMin, 6),
		Lng: Round(r.Float64()*(z.lngMax-z.lngMin)+z.lngMin, 6),
	}
}

// Connectivity is Disconnected iff any reading is absent.
func Connectivity(temperature *float64, humidity, light *int, gps *GPS) Status {
	if temperature == nil || humidity == nil || light == nil || gps == nil {
		return StatusDisconnected
	}
	return StatusConnected
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
