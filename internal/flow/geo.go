package flow

import "math"

const earthRadiusKm = 6371.0

// Distance returns the great-circle distance in kilometres (haversine).
func Distance(a, b GPS) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// FindNearest scans candidates with a known GPS and returns the closest to ref.
// Ties go to the first candidate encountered. ok is false when no candidate has a GPS.
func FindNearest(candidates []Station, ref GPS) (nearest Station, ok bool) {
	best := math.Inf(1)
	for _, c := range candidates {
		if c.GPS == nil {
			continue
		}
		if d := Distance(ref, *c.GPS); d < best {
			best = d
			nearest = c
			ok = true
		}
	}
	return nearest, ok
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
