// Package geo decides where a new report is pinned on the map.
package geo

// Point is a WGS84 coordinate pair.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DefaultCampus is the campus center used when no location is shared.
var DefaultCampus = Point{Latitude: 39.9055, Longitude: 41.2658}

// Resolver pins submissions to a coordinate.
type Resolver struct {
	Campus Point
	// PinOutOfRegion moves fixes from outside the service region (the
	// continental US box device emulators report) onto the campus.
	PinOutOfRegion bool
}

func NewResolver(campus Point, pinOutOfRegion bool) Resolver {
	if campus.IsZero() {
		campus = DefaultCampus
	}
	return Resolver{Campus: campus, PinOutOfRegion: pinOutOfRegion}
}

// IsZero is true for the (0,0) "no location" sentinel.
func (p Point) IsZero() bool {
	return p.Latitude == 0 && p.Longitude == 0
}

// Valid reports whether p lies within WGS84 bounds.
func (p Point) Valid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// InEmulatorRegion matches the bounding box that covers the default
// locations handed out by mobile emulators.
func (p Point) InEmulatorRegion() bool {
	return p.Latitude > 25 && p.Latitude < 50 && p.Longitude > -125 && p.Longitude < -65
}

// Resolve returns the coordinate to store for a submission. Without a
// shared, valid location the campus center is used.
func (r Resolver) Resolve(share bool, p Point) Point {
	if !share || p.IsZero() || !p.Valid() {
		return r.Campus
	}
	if r.PinOutOfRegion && p.InEmulatorRegion() {
		return r.Campus
	}
	return p
}
