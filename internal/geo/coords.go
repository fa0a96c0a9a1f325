// Package geo holds positions and geometry encoding.
package geo

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/twpayne/go-polyline"
)

// Coords is a WGS84 position. It serializes as [lat, lng].
type Coords struct {
	Lat float64
	Lng float64
}

func NewCoords(lat, lng float64) Coords { return Coords{Lat: lat, Lng: lng} }

// Distance is the haversine distance in meters.
func (c Coords) Distance(o Coords) float64 {
	const R = 6371000.0
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(o.Lat - c.Lat)
	dLng := toRad(o.Lng - c.Lng)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(c.Lat))*math.Cos(toRad(o.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return R * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// OSRMQuery renders the "lng,lat" form used by OSRM route requests.
func (c Coords) OSRMQuery() string {
	return strconv.FormatFloat(c.Lng, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lat, 'f', -1, 64)
}

func (c Coords) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{c.Lat, c.Lng})
}

// UnmarshalJSON requires exactly two numbers. The larger one is taken as the
// latitude: some producers emit [lng, lat], and in the served region latitude
// always exceeds longitude.
func (c *Coords) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("coords: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("coords: expected [lat, lng], got %d values", len(pair))
	}
	if pair[0] > pair[1] {
		c.Lat, c.Lng = pair[0], pair[1]
	} else {
		c.Lat, c.Lng = pair[1], pair[0]
	}
	return nil
}

// EncodePolyline encodes coords as a precision-5 polyline in (lat, lng) order.
func EncodePolyline(coords []Coords) string {
	if len(coords) == 0 {
		return ""
	}
	pts := make([][]float64, 0, len(coords))
	for _, c := range coords {
		pts = append(pts, []float64{c.Lat, c.Lng})
	}
	return string(polyline.EncodeCoords(pts))
}

// DecodePolyline reverses EncodePolyline.
func DecodePolyline(s string) ([]Coords, error) {
	if s == "" {
		return nil, nil
	}
	pts, rest, err := polyline.DecodeCoords([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("polyline: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("polyline: %d trailing bytes", len(rest))
	}
	out := make([]Coords, 0, len(pts))
	for _, p := range pts {
		out = append(out, Coords{Lat: p[0], Lng: p[1]})
	}
	return out, nil
}
