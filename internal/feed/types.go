// Package feed describes records as the upstream transit API produces them.
// Values here are untrusted; canonical types are built from them elsewhere.
package feed

import "time"

type Area struct {
	ID    uint16 `json:"areaId"`
	Label string `json:"areaDesc"`
	Type  string `json:"type"`
}

type Stop struct {
	ID                 uint16  `json:"stopId"`
	Code               string  `json:"stopCode"`
	Description        string  `json:"stopDesc"`
	Lat                float64 `json:"stopLat"`
	Lon                float64 `json:"stopLon"`
	Altitude           int32   `json:"stopLevel"`
	Name               string  `json:"stopName"`
	Street             *string `json:"street"`
	Town               *string `json:"town"`
	Type               string  `json:"type"`
	WheelchairBoarding bool    `json:"wheelchairBoarding"`
}

type Route struct {
	ID        uint16 `json:"routeId"`
	Type      uint16 `json:"routeType"`
	Area      uint16 `json:"areaId"`
	Color     string `json:"routeColor"`
	LongName  string `json:"routeLongName"`
	ShortName string `json:"routeShortName"`
}

// StopTime is one call of a trip at a stop. Sequence is 1-based.
type StopTime struct {
	Sequence  uint16 `json:"stopSequence"`
	Stop      uint16 `json:"stopId"`
	Arrival   Clock  `json:"arrivalTime"`
	Departure Clock  `json:"departureTime"`
}

// Trip is a snapshot of one vehicle run. NextStop and LastStop use 0 for
// "none"; Direction is 0 (forward) or 1 (backward).
type Trip struct {
	ID        string     `json:"tripId"`
	Delay     *float64   `json:"delay"`
	Direction uint16     `json:"directionId"`
	NextStop  uint16     `json:"stopNext"`
	LastStop  uint16     `json:"stopLast"`
	BusID     *uint16    `json:"matricolaBus"`
	Route     uint16     `json:"routeId"`
	Type      string     `json:"type"`
	Headsign  string     `json:"tripHeadsign"`
	StopTimes []StopTime `json:"stopTimes"`
	LastEvent *time.Time `json:"lastEventRecivedAt"`
}

// Sequence lists the visited stop ids in entry order.
func (t Trip) Sequence() []uint16 {
	seq := make([]uint16, 0, len(t.StopTimes))
	for _, st := range t.StopTimes {
		seq = append(seq, st.Stop)
	}
	return seq
}
