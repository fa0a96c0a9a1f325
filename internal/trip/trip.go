// Package trip turns upstream trip snapshots into canonical trips and decides
// how later snapshots update them.
package trip

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"transit-core/internal/area"
	"transit-core/internal/store"
)

var ErrUnknownDirection = errors.New("unknown direction code")

// Direction is the travel direction along the route.
type Direction uint8

const (
	Forward Direction = iota
	Backward
)

// DirectionFromCode maps the upstream code: 0 forward, 1 backward.
func DirectionFromCode(code uint16) (Direction, error) {
	switch code {
	case 0:
		return Forward, nil
	case 1:
		return Backward, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownDirection, code)
	}
}

func (d Direction) String() string {
	switch d {
	case Forward:
		return "f"
	case Backward:
		return "b"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

func (d Direction) MarshalJSON() ([]byte, error) {
	if d != Forward && d != Backward {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDirection, uint8(d))
	}
	return json.Marshal(d.String())
}

func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "f":
		*d = Forward
	case "b":
		*d = Backward
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDirection, s)
	}
	return nil
}

// Timestamp serializes as unix seconds.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) { return json.Marshal(t.Unix()) }

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var sec int64
	if err := json.Unmarshal(data, &sec); err != nil {
		return err
	}
	t.Time = time.Unix(sec, 0).UTC()
	return nil
}

// Trip is one vehicle run along a path. ID, Direction, Route, Headsign, Path,
// Times and Type are fixed at creation; the rest follow the live feed.
type Trip struct {
	ID         string              `json:"id"`
	Delay      int32               `json:"delay"`
	Direction  Direction           `json:"direction"`
	NextStop   *uint16             `json:"next_stop"`
	LastStop   *uint16             `json:"last_stop"`
	BusID      *uint16             `json:"bus_id"`
	Route      uint16              `json:"route"`
	Headsign   string              `json:"headsign"`
	Path       string              `json:"path"`
	Times      StopTimes           `json:"times"`
	Type       area.Classification `json:"type"`
	LastUpdate *Timestamp          `json:"last_update,omitempty"`
}

func (Trip) Collection() store.Collection { return store.Trips }
func (t Trip) Key() string                { return t.ID }

// Merge keeps current's schedule-defining fields and takes the live fields
// (delay, next and last stop, vehicle) from incoming. The result shares no
// memory with either argument.
func Merge(current, incoming Trip) Trip {
	out := current
	out.Times = current.Times.Clone()
	out.LastUpdate = cloneTimestamp(current.LastUpdate)
	out.Delay = incoming.Delay
	out.NextStop = cloneID(incoming.NextStop)
	out.LastStop = cloneID(incoming.LastStop)
	out.BusID = cloneID(incoming.BusID)
	return out
}

// DeepEqual compares every field, including the full stop time map.
func DeepEqual(a, b Trip) bool {
	return a.ID == b.ID &&
		a.Delay == b.Delay &&
		a.Direction == b.Direction &&
		equalID(a.NextStop, b.NextStop) &&
		equalID(a.LastStop, b.LastStop) &&
		equalID(a.BusID, b.BusID) &&
		a.Route == b.Route &&
		a.Headsign == b.Headsign &&
		a.Path == b.Path &&
		a.Times.Equal(b.Times) &&
		a.Type == b.Type &&
		equalTimestamp(a.LastUpdate, b.LastUpdate)
}

// IdentityEqual compares ids only.
func IdentityEqual(a, b Trip) bool { return a.ID == b.ID }

func cloneID(p *uint16) *uint16 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTimestamp(p *Timestamp) *Timestamp {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func equalID(a, b *uint16) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTimestamp(a, b *Timestamp) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(b.Time)
}
