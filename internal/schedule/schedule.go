// Package schedule binds trips to the calendar instants they depart at.
package schedule

import (
	"strconv"
	"time"

	"transit-core/internal/area"
	"transit-core/internal/store"
	"transit-core/internal/trip"
)

// Schedule is a trip departing at one instant. Identity is (ID, Departure);
// the remaining fields are copied from the trip so readers can filter
// schedules without loading it.
type Schedule struct {
	ID        string              `json:"id"`
	Departure trip.Timestamp      `json:"departure"`
	Route     uint16              `json:"route"`
	Direction trip.Direction      `json:"direction"`
	Path      string              `json:"path"`
	Type      area.Classification `json:"type"`
}

// New resolves dep on the service date day and copies the identifying
// fields of t.
func New(t trip.Trip, day time.Time, dep trip.Departure) Schedule {
	s := FromID(t.ID, dep.On(day))
	s.Route = t.Route
	s.Direction = t.Direction
	s.Path = t.Path
	s.Type = t.Type
	return s
}

// FromID builds a schedule with identity only.
func FromID(id string, departure time.Time) Schedule {
	return Schedule{ID: id, Departure: trip.Timestamp{Time: departure.Truncate(time.Second)}}
}

// Equal compares identity only.
func (s Schedule) Equal(o Schedule) bool {
	return s.ID == o.ID && s.Departure.Equal(o.Departure.Time)
}

func (Schedule) Collection() store.Collection { return store.Schedules }

func (s Schedule) Key() string {
	return s.ID + "@" + strconv.FormatInt(s.Departure.Unix(), 10)
}

// Set collects schedules by identity.
type Set map[string]Schedule

// Add stores s and reports whether it was not already present.
func (set Set) Add(s Schedule) bool {
	k := s.Key()
	if _, ok := set[k]; ok {
		return false
	}
	set[k] = s
	return true
}

func (set Set) Has(s Schedule) bool {
	_, ok := set[s.Key()]
	return ok
}
