package trip

import (
	"errors"
	"fmt"
	"math"
	"time"

	"transit-core/internal/area"
	"transit-core/internal/feed"
	"transit-core/internal/path"
)

var ErrMissingReferenceStop = errors.New("no stop time with sequence 1")

// RolloverCutoff is the time of day before which a reference departure is
// taken to belong to the following calendar day.
const RolloverCutoff = 4 * time.Hour

// Departure is the resolved reference departure, measured from midnight of
// the service date. Values of 24h or more fall on the next calendar day.
type Departure time.Duration

// Rollover reports whether the departure was moved to the next day.
func (d Departure) Rollover() bool { return time.Duration(d) >= 24*time.Hour }

// On returns the departure instant for the service date day, in day's
// location. The wall clock is kept across DST changes.
func (d Departure) On(day time.Time) time.Time {
	sec := int(time.Duration(d) / time.Second)
	y, m, dd := day.Date()
	return time.Date(y, m, dd, 0, 0, sec, 0, day.Location())
}

func (d Departure) String() string {
	s := feed.Clock(int32(time.Duration(d) % (24 * time.Hour) / time.Second)).String()
	if d.Rollover() {
		return s + "+1"
	}
	return s
}

// Normalize builds a canonical Trip from a feed snapshot. Stop time offsets are
// relative to the departure of the sequence-1 stop; the returned Departure is
// that reference, moved to the next day when it is before RolloverCutoff.
func Normalize(raw feed.Trip) (Trip, Departure, error) {
	class, err := area.Parse(raw.Type)
	if err != nil {
		return Trip{}, 0, fmt.Errorf("trip %s: %w", raw.ID, err)
	}
	dir, err := DirectionFromCode(raw.Direction)
	if err != nil {
		return Trip{}, 0, fmt.Errorf("trip %s: %w", raw.ID, err)
	}

	var (
		ref   time.Duration
		found bool
	)
	for _, st := range raw.StopTimes {
		if st.Sequence == 1 {
			ref = st.Departure.Duration()
			found = true
			break
		}
	}
	if !found {
		return Trip{}, 0, fmt.Errorf("trip %s: %w", raw.ID, ErrMissingReferenceStop)
	}

	times := NewStopTimes()
	seq := make([]uint16, 0, len(raw.StopTimes))
	for _, st := range raw.StopTimes {
		times.Set(st.Stop, StopTime{
			Arrival:   st.Arrival.Duration() - ref,
			Departure: st.Departure.Duration() - ref,
		})
		seq = append(seq, st.Stop)
	}

	dep := Departure(ref)
	if ref < RolloverCutoff {
		dep += Departure(24 * time.Hour)
	}

	t := Trip{
		ID:        raw.ID,
		Direction: dir,
		NextStop:  stopPointer(raw.NextStop),
		LastStop:  stopPointer(raw.LastStop),
		BusID:     cloneID(raw.BusID),
		Route:     raw.Route,
		Headsign:  raw.Headsign,
		Path:      path.Fingerprint(class, seq),
		Times:     times,
		Type:      class,
	}
	if raw.Delay != nil {
		t.Delay = truncDelay(*raw.Delay)
	}
	if raw.LastEvent != nil {
		t.LastUpdate = &Timestamp{Time: raw.LastEvent.Truncate(time.Second)}
	}
	return t, dep, nil
}

// truncDelay truncates seconds of delay toward zero, saturating at the int32
// range. NaN is no delay.
func truncDelay(f float64) int32 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

// stopPointer maps the feed's 0 sentinel to no stop.
func stopPointer(id uint16) *uint16 {
	if id == 0 {
		return nil
	}
	return &id
}
