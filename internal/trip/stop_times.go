package trip

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"
)

var ErrInvalidStopKey = errors.New("stop time key is not a stop id")

// StopTime is an arrival/departure pair relative to the trip's reference
// departure. Offsets serialize as whole seconds.
type StopTime struct {
	Arrival   time.Duration
	Departure time.Duration
}

type stopTimeJSON struct {
	Arrival   int64 `json:"arrival"`
	Departure int64 `json:"departure"`
}

func (st StopTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(stopTimeJSON{
		Arrival:   int64(st.Arrival / time.Second),
		Departure: int64(st.Departure / time.Second),
	})
}

func (st *StopTime) UnmarshalJSON(data []byte) error {
	var v stopTimeJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	st.Arrival = time.Duration(v.Arrival) * time.Second
	st.Departure = time.Duration(v.Departure) * time.Second
	return nil
}

// StopTimes maps stop ids to offsets. On the wire keys are decimal strings.
type StopTimes struct {
	m map[uint16]StopTime
}

func NewStopTimes() StopTimes { return StopTimes{m: make(map[uint16]StopTime)} }

// Set stores st for stop, replacing any previous entry.
func (s *StopTimes) Set(stop uint16, st StopTime) {
	if s.m == nil {
		s.m = make(map[uint16]StopTime)
	}
	s.m[stop] = st
}

func (s StopTimes) Has(stop uint16) bool {
	_, ok := s.m[stop]
	return ok
}

func (s StopTimes) Get(stop uint16) (StopTime, bool) {
	st, ok := s.m[stop]
	return st, ok
}

func (s StopTimes) Len() int { return len(s.m) }

// Stops returns the stop ids in ascending order.
func (s StopTimes) Stops() []uint16 {
	var keys []uint16
	for k := range s.m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (s StopTimes) Equal(o StopTimes) bool { return maps.Equal(s.m, o.m) }

func (s StopTimes) Clone() StopTimes {
	if s.m == nil {
		return StopTimes{}
	}
	return StopTimes{m: maps.Clone(s.m)}
}

func (s StopTimes) MarshalJSON() ([]byte, error) {
	out := make(map[string]StopTime, len(s.m))
	for k, v := range s.m {
		out[strconv.FormatUint(uint64(k), 10)] = v
	}
	return json.Marshal(out)
}

func (s *StopTimes) UnmarshalJSON(data []byte) error {
	var in map[string]StopTime
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	m := make(map[uint16]StopTime, len(in))
	for k, v := range in {
		id, err := strconv.ParseUint(k, 10, 16)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidStopKey, k)
		}
		m[uint16(id)] = v
	}
	s.m = m
	return nil
}
