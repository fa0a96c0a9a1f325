package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"transit-core/internal/feed"
	"transit-core/internal/trip"
)

var ErrInvalidServiceDate = errors.New("invalid service date")

const dateLayout = "2006-01-02"

// Batch is one feed message: the trips of one service date. A bare JSON
// array of trips decodes as a Batch without a date.
type Batch struct {
	Date  string      `json:"date,omitempty"` // YYYY-MM-DD
	Trips []feed.Trip `json:"trips"`
}

func (b *Batch) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimLeft(data, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '[' {
		*b = Batch{}
		return json.Unmarshal(trimmed, &b.Trips)
	}
	type plain Batch
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = Batch(v)
	return nil
}

// ServiceDate returns midnight of the batch's service date in loc. Without a
// date it falls back to now, taken as the previous day before
// trip.RolloverCutoff.
func (b Batch) ServiceDate(now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if b.Date != "" {
		d, err := time.ParseInLocation(dateLayout, b.Date, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidServiceDate, b.Date)
		}
		return d, nil
	}

	now = now.In(loc)
	y, m, d := now.Date()
	h, mi, s := now.Clock()
	if time.Duration(h)*time.Hour+time.Duration(mi)*time.Minute+time.Duration(s)*time.Second < trip.RolloverCutoff {
		d--
	}
	return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
}
