package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidClock = errors.New("invalid time of day")

// Clock is a time of day in whole seconds since midnight, in [0, 24h).
type Clock int32

// NewClock builds a Clock from its parts, without range checks.
func NewClock(h, m, s int) Clock { return Clock(h*3600 + m*60 + s) }

// ParseClock parses HH:MM or HH:MM:SS.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	vals := [3]int{}
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
		vals[i] = v
	}
	h, m, sec := vals[0], vals[1], vals[2]
	if h > 23 || m > 59 || sec > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return NewClock(h, m, sec), nil
}

// Duration is the offset from midnight.
func (c Clock) Duration() time.Duration { return time.Duration(c) * time.Second }

func (c Clock) String() string {
	v := int(c)
	return fmt.Sprintf("%02d:%02d:%02d", v/3600, (v%3600)/60, v%60)
}

func (c Clock) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

// UnmarshalJSON accepts "HH:MM[:SS]". Null and "" decode to midnight, which is
// how the upstream API reports an unknown time.
func (c *Clock) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = 0
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidClock, data)
	}
	if s == "" {
		*c = 0
		return nil
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
