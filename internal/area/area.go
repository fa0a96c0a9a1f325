// Package area holds the urban / extra-urban zoning that scopes stop, path and
// segment namespaces.
package area

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"transit-core/internal/feed"
	"transit-core/internal/store"
)

var ErrUnknownClassification = errors.New("unknown area classification")

// Classification is the coarse zoning tag of an area. The zero value is not a
// valid classification.
type Classification uint8

const (
	Urban Classification = iota + 1
	ExtraUrban
)

// byteCodes is the fixed encoding used in path fingerprints. Changing a value
// invalidates every stored path id.
var byteCodes = map[Classification]byte{
	Urban:      'u',
	ExtraUrban: 'e',
}

var tags = map[Classification]string{
	Urban:      "u",
	ExtraUrban: "e",
}

// All lists the classifications in a stable order.
func All() []Classification { return []Classification{Urban, ExtraUrban} }

// Parse maps a feed tag ("u" / "e", any case) to a Classification.
func Parse(s string) (Classification, error) {
	for c, tag := range tags {
		if strings.EqualFold(tag, s) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownClassification, s)
}

// Byte returns the single-byte code used when hashing. It panics on an
// invalid classification since no valid fingerprint exists for it.
func (c Classification) Byte() byte {
	if !c.Valid() {
		panic(fmt.Sprintf("area: no byte code for classification %d", uint8(c)))
	}
	return byteCodes[c]
}

// Valid reports whether c is one of the classifications in All.
func (c Classification) Valid() bool {
	_, ok := byteCodes[c]
	return ok
}

func (c Classification) String() string {
	if tag, ok := tags[c]; ok {
		return tag
	}
	return fmt.Sprintf("Classification(%d)", uint8(c))
}

func (c Classification) MarshalJSON() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownClassification, uint8(c))
	}
	return json.Marshal(tags[c])
}

func (c *Classification) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Area is a named zone of the network.
type Area struct {
	ID    uint16         `json:"id"`
	Label string         `json:"label"`
	Type  Classification `json:"type"`
}

// FromFeed converts an upstream area record.
func FromFeed(a feed.Area) (Area, error) {
	c, err := Parse(a.Type)
	if err != nil {
		return Area{}, fmt.Errorf("area %d: %w", a.ID, err)
	}
	return Area{ID: a.ID, Label: a.Label, Type: c}, nil
}

func (Area) Collection() store.Collection { return store.Areas }
func (a Area) Key() string                { return strconv.FormatUint(uint64(a.ID), 10) }
