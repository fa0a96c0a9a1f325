package path

import (
	"encoding/json"
	"slices"
	"strconv"

	"transit-core/internal/area"
	"transit-core/internal/geo"
	"transit-core/internal/network"
	"transit-core/internal/store"
)

// Path is a directed stop sequence, keyed by its fingerprint.
type Path struct {
	ID          string              `json:"id"`
	Type        area.Classification `json:"type"`
	Sequence    []uint16            `json:"sequence"`
	RoutingType network.RoutingType `json:"rty"`
}

func New(seq []uint16, c area.Classification, rt network.RoutingType) Path {
	return Path{ID: Fingerprint(c, seq), Type: c, Sequence: seq, RoutingType: rt}
}

// FromPairs builds a path from chained edges.
func FromPairs(pairs []Pair, c area.Classification, rt network.RoutingType) (Path, error) {
	seq, err := SequenceFromPairs(pairs)
	if err != nil {
		return Path{}, err
	}
	return New(seq, c, rt), nil
}

// Segments lists the consecutive stop pairs; paths of fewer than two stops
// have none.
func (p Path) Segments() []Pair {
	if len(p.Sequence) < 2 {
		return nil
	}
	out := make([]Pair, 0, len(p.Sequence)-1)
	for i := 1; i < len(p.Sequence); i++ {
		out = append(out, Pair{From: p.Sequence[i-1], To: p.Sequence[i]})
	}
	return out
}

// Equal reports whether both paths have the same id or the same sequence.
func (p Path) Equal(o Path) bool {
	return p.ID == o.ID || slices.Equal(p.Sequence, o.Sequence)
}

func (p Path) HasSequence(seq []uint16) bool { return slices.Equal(p.Sequence, seq) }

func (Path) Collection() store.Collection { return store.Paths }
func (p Path) Key() string                { return p.ID }

// UnmarshalJSON defaults a missing routing type to bus, as older documents
// were written before the field existed.
func (p *Path) UnmarshalJSON(data []byte) error {
	type plain Path
	aux := struct {
		*plain
		RoutingType *network.RoutingType `json:"rty"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.RoutingType = network.Bus
	if aux.RoutingType != nil {
		p.RoutingType = *aux.RoutingType
	}
	return nil
}

// Segment is the geometry between two consecutive stops of one
// classification.
type Segment struct {
	From     uint16              `json:"from"`
	To       uint16              `json:"to"`
	Type     area.Classification `json:"type"`
	Geometry []geo.Coords        `json:"geometry"`
}

func NewSegment(from, to uint16, c area.Classification, geometry []geo.Coords) Segment {
	return Segment{From: from, To: to, Type: c, Geometry: geometry}
}

// Equal compares identity only; geometry is ignored.
func (s Segment) Equal(o Segment) bool {
	return s.Type == o.Type && s.From == o.From && s.To == o.To
}

func (Segment) Collection() store.Collection { return store.Segments }

func (s Segment) Key() string {
	return strconv.FormatUint(uint64(s.From), 10) + "-" + strconv.FormatUint(uint64(s.To), 10) + "-" + s.Type.String()
}

// PolySegment is the export form of a Segment with encoded geometry.
type PolySegment struct {
	From     uint16              `json:"from"`
	To       uint16              `json:"to"`
	Type     area.Classification `json:"type"`
	Geometry string              `json:"geometry"`
}

func (s Segment) Poly() PolySegment {
	return PolySegment{From: s.From, To: s.To, Type: s.Type, Geometry: geo.EncodePolyline(s.Geometry)}
}
