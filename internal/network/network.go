// Package network holds the stop and route entities of the transit network.
package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"transit-core/internal/area"
	"transit-core/internal/feed"
	"transit-core/internal/geo"
	"transit-core/internal/store"
)

var ErrUnknownRouteType = errors.New("unknown route type")

// Stop is a boarding point. IDs are unique within one classification.
type Stop struct {
	ID                 uint16              `json:"id"`
	Code               string              `json:"code"`
	Description        string              `json:"description"`
	Position           geo.Coords          `json:"position"`
	Altitude           int32               `json:"altitude"`
	Name               string              `json:"name"`
	Street             *string             `json:"street"`
	Town               *string             `json:"town"`
	Type               area.Classification `json:"type"`
	WheelchairBoarding bool                `json:"wheelchair_boarding"`
}

// StopFromFeed converts an upstream stop record.
func StopFromFeed(s feed.Stop) (Stop, error) {
	c, err := area.Parse(s.Type)
	if err != nil {
		return Stop{}, fmt.Errorf("stop %d: %w", s.ID, err)
	}
	return Stop{
		ID:                 s.ID,
		Code:               s.Code,
		Description:        s.Description,
		Position:           geo.NewCoords(s.Lat, s.Lon),
		Altitude:           s.Altitude,
		Name:               s.Name,
		Street:             s.Street,
		Town:               s.Town,
		Type:               c,
		WheelchairBoarding: s.WheelchairBoarding,
	}, nil
}

func (s Stop) Class() area.Classification { return s.Type }
func (s Stop) EntityID() uint16           { return s.ID }
func (Stop) Collection() store.Collection { return store.Stops }
func (s Stop) Key() string                { return s.Type.String() + ":" + strconv.FormatUint(uint64(s.ID), 10) }

// Route is a named line. Type is the upstream route type code.
type Route struct {
	ID    uint16 `json:"id"`
	Type  uint16 `json:"type"`
	Area  uint16 `json:"area"`
	Color string `json:"color"`
	Name  string `json:"name"`
	Code  string `json:"code"`
}

// RouteFromFeed converts an upstream route record.
func RouteFromFeed(r feed.Route) Route {
	return Route{
		ID:    r.ID,
		Type:  r.Type,
		Area:  r.Area,
		Color: r.Color,
		Name:  r.LongName,
		Code:  r.ShortName,
	}
}

func (Route) Collection() store.Collection { return store.Routes }
func (r Route) Key() string                { return strconv.FormatUint(uint64(r.ID), 10) }

// RoutingType selects the road/rail network used to route a path's geometry.
type RoutingType uint8

const (
	Bus RoutingType = iota
	Railway
	Cableway
)

var routingNames = map[RoutingType]string{
	Bus:      "bus",
	Railway:  "railway",
	Cableway: "cableway",
}

// routeTypes maps upstream route type codes (GTFS route_type values) to a
// routing category.
var routeTypes = map[uint16]RoutingType{
	0:  Railway, // tram
	1:  Railway, // metro
	2:  Railway,
	3:  Bus,
	5:  Cableway, // cable tram
	6:  Cableway, // aerial lift
	7:  Cableway, // funicular
	11: Bus,      // trolleybus
	12: Railway,  // monorail
}

// RoutingType derives the routing category from the route type code.
func (r Route) RoutingType() (RoutingType, error) {
	rt, ok := routeTypes[r.Type]
	if !ok {
		return 0, fmt.Errorf("%w: route %d has type %d", ErrUnknownRouteType, r.ID, r.Type)
	}
	return rt, nil
}

func (t RoutingType) String() string {
	if s, ok := routingNames[t]; ok {
		return s
	}
	return fmt.Sprintf("RoutingType(%d)", uint8(t))
}

func (t RoutingType) MarshalJSON() ([]byte, error) {
	s, ok := routingNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown routing type %d", uint8(t))
	}
	return json.Marshal(s)
}

func (t *RoutingType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for k, name := range routingNames {
		if name == s {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown routing type %q", s)
}
