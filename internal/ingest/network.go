package ingest

import (
	"context"

	"transit-core/internal/area"
	"transit-core/internal/feed"
	"transit-core/internal/network"
)

// Network is one upstream snapshot of the static network.
type Network struct {
	Areas  []feed.Area  `json:"areas"`
	Stops  []feed.Stop  `json:"stops"`
	Routes []feed.Route `json:"routes"`
}

type NetworkResult struct {
	Areas    int
	Stops    int
	Routes   int
	Rejected int
}

// LoadNetwork stores the network entities and replaces the stop and route
// indexes used by Process. Records that fail conversion are skipped.
func (p *Pipeline) LoadNetwork(ctx context.Context, n Network) (NetworkResult, error) {
	var res NetworkResult

	for _, raw := range n.Areas {
		a, err := area.FromFeed(raw)
		if err != nil {
			p.logger.Warn().Err(err).Uint16("area_id", raw.ID).Msg("area rejected")
			res.Rejected++
			continue
		}
		if err := p.repo.Put(ctx, a); err != nil {
			return res, err
		}
		res.Areas++
	}

	stops := area.NewPartitioned[network.Stop]()
	for _, raw := range n.Stops {
		s, err := network.StopFromFeed(raw)
		if err != nil {
			p.logger.Warn().Err(err).Uint16("stop_id", raw.ID).Msg("stop rejected")
			res.Rejected++
			continue
		}
		if err := p.repo.Put(ctx, s); err != nil {
			return res, err
		}
		stops.Insert(s)
		res.Stops++
	}

	routes := make(map[uint16]network.Route, len(n.Routes))
	for _, raw := range n.Routes {
		r := network.RouteFromFeed(raw)
		if _, err := r.RoutingType(); err != nil {
			p.logger.Debug().Err(err).Uint16("route_id", r.ID).Msg("route defaults to bus paths")
		}
		if err := p.repo.Put(ctx, r); err != nil {
			return res, err
		}
		routes[r.ID] = r
		res.Routes++
	}

	// Indexes are built privately above and only swapped in under the
	// write lock, so Process never sees a partial index.
	p.mu.Lock()
	p.stops = stops
	p.routes = routes
	p.mu.Unlock()

	p.logger.Info().
		Int("areas", res.Areas).
		Int("stops", res.Stops).
		Int("routes", res.Routes).
		Int("rejected", res.Rejected).
		Msg("network loaded")
	return res, nil
}
