package board

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"enroute/internal/birch"
	"enroute/internal/departures"
	"enroute/internal/geo"
	"enroute/internal/layout"
	"enroute/internal/logging"
	"enroute/internal/trip"
)

// paneFactory prepares pane i of s. It returns the pane's initial state and,
// for panes that poll, the loop keeping it current.
type paneFactory func(s *Session, i int, cfg layout.PaneConfig) (PaneState, func(context.Context))

var paneTypes = map[string]paneFactory{}

func registerPane(typ string, f paneFactory) { paneTypes[typ] = f }

func init() {
	registerPane(layout.TypeDepartures, departuresPane)
	registerPane(layout.TypeAlerts, alertsPane)
	registerPane(layout.TypeImage, imagePane)
	registerPane(layout.TypeBlank, blankPane)
	registerPane(layout.TypeEnroute, enroutePane)
}

// PaneTypes lists the registered pane type tags.
func PaneTypes() []string {
	return slices.Sorted(maps.Keys(paneTypes))
}

func buildPane(s *Session, i int, cfg layout.PaneConfig) (PaneState, func(context.Context)) {
	f, ok := paneTypes[cfg.Type]
	if !ok {
		return PaneState{Config: cfg, Err: fmt.Sprintf("unknown pane type: %s", cfg.Type)}, nil
	}
	return f(s, i, cfg)
}

type nearbyResult struct {
	resp   *birch.NearbyResponse
	origin geo.LatLon
}

// nearbyPoller polls the nearby endpoint around the pane's location, or the
// session's when the pane has none.
func (s *Session) nearbyPoller(i int, cfg layout.PaneConfig, fill func(*PaneState, nearbyResult) int) *poller[nearbyResult] {
	radius := s.radius
	if cfg.Radius > 0 {
		radius = cfg.Radius
	}
	return &poller[nearbyResult]{
		view:     s.view,
		interval: s.deps.Intervals.Pane,
		metrics:  s.deps.Metrics,
		fetch: func(ctx context.Context) (nearbyResult, error) {
			var origin geo.LatLon
			if cfg.Location != nil {
				origin = geo.LatLon{Lat: cfg.Location.Lat, Lon: cfg.Location.Lon}
			} else {
				var err error
				if origin, err = s.locate(ctx); err != nil {
					return nearbyResult{}, err
				}
			}
			resp, err := s.deps.API.Nearby(ctx, origin.Lat, origin.Lon, radius)
			if err != nil {
				return nearbyResult{}, err
			}
			return nearbyResult{resp: resp, origin: origin}, nil
		},
		apply: func(r nearbyResult, err error) int {
			n := 0
			s.updatePane(i, func(ps *PaneState) {
				if err != nil {
					logging.Warn("pane poll failed", "session", s.id, "pane", cfg.ID, "error", err)
					ps.fail(err)
					return
				}
				ps.Loading = false
				ps.Err = ""
				n = fill(ps, r)
			})
			return n
		},
	}
}

func departuresPane(s *Session, i int, cfg layout.PaneConfig) (PaneState, func(context.Context)) {
	st := PaneState{Config: cfg, Loading: true}
	if s.fedByStation(cfg) {
		return st, nil
	}
	p := s.nearbyPoller(i, cfg, func(ps *PaneState, r nearbyResult) int {
		s.fillDepartures(ps, r.resp, &r.origin, s.now())
		return len(ps.Items)
	})
	return st, p.run
}

func alertsPane(s *Session, i int, cfg layout.PaneConfig) (PaneState, func(context.Context)) {
	st := PaneState{Config: cfg, Loading: true}
	if s.fedByStation(cfg) {
		return st, nil
	}
	p := s.nearbyPoller(i, cfg, func(ps *PaneState, r nearbyResult) int {
		ps.Alerts = nil
		if r.resp != nil {
			ps.Alerts = departures.ActiveAlerts(r.resp.Alerts)
		}
		return len(ps.Alerts)
	})
	return st, p.run
}

func imagePane(_ *Session, _ int, cfg layout.PaneConfig) (PaneState, func(context.Context)) {
	url := cfg.ImageURL
	if url == "" {
		url = layout.DefaultImageURL
	}
	return PaneState{Config: cfg, ImageURL: url}, nil
}

func blankPane(_ *Session, _ int, cfg layout.PaneConfig) (PaneState, func(context.Context)) {
	return PaneState{Config: cfg}, nil
}

// enroutePane follows one trip inside the grid. It never announces.
func enroutePane(s *Session, i int, cfg layout.PaneConfig) (PaneState, func(context.Context)) {
	if cfg.Chateau == "" || cfg.Trip == "" {
		return PaneState{Config: cfg, Err: ErrNeedTrip.Error()}, nil
	}
	p := &poller[*birch.TripResponse]{
		view:     s.view,
		interval: s.deps.Intervals.Trip,
		metrics:  s.deps.Metrics,
		fetch: func(ctx context.Context) (*birch.TripResponse, error) {
			return s.deps.API.Trip(ctx, cfg.Chateau, cfg.Trip)
		},
		apply: func(resp *birch.TripResponse, err error) int {
			var info trip.Info
			if err == nil {
				info, err = trip.Build(resp, cfg.Chateau, cfg.Trip, s.now(), s.use24h, s.portrait)
			}
			n := 0
			s.updatePane(i, func(ps *PaneState) {
				if err != nil {
					ps.fail(err)
					return
				}
				ps.Trip = &info
				ps.Loading = false
				ps.Err = ""
				n = len(info.Stops)
			})
			return n
		},
	}
	return PaneState{Config: cfg, Loading: true}, p.run
}
