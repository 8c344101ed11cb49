// Package board runs the display views: it owns their poll timers, feeds the
// normalizers and the announcer, and delivers snapshots to a Sink.
package board

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"enroute/internal/agency"
	"enroute/internal/birch"
	"enroute/internal/departures"
	"enroute/internal/enunciator"
	"enroute/internal/geo"
	"enroute/internal/layout"
	"enroute/internal/logging"
	"enroute/internal/settings"
	"enroute/internal/trip"
)

var (
	ErrNeedTrip = errors.New("trip ID and chateau must be provided")
	ErrNeedStop = errors.New("stop ID and chateau must be provided")
)

const (
	DefaultRadius = 1500.0
	StationRadius = 500.0
)

// Upstream is the part of *birch.Client the boards poll.
type Upstream interface {
	Nearby(ctx context.Context, lat, lon, radius float64) (*birch.NearbyResponse, error)
	StopDepartures(ctx context.Context, chateau, stopID string, from time.Time) (*birch.StopResponse, error)
	Trip(ctx context.Context, chateau, tripID string) (*birch.TripResponse, error)
}

type Locator interface {
	Locate(ctx context.Context, override *geo.LatLon) (geo.LatLon, geo.Source, error)
}

type Metrics interface {
	StaleInc(view string)
	PollObserve(view string, items int, d time.Duration)
	SessionsSet(n int)
}

// Announcer receives announcement requests; *enunciator.Sequencer is one.
type Announcer interface {
	Trigger(req enunciator.Request)
	Close()
}

type Intervals struct {
	Trip     time.Duration
	Station  time.Duration
	Pane     time.Duration
	Announce time.Duration
}

func DefaultIntervals() Intervals {
	return Intervals{
		Trip:     time.Second,
		Station:  4 * time.Second,
		Pane:     30 * time.Second,
		Announce: 60 * time.Second,
	}
}

// Deps are the collaborators shared by every session.
type Deps struct {
	API      Upstream
	Locator  Locator
	Settings settings.Resolver
	Layouts  settings.Store
	Sink     Sink
	Metrics  Metrics
	// NewAnnouncer builds the announcer of one trip or station session. caption
	// receives its caption changes. Nil disables announcements.
	NewAnnouncer func(caption func(string)) Announcer
	Intervals    Intervals
	Now          func() time.Time
	Location     *time.Location
}

func (d Deps) withDefaults() Deps {
	def := DefaultIntervals()
	if d.Intervals.Trip <= 0 {
		d.Intervals.Trip = def.Trip
	}
	if d.Intervals.Station <= 0 {
		d.Intervals.Station = def.Station
	}
	if d.Intervals.Pane <= 0 {
		d.Intervals.Pane = def.Pane
	}
	if d.Intervals.Announce <= 0 {
		d.Intervals.Announce = def.Announce
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	return d
}

// Session is one running view.
type Session struct {
	view string
	id   string
	deps Deps

	use24h   bool
	portrait bool
	modes    []int
	radius   float64
	override *geo.LatLon
	chateau  string
	stopID   string
	tripID   string
	loops    []func(context.Context)

	// touched only from the trip poller's apply, which never runs concurrently
	announcer Announcer
	welcomed  bool
	lastKey   string

	locMu     sync.Mutex
	located   bool
	origin    geo.LatLon
	originErr error

	mu   sync.Mutex
	snap Snapshot
}

// NewSession resolves the view's settings and layout. Nothing is fetched
// until Run.
func NewSession(ctx context.Context, view string, d Deps) (*Session, error) {
	d = d.withDefaults()
	r := d.Settings
	s := &Session{
		view:     view,
		deps:     d,
		use24h:   r.Bool(ctx, "24h", true),
		portrait: r.Bool(ctx, "portrait", false),
		modes:    r.Modes(ctx),
		radius:   DefaultRadius,
		chateau:  r.Get(ctx, "chateau", ""),
		stopID:   r.Get(ctx, "stop", ""),
		tripID:   r.Get(ctx, "trip", ""),
	}
	lat, okLat := r.Float(ctx, "lat")
	lon, okLon := r.Float(ctx, "lon")
	if okLat && okLon {
		s.override = &geo.LatLon{Lat: lat, Lon: lon}
	}

	var lay layout.LayoutConfig
	title := ""
	switch view {
	case ViewNearby:
		s.id = ViewNearby
		title = "Nearby departures"
		lay = layout.LayoutConfig{Rows: 1, Cols: 1, Panes: []layout.PaneConfig{{
			ID:            ViewNearby,
			Type:          layout.TypeDepartures,
			DisplayMode:   layout.ModeSimple,
			AllowedModes:  s.modes,
			UseRouteColor: true,
		}}}
	case ViewGrid:
		s.id = ViewGrid
		lay = layout.DefaultGrid()
		if d.Layouts != nil {
			lay = layout.NewGridStore(d.Layouts).Load(ctx)
		}
	case ViewStation:
		if s.chateau == "" || s.stopID == "" {
			return nil, ErrNeedStop
		}
		s.id = ViewStation + ":" + s.chateau + "/" + s.stopID
		s.radius = StationRadius
		title = s.stopID
		lay = layout.DefaultStation()
		if d.Layouts != nil {
			lay = layout.NewStationStore(d.Layouts).Load(ctx)
		}
	case ViewTrip:
		if s.chateau == "" || s.tripID == "" {
			return nil, ErrNeedTrip
		}
		s.id = ViewTrip + ":" + s.chateau + "/" + s.tripID
	default:
		return nil, fmt.Errorf("unknown view %q", view)
	}
	if radius, ok := r.Float(ctx, "radius"); ok && radius > 0 {
		s.radius = radius
	}

	s.snap = Snapshot{
		View:    view,
		Session: s.id,
		Title:   title,
		Use24h:  s.use24h,
		Theme:   r.Get(ctx, "theme", "default"),
		Loading: view == ViewStation || view == ViewTrip,
	}
	if len(lay.Panes) > 0 {
		s.snap.Rows, s.snap.Cols = lay.Rows, lay.Cols
		s.snap.Panes = make([]PaneState, len(lay.Panes))
		for i, cfg := range lay.Panes {
			st, loop := buildPane(s, i, cfg)
			s.snap.Panes[i] = st
			if loop != nil {
				s.loops = append(s.loops, loop)
			}
		}
	}
	return s, nil
}

func (s *Session) View() string { return s.view }
func (s *Session) ID() string   { return s.id }

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Run polls until ctx is done, then stops the announcer and returns once
// every loop has exited.
func (s *Session) Run(ctx context.Context) {
	if s.deps.NewAnnouncer != nil && (s.view == ViewTrip || s.view == ViewStation) {
		s.announcer = s.deps.NewAnnouncer(s.setCaption)
		defer s.announcer.Close()
	}
	s.update(func(*Snapshot) {})

	loops := slices.Clone(s.loops)
	switch s.view {
	case ViewTrip:
		loops = append(loops, s.tripPoller().run)
	case ViewStation:
		loops = append(loops, s.stationPoller().run)
		if s.announcer != nil {
			loops = append(loops, s.announceLoop)
		}
	}

	var wg sync.WaitGroup
	for _, loop := range loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop(ctx)
		}()
	}
	wg.Wait()
}

func (s *Session) now() time.Time { return s.deps.Now().In(s.deps.Location) }

// update applies fn to the snapshot and delivers the result. Delivery happens
// under the lock so sinks see snapshots in order.
func (s *Session) update(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap)
	s.snap.Time = s.now()
	if s.deps.Sink != nil {
		s.deps.Sink.Deliver(s.snap)
	}
}

func (s *Session) updatePane(i int, fn func(*PaneState)) {
	s.update(func(sn *Snapshot) {
		panes := slices.Clone(sn.Panes)
		fn(&panes[i])
		sn.Panes = panes
	})
}

func (s *Session) setCaption(text string) {
	s.update(func(sn *Snapshot) { sn.Caption = text })
}

func (sn *Snapshot) fail(err error) {
	sn.Loading = false
	sn.Err = err.Error()
}

func (ps *PaneState) fail(err error) {
	ps.Loading = false
	ps.Err = err.Error()
}

// locate resolves the session position once. A failure is remembered too, so
// location-dependent panes stop retrying until the user sets lat/lon.
func (s *Session) locate(ctx context.Context) (geo.LatLon, error) {
	s.locMu.Lock()
	defer s.locMu.Unlock()
	if s.located {
		return s.origin, s.originErr
	}
	if s.deps.Locator == nil {
		if s.override != nil {
			return *s.override, nil
		}
		return geo.LatLon{}, geo.ErrNoLocation
	}
	p, src, err := s.deps.Locator.Locate(ctx, s.override)
	if err != nil && ctx.Err() != nil {
		return geo.LatLon{}, err
	}
	s.located, s.origin, s.originErr = true, p, err
	if err == nil {
		logging.Info("board location", "session", s.id, "source", string(src), "at", p.String())
	}
	return p, err
}

func (s *Session) tripPoller() *poller[*birch.TripResponse] {
	return &poller[*birch.TripResponse]{
		view:     ViewTrip,
		interval: s.deps.Intervals.Trip,
		metrics:  s.deps.Metrics,
		fetch: func(ctx context.Context) (*birch.TripResponse, error) {
			return s.deps.API.Trip(ctx, s.chateau, s.tripID)
		},
		apply: s.applyTrip,
	}
}

func (s *Session) applyTrip(resp *birch.TripResponse, err error) int {
	var info trip.Info
	if err == nil {
		info, err = trip.Build(resp, s.chateau, s.tripID, s.now(), s.use24h, s.portrait)
	}
	if err != nil {
		logging.Warn("trip poll failed", "session", s.id, "error", err)
		s.update(func(sn *Snapshot) { sn.fail(err) })
		return 0
	}
	s.update(func(sn *Snapshot) {
		sn.Trip = &info
		sn.Title = info.Route + " to " + info.Headsign
		sn.Err = ""
		sn.Loading = false
	})
	s.announceTrip(&info)
	return len(info.Stops)
}

// announceTrip greets once per session, then requests a NEXT, APPROACHING or
// TERMINUS announcement whenever the phase or next stop changes.
func (s *Session) announceTrip(info *trip.Info) {
	if s.announcer == nil {
		return
	}
	if !s.welcomed {
		s.welcomed = true
		s.announcer.Trigger(enunciator.Request{Chateau: s.chateau, Phase: enunciator.Welcome, Trip: info})
	}
	req := enunciator.Request{Chateau: s.chateau, Phase: enunciator.PhaseFor(info), Trip: info}
	if key := req.Key(); key != s.lastKey {
		s.lastKey = key
		s.announcer.Trigger(req)
	}
}

func (s *Session) stationPoller() *poller[*birch.StopResponse] {
	return &poller[*birch.StopResponse]{
		view:     ViewStation,
		interval: s.deps.Intervals.Station,
		metrics:  s.deps.Metrics,
		fetch: func(ctx context.Context) (*birch.StopResponse, error) {
			return s.deps.API.StopDepartures(ctx, s.chateau, s.stopID, s.now())
		},
		apply: s.applyStation,
	}
}

func (s *Session) applyStation(resp *birch.StopResponse, err error) int {
	if err != nil {
		logging.Warn("station poll failed", "session", s.id, "error", err)
		s.update(func(sn *Snapshot) {
			sn.fail(err)
			panes := slices.Clone(sn.Panes)
			for i := range panes {
				if s.fedByStation(panes[i].Config) {
					panes[i].fail(err)
				}
			}
			sn.Panes = panes
		})
		return 0
	}

	now := s.now()
	arrivals := departures.StationArrivals(resp, now, s.use24h)
	alerts := departures.ActiveAlerts(resp.Alerts)
	adapted := departures.AdaptStopResponse(resp)
	var origin *geo.LatLon
	if resp.Primary.StopLat != 0 || resp.Primary.StopLon != 0 {
		origin = &geo.LatLon{Lat: resp.Primary.StopLat, Lon: resp.Primary.StopLon}
	}

	s.update(func(sn *Snapshot) {
		if name := agency.StationName(resp.Primary.StopName); name != "" {
			sn.Title = name
		}
		sn.Arrivals = arrivals
		sn.Alerts = alerts
		sn.Err = ""
		sn.Loading = false

		panes := slices.Clone(sn.Panes)
		for i := range panes {
			ps := &panes[i]
			if !s.fedByStation(ps.Config) {
				continue
			}
			ps.Loading = false
			ps.Err = ""
			if ps.Config.Type == layout.TypeAlerts {
				ps.Alerts = alerts
				continue
			}
			s.fillDepartures(ps, adapted, origin, now)
		}
		sn.Panes = panes
	})
	return len(arrivals)
}

// fedByStation reports whether a station pane shows the stop's own data
// instead of polling its own location.
func (s *Session) fedByStation(cfg layout.PaneConfig) bool {
	if s.view != ViewStation || cfg.Location != nil {
		return false
	}
	return cfg.Type == layout.TypeDepartures || cfg.Type == layout.TypeAlerts
}

func (s *Session) announceLoop(ctx context.Context) {
	t := time.NewTicker(s.deps.Intervals.Announce)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.announceStation()
		}
	}
}

// announceStation announces the soonest arrival due within a minute, or the
// generic station message when nothing is.
func (s *Session) announceStation() {
	s.mu.Lock()
	arrivals := s.snap.Arrivals
	s.mu.Unlock()

	req := enunciator.Request{Chateau: s.chateau, Phase: enunciator.Station}
	for i := range arrivals {
		if !arrivals[i].Cancelled && arrivals[i].Minutes <= 1 {
			a := arrivals[i]
			req.Arrival = &a
			break
		}
	}
	s.announcer.Trigger(req)
}

// fillDepartures normalizes resp into ps using the pane's mode filter, or the
// session's when the pane has none.
func (s *Session) fillDepartures(ps *PaneState, resp *birch.NearbyResponse, origin *geo.LatLon, now time.Time) {
	items := departures.Normalize(resp, departures.Options{Use24h: s.use24h, Now: now, Origin: origin})
	modes := ps.Config.AllowedModes
	if len(modes) == 0 {
		modes = s.modes
	}
	items = departures.Filter(items, modes, departures.PerStopCap)
	ps.Items = items
	ps.Groups = nil
	if ps.Config.DisplayMode == layout.ModeGroupedByRoute {
		ps.Groups = departures.Group(items)
	}
	if resp != nil {
		ps.Alerts = departures.ActiveAlerts(resp.Alerts)
	}
}
