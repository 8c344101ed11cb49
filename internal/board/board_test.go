package board

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enroute/internal/birch"
	"enroute/internal/enunciator"
	"enroute/internal/geo"
	"enroute/internal/layout"
	"enroute/internal/settings"
)

func i64(v int64) *int64 { return &v }

var fastIntervals = Intervals{
	Trip:     10 * time.Millisecond,
	Station:  10 * time.Millisecond,
	Pane:     10 * time.Millisecond,
	Announce: 10 * time.Millisecond,
}

type fakeAPI struct {
	mu        sync.Mutex
	nearbyAt  []geo.LatLon
	nearby    *birch.NearbyResponse
	stop      *birch.StopResponse
	trip      *birch.TripResponse
	tripErr   error
	stopErr   error
	nearbyErr error
}

func (f *fakeAPI) Nearby(_ context.Context, lat, lon, _ float64) (*birch.NearbyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nearbyAt = append(f.nearbyAt, geo.LatLon{Lat: lat, Lon: lon})
	return f.nearby, f.nearbyErr
}

func (f *fakeAPI) StopDepartures(context.Context, string, string, time.Time) (*birch.StopResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stop, f.stopErr
}

func (f *fakeAPI) Trip(context.Context, string, string) (*birch.TripResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trip, f.tripErr
}

type recordSink struct {
	mu   sync.Mutex
	last Snapshot
	n    int
}

func (r *recordSink) Deliver(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = s
	r.n++
}

func (r *recordSink) Last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

type countMetrics struct {
	stale    atomic.Int32
	polls    atomic.Int32
	sessions atomic.Int32
}

func (c *countMetrics) StaleInc(string)                        { c.stale.Add(1) }
func (c *countMetrics) PollObserve(string, int, time.Duration) { c.polls.Add(1) }
func (c *countMetrics) SessionsSet(n int)                      { c.sessions.Store(int32(n)) }

type recordAnnouncer struct {
	mu   sync.Mutex
	reqs []enunciator.Request
}

func (r *recordAnnouncer) Trigger(req enunciator.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
}

func (r *recordAnnouncer) Close() {}

func query(kv ...string) url.Values {
	q := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		q.Set(kv[i], kv[i+1])
	}
	return q
}

func tripResponse(now time.Time) *birch.TripResponse {
	var st []birch.StopTime
	names := []string{"Union Station", "Chinatown", "Lincoln / Cypress", "Heritage Square", "Southwest Museum"}
	for i, name := range names {
		st = append(st, birch.StopTime{
			StopID:           name,
			Name:             name,
			ScheduledArrival: i64(now.Unix() - 60 + int64(i)*120),
		})
	}
	return &birch.TripResponse{StopTimes: st, RouteID: "801", RouteShortName: "Metro A Line", TripHeadsign: "APU / Citrus College Station"}
}

func TestPollerDiscardsStaleResults(t *testing.T) {
	m := &countMetrics{}
	var calls atomic.Int32
	var mu sync.Mutex
	var applied []int

	p := &poller[int]{
		view:     ViewTrip,
		interval: time.Hour,
		metrics:  m,
		fetch: func(ctx context.Context) (int, error) {
			if calls.Add(1) == 1 {
				<-ctx.Done()
				return 1, nil
			}
			return 2, nil
		},
		apply: func(v int, err error) int {
			mu.Lock()
			defer mu.Unlock()
			applied = append(applied, v)
			return v
		},
	}

	ctx := context.Background()
	p.start(ctx)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	p.start(ctx)
	p.wg.Wait()

	assert.Equal(t, []int{2}, applied)
	assert.Equal(t, int32(1), m.stale.Load())
}

func TestPollerAppliesFetchesSlowerThanInterval(t *testing.T) {
	var fetches, running, peak atomic.Int32
	var mu sync.Mutex
	var applied []int

	p := &poller[int]{
		view:     ViewTrip,
		interval: 20 * time.Millisecond,
		fetch: func(ctx context.Context) (int, error) {
			n := int(fetches.Add(1))
			cur := running.Add(1)
			defer running.Add(-1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			select {
			case <-time.After(60 * time.Millisecond):
				return n, nil
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		},
		apply: func(v int, err error) int {
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				applied = append(applied, v)
			}
			return v
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(applied) >= 3
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.IsIncreasing(t, applied)
	assert.LessOrEqual(t, peak.Load(), int32(maxInFlight))
}

func TestPollerSkipsTicksWhileBusy(t *testing.T) {
	release := make(chan struct{})
	p := &poller[int]{
		view:     ViewStation,
		interval: time.Hour,
		fetch: func(ctx context.Context) (int, error) {
			<-release
			return 1, nil
		},
		apply: func(int, error) int { return 0 },
	}
	ctx := context.Background()
	assert.True(t, p.start(ctx))
	assert.True(t, p.start(ctx))
	assert.False(t, p.start(ctx))
	close(release)
	p.wg.Wait()
	assert.True(t, p.start(ctx))
	p.wg.Wait()
}

func TestPollerStopsApplyingAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	applied := atomic.Int32{}
	p := &poller[int]{
		view:     ViewGrid,
		interval: time.Hour,
		fetch: func(fctx context.Context) (int, error) {
			cancel()
			<-fctx.Done()
			return 1, nil
		},
		apply: func(int, error) int { applied.Add(1); return 0 },
	}
	p.run(ctx)
	assert.Zero(t, applied.Load())
}

func TestNewSessionRequiresIDs(t *testing.T) {
	ctx := context.Background()
	_, err := NewSession(ctx, ViewTrip, Deps{Settings: settings.Resolver{Query: query("chateau", "metro~losangeles")}})
	assert.ErrorIs(t, err, ErrNeedTrip)

	_, err = NewSession(ctx, ViewStation, Deps{Settings: settings.Resolver{Query: query("stop", "80211")}})
	assert.ErrorIs(t, err, ErrNeedStop)

	_, err = NewSession(ctx, "weather", Deps{})
	assert.EqualError(t, err, `unknown view "weather"`)
}

func TestTripNotFoundNamesTripAndChateau(t *testing.T) {
	api := &fakeAPI{tripErr: &birch.NotFoundError{Chateau: "metro~losangeles", TripID: "10000123"}}
	sink := &recordSink{}
	s, err := NewSession(context.Background(), ViewTrip, Deps{
		API:       api,
		Sink:      sink,
		Intervals: fastIntervals,
		Settings:  settings.Resolver{Query: query("chateau", "metro~losangeles", "trip", "10000123")},
	})
	require.NoError(t, err)
	assert.Equal(t, "trip:metro~losangeles/10000123", s.ID())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return sink.Last().Err != "" }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	snap := sink.Last()
	assert.Contains(t, snap.Err, "10000123")
	assert.Contains(t, snap.Err, "metro~losangeles")
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.Trip)
}

func TestTripFailureKeepsPreviousData(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	s, err := NewSession(context.Background(), ViewTrip, Deps{
		Now:      func() time.Time { return now },
		Location: time.UTC,
		Settings: settings.Resolver{Query: query("chateau", "metro~losangeles", "trip", "t1")},
	})
	require.NoError(t, err)

	s.applyTrip(nil, errors.New("upstream down"))
	snap := s.Snapshot()
	assert.Equal(t, "upstream down", snap.Err)
	assert.Nil(t, snap.Trip)
	assert.False(t, snap.Loading)

	assert.Equal(t, 4, s.applyTrip(tripResponse(now), nil))
	snap = s.Snapshot()
	require.NotNil(t, snap.Trip)
	assert.Empty(t, snap.Err)
	assert.Equal(t, "A Line to Azusa", snap.Title)
	assert.Equal(t, "Chinatown", snap.Trip.NextStop)

	s.applyTrip(nil, errors.New("upstream down"))
	snap = s.Snapshot()
	assert.Equal(t, "upstream down", snap.Err)
	require.NotNil(t, snap.Trip, "previous trip stays on screen")
	assert.Equal(t, "Chinatown", snap.Trip.NextStop)
}

func TestTripAnnouncesWelcomeOnceAndPhaseChanges(t *testing.T) {
	base := time.Unix(1_800_000_000, 0)
	now := base
	s, err := NewSession(context.Background(), ViewTrip, Deps{
		Now:      func() time.Time { return now },
		Location: time.UTC,
		Settings: settings.Resolver{Query: query("chateau", "metro~losangeles", "trip", "t1")},
	})
	require.NoError(t, err)
	ann := &recordAnnouncer{}
	s.announcer = ann

	s.applyTrip(tripResponse(base), nil)
	s.applyTrip(tripResponse(base), nil)
	now = base.Add(30 * time.Second)
	s.applyTrip(tripResponse(base), nil)

	require.Len(t, ann.reqs, 3)
	assert.Equal(t, enunciator.Welcome, ann.reqs[0].Phase)
	assert.Equal(t, enunciator.Next, ann.reqs[1].Phase)
	assert.Equal(t, "Chinatown", ann.reqs[1].Trip.NextStopID)
	assert.Equal(t, enunciator.Approaching, ann.reqs[2].Phase)
	assert.Equal(t, "metro~losangeles", ann.reqs[2].Chateau)
}

func stopResponse(now time.Time) *birch.StopResponse {
	return &birch.StopResponse{
		Primary: birch.StopPrimary{Chateau: "metro~losangeles", StopID: "80211", StopName: "Union Station", StopLat: 34.056, StopLon: -118.234},
		Events: []birch.StopEvent{
			{TripID: "b1", RouteID: "802", Headsign: "North Hollywood Station", StopID: "80211", ScheduledArrival: i64(now.Unix() + 600)},
			{TripID: "x1", RouteID: "802", Headsign: "Union Station", StopID: "80211", ScheduledArrival: i64(now.Unix() + 30), TripCancelled: true},
			{TripID: "b2", RouteID: "802", Headsign: "North Hollywood Station", StopID: "80211", ScheduledArrival: i64(now.Unix() + 45)},
		},
		Routes: map[string]map[string]birch.Route{
			"metro~losangeles": {"802": {RouteID: "802", LongName: "Metro B Line", RouteType: 1}},
		},
	}
}

func TestStationFeedsPanesAndAnnounces(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	s, err := NewSession(context.Background(), ViewStation, Deps{
		Now:      func() time.Time { return now },
		Location: time.UTC,
		Settings: settings.Resolver{Query: query("chateau", "metro~losangeles", "stop", "80211")},
	})
	require.NoError(t, err)
	snap := s.Snapshot()
	assert.True(t, snap.Loading)
	require.Len(t, snap.Panes, 2)
	assert.Empty(t, s.loops, "default station panes need no polling of their own")
	assert.Equal(t, layout.DefaultImageURL, snap.Panes[1].ImageURL)

	assert.Equal(t, 3, s.applyStation(stopResponse(now), nil))
	snap = s.Snapshot()
	assert.Equal(t, "Union Station", snap.Title)
	require.Len(t, snap.Arrivals, 3)
	assert.False(t, snap.Panes[0].Loading)
	assert.Len(t, snap.Panes[0].Items, 3)

	ann := &recordAnnouncer{}
	s.announcer = ann
	s.announceStation()
	require.Len(t, ann.reqs, 1)
	require.NotNil(t, ann.reqs[0].Arrival)
	assert.Equal(t, "b2", ann.reqs[0].Arrival.Key, "cancelled arrivals are not announced")

	s.applyStation(nil, errors.New("timeout"))
	snap = s.Snapshot()
	assert.Equal(t, "timeout", snap.Err)
	assert.Len(t, snap.Arrivals, 3)
	assert.Equal(t, "timeout", snap.Panes[0].Err)
	assert.Len(t, snap.Panes[0].Items, 3)
}

func TestStationWithoutDueArrivalUsesGenericMessage(t *testing.T) {
	s, err := NewSession(context.Background(), ViewStation, Deps{
		Settings: settings.Resolver{Query: query("chateau", "metro~losangeles", "stop", "80211")},
	})
	require.NoError(t, err)
	ann := &recordAnnouncer{}
	s.announcer = ann
	s.announceStation()
	require.Len(t, ann.reqs, 1)
	assert.Equal(t, enunciator.Station, ann.reqs[0].Phase)
	assert.Nil(t, ann.reqs[0].Arrival)
}

func TestPaneRegistry(t *testing.T) {
	kv := settings.NewMemoryStore()
	ctx := context.Background()
	cfg := layout.LayoutConfig{Rows: 2, Cols: 2, Panes: []layout.PaneConfig{
		{ID: "a", Type: "weather"},
		{ID: "b", Type: layout.TypeBlank},
		{ID: "c", Type: layout.TypeImage, ImageURL: "/img/sign.png"},
		{ID: "d", Type: layout.TypeEnroute},
	}}
	require.NoError(t, layout.NewGridStore(kv).Save(ctx, cfg))

	s, err := NewSession(ctx, ViewGrid, Deps{Layouts: kv})
	require.NoError(t, err)
	snap := s.Snapshot()
	require.Len(t, snap.Panes, 4)
	assert.Equal(t, 2, snap.Rows)
	assert.Equal(t, "unknown pane type: weather", snap.Panes[0].Err)
	assert.Empty(t, snap.Panes[1].Err)
	assert.Equal(t, "/img/sign.png", snap.Panes[2].ImageURL)
	assert.Equal(t, ErrNeedTrip.Error(), snap.Panes[3].Err)
	assert.Empty(t, s.loops)

	assert.Equal(t, []string{"alerts", "blank", "departures", "enroute", "image"}, PaneTypes())
}

func nearbyResponse(now time.Time) *birch.NearbyResponse {
	return &birch.NearbyResponse{
		Departures: []birch.NearbyDeparture{{
			ChateauID: "metro~losangeles",
			RouteID:   "720",
			ShortName: "720",
			RouteType: 3,
			Directions: map[string]map[string]birch.NearbyDirection{
				"0": {"None": {Headsign: "Santa Monica", Trips: []birch.Trip{
					{TripID: "t1", StopID: "s1", DepartureSchedule: i64(now.Unix() + 300)},
				}}},
			},
		}},
	}
}

func TestNearbyUsesLocationOverride(t *testing.T) {
	now := time.Now()
	api := &fakeAPI{nearby: nearbyResponse(now)}
	sink := &recordSink{}
	m := &countMetrics{}
	s, err := NewSession(context.Background(), ViewNearby, Deps{
		API:       api,
		Sink:      sink,
		Metrics:   m,
		Locator:   geo.NewLocator(""),
		Intervals: fastIntervals,
		Settings:  settings.Resolver{Query: query("lat", "34.05", "lon", "-118.25", "modes", "3")},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool {
		snap := sink.Last()
		return len(snap.Panes) == 1 && len(snap.Panes[0].Items) == 1
	}, time.Second, 5*time.Millisecond)

	api.mu.Lock()
	at := api.nearbyAt[0]
	api.mu.Unlock()
	assert.Equal(t, geo.LatLon{Lat: 34.05, Lon: -118.25}, at)
	assert.Equal(t, "720", sink.Last().Panes[0].Items[0].RouteLabel)
	assert.Positive(t, m.polls.Load())
}

func TestNearbyWithoutLocation(t *testing.T) {
	api := &fakeAPI{}
	sink := &recordSink{}
	s, err := NewSession(context.Background(), ViewNearby, Deps{
		API:       api,
		Sink:      sink,
		Locator:   geo.NewLocator(""),
		Intervals: fastIntervals,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool {
		snap := sink.Last()
		return len(snap.Panes) == 1 && snap.Panes[0].Err != ""
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, geo.ErrNoLocation.Error(), sink.Last().Panes[0].Err)

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Empty(t, api.nearbyAt)
}

func TestManagerRunsOneSessionPerID(t *testing.T) {
	m := &countMetrics{}
	mgr := NewManager(m)
	s, err := NewSession(context.Background(), ViewGrid, Deps{})
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, mgr.Start(ctx, s))
	assert.False(t, mgr.Start(ctx, s))
	assert.Equal(t, 1, mgr.Running())
	assert.Equal(t, int32(1), m.sessions.Load())

	mgr.StopAll()
	assert.Equal(t, 0, mgr.Running())
	assert.Equal(t, int32(0), m.sessions.Load())
}

type fakePublisher struct {
	mu        sync.Mutex
	snapshots int
	captions  []string
}

func (f *fakePublisher) PublishSnapshot(string, string, any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots++
	return nil
}

func (f *fakePublisher) PublishCaption(_ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captions = append(f.captions, text)
	return nil
}

func TestPublisherSinkPublishesCaptionChanges(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewPublisherSink(pub)
	for _, c := range []string{"", "", "[MSG]", "[MSG]", "Next stop", ""} {
		sink.Deliver(Snapshot{View: ViewTrip, Session: "trip:x/1", Caption: c})
	}
	assert.Equal(t, 6, pub.snapshots)
	assert.Equal(t, []string{"[MSG]", "Next stop", ""}, pub.captions)
}

func TestMultiSink(t *testing.T) {
	a, b := &recordSink{}, &recordSink{}
	MultiSink{a, nil, b}.Deliver(Snapshot{Title: "x"})
	assert.Equal(t, "x", a.Last().Title)
	assert.Equal(t, "x", b.Last().Title)
}
