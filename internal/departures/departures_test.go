package departures

import (
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enroute/internal/birch"
	"enroute/internal/geo"
)

var la = mustLoad("America/Los_Angeles")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("PST", -8*3600)
	}
	return loc
}

func i64(v int64) *int64 { return &v }

func ptr[T any](v T) *T { return &v }

func nearby(trips ...birch.Trip) *birch.NearbyResponse {
	return &birch.NearbyResponse{
		Departures: []birch.NearbyDeparture{{
			ChateauID: "metro~losangeles",
			RouteID:   "801",
			ShortName: "A Line",
			RouteType: 0,
			Directions: map[string]map[string]birch.NearbyDirection{
				"0": {"None": {Headsign: "APU / Citrus College Station", DirectionID: "0", Trips: trips}},
			},
		}},
		Stop: map[string]map[string]birch.Stop{
			"metro~losangeles": {"s1": {Name: "7th St / Metro Center - Metro A-Line", Lat: 34.0487, Lon: -118.2588}},
		},
	}
}

func TestNormalizeEndToEnd12h(t *testing.T) {
	now := time.Date(2026, 3, 2, 14, 10, 0, 0, la)
	resp := nearby(birch.Trip{TripID: "t1", StopID: "s1", DepartureSchedule: i64(now.Unix() + 300)})

	items := Normalize(resp, Options{Use24h: false, Now: now})
	require.Len(t, items, 1)
	it := items[0]
	assert.Equal(t, 5, it.MinutesUntil)
	assert.Regexp(t, regexp.MustCompile(`^\d{1,2}:\d{2} (AM|PM)$`), it.FormattedTime)
	assert.Equal(t, "2:15 PM", it.FormattedTime)
	assert.Equal(t, "metro~losangeles-t1-s1", it.Key)
	assert.Equal(t, "A Line", it.RouteLabel)
	assert.Equal(t, "Azusa", it.Headsign)
	assert.Equal(t, "#0072BC", it.Color)
	assert.Equal(t, "white", it.TextColor)
	assert.Equal(t, "7th St / Metro Center", it.StopName)
	require.NotNil(t, it.RouteType)
	assert.Equal(t, 0, *it.RouteType)
	assert.False(t, it.Live)

	items = Normalize(resp, Options{Use24h: true, Now: now})
	assert.Equal(t, "14:15", items[0].FormattedTime)
}

func TestNormalizeGraceWindow(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	resp := nearby(
		birch.Trip{TripID: "kept", StopID: "s1", DepartureSchedule: i64(now.Unix() - 121)},
		birch.Trip{TripID: "dropped", StopID: "s1", DepartureSchedule: i64(now.Unix() - 181)},
		birch.Trip{TripID: "no-time", StopID: "s1"},
	)
	items := Normalize(resp, Options{Now: now})
	require.Len(t, items, 1)
	assert.Equal(t, "metro~losangeles-kept-s1", items[0].Key)
	assert.Equal(t, -2, items[0].MinutesUntil)
}

func TestNormalizeDedupKeepsSoonest(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	resp := nearby(birch.Trip{TripID: "t1", StopID: "s1", DepartureSchedule: i64(now.Unix() + 5*60)})
	resp.Departures[0].Directions["1"] = map[string]birch.NearbyDirection{
		"None": {Headsign: "Long Beach", Trips: []birch.Trip{{TripID: "t1", StopID: "s1", DepartureSchedule: i64(now.Unix() + 2*60)}}},
	}
	items := Normalize(resp, Options{Now: now})
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].MinutesUntil)
}

func TestNormalizeTimeSelectionAndDelay(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	base := now.Unix()
	resp := nearby(
		birch.Trip{TripID: "rt", StopID: "s1", DepartureSchedule: i64(base + 600), DepartureRealtime: i64(base + 780), Platform: ptr("2")},
		birch.Trip{TripID: "arr", StopID: "s1", ArrivalSchedule: i64(base + 60), Cancelled: true},
	)
	items := Normalize(resp, Options{Now: now})
	require.Len(t, items, 2)
	assert.Equal(t, "metro~losangeles-arr-s1", items[0].Key)
	assert.True(t, items[0].Cancelled)
	assert.Equal(t, 0, items[0].DelayMinutes)

	rt := items[1]
	assert.Equal(t, 13, rt.MinutesUntil)
	assert.True(t, rt.Live)
	assert.Equal(t, 3, rt.DelayMinutes)
	assert.Equal(t, "2", rt.Platform)
}

func TestNormalizeIsIdempotentAndOrdered(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	var trips []birch.Trip
	for i := 0; i < 6; i++ {
		trips = append(trips, birch.Trip{TripID: fmt.Sprintf("t%d", i), StopID: "s1", DepartureSchedule: i64(now.Unix() + int64((6-i)*90))})
	}
	resp := nearby(trips...)
	resp.Departures[0].Directions["1"] = map[string]birch.NearbyDirection{
		"a": {Headsign: "Long Beach", Trips: []birch.Trip{{TripID: "x", StopID: "s1", DepartureSchedule: i64(now.Unix() + 200)}}},
		"b": {Headsign: "Long Beach", Trips: []birch.Trip{{TripID: "y", StopID: "s1", DepartureSchedule: i64(now.Unix() + 200)}}},
	}
	origin := geo.LatLon{Lat: 34.05, Lon: -118.25}
	opts := Options{Now: now, Origin: &origin}

	first := Normalize(resp, opts)
	second := Normalize(resp, opts)
	assert.Equal(t, first, second)
	for i := 1; i < len(first); i++ {
		assert.LessOrEqual(t, first[i-1].MinutesUntil, first[i].MinutesUntil)
	}
	require.NotNil(t, first[0].DistanceMeters)
}

func TestNormalizeTieBreaksOnDistance(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	resp := nearby(
		birch.Trip{TripID: "far", StopID: "far", DepartureSchedule: i64(now.Unix() + 120)},
		birch.Trip{TripID: "near", StopID: "s1", DepartureSchedule: i64(now.Unix() + 120)},
	)
	resp.Stop["metro~losangeles"]["far"] = birch.Stop{Name: "Far", Lat: 34.2, Lon: -118.5}
	origin := geo.LatLon{Lat: 34.0487, Lon: -118.2588}
	items := Normalize(resp, Options{Now: now, Origin: &origin})
	require.Len(t, items, 2)
	assert.Equal(t, "s1", items[0].StopID)
	assert.Equal(t, "far", items[1].StopID)
}

func TestNormalizeUnknownDistanceSortsLast(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	at := i64(now.Unix() + 120)
	trips := []birch.Trip{
		{TripID: "far", StopID: "far", DepartureSchedule: at},
		{TripID: "nowhere", StopID: "nowhere", DepartureSchedule: at},
		{TripID: "near", StopID: "s1", DepartureSchedule: at},
	}
	origin := geo.LatLon{Lat: 34.0487, Lon: -118.2588}

	for _, order := range [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}} {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			in := make([]birch.Trip, len(order))
			for i, k := range order {
				in[i] = trips[k]
			}
			resp := nearby(in...)
			resp.Stop["metro~losangeles"]["far"] = birch.Stop{Name: "Far", Lat: 34.2, Lon: -118.5}

			items := Normalize(resp, Options{Now: now, Origin: &origin})
			require.Len(t, items, 3)
			assert.Equal(t, []string{"s1", "far", "nowhere"}, []string{items[0].StopID, items[1].StopID, items[2].StopID})
		})
	}
}

func TestNormalizeUnknownAgencyDefaults(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	resp := &birch.NearbyResponse{Departures: []birch.NearbyDeparture{{
		ChateauID: "elsewhere", RouteID: "9",
		Directions: map[string]map[string]birch.NearbyDirection{
			"0": {"None": {Headsign: "Somewhere", Trips: []birch.Trip{{TripID: "t", StopID: "zz", DepartureSchedule: i64(now.Unix() + 60)}}}},
		},
	}}}
	items := Normalize(resp, Options{Now: now})
	require.Len(t, items, 1)
	assert.Equal(t, "9", items[0].RouteLabel)
	assert.Equal(t, "#0a233f", items[0].Color)
	assert.Equal(t, "#FFFFFF", items[0].TextColor)
	assert.Equal(t, "Unknown Stop", items[0].StopName)
	assert.Nil(t, items[0].DistanceMeters)
}

func TestNormalizeNil(t *testing.T) {
	assert.Nil(t, Normalize(nil, Options{}))
}

func item(stop string, mins, routeType int, route, headsign string) DisplayItem {
	rt := routeType
	return DisplayItem{
		Key:          fmt.Sprintf("%s-%s-%d", stop, route, mins),
		StopID:       stop,
		MinutesUntil: mins,
		RouteType:    &rt,
		RouteLabel:   route,
		Headsign:     headsign,
	}
}

func TestFilterPerStopCap(t *testing.T) {
	var items []DisplayItem
	for i := 1; i <= 5; i++ {
		items = append(items, item("A", i, 3, "20", "Downtown"))
	}
	items = append(items, item("B", 2, 3, "20", "Downtown"), item("C", 9, 3, "20", "Downtown"))

	out := Filter(items, nil, PerStopCap)
	var a []int
	others := 0
	for _, it := range out {
		if it.StopID == "A" {
			a = append(a, it.MinutesUntil)
		} else {
			others++
		}
	}
	assert.Equal(t, []int{1, 2, 3}, a)
	assert.Equal(t, 2, others)
}

func TestFilterModes(t *testing.T) {
	unknown := DisplayItem{StopID: "X"}
	items := []DisplayItem{item("A", 1, 0, "A Line", "Azusa"), item("A", 2, 3, "20", "Downtown"), unknown}
	out := Filter(items, []int{0, 1}, PerStopCap)
	require.Len(t, out, 1)
	assert.Equal(t, "A Line", out[0].RouteLabel)

	assert.Len(t, Filter(items, nil, PerStopCap), 3)
}

func TestGroup(t *testing.T) {
	items := []DisplayItem{
		item("A", 1, 3, "20", "Downtown"),
		item("A", 2, 0, "A Line", "Azusa"),
		item("B", 3, 3, "20", "Santa Monica"),
		item("B", 4, 3, "20", "Downtown"),
		item("C", 5, 3, "20", "Downtown"),
		item("D", 6, 3, "20", "Downtown"),
	}
	groups := Group(items)
	require.Len(t, groups, 2)
	assert.Equal(t, "20", groups[0].RouteLabel)
	assert.Equal(t, "A Line", groups[1].RouteLabel)
	require.Len(t, groups[0].Directions, 2)
	assert.Equal(t, "Downtown", groups[0].Directions[0].Headsign)
	assert.Equal(t, "Santa Monica", groups[0].Directions[1].Headsign)
	assert.Len(t, groups[0].Directions[0].Items, GroupCap)
	assert.Equal(t, 1, groups[0].Directions[0].Items[0].MinutesUntil)
}

func TestActiveAlerts(t *testing.T) {
	block := func(s string) *birch.TranslationBlock {
		return &birch.TranslationBlock{Translation: []birch.Translation{{Text: s}}}
	}
	alerts := map[string]map[string]birch.Alert{
		"b": {"2": {HeaderText: block("Elevator out")}},
		"a": {
			"1": {HeaderText: block("Shuttle buses replace trains")},
			"2": {DescriptionText: block("Elevator out")},
			"3": {},
		},
	}
	assert.Equal(t, []string{"Shuttle buses replace trains", "Elevator out"}, ActiveAlerts(alerts))
	assert.Nil(t, ActiveAlerts(nil))
}

func stopResponse(now time.Time) *birch.StopResponse {
	return &birch.StopResponse{
		Primary: birch.StopPrimary{Chateau: "metro~losangeles", StopID: "80211", StopName: "Union Station - Metro B & D Lines", StopLat: 34.056, StopLon: -118.234},
		Events: []birch.StopEvent{
			{TripID: "b1", RouteID: "802", Headsign: "North Hollywood Station", StopID: "80211-1", ScheduledArrival: i64(now.Unix() + 240), RealtimeArrival: i64(now.Unix() + 300), TripShortName: "794", VehicleNumber: ptr("503")},
			{TripID: "b2", RouteID: "802", Headsign: "North Hollywood Station", StopID: "80211-1", ScheduledArrival: i64(now.Unix() + 600), ScheduledDeparture: i64(now.Unix() + 660)},
			{TripID: "x1", RouteID: "999", Headsign: "Mystery", StopID: "80211-2", ScheduledArrival: i64(now.Unix() + 120), TripCancelled: true},
			{TripID: "old", RouteID: "802", Headsign: "Union Station", StopID: "80211-1", ScheduledArrival: i64(now.Unix() - 200)},
		},
		Routes: map[string]map[string]birch.Route{
			"metro~losangeles": {"802": {RouteID: "802", LongName: "Metro B Line", RouteType: 1, Color: "EB131B", TextColor: "FFFFFF"}},
		},
	}
}

func TestAdaptStopResponse(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	adapted := AdaptStopResponse(stopResponse(now))
	require.Len(t, adapted.Departures, 2)

	b := adapted.Departures[0]
	assert.Equal(t, "802", b.RouteID)
	assert.Equal(t, 1, b.RouteType)
	dir := b.Directions["North Hollywood Station"][StopGroupKey]
	assert.Len(t, dir.Trips, 2)

	mystery := adapted.Departures[1]
	assert.Equal(t, "999", mystery.ShortName)
	assert.True(t, mystery.Directions["Mystery"][StopGroupKey].Trips[0].Cancelled)

	items := Normalize(adapted, Options{Now: now})
	require.Len(t, items, 3)
	assert.Equal(t, "999", items[0].RouteLabel)
	assert.Nil(t, items[0].RouteType)
	assert.True(t, items[0].Cancelled)
	assert.Equal(t, "B Line", items[1].RouteLabel)
	assert.Equal(t, "Union Station", items[1].StopName)
	assert.Equal(t, 5, items[1].MinutesUntil)
	assert.Equal(t, 11, items[2].MinutesUntil, "departure beats arrival")

	assert.Nil(t, AdaptStopResponse(nil))
}

func TestStationArrivals(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	arr := StationArrivals(stopResponse(now), now, true)
	require.Len(t, arr, 3)
	assert.Equal(t, "x1", arr[0].Key)
	assert.Equal(t, "999", arr[0].Route)
	assert.True(t, arr[0].Cancelled)

	b1 := arr[1]
	assert.Equal(t, "b1", b1.Key)
	assert.True(t, b1.Live)
	assert.Equal(t, 5, b1.Minutes)
	assert.Equal(t, "B Line", b1.Route)
	assert.Equal(t, "NoHo", b1.Headsign)
	assert.Equal(t, "North Hollywood", b1.Destination)
	assert.Equal(t, "794", b1.Run)
	assert.Equal(t, "503", b1.Vehicle)
	assert.Equal(t, "#EB131B", b1.Color)

	assert.Equal(t, 10, arr[2].Minutes)
	assert.False(t, arr[2].Live)
}
