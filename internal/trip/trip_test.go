package trip

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enroute/internal/birch"
)

func i64(v int64) *int64 { return &v }

// stops builds n stops starting first seconds from now, each
// following stop two minutes later.
func stops(now time.Time, n int, first int64) []birch.StopTime {
	out := make([]birch.StopTime, n)
	for i := range out {
		out[i] = birch.StopTime{
			StopID:           fmt.Sprintf("s%d", i),
			Name:             fmt.Sprintf("Stop %d Station", i),
			ScheduledArrival: i64(now.Unix() + first + int64(i)*120),
		}
	}
	return out
}

func TestSpacerArithmetic(t *testing.T) {
	now := time.Unix(1_800_000_000, 0).UTC()
	p, err := ComputeProgress(stops(now, 20, 300), now, true, LandscapeBudget)
	require.NoError(t, err)

	require.Len(t, p.Stops, 8)
	for i := 0; i < 6; i++ {
		assert.False(t, p.Stops[i].Spacer)
		assert.Equal(t, fmt.Sprintf("s%d", i), p.Stops[i].StopID)
	}
	spacer := p.Stops[6]
	assert.True(t, spacer.Spacer)
	assert.Equal(t, 13, spacer.Count)
	assert.Equal(t, "13 more stops", spacer.Name)
	assert.Equal(t, SpacerKey, spacer.Key)
	assert.Equal(t, "s19", p.Stops[7].StopID)
	assert.Equal(t, "s19-19", p.Stops[7].Key)
}

func TestShowsAllStopsWithinBudget(t *testing.T) {
	now := time.Unix(1_800_000_000, 0).UTC()
	st := stops(now, 12, -590)
	p, err := ComputeProgress(st, now, true, PortraitBudget)
	require.NoError(t, err)
	// stops 0-4 are in the past
	assert.Equal(t, 5, p.NextStopIndex)
	assert.Len(t, p.Stops, 7)
	for _, s := range p.Stops {
		assert.False(t, s.Spacer)
	}
	assert.Equal(t, "Stop 5", p.Stops[0].Name)
}

func TestApproachingThreshold(t *testing.T) {
	now := time.Unix(1_800_000_000, 0).UTC()

	p, err := ComputeProgress(stops(now, 3, 39), now, true, LandscapeBudget)
	require.NoError(t, err)
	assert.True(t, p.Approaching)
	assert.Equal(t, DueLabel, p.Stops[0].Minutes)
	assert.Equal(t, "2", p.Stops[1].Minutes)

	p, err = ComputeProgress(stops(now, 3, 41), now, true, LandscapeBudget)
	require.NoError(t, err)
	assert.False(t, p.Approaching)
	assert.Equal(t, "0", p.Stops[0].Minutes)
}

func TestRealtimeBeatsScheduled(t *testing.T) {
	now := time.Unix(1_800_000_000, 0).UTC()
	st := stops(now, 3, -30)
	st[0].RealtimeArrival = &birch.StopTimeRT{Time: i64(now.Unix() + 90)}
	p, err := ComputeProgress(st, now, true, LandscapeBudget)
	require.NoError(t, err)
	assert.Equal(t, 0, p.NextStopIndex)
	assert.Equal(t, "1", p.Stops[0].Minutes)
}

func TestCompletedTripFailsOpen(t *testing.T) {
	now := time.Unix(1_800_000_000, 0).UTC()
	p, err := ComputeProgress(stops(now, 4, -3600), now, true, LandscapeBudget)
	require.NoError(t, err)
	assert.True(t, p.Completed)
	assert.True(t, p.Terminus)
	assert.True(t, p.Approaching)
	assert.Equal(t, 3, p.NextStopIndex)
	require.Len(t, p.Stops, 1)
	assert.Equal(t, DueLabel, p.Stops[0].Minutes)
}

func TestEmptyStopTimes(t *testing.T) {
	_, err := ComputeProgress(nil, time.Now(), true, LandscapeBudget)
	assert.True(t, errors.Is(err, ErrNoStopTimes))

	_, err = Build(&birch.TripResponse{}, "c", "t", time.Now(), true, false)
	assert.EqualError(t, err, "trip has no stop times")
}

func TestArrivalTimeFormat(t *testing.T) {
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	st := []birch.StopTime{{StopID: "a", ScheduledArrival: i64(now.Unix() + 15*60)}}

	p, err := ComputeProgress(st, now, false, LandscapeBudget)
	require.NoError(t, err)
	assert.Equal(t, "2:15pm", p.Stops[0].ArrivalTime)
	assert.Equal(t, "15", p.Stops[0].Minutes)

	p, err = ComputeProgress(st, now, true, LandscapeBudget)
	require.NoError(t, err)
	assert.Equal(t, "14:15", p.Stops[0].ArrivalTime)
}

func TestBuild(t *testing.T) {
	now := time.Unix(1_800_000_000, 0).UTC()
	resp := &birch.TripResponse{
		RouteID:        "801",
		RouteShortName: "Metro A Line",
		TripShortName:  "",
		Vehicle:        &birch.TripVehicle{ID: "1042"},
		StopTimes: []birch.StopTime{
			{StopID: "80101", Name: "Downtown Long Beach Station", ScheduledArrival: i64(now.Unix() - 60)},
			{StopID: "80122", Name: "7th St / Metro Center - Metro A-Line", ScheduledArrival: i64(now.Unix() + 600)},
			{StopID: "80139", Name: "APU / Citrus College Station", ScheduledArrival: i64(now.Unix() + 5400)},
		},
	}
	info, err := Build(resp, "metro~losangeles", "trip-1", now, false, false)
	require.NoError(t, err)

	assert.Equal(t, "A Line", info.Route)
	assert.Equal(t, "#0072BC", info.Color)
	assert.Equal(t, "white", info.TextColor)
	assert.Equal(t, "Azusa", info.Headsign)
	assert.Equal(t, "7th St / Metro Center", info.NextStop)
	assert.Equal(t, "80122", info.NextStopID)
	assert.Equal(t, 1, info.NextStopNumber)
	assert.Equal(t, "APU / Citrus College", info.FinalStop)
	assert.Equal(t, "80139", info.FinalStopID)
	assert.False(t, info.Terminus)
	assert.False(t, info.Approaching)
	assert.Len(t, info.Stops, 2)
}
