package departures

import (
	"sort"
	"time"

	"enroute/internal/agency"
	"enroute/internal/birch"
)

// UnknownRouteType marks reshaped routes with no route metadata; their items
// carry no route type.
const UnknownRouteType = -1

// StopGroupKey is the direction group used for reshaped single-stop data.
const StopGroupKey = "None"

// AdaptStopResponse reshapes a departures-at-stop payload into the nearby
// route/direction/trip tree so it can go through Normalize. Directions are
// keyed by headsign. Events whose route is missing from the routes table are
// kept and labelled by route id.
func AdaptStopResponse(resp *birch.StopResponse) *birch.NearbyResponse {
	if resp == nil {
		return nil
	}
	out := &birch.NearbyResponse{
		Stop:   map[string]map[string]birch.Stop{},
		Alerts: resp.Alerts,
	}
	index := map[string]int{}
	addStop := func(chateau, stopID string) {
		if out.Stop[chateau] == nil {
			out.Stop[chateau] = map[string]birch.Stop{}
		}
		if _, ok := out.Stop[chateau][stopID]; ok {
			return
		}
		out.Stop[chateau][stopID] = birch.Stop{
			GTFSID:       stopID,
			Name:         resp.Primary.StopName,
			Lat:          resp.Primary.StopLat,
			Lon:          resp.Primary.StopLon,
			Timezone:     resp.Primary.Timezone,
			PlatformCode: resp.Primary.PlatformCode,
		}
	}
	if resp.Primary.StopID != "" {
		addStop(resp.Primary.Chateau, resp.Primary.StopID)
	}

	for _, ev := range resp.Events {
		chateau := ev.Chateau
		if chateau == "" {
			chateau = resp.Primary.Chateau
		}
		k := chateau + "\x00" + ev.RouteID
		i, ok := index[k]
		if !ok {
			dep := birch.NearbyDeparture{
				ChateauID:  chateau,
				RouteID:    ev.RouteID,
				ShortName:  ev.RouteID,
				RouteType:  UnknownRouteType,
				Directions: map[string]map[string]birch.NearbyDirection{},
			}
			if r, found := lookupRoute(resp, chateau, ev.RouteID); found {
				dep.ShortName = r.ShortName
				dep.LongName = r.LongName
				dep.Color = r.Color
				dep.TextColor = r.TextColor
				dep.RouteType = r.RouteType
			}
			out.Departures = append(out.Departures, dep)
			i = len(out.Departures) - 1
			index[k] = i
		}
		dep := &out.Departures[i]
		if dep.Directions[ev.Headsign] == nil {
			dep.Directions[ev.Headsign] = map[string]birch.NearbyDirection{}
		}
		dir := dep.Directions[ev.Headsign][StopGroupKey]
		dir.Headsign = ev.Headsign

		platform := ev.PlatformStringRealtime
		if platform == nil {
			platform = ev.PlatformCode
		}
		dir.Trips = append(dir.Trips, birch.Trip{
			TripID:            ev.TripID,
			DepartureSchedule: ev.ScheduledDeparture,
			DepartureRealtime: ev.RealtimeDeparture,
			ArrivalSchedule:   ev.ScheduledArrival,
			ArrivalRealtime:   ev.RealtimeArrival,
			StopID:            ev.StopID,
			TripShortName:     ev.TripShortName,
			Cancelled:         ev.TripCancelled || ev.StopCancelled,
			Deleted:           ev.TripDeleted,
			Platform:          platform,
		})
		dep.Directions[ev.Headsign][StopGroupKey] = dir
		addStop(chateau, ev.StopID)
	}
	return out
}

func lookupRoute(resp *birch.StopResponse, chateau, routeID string) (birch.Route, bool) {
	r, ok := resp.Routes[chateau][routeID]
	return r, ok
}

// Arrival is one row on the station board.
type Arrival struct {
	Key         string `json:"key"`
	Live        bool   `json:"live"`
	Route       string `json:"route"`
	RouteID     string `json:"routeId"`
	Headsign    string `json:"headsign"`
	Destination string `json:"destination"`
	Minutes     int    `json:"min"`
	Time        string `json:"time"`
	ArrivalUnix int64  `json:"arrivalUnix"`
	Run         string `json:"run"`
	Vehicle     string `json:"vehicle"`
	Color       string `json:"color"`
	TextColor   string `json:"text"`
	Cancelled   bool   `json:"cancelled,omitempty"`
	Platform    string `json:"platform,omitempty"`
}

// StationArrivalGrace is how far past its time a station arrival stays listed.
const StationArrivalGrace = -1

// StationArrivals lists the arrivals at the primary stop, soonest first.
func StationArrivals(resp *birch.StopResponse, now time.Time, use24h bool) []Arrival {
	if resp == nil {
		return nil
	}
	chateau := resp.Primary.Chateau
	var out []Arrival
	for _, ev := range resp.Events {
		t := firstSet(val(ev.RealtimeArrival), val(ev.ScheduledArrival), val(ev.RealtimeDeparture), val(ev.ScheduledDeparture))
		if t == 0 {
			continue
		}
		mins := MinutesUntil(t, now)
		if mins < StationArrivalGrace {
			continue
		}
		label, color, text := ev.RouteID, "", ""
		if r, ok := lookupRoute(resp, chateau, ev.RouteID); ok {
			label = firstString(r.ShortName, r.LongName, ev.RouteID)
			color, text = r.Color, r.TextColor
		}
		vehicle := ""
		if ev.VehicleNumber != nil {
			vehicle = *ev.VehicleNumber
		}
		platform := ""
		if ev.PlatformStringRealtime != nil {
			platform = *ev.PlatformStringRealtime
		} else if ev.PlatformCode != nil {
			platform = *ev.PlatformCode
		}
		out = append(out, Arrival{
			Key:         ev.TripID,
			Live:        ev.RealtimeArrival != nil,
			Route:       agency.RouteName(chateau, label, ev.RouteID),
			RouteID:     ev.RouteID,
			Headsign:    agency.Headsign(ev.Headsign, ""),
			Destination: agency.StationName(ev.Headsign),
			Minutes:     mins,
			Time:        FormatClock(time.Unix(t, 0).In(now.Location()), use24h),
			ArrivalUnix: t,
			Run:         agency.RunNumber(chateau, ev.RouteID, ev.TripShortName, vehicle, ev.TripID),
			Vehicle:     vehicle,
			Color:       agency.RouteColor(chateau, ev.RouteID, color),
			TextColor:   agency.RouteTextColor(chateau, ev.RouteID, text),
			Cancelled:   ev.TripCancelled || ev.StopCancelled,
			Platform:    platform,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Minutes < out[j].Minutes })
	return out
}

func firstString(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
