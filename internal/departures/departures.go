// Package departures turns upstream departure payloads into display items and
// applies the per-pane mode filter, per-stop cap and route grouping.
package departures

import (
	"math"
	"sort"
	"time"

	"enroute/internal/agency"
	"enroute/internal/birch"
	"enroute/internal/geo"
)

// GraceMinutes is how far past its time an item is still shown.
const GraceMinutes = -2

// DisplayItem is one normalized departure.
type DisplayItem struct {
	Key            string   `json:"key"`
	RouteLabel     string   `json:"routeLabel"`
	Headsign       string   `json:"headsign"`
	Color          string   `json:"color"`
	TextColor      string   `json:"textColor"`
	MinutesUntil   int      `json:"minutesUntil"`
	FormattedTime  string   `json:"formattedTime"`
	DepartureUnix  int64    `json:"departureUnix"`
	Live           bool     `json:"live"`
	StopID         string   `json:"stopId"`
	StopName       string   `json:"stopName"`
	ChateauID      string   `json:"chateauId"`
	TripID         string   `json:"tripId"`
	RouteType      *int     `json:"routeType,omitempty"`
	TripShortName  string   `json:"tripShortName,omitempty"`
	Platform       string   `json:"platform,omitempty"`
	DirectionID    string   `json:"directionId,omitempty"`
	DistanceMeters *float64 `json:"distanceMeters,omitempty"`
	Cancelled      bool     `json:"cancelled,omitempty"`
	DelayMinutes   int      `json:"delayMinutes,omitempty"`
}

// Options controls one normalization pass.
type Options struct {
	Use24h bool
	Now    time.Time
	Origin *geo.LatLon
}

// FormatClock renders t as "3:04 PM" or "15:04" in t's location.
func FormatClock(t time.Time, use24h bool) string {
	if use24h {
		return t.Format("15:04")
	}
	return t.Format("3:04 PM")
}

// MinutesUntil is the whole minutes from now to unix, truncated toward zero.
func MinutesUntil(unix int64, now time.Time) int {
	return int((unix - now.Unix()) / 60)
}

// pick chooses the time shown for a trip: realtime before scheduled, and
// departure before arrival within each. Zero counts as absent. sched is the
// scheduled counterpart used for the delay.
func pick(depRT, arrRT, depSched, arrSched *int64) (t int64, live bool, sched int64) {
	switch {
	case val(depRT) != 0:
		return val(depRT), true, firstSet(val(depSched), val(arrSched))
	case val(arrRT) != 0:
		return val(arrRT), true, firstSet(val(arrSched), val(depSched))
	}
	s := firstSet(val(depSched), val(arrSched))
	return s, false, s
}

func val(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func firstSet(vs ...int64) int64 {
	for _, v := range vs {
		if v != 0 {
			return v
		}
	}
	return 0
}

// Normalize flattens a nearby-departures payload into display items, sorted
// by minutes and de-duplicated by key. It reads no state besides its inputs.
func Normalize(resp *birch.NearbyResponse, opts Options) []DisplayItem {
	if resp == nil {
		return nil
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	var order []string
	byKey := map[string]DisplayItem{}

	for _, dep := range resp.Departures {
		label := dep.ShortName
		if label == "" {
			label = dep.LongName
		}
		if label == "" {
			label = dep.RouteID
		}
		label = agency.RouteName(dep.ChateauID, label, dep.RouteID)
		color := agency.RouteColor(dep.ChateauID, dep.RouteID, dep.Color)
		textColor := agency.RouteTextColor(dep.ChateauID, dep.RouteID, dep.TextColor)
		routeType := dep.RouteType

		for _, dirKey := range sortedKeys(dep.Directions) {
			groups := dep.Directions[dirKey]
			for _, groupKey := range sortedKeys(groups) {
				dir := groups[groupKey]
				for _, trip := range dir.Trips {
					t, live, sched := pick(trip.DepartureRealtime, trip.ArrivalRealtime, trip.DepartureSchedule, trip.ArrivalSchedule)
					if t == 0 {
						continue
					}
					mins := MinutesUntil(t, now)
					if mins < GraceMinutes {
						continue
					}

					item := DisplayItem{
						Key:           dep.ChateauID + "-" + trip.TripID + "-" + trip.StopID,
						RouteLabel:    label,
						Headsign:      agency.Headsign(dir.Headsign, ""),
						Color:         color,
						TextColor:     textColor,
						MinutesUntil:  mins,
						FormattedTime: FormatClock(time.Unix(t, 0).In(now.Location()), opts.Use24h),
						DepartureUnix: t,
						Live:          live,
						StopID:        trip.StopID,
						StopName:      "Unknown Stop",
						ChateauID:     dep.ChateauID,
						TripID:        trip.TripID,
						TripShortName: trip.TripShortName,
						DirectionID:   dir.DirectionID,
						Cancelled:     trip.Cancelled || trip.Deleted,
					}
					if routeType != UnknownRouteType {
						item.RouteType = &routeType
					}
					if live && sched != 0 && t-sched > 0 {
						item.DelayMinutes = int((t - sched) / 60)
					}
					if trip.Platform != nil {
						item.Platform = *trip.Platform
					}

					if stop, ok := resp.Stop[dep.ChateauID][trip.StopID]; ok {
						item.StopName = agency.StationName(stop.Name)
						if item.Platform == "" && stop.PlatformCode != nil {
							item.Platform = *stop.PlatformCode
						}
						if opts.Origin != nil && (stop.Lat != 0 || stop.Lon != 0) {
							d := geo.DistanceMeters(*opts.Origin, geo.LatLon{Lat: stop.Lat, Lon: stop.Lon})
							item.DistanceMeters = &d
						}
					}

					prev, seen := byKey[item.Key]
					if !seen {
						order = append(order, item.Key)
						byKey[item.Key] = item
					} else if item.MinutesUntil < prev.MinutesUntil {
						byKey[item.Key] = item
					}
				}
			}
		}
	}

	items := make([]DisplayItem, 0, len(order))
	for _, k := range order {
		items = append(items, byKey[k])
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.MinutesUntil != b.MinutesUntil {
			return a.MinutesUntil < b.MinutesUntil
		}
		switch {
		case a.DistanceMeters == nil || b.DistanceMeters == nil:
			// known distances sort before unknown ones
			return a.DistanceMeters != nil && b.DistanceMeters == nil
		default:
			return *a.DistanceMeters < *b.DistanceMeters
		}
	})
	return items
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ActiveAlerts returns each alert's header text, else its description, in
// chateau then alert id order, without duplicates.
func ActiveAlerts(alerts map[string]map[string]birch.Alert) []string {
	var out []string
	seen := map[string]bool{}
	for _, chateau := range sortedKeys(alerts) {
		byID := alerts[chateau]
		for _, id := range sortedKeys(byID) {
			a := byID[id]
			text := a.HeaderText.First()
			if text == "" {
				text = a.DescriptionText.First()
			}
			if text == "" || seen[text] {
				continue
			}
			seen[text] = true
			out = append(out, text)
		}
	}
	return out
}

// RoundMeters returns d in whole meters, or -1 when unknown.
func RoundMeters(d *float64) int {
	if d == nil {
		return -1
	}
	return int(math.Round(*d))
}
