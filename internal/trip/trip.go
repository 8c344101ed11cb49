// Package trip computes the progress of a single followed trip: the next
// stop, approach and terminus flags and the bounded list of upcoming stops.
package trip

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"enroute/internal/agency"
	"enroute/internal/birch"
)

// ApproachThreshold is how close the next stop must be to count as approaching.
const ApproachThreshold = 40 * time.Second

// Display budgets for the upcoming stop list, spacer and terminus included.
const (
	LandscapeBudget = 8
	PortraitBudget  = 10
)

const (
	DueLabel  = "DUE"
	SpacerKey = "spacer"
)

var ErrNoStopTimes = errors.New("trip has no stop times")

// Stop is one row of the upcoming stop list. Spacer rows stand in for Count
// collapsed stops.
type Stop struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Minutes     string `json:"minutes"`
	ArrivalTime string `json:"arrivalTime"`
	StopID      string `json:"stopId,omitempty"`
	Spacer      bool   `json:"isSpacer,omitempty"`
	Count       int    `json:"count,omitempty"`
}

type Progress struct {
	NextStopIndex int    `json:"nextStopIndex"`
	Approaching   bool   `json:"isApproaching"`
	Terminus      bool   `json:"isTerminus"`
	Completed     bool   `json:"completed"`
	Stops         []Stop `json:"nextStops"`
}

// ComputeProgress finds the first stop whose best arrival is after now. When
// none is, the trip is treated as completed and the last stop is used.
func ComputeProgress(stopTimes []birch.StopTime, now time.Time, use24h bool, budget int) (Progress, error) {
	if len(stopTimes) == 0 {
		return Progress{}, ErrNoStopTimes
	}
	if budget < 2 {
		budget = 2
	}
	last := len(stopTimes) - 1

	next := -1
	for i, st := range stopTimes {
		if arr, ok := st.BestArrival(); ok && time.Unix(arr, 0).After(now) {
			next = i
			break
		}
	}
	p := Progress{NextStopIndex: next}
	if next < 0 {
		p.NextStopIndex = last
		p.Completed = true
	}
	next = p.NextStopIndex

	arr, _ := stopTimes[next].BestArrival()
	p.Approaching = time.Unix(arr, 0).Sub(now) < ApproachThreshold
	p.Terminus = next == last

	add := func(i int) {
		st := stopTimes[i]
		s := Stop{
			Key:    fmt.Sprintf("%s-%d", st.StopID, i),
			Name:   agency.StationName(st.Name),
			StopID: st.StopID,
		}
		t, ok := st.BestArrival()
		if ok {
			s.ArrivalTime = formatArrival(time.Unix(t, 0).In(now.Location()), use24h)
		}
		if i == next && p.Approaching {
			s.Minutes = DueLabel
		} else {
			s.Minutes = strconv.Itoa(minutesAway(t, now))
		}
		p.Stops = append(p.Stops, s)
	}

	remaining := last - next + 1
	if remaining <= budget {
		for i := next; i <= last; i++ {
			add(i)
		}
		return p, nil
	}

	head := budget - 2
	for i := 0; i < head; i++ {
		add(next + i)
	}
	if gap := last - (next + head - 1) - 1; gap > 0 {
		p.Stops = append(p.Stops, Stop{
			Key:    SpacerKey,
			Name:   fmt.Sprintf("%d more stops", gap),
			Spacer: true,
			Count:  gap,
		})
	}
	add(last)
	return p, nil
}

func minutesAway(unix int64, now time.Time) int {
	secs := math.Round(time.Unix(unix, 0).Sub(now).Seconds())
	if secs < 0 {
		return 0
	}
	return int(secs) / 60
}

func formatArrival(t time.Time, use24h bool) string {
	if use24h {
		return t.Format("15:04")
	}
	return strings.ToLower(t.Format("3:04PM"))
}

// Info is everything the trip view and the announcer need for one poll.
type Info struct {
	Progress
	Chateau        string `json:"chateau"`
	TripID         string `json:"tripId"`
	Run            string `json:"run"`
	Headsign       string `json:"headsign"`
	Route          string `json:"route"`
	RouteID        string `json:"routeId"`
	Color          string `json:"color"`
	TextColor      string `json:"textColor"`
	NextStop       string `json:"nextStop"`
	NextStopID     string `json:"nextStopId"`
	NextStopNumber int    `json:"nextStopNumber"`
	FinalStop      string `json:"finalStop"`
	FinalStopID    string `json:"finalStopId"`
}

// Budget returns the stop list budget for the screen orientation.
func Budget(portrait bool) int {
	if portrait {
		return PortraitBudget
	}
	return LandscapeBudget
}

// Build computes progress for resp and fills in the header fields with the
// agency fixups applied.
func Build(resp *birch.TripResponse, chateau, tripID string, now time.Time, use24h, portrait bool) (Info, error) {
	if resp == nil {
		return Info{}, ErrNoStopTimes
	}
	p, err := ComputeProgress(resp.StopTimes, now, use24h, Budget(portrait))
	if err != nil {
		return Info{}, err
	}
	next := resp.StopTimes[p.NextStopIndex]
	final := resp.StopTimes[len(resp.StopTimes)-1]

	label := resp.RouteShortName
	if label == "" {
		label = resp.RouteLongName
	}
	if label == "" {
		label = resp.RouteID
	}
	headsign := resp.TripHeadsign
	if headsign == "" {
		headsign = final.Name
	}
	vehicle := ""
	if resp.Vehicle != nil {
		vehicle = resp.Vehicle.ID
	}

	return Info{
		Progress:       p,
		Chateau:        chateau,
		TripID:         tripID,
		Run:            agency.RunNumber(chateau, resp.RouteID, resp.TripShortName, vehicle, tripID),
		Headsign:       agency.Headsign(headsign, label),
		Route:          agency.RouteName(chateau, label, resp.RouteID),
		RouteID:        resp.RouteID,
		Color:          agency.RouteColor(chateau, resp.RouteID, resp.Color),
		TextColor:      agency.RouteTextColor(chateau, resp.RouteID, resp.TextColor),
		NextStop:       agency.StationName(next.Name),
		NextStopID:     next.StopID,
		NextStopNumber: p.NextStopIndex,
		FinalStop:      agency.StationName(final.Name),
		FinalStopID:    final.StopID,
	}, nil
}
