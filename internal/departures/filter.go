package departures

// PerStopCap is the most items a departures pane shows for one stop.
const PerStopCap = 3

// GroupCap is the most items kept per headsign inside a route group.
const GroupCap = 3

// Filter drops items whose route type is not in allowedModes (when it is
// non-empty) and keeps at most perStopCap items per stop, preserving order.
func Filter(items []DisplayItem, allowedModes []int, perStopCap int) []DisplayItem {
	allowed := map[int]bool{}
	for _, m := range allowedModes {
		allowed[m] = true
	}
	counts := map[string]int{}
	out := make([]DisplayItem, 0, len(items))
	for _, it := range items {
		if len(allowed) > 0 && (it.RouteType == nil || !allowed[*it.RouteType]) {
			continue
		}
		if counts[it.StopID] >= perStopCap {
			continue
		}
		counts[it.StopID]++
		out = append(out, it)
	}
	return out
}

type DirectionGroup struct {
	Headsign string        `json:"headsign"`
	Items    []DisplayItem `json:"items"`
}

type RouteGroup struct {
	RouteLabel string           `json:"routeLabel"`
	Color      string           `json:"color"`
	TextColor  string           `json:"textColor"`
	Directions []DirectionGroup `json:"directions"`
}

// Group buckets items by route label, then headsign, in first-seen order.
// Each headsign bucket holds at most GroupCap items.
func Group(items []DisplayItem) []RouteGroup {
	var groups []RouteGroup
	index := map[string]int{}
	for _, it := range items {
		i, ok := index[it.RouteLabel]
		if !ok {
			groups = append(groups, RouteGroup{RouteLabel: it.RouteLabel, Color: it.Color, TextColor: it.TextColor})
			i = len(groups) - 1
			index[it.RouteLabel] = i
		}
		g := &groups[i]
		d := -1
		for j := range g.Directions {
			if g.Directions[j].Headsign == it.Headsign {
				d = j
				break
			}
		}
		if d < 0 {
			g.Directions = append(g.Directions, DirectionGroup{Headsign: it.Headsign})
			d = len(g.Directions) - 1
		}
		if len(g.Directions[d].Items) < GroupCap {
			g.Directions[d].Items = append(g.Directions[d].Items, it)
		}
	}
	return groups
}
