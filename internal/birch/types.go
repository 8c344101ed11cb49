package birch

// NearbyResponse is the nearbydeparturesfromcoordsv2 payload.
type NearbyResponse struct {
	Departures []NearbyDeparture           `json:"departures"`
	Stop       map[string]map[string]Stop  `json:"stop"`
	Alerts     map[string]map[string]Alert `json:"alerts"`
}

// NearbyDeparture is one route near the query point.
type NearbyDeparture struct {
	ChateauID       string                                `json:"chateau_id"`
	RouteID         string                                `json:"route_id"`
	Color           string                                `json:"color"`
	TextColor       string                                `json:"text_color"`
	ShortName       string                                `json:"short_name"`
	LongName        string                                `json:"long_name"`
	RouteType       int                                   `json:"route_type"`
	Directions      map[string]map[string]NearbyDirection `json:"directions"`
	ClosestDistance float64                               `json:"closest_distance"`
}

// NearbyDirection is directions[direction][group].
type NearbyDirection struct {
	Headsign    string `json:"headsign"`
	DirectionID string `json:"direction_id"`
	Trips       []Trip `json:"trips"`
}

// Trip is one trip instance calling at a nearby stop. Times are unix seconds.
type Trip struct {
	TripID            string  `json:"trip_id"`
	DepartureSchedule *int64  `json:"departure_schedule"`
	DepartureRealtime *int64  `json:"departure_realtime"`
	ArrivalSchedule   *int64  `json:"arrival_schedule"`
	ArrivalRealtime   *int64  `json:"arrival_realtime"`
	StopID            string  `json:"stop_id"`
	TripShortName     string  `json:"trip_short_name"`
	Cancelled         bool    `json:"cancelled"`
	Deleted           bool    `json:"deleted"`
	Platform          *string `json:"platform"`
}

type Stop struct {
	GTFSID       string  `json:"gtfs_id"`
	Name         string  `json:"name"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	Timezone     string  `json:"timezone"`
	URL          *string `json:"url"`
	PlatformCode *string `json:"platform_code"`
}

type Translation struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type TranslationBlock struct {
	Translation []Translation `json:"translation"`
}

// First returns the first translation's text, or "".
func (b *TranslationBlock) First() string {
	if b == nil || len(b.Translation) == 0 {
		return ""
	}
	return b.Translation[0].Text
}

type ActivePeriod struct {
	Start int64  `json:"start"`
	End   *int64 `json:"end"`
}

type Alert struct {
	ActivePeriod    []ActivePeriod    `json:"active_period"`
	Cause           *int              `json:"cause"`
	Effect          *int              `json:"effect"`
	HeaderText      *TranslationBlock `json:"header_text"`
	DescriptionText *TranslationBlock `json:"description_text"`
	SeverityLevel   *int              `json:"severity_level"`
}

// StopResponse is the departures_at_stop payload.
type StopResponse struct {
	Primary StopPrimary                 `json:"primary"`
	Events  []StopEvent                 `json:"events"`
	Routes  map[string]map[string]Route `json:"routes"`
	Alerts  map[string]map[string]Alert `json:"alerts"`
}

type StopPrimary struct {
	Chateau      string  `json:"chateau"`
	StopID       string  `json:"stop_id"`
	StopName     string  `json:"stop_name"`
	StopLat      float64 `json:"stop_lat"`
	StopLon      float64 `json:"stop_lon"`
	PlatformCode *string `json:"platform_code"`
	Timezone     string  `json:"timezone"`
}

type StopEvent struct {
	ScheduledArrival       *int64  `json:"scheduled_arrival"`
	ScheduledDeparture     *int64  `json:"scheduled_departure"`
	RealtimeArrival        *int64  `json:"realtime_arrival"`
	RealtimeDeparture      *int64  `json:"realtime_departure"`
	StopCancelled          bool    `json:"stop_cancelled"`
	TripCancelled          bool    `json:"trip_cancelled"`
	TripDeleted            bool    `json:"trip_deleted"`
	TripID                 string  `json:"trip_id"`
	Headsign               string  `json:"headsign"`
	RouteID                string  `json:"route_id"`
	Chateau                string  `json:"chateau"`
	StopID                 string  `json:"stop_id"`
	PlatformCode           *string `json:"platform_code"`
	PlatformStringRealtime *string `json:"platform_string_realtime"`
	VehicleNumber          *string `json:"vehicle_number"`
	TripShortName          string  `json:"trip_short_name"`
	LastStop               bool    `json:"last_stop"`
}

type Route struct {
	RouteID   string `json:"route_id"`
	ShortName string `json:"short_name"`
	LongName  string `json:"long_name"`
	Color     string `json:"color"`
	TextColor string `json:"text_color"`
	RouteType int    `json:"route_type"`
}

// TripResponse is the get_trip_information payload.
type TripResponse struct {
	StopTimes      []StopTime   `json:"stoptimes"`
	TZ             string       `json:"tz"`
	RouteID        string       `json:"route_id"`
	TripHeadsign   string       `json:"trip_headsign"`
	RouteShortName string       `json:"route_short_name"`
	RouteLongName  string       `json:"route_long_name"`
	TripShortName  string       `json:"trip_short_name"`
	Color          string       `json:"color"`
	TextColor      string       `json:"text_color"`
	RouteType      int          `json:"route_type"`
	Vehicle        *TripVehicle `json:"vehicle"`
}

type TripVehicle struct {
	ID    string  `json:"id"`
	Label *string `json:"label"`
}

type StopTime struct {
	StopID             string      `json:"stop_id"`
	Name               string      `json:"name"`
	Longitude          float64     `json:"longitude"`
	Latitude           float64     `json:"latitude"`
	ScheduledArrival   *int64      `json:"scheduled_arrival_time_unix_seconds"`
	ScheduledDeparture *int64      `json:"scheduled_departure_time_unix_seconds"`
	RealtimeArrival    *StopTimeRT `json:"rt_arrival"`
	RealtimeDeparture  *StopTimeRT `json:"rt_departure"`
	GTFSStopSequence   int         `json:"gtfs_stop_sequence"`
}

type StopTimeRT struct {
	Delay *int64 `json:"delay"`
	Time  *int64 `json:"time"`
}

// BestArrival returns the realtime arrival when present, else the scheduled
// one. ok is false when neither is known.
func (st StopTime) BestArrival() (int64, bool) {
	if st.RealtimeArrival != nil && st.RealtimeArrival.Time != nil && *st.RealtimeArrival.Time != 0 {
		return *st.RealtimeArrival.Time, true
	}
	if st.ScheduledArrival != nil && *st.ScheduledArrival != 0 {
		return *st.ScheduledArrival, true
	}
	return 0, false
}
