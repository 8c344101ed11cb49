// Package agency holds per-agency display fixups: route colors and names,
// run numbers and shortened headsign/station text.
package agency

import "strings"

const (
	DefaultColor     = "#0a233f"
	DefaultTextColor = "#FFFFFF"
)

var routeColors = map[string]map[string]string{
	"metro~losangeles": {
		"801": "#0072BC",
		"802": "#EB131B",
		"803": "#58A738",
		"805": "#A05DA5",
		"804": "#FDB913",
		"807": "#E470AB",
		"901": "#FC4C02",
		"910": "#ADB8BF",
		"950": "#ADB8BF",
		"720": "#D11242",
		"754": "#D11242",
		"761": "#D11242",
		"*":   "#E16710",
	},
	"amtrak": {
		"60": "#669900",
		"78": "#517b9b",
		"*":  "#002436",
	},
}

var routeTextColors = map[string]map[string]string{
	"metro~losangeles": {
		"804": "black",
		"*":   "white",
	},
	"amtrak": {
		"*": "#FFFFFF",
	},
}

var routeNames = map[string]map[string]string{
	"metrolinktrains": {
		"91 Line":                     "91/PV Line",
		"Antelope Valley Line":        "AV Line",
		"Inland Emp.-Orange Co. Line": "IE-OC Line",
		"Orange County Line":          "OC Line",
		"Riverside Line":              "RIV Line",
		"San Bernardino Line":         "SB Line",
		"Ventura County Line":         "VC Line",
	},
	"san-diego-mts": {
		"510": "Blue Line",
		"520": "Orange Line",
		"530": "Green Line",
		"215": "Mid-City Rapid",
		"225": "South Bay Rapid",
		"235": "I-15 Rapid",
		"201": "SuperLoop",
		"202": "SuperLoop",
		"204": "SuperLoop",
		"227": "Iris Rapid",
		"237": "Mira Mesa Rapid",
		"280": "Rapid Express",
		"290": "Rapid Express",
		"398": "COASTER",
		"399": "SPRINTER",
		"AIR": "Flyer",
	},
}

var headsigns = map[string]string{
	"L.A. Union Station":               "Los Angeles",
	"12th & Imperial":                  "12th/Imp'l",
	"El Cajon / Arnele":                "El Cajon",
	"Downtown SD":                      "Downtown",
	"Ucsd":                             "UCSD",
	"Sdsu":                             "SDSU",
	"Utc":                              "UTC",
	"Va / Ucsd":                        "UTC",
	"UTC/VA Med Ctr":                   "UTC",
	"Old Town to Airport Shuttle":      "Airport",
	"Downtown Santa Monica Station":    "S Monica",
	"Downtown Long Beach Station":      "Long Bch",
	"LA Union Station":                 "Los Angeles",
	"North Hollywood Station":          "NoHo",
	"North Hollywood Station G - Line": "NoHo",
	"Chatsworth Station G - Line":      "Chatsworth",
	"Union Station":                    "UnionSta",
	"Wilshire / Western Station":       "Wil/Wstrn",
	"Wilshire / Vermont Station":       "Wilshire Ctr",
	"APU / Citrus College Station":     "Azusa",
	"Redondo Beach Station":            "Redondo Bch",
	"Norwalk Station":                  "Norwalk",
	"Atlantic Station":                 "East LA",
	"Expo / Crenshaw Station":          "Expo/Crnshw",
	"Westchester / Veterans Station":   "Westchester",
	"University & College":             "City Heights",
	"Crenshaw C-Line Station":          "Crenshaw",
}

var stations = map[string]string{
	"L.A. Union Station":                                  "Los Angeles",
	"Union Station":                                       "Union Station",
	"Heritage Square / Arroyo Station":                    "Heritage Square",
	"Lincoln Heights / Cypress Park Station":              "Lincoln / Cypress",
	"Mariachi Plaza / Boyle Heights Station":              "Mariachi Plaza",
	"Expo / La Brea / Ethel Bradley Station":              "Expo / La Brea",
	"Expo / Crenshaw K-Line Station":                      "Expo / Crenshaw",
	"Expo / Crenshaw E-Line Station":                      "Expo / Crenshaw",
	"Crenshaw C-Line Station":                             "Crenshaw",
	"Union Station - Metro A-Line":                        "Union Station",
	"Union Station - Metro a-Line":                        "Union Station",
	"Union Station - Metro B & D Lines":                   "Union Station",
	"Sabre Springs & Penasquitos Transit Station":         "Sabre Springs/Peñasquitos",
	"Clairemont Mesa Bl & Complex Dr":                     "Kearny Mesa",
	"32nd/Commercial St Station":                          "32nd & Commercial",
	"25th & Commercial St Station":                        "25th & Commercial",
	"I-15 Centerline Sta & University Av":                 "City Heights",
	"I-15 Centerline Sta & El Cajon Bl":                   "Boulevard",
	"San Diego - Santa Fe Depot":                          "Santa Fe Depot",
	"San Diego - Old Town":                                "Old Town",
	"Burbank Airport - North (Av Line) Metrolink Station": "Burbank Airport North",
	"Burbank Airport - South (Vc Line) Metrolink Station": "Burbank Airport South",
}

func lookup(table map[string]map[string]string, chateau, routeID string) (string, bool) {
	byRoute, ok := table[chateau]
	if !ok {
		return "", false
	}
	if v, ok := byRoute[routeID]; ok {
		return v, true
	}
	v, ok := byRoute["*"]
	return v, ok
}

// RouteColor returns the agency override for a route, else upstream, else
// DefaultColor.
func RouteColor(chateau, routeID, upstream string) string {
	if v, ok := lookup(routeColors, chateau, routeID); ok {
		return v
	}
	if upstream != "" {
		return upstream
	}
	return DefaultColor
}

func RouteTextColor(chateau, routeID, upstream string) string {
	if v, ok := lookup(routeTextColors, chateau, routeID); ok {
		return v
	}
	if upstream != "" {
		return upstream
	}
	return DefaultTextColor
}

var routeNameReplacer = []struct{ old, new string }{
	{"Amtrak ", ""},
	{"Transit Station", "Sta"},
	{"Metro ", ""},
	{"Station", "Sta"},
	{"Transportation Center", "TC"},
	{"Transit Center", "TC"},
	{"Transit Ctr", "TC"},
}

// RouteName shortens a route label. Table entries are keyed by route id.
func RouteName(chateau, route, routeID string) string {
	if byRoute, ok := routeNames[chateau]; ok {
		if v, ok := byRoute[routeID]; ok {
			return v
		}
	}
	for _, r := range routeNameReplacer {
		route = strings.Replace(route, r.old, r.new, 1)
	}
	return strings.TrimSpace(route)
}

// RunNumber picks what to show as the run or train number.
func RunNumber(chateau, routeID, tripShortName, vehicle, tripID string) string {
	switch {
	case chateau == "san-diego-mts" && (routeID == "510" || routeID == "520" || routeID == "530"):
		return vehicle
	case chateau == "metra":
		_, rest, ok := strings.Cut(tripID, "_")
		if !ok {
			return ""
		}
		rest, _, _ = strings.Cut(rest, "_")
		if len(rest) <= 2 {
			return ""
		}
		return rest[2:]
	case chateau == "northcountytransitdistrict" && routeID != "398":
		return ""
	}
	return tripShortName
}

// Headsign shortens a destination. A leading "<route> - " is removed when
// route is given.
func Headsign(name, route string) string {
	if route != "" && strings.HasPrefix(name, route) {
		name = strings.TrimSpace(strings.Replace(name, route+" - ", "", 1))
	}
	if v, ok := headsigns[name]; ok {
		return trimQualifiers(v)
	}
	return trimQualifiers(StationName(name))
}

func trimQualifiers(s string) string {
	s, _, _ = strings.Cut(s, " - ")
	s, _, _ = strings.Cut(s, "(")
	return strings.TrimSpace(s)
}

var stationReplacer = []struct{ old, new string }{
	{" Northbound", ""},
	{" Southbound", ""},
	{" & ", " / "},
	{" & via", " & Via"},
	{" Transit Station", ""},
	{"Transit Sta", ""},
	{"Transportation Center", ""},
	{"Transit Center", ""},
	{"Transit Ctr", ""},
	{" Station", ""},
	{" Metrolink", ""},
	{" Amtrak", ""},
}

// StationName shortens a stop name for display and speech.
func StationName(name string) string {
	if strings.HasSuffix(name, " Platform") {
		name, _, _ = strings.Cut(name, ",")
	}
	if v, ok := stations[name]; ok {
		return v
	}
	name, _, _ = strings.Cut(name, " - Metro")
	name, _, _ = strings.Cut(name, " Caltrain ")
	for _, r := range stationReplacer {
		name = strings.Replace(name, r.old, r.new, 1)
	}
	return strings.TrimSpace(name)
}
