// Package enunciator builds spoken announcements from per-agency schemes and
// sequences their playback and captions.
package enunciator

import (
	"context"
	"fmt"
	"strings"

	"enroute/internal/departures"
	"enroute/internal/trip"
)

type Phase int

const (
	Welcome Phase = iota
	Next
	Approaching
	Terminus
	Station
)

func (p Phase) String() string {
	switch p {
	case Welcome:
		return "WELCOME"
	case Next:
		return "NEXT"
	case Approaching:
		return "APPROACHING"
	case Terminus:
		return "TERMINUS"
	case Station:
		return "STATION"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	for q := Welcome; q <= Station; q++ {
		if q.String() == string(b) {
			*p = q
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// PhaseFor derives the on-board phase from trip progress.
func PhaseFor(info *trip.Info) Phase {
	switch {
	case !info.Approaching:
		return Next
	case info.Terminus:
		return Terminus
	}
	return Approaching
}

const (
	StationChime = "/audio/stationchime.wav"
	OnboardChime = "/audio/onboardchime.wav"
)

// Message is one announcement. When Audio is empty the Text is spoken.
type Message struct {
	Phase Phase    `json:"phase"`
	Audio []string `json:"audio"`
	Text  string   `json:"text"`
}

func (m Message) Chime() string {
	if m.Phase == Station {
		return StationChime
	}
	return OnboardChime
}

// Request asks for one announcement. Trip is set for on-board phases,
// Arrival optionally for Station.
type Request struct {
	Chateau string
	Phase   Phase
	Trip    *trip.Info
	Arrival *departures.Arrival
}

// Key identifies a request for de-duplication. Station requests have no key
// and may repeat.
func (r Request) Key() string {
	if r.Phase == Station || r.Trip == nil {
		return ""
	}
	if r.Phase == Welcome {
		return Welcome.String()
	}
	return r.Trip.NextStopID + ":" + r.Phase.String()
}

const (
	thanksText       = "Thanks for going with Catenary Maps!"
	lastStopText     = "This is the last stop. Please check to be sure you have all your personal belongings, and stay seated or hold on until the doors have opened. " + thanksText
	safetyText       = "For your personal safety, please keep aisles clear of personal items. If you see a suspicious package onboard the train, report it to the conductor immediately. Safety is everyone's concern."
	regionalBrief    = "All station stops are brief."
	regionalDestText = "If this is your destination, please watch your step and use handholds when moving through the train to the doors."
)

const (
	clipThisIsThe  = "/audio/catenary/THIS IS THE.wav"
	clipFinalDest  = "/audio/catenary/FINAL DEST.wav"
	clipNext       = "/audio/catenary/NEXT.wav"
	clipIsNext     = "/audio/catenary/IS NEXT.wav"
	clipLastStop   = "/audio/catenary/LAST STOP.wav"
	clipThanks     = "/audio/catenary/THX.wav"
	clipOurNext    = "/audio/catenary/OUR NEXT STA STOP IS.wav"
	clipBrief      = "/audio/catenary/ALL STA STOPS BRIEF.wav"
	clipIfThisIs   = "/audio/catenary/IF THIS IS YOUR DEST.wav"
	clipIsOurNext  = "/audio/catenary/IS OUR NEXT STOP.wav"
	clipRouteIntro = "/audio/ROUTE INTRO.wav"
)

func clip(chateau, kind, name string) string {
	return fmt.Sprintf("/audio/%s/%s/%s.wav", chateau, kind, name)
}

func clips(chateau, kind string, names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, clip(chateau, kind, n))
	}
	return out
}

// Builder turns requests into messages using the chateau's scheme.
type Builder struct {
	schemes SchemeSource
}

func NewBuilder(s SchemeSource) *Builder {
	return &Builder{schemes: s}
}

// Build returns the message for req, or nil when the request has nothing to
// say. Scheme fetch failures are returned as errors.
func (b *Builder) Build(ctx context.Context, req Request) (*Message, error) {
	if req.Phase == Station && req.Arrival == nil {
		return &Message{Phase: Station, Audio: []string{clipThanks}, Text: thanksText}, nil
	}
	scheme, err := b.schemes.Scheme(ctx, req.Chateau)
	if err != nil {
		return nil, err
	}
	if req.Phase == Station {
		return stationMessage(scheme, req.Chateau, req.Arrival), nil
	}
	if req.Trip == nil {
		return nil, nil
	}

	info := req.Trip
	var msg *Message
	style, ok := scheme.Style(info.RouteID)
	switch {
	case ok && style == StyleMetro:
		msg = metroMessage(scheme, req.Chateau, req.Phase, info)
	case ok && style == StyleRegional:
		msg = regionalMessage(scheme, req.Chateau, req.Phase, info)
	case req.Phase == Approaching:
		msg = &Message{Text: "Approaching: " + info.NextStop}
	}
	if msg == nil || (len(msg.Audio) == 0 && msg.Text == "") {
		return nil, nil
	}
	msg.Phase = req.Phase
	return msg, nil
}

func stationMessage(s *Scheme, chateau string, a *departures.Arrival) *Message {
	msg := &Message{
		Phase: Station,
		Text:  fmt.Sprintf("The %s to %s is now arriving.", a.Route, a.Destination),
	}
	if d, ok := s.Override(a.RouteID, a.Headsign, a.Destination); ok && d.Station != nil {
		msg.Audio = clips(chateau, "direction", d.Station.Audio)
		msg.Text = d.Station.Text
	}
	return msg
}

func metroMessage(s *Scheme, chateau string, phase Phase, info *trip.Info) *Message {
	msg := &Message{}
	nextStop := clip(chateau, "stop", info.NextStopID)
	switch phase {
	case Next:
		if d, ok := s.Override(info.RouteID, info.Headsign); ok && d.Enroute != nil {
			msg.Audio = clips(chateau, "direction", d.Enroute.Audio)
			msg.Text = d.Enroute.Text
		} else {
			msg.Audio = []string{clipThisIsThe, clip(chateau, "route", info.RouteID), clipFinalDest, clip(chateau, "stop", info.FinalStopID)}
			msg.Text = fmt.Sprintf("This is the %s. Final destination: %s.", info.Route, info.FinalStop)
		}
		msg.Audio = append(msg.Audio, clipNext, nextStop)
		msg.Text += fmt.Sprintf(" Next station: %s.", info.NextStop)

		if s.Custom != nil && len(s.Custom.Audio) > 0 && info.NextStopNumber%5 == 1 {
			msg.Audio = append(msg.Audio, clips(chateau, "custom", s.Custom.Audio)...)
			msg.Text += " " + s.Custom.Text
		}
	case Approaching:
		msg.Audio = []string{nextStop, clipIsNext}
		msg.Text = info.NextStop + " is next."
		if s.appends(info.NextStopID) {
			msg.Audio = append(msg.Audio, clip(chateau, "append", info.NextStopID))
		}
	case Terminus:
		msg.Audio = []string{nextStop, clipIsNext, clipLastStop, clipThanks}
		msg.Text = info.NextStop + " is next. " + lastStopText
	}
	return msg
}

func regionalMessage(s *Scheme, chateau string, phase Phase, info *trip.Info) *Message {
	msg := &Message{}
	nextStop := clip(chateau, "stop", info.NextStopID)
	ourNext := fmt.Sprintf("Our next station stop is %s.", info.NextStop)
	isOurNext := fmt.Sprintf("%s is our next stop.", info.NextStop)
	switch phase {
	case Welcome:
		var text []string
		if s.Custom != nil && len(s.Custom.Audio) > 0 {
			msg.Audio = clips(chateau, "custom", s.Custom.Audio)
			if s.Custom.Text != "" {
				text = append(text, s.Custom.Text)
			}
		}
		msg.Audio = append(msg.Audio, clipRouteIntro)
		msg.Text = strings.Join(append(text, safetyText), " ")
	case Next:
		msg.Audio = []string{clipOurNext, nextStop, clipBrief, nextStop, clipIsOurNext}
		msg.Text = strings.Join([]string{ourNext, regionalBrief, isOurNext}, " ")
	case Approaching:
		msg.Audio = []string{clipOurNext, nextStop, clipIfThisIs, nextStop, clipIsOurNext}
		msg.Text = strings.Join([]string{ourNext, regionalDestText, isOurNext}, " ")
	case Terminus:
		msg.Audio = []string{clipOurNext, nextStop, clipBrief, nextStop, clipIsOurNext, clipLastStop, clipThanks}
		msg.Text = strings.Join([]string{ourNext, regionalBrief, isOurNext, lastStopText}, " ")
	}
	return msg
}
