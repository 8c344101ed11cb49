package board

import (
	"sync"
	"time"

	"enroute/internal/departures"
	"enroute/internal/layout"
	"enroute/internal/logging"
	"enroute/internal/trip"
)

// View names.
const (
	ViewNearby  = "nearby"
	ViewGrid    = "grid"
	ViewStation = "station"
	ViewTrip    = "trip"
)

// PaneState is what one pane currently shows.
type PaneState struct {
	Config   layout.PaneConfig        `json:"config"`
	Items    []departures.DisplayItem `json:"items,omitempty"`
	Groups   []departures.RouteGroup  `json:"groups,omitempty"`
	Alerts   []string                 `json:"alerts,omitempty"`
	ImageURL string                   `json:"imageUrl,omitempty"`
	Trip     *trip.Info               `json:"trip,omitempty"`
	Err      string                   `json:"error,omitempty"`
	Loading  bool                     `json:"loading"`
}

// Snapshot is the complete state of one view session. Slices are replaced,
// never modified, after a snapshot has been delivered.
type Snapshot struct {
	View     string               `json:"view"`
	Session  string               `json:"session"`
	Title    string               `json:"title"`
	Time     time.Time            `json:"time"`
	Use24h   bool                 `json:"use24h"`
	Theme    string               `json:"theme,omitempty"`
	Rows     int                  `json:"rows,omitempty"`
	Cols     int                  `json:"cols,omitempty"`
	Panes    []PaneState          `json:"panes,omitempty"`
	Trip     *trip.Info           `json:"trip,omitempty"`
	Arrivals []departures.Arrival `json:"arrivals,omitempty"`
	Alerts   []string             `json:"alerts,omitempty"`
	Caption  string               `json:"caption,omitempty"`
	Err      string               `json:"error,omitempty"`
	Loading  bool                 `json:"loading"`
}

// Sink receives every snapshot a session produces. Deliver may be called
// from several goroutines.
type Sink interface {
	Deliver(Snapshot)
}

type SinkFunc func(Snapshot)

func (f SinkFunc) Deliver(s Snapshot) { f(s) }

// MultiSink delivers to each sink in order.
type MultiSink []Sink

func (m MultiSink) Deliver(s Snapshot) {
	for _, sink := range m {
		if sink != nil {
			sink.Deliver(s)
		}
	}
}

// SnapshotPublisher is the part of the NATS publisher boards use.
type SnapshotPublisher interface {
	PublishSnapshot(view, session string, snap any) error
	PublishCaption(session, text string) error
}

// PublisherSink forwards snapshots to a SnapshotPublisher and publishes
// caption changes on their own subject.
type PublisherSink struct {
	pub SnapshotPublisher

	mu       sync.Mutex
	captions map[string]string
}

func NewPublisherSink(pub SnapshotPublisher) *PublisherSink {
	return &PublisherSink{pub: pub, captions: make(map[string]string)}
}

func (p *PublisherSink) Deliver(s Snapshot) {
	if err := p.pub.PublishSnapshot(s.View, s.Session, s); err != nil {
		logging.Warn("publish snapshot failed", "view", s.View, "session", s.Session, "error", err)
	}

	p.mu.Lock()
	prev, seen := p.captions[s.Session]
	changed := !seen || prev != s.Caption
	p.captions[s.Session] = s.Caption
	p.mu.Unlock()
	if !changed || (!seen && s.Caption == "") {
		return
	}
	if err := p.pub.PublishCaption(s.Session, s.Caption); err != nil {
		logging.Warn("publish caption failed", "session", s.Session, "error", err)
	}
}

// LogSink logs a one-line summary of each snapshot. Headless runs without
// NATS use it.
type LogSink struct{}

func (LogSink) Deliver(s Snapshot) {
	items := len(s.Arrivals)
	for _, p := range s.Panes {
		items += len(p.Items)
	}
	kv := []any{"view", s.View, "session", s.Session, "title", s.Title, "items", items}
	if s.Trip != nil {
		kv = append(kv, "next", s.Trip.NextStop, "approaching", s.Trip.Approaching)
	}
	if s.Caption != "" {
		kv = append(kv, "caption", s.Caption)
	}
	if s.Err != "" {
		kv = append(kv, "error", s.Err)
	}
	logging.Info("board", kv...)
}
