// Package layout persists the user-authored grid of display panes.
package layout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"enroute/internal/logging"
	"enroute/internal/settings"
)

// Keys under which the two logical layouts are stored.
const (
	GridKey    = "enroute_layout_v1"
	StationKey = "enroute_station_layout_v2"
)

// Pane type tags.
const (
	TypeDepartures = "departures"
	TypeAlerts     = "alerts"
	TypeImage      = "image"
	TypeBlank      = "blank"
	TypeEnroute    = "enroute"
)

// Departure pane display modes.
const (
	ModeSimple         = "simple"
	ModeTrainDeparture = "train_departure"
	ModeGroupedByRoute = "grouped_by_route"
)

const DefaultImageURL = "/alert/pride.png"

type Location struct {
	Lat float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" yaml:"lon" validate:"gte=-180,lte=180"`
}

// PaneConfig is one cell of the grid.
type PaneConfig struct {
	ID                 string    `json:"id" yaml:"id" validate:"required"`
	Type               string    `json:"type" yaml:"type" validate:"required"`
	Name               string    `json:"name,omitempty" yaml:"name,omitempty"`
	AllowedModes       []int     `json:"allowedModes,omitempty" yaml:"allowedModes,omitempty"`
	DisplayMode        string    `json:"displayMode,omitempty" yaml:"displayMode,omitempty" validate:"omitempty,oneof=simple train_departure grouped_by_route"`
	GroupingTheme      string    `json:"groupingTheme,omitempty" yaml:"groupingTheme,omitempty" validate:"omitempty,oneof=default ratp"`
	UseRouteColor      bool      `json:"useRouteColor,omitempty" yaml:"useRouteColor,omitempty"`
	ShowTripShortName  bool      `json:"showTripShortName,omitempty" yaml:"showTripShortName,omitempty"`
	ShowRouteShortName bool      `json:"showRouteShortName,omitempty" yaml:"showRouteShortName,omitempty"`
	Location           *Location `json:"location,omitempty" yaml:"location,omitempty"`
	Radius             float64   `json:"radius,omitempty" yaml:"radius,omitempty" validate:"gte=0"`
	ImageURL           string    `json:"imageUrl,omitempty" yaml:"imageUrl,omitempty"`
	Chateau            string    `json:"chateau,omitempty" yaml:"chateau,omitempty"`
	Trip               string    `json:"trip,omitempty" yaml:"trip,omitempty"`
}

// LayoutConfig is the persisted {rows, cols, panes} document.
type LayoutConfig struct {
	Rows  int          `json:"rows" yaml:"rows" validate:"gte=1"`
	Cols  int          `json:"cols" yaml:"cols" validate:"gte=1"`
	Panes []PaneConfig `json:"panes" yaml:"panes" validate:"required,dive"`
}

// DefaultGrid is the layout shown before anything has been saved.
func DefaultGrid() LayoutConfig {
	return LayoutConfig{Rows: 1, Cols: 1, Panes: []PaneConfig{{ID: "p1", Type: TypeAlerts}}}
}

// DefaultStation is the station view's layout before anything has been saved.
func DefaultStation() LayoutConfig {
	return LayoutConfig{
		Rows: 1,
		Cols: 2,
		Panes: []PaneConfig{
			{ID: "station-departures", Type: TypeDepartures, DisplayMode: ModeSimple, UseRouteColor: true},
			{ID: "station-image", Type: TypeImage, ImageURL: DefaultImageURL},
		},
	}
}

var validate = validator.New()

// Validate checks the document shape.
func Validate(cfg LayoutConfig) error {
	if cfg.Panes == nil {
		return fmt.Errorf("invalid layout: panes missing")
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid layout: %w", err)
	}
	return nil
}

// Store reads and writes one layout document under a fixed key.
type Store struct {
	kv       settings.Store
	key      string
	fallback func() LayoutConfig
	newPane  func(id string) PaneConfig
}

// NewGridStore returns the store backing the grid view.
func NewGridStore(kv settings.Store) *Store {
	return &Store{
		kv:       kv,
		key:      GridKey,
		fallback: DefaultGrid,
		newPane:  func(id string) PaneConfig { return PaneConfig{ID: id, Type: TypeDepartures} },
	}
}

// NewStationStore returns the store backing the station view.
func NewStationStore(kv settings.Store) *Store {
	return &Store{
		kv:       kv,
		key:      StationKey,
		fallback: DefaultStation,
		newPane: func(id string) PaneConfig {
			return PaneConfig{ID: id, Type: TypeDepartures, UseRouteColor: true}
		},
	}
}

func (s *Store) Key() string { return s.key }

// Load returns the saved layout, or the default on any read, parse or shape
// failure.
func (s *Store) Load(ctx context.Context) LayoutConfig {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		logging.Warn("layout read failed", "key", s.key, "error", err)
		return s.fallback()
	}
	if !ok || raw == "" {
		return s.fallback()
	}
	var cfg LayoutConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		logging.Warn("failed to load layout", "key", s.key, "error", err)
		return s.fallback()
	}
	if err := Validate(cfg); err != nil {
		logging.Warn("failed to load layout", "key", s.key, "error", err)
		return s.fallback()
	}
	return cfg
}

// Save validates and persists cfg.
func (s *Store) Save(ctx context.Context, cfg LayoutConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, s.key, string(b))
}

// Reset restores the default layout.
func (s *Store) Reset(ctx context.Context) (LayoutConfig, error) {
	cfg := s.fallback()
	return cfg, s.Save(ctx, cfg)
}

// Resize sets the grid dimensions, appending departures panes or dropping
// trailing panes so there are exactly rows*cols.
func (s *Store) Resize(ctx context.Context, rows, cols int) (LayoutConfig, error) {
	if rows < 1 || cols < 1 {
		return LayoutConfig{}, fmt.Errorf("invalid grid size %dx%d", rows, cols)
	}
	cfg := s.Load(ctx)
	target := rows * cols
	panes := append([]PaneConfig(nil), cfg.Panes...)
	stamp := time.Now().UnixNano()
	for i := len(panes); i < target; i++ {
		panes = append(panes, s.newPane(fmt.Sprintf("p%d-%d", stamp, i)))
	}
	if len(panes) > target {
		panes = panes[:target]
	}
	cfg = LayoutConfig{Rows: rows, Cols: cols, Panes: panes}
	return cfg, s.Save(ctx, cfg)
}

// UpdatePane merges updates into the pane with the given id. Values are JSON
// literals where they parse as one ("true", "3", "[0,1]"), strings otherwise.
// Unknown pane ids leave the layout unchanged.
func (s *Store) UpdatePane(ctx context.Context, id string, updates map[string]string) (LayoutConfig, error) {
	cfg := s.Load(ctx)
	found := false
	for i, p := range cfg.Panes {
		if p.ID != id {
			continue
		}
		merged, err := mergePane(p, updates)
		if err != nil {
			return cfg, err
		}
		cfg.Panes[i] = merged
		found = true
	}
	if !found {
		return cfg, fmt.Errorf("no pane with id %q", id)
	}
	return cfg, s.Save(ctx, cfg)
}

func mergePane(p PaneConfig, updates map[string]string) (PaneConfig, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return p, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return p, err
	}
	for k, raw := range updates {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		if v == nil {
			delete(fields, k)
			continue
		}
		fields[k] = v
	}
	b, err = json.Marshal(fields)
	if err != nil {
		return p, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var out PaneConfig
	if err := dec.Decode(&out); err != nil {
		return p, fmt.Errorf("update pane %q: %w", p.ID, err)
	}
	return out, nil
}

// ImportYAML parses and validates a layout seed file.
func ImportYAML(r io.Reader) (LayoutConfig, error) {
	var cfg LayoutConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse layout: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// MarshalYAML renders cfg as the same format ImportYAML reads.
func MarshalYAML(cfg LayoutConfig) (string, error) {
	var sb strings.Builder
	enc := yaml.NewEncoder(&sb)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return sb.String(), nil
}
