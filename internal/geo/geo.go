// Package geo resolves the device location and measures distances.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"enroute/internal/logging"
)

// ErrNoLocation is returned when neither an override nor the IP lookup
// produced a position.
var ErrNoLocation = errors.New("no location configured")

// LookupTimeout bounds one IP geolocation attempt.
const LookupTimeout = 10 * time.Second

type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (p LatLon) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

func (p LatLon) String() string { return fmt.Sprintf("%.5f,%.5f", p.Lat, p.Lon) }

// DistanceMeters is the haversine distance between two points.
func DistanceMeters(a, b LatLon) float64 {
	const R = 6371000.0
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := (math.Sin(dLat/2) * math.Sin(dLat/2)) + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return R * c
}

// Source names where a location came from.
type Source string

const (
	SourceOverride Source = "override"
	SourceIP       Source = "ip"
)

// Locator resolves a position: explicit override first, then IP geolocation.
type Locator struct {
	ipURL   string
	client  *http.Client
	limiter *rate.Limiter
}

// NewLocator returns a Locator querying ipURL. An empty ipURL disables the
// IP fallback.
func NewLocator(ipURL string) *Locator {
	return &Locator{
		ipURL:   ipURL,
		client:  &http.Client{Timeout: LookupTimeout},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Locate returns override when set, else the IP lookup result.
func (l *Locator) Locate(ctx context.Context, override *LatLon) (LatLon, Source, error) {
	if override != nil {
		if !override.Valid() {
			return LatLon{}, "", fmt.Errorf("invalid location override %s", override)
		}
		return *override, SourceOverride, nil
	}
	if l == nil || l.ipURL == "" {
		return LatLon{}, "", ErrNoLocation
	}
	p, err := l.lookupIP(ctx)
	if err != nil {
		logging.Warn("ip geolocation failed", "error", err)
		return LatLon{}, "", ErrNoLocation
	}
	logging.Info("location from ip geolocation", "lat", p.Lat, "lon", p.Lon)
	return p, SourceIP, nil
}

// ipResponse covers the ip-api.com and ipapi.co payload shapes.
type ipResponse struct {
	Status    string   `json:"status"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (l *Locator) lookupIP(ctx context.Context) (LatLon, error) {
	ctx, cancel := context.WithTimeout(ctx, LookupTimeout)
	defer cancel()
	if err := l.limiter.Wait(ctx); err != nil {
		return LatLon{}, fmt.Errorf("rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.ipURL, nil)
	if err != nil {
		return LatLon{}, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return LatLon{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return LatLon{}, fmt.Errorf("ip geolocation status %d", resp.StatusCode)
	}
	var body ipResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		return LatLon{}, fmt.Errorf("parse ip geolocation: %w", err)
	}
	if body.Status != "" && body.Status != "success" {
		return LatLon{}, fmt.Errorf("ip geolocation status %q", body.Status)
	}
	switch {
	case body.Lat != nil && body.Lon != nil:
		return LatLon{Lat: *body.Lat, Lon: *body.Lon}, nil
	case body.Latitude != nil && body.Longitude != nil:
		return LatLon{Lat: *body.Latitude, Lon: *body.Longitude}, nil
	}
	return LatLon{}, errors.New("ip geolocation returned no coordinates")
}
