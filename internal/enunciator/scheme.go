package enunciator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bluele/gcache"

	"enroute/internal/birch"
)

// Announcement styles a scheme can assign to a route.
const (
	StyleMetro    = "metro"
	StyleRegional = "regional"
	StyleLocal    = "local"
)

// SchemeTTL is how long a fetched scheme is reused.
const SchemeTTL = 5 * time.Minute

// Clips is a list of clip names. It decodes from a JSON array or a single
// string.
type Clips []string

func (c *Clips) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = nil
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*c = nil
		} else {
			*c = Clips{s}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*c = list
	return nil
}

type Announcement struct {
	Audio Clips  `json:"audio"`
	Text  string `json:"text"`
}

type DirectionOverride struct {
	Headsign string        `json:"headsign"`
	Station  *Announcement `json:"station"`
	Enroute  *Announcement `json:"enroute"`
}

type RouteScheme struct {
	Scheme string `json:"scheme"`
}

// Scheme is a chateau's _scheme.json.
type Scheme struct {
	Route     map[string]RouteScheme         `json:"route"`
	Direction map[string][]DirectionOverride `json:"direction"`
	Append    []string                       `json:"append"`
	Custom    *Announcement                  `json:"custom"`
}

// Style returns the route's announcement style, falling back to the "*"
// entry. ok is false when the scheme has neither.
func (s *Scheme) Style(routeID string) (style string, ok bool) {
	if s == nil {
		return "", false
	}
	if r, found := s.Route[routeID]; found {
		return r.Scheme, true
	}
	if r, found := s.Route["*"]; found {
		return r.Scheme, true
	}
	return "", false
}

// Override returns the direction override for a route whose headsign matches
// one of the given names.
func (s *Scheme) Override(routeID string, names ...string) (DirectionOverride, bool) {
	if s == nil {
		return DirectionOverride{}, false
	}
	for _, d := range s.Direction[routeID] {
		for _, n := range names {
			if n != "" && d.Headsign == n {
				return d, true
			}
		}
	}
	return DirectionOverride{}, false
}

func (s *Scheme) appends(stopID string) bool {
	for _, id := range s.Append {
		if id == stopID {
			return true
		}
	}
	return false
}

// SchemeSource returns the announcement scheme for a chateau.
type SchemeSource interface {
	Scheme(ctx context.Context, chateau string) (*Scheme, error)
}

// Fetcher is the JSON GET the scheme source needs; *birch.Client has it.
type Fetcher interface {
	GetJSON(ctx context.Context, endpoint, rawURL string, out any) error
}

// HTTPSchemes loads {base}/audio/{chateau}/_scheme.json and caches it per
// chateau for SchemeTTL. Failures are not cached.
type HTTPSchemes struct {
	base    string
	fetcher Fetcher
	cache   gcache.Cache
}

func NewHTTPSchemes(base string, f Fetcher) *HTTPSchemes {
	return &HTTPSchemes{
		base:    strings.TrimRight(base, "/"),
		fetcher: f,
		cache: gcache.New(64).
			LRU().
			Expiration(SchemeTTL).
			Build(),
	}
}

func (h *HTTPSchemes) Scheme(ctx context.Context, chateau string) (*Scheme, error) {
	if cached, err := h.cache.Get(chateau); err == nil {
		return cached.(*Scheme), nil
	}
	u := fmt.Sprintf("%s/audio/%s/_scheme.json", h.base, url.PathEscape(chateau))
	var s Scheme
	if err := h.fetcher.GetJSON(ctx, birch.EndpointScheme, u, &s); err != nil {
		return nil, fmt.Errorf("fetch scheme for %s: %w", chateau, err)
	}
	h.cache.Set(chateau, &s)
	return &s, nil
}
