// Package settings resolves named display preferences from, in order, the
// invocation query, the persistent key-value store and a caller default.
package settings

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"enroute/internal/logging"
)

// Prefix namespaces every stored setting.
const Prefix = "enroute_"

// ErrBadModes is returned by ParseModes for input that is not a list of
// integer route types.
var ErrBadModes = errors.New("malformed mode filter")

// Store is the persistent key-value store backing settings and layouts.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Resolver looks settings up in Query first, then Store under Prefix+key.
// A nil Store is allowed.
type Resolver struct {
	Query url.Values
	Store Store
}

// Get returns the first non-empty value for key, else def. Store errors are
// logged and treated as absence.
func (r Resolver) Get(ctx context.Context, key, def string) string {
	if v := r.Query.Get(key); v != "" {
		return v
	}
	if r.Store != nil {
		v, ok, err := r.Store.Get(ctx, Prefix+key)
		if err != nil {
			logging.Warn("settings store lookup failed", "key", key, "error", err)
		} else if ok && v != "" {
			return v
		}
	}
	return def
}

// Bool treats "false" as false and "true" as true; anything else yields def.
func (r Resolver) Bool(ctx context.Context, key string, def bool) bool {
	switch r.Get(ctx, key, "") {
	case "false":
		return false
	case "true":
		return true
	default:
		return def
	}
}

// Float parses the setting as a float; ok is false when absent or invalid.
func (r Resolver) Float(ctx context.Context, key string) (float64, bool) {
	v := r.Get(ctx, key, "")
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Modes returns the allowed route types from the "modes" setting. Malformed
// input means no filter.
func (r Resolver) Modes(ctx context.Context) []int {
	modes, err := ParseModes(r.Get(ctx, "modes", ""))
	if err != nil {
		logging.Warn("ignoring mode filter", "error", err)
		return nil
	}
	return modes
}

// ParseModes parses a comma separated list such as "0,1,3".
func ParseModes(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", ErrBadModes, s)
		}
		out = append(out, n)
	}
	return out, nil
}

// ParseQuery builds query values from command-line arguments. Each argument
// is either key=value or a query string, optionally starting with '?'.
func ParseQuery(args []string) (url.Values, error) {
	q := url.Values{}
	for _, a := range args {
		a = strings.TrimPrefix(a, "?")
		if a == "" {
			continue
		}
		if !strings.Contains(a, "=") {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		vals, err := url.ParseQuery(a)
		if err != nil {
			// raw values like chateau=metro~losangeles&x are still usable as one pair
			k, v, _ := strings.Cut(a, "=")
			q.Set(k, v)
			continue
		}
		for k, vs := range vals {
			for _, v := range vs {
				q.Set(k, v)
			}
		}
	}
	return q, nil
}

// MemoryStore is an in-process Store, used in tests and when no persistent
// store could be opened.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{m: map[string]string{}} }

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// Keys lists keys with prefix, sorted.
func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
