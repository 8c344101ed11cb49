// Package birch is a client for the upstream transit-data API.
package birch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Endpoint labels used for metrics.
const (
	EndpointNearby = "nearby"
	EndpointStop   = "stop"
	EndpointTrip   = "trip"
	EndpointScheme = "scheme"
)

// StopLookahead bounds the departures-at-stop query window.
const StopLookahead = 2 * time.Hour

// ErrTripNotFound matches every *NotFoundError through errors.Is.
var ErrTripNotFound = errors.New("trip not found")

// NotFoundError is returned when the trip endpoint answers 404.
type NotFoundError struct {
	Chateau string
	TripID  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Trip %s not found in Chateau %s", e.TripID, e.Chateau)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrTripNotFound }

// StatusError is any other non-2xx answer.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP error! status: %d", e.Endpoint, e.Code)
}

// Metrics receives one observation per upstream request.
type Metrics interface {
	UpstreamObserve(endpoint, status string, d time.Duration)
}

// Options configures a Client. Zero values pick defaults.
type Options struct {
	BaseURL     string
	StopBaseURL string
	Timeout     time.Duration
	RPS         float64
	Metrics     Metrics
}

type Client struct {
	base     string
	stopBase string
	http     *http.Client
	limiter  *rate.Limiter
	metrics  Metrics
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	return &Client{
		base:     strings.TrimRight(opts.BaseURL, "/"),
		stopBase: strings.TrimRight(opts.StopBaseURL, "/"),
		http:     &http.Client{Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(limit, 1),
		metrics:  opts.Metrics,
	}
}

// Nearby fetches departures around a point.
func (c *Client) Nearby(ctx context.Context, lat, lon, radius float64) (*NearbyResponse, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("radius", strconv.FormatFloat(radius, 'f', -1, 64))
	var out NearbyResponse
	if err := c.GetJSON(ctx, EndpointNearby, c.base+"/nearbydeparturesfromcoordsv2?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StopDepartures fetches the events at one stop between from and from+StopLookahead.
func (c *Client) StopDepartures(ctx context.Context, chateau, stopID string, from time.Time) (*StopResponse, error) {
	q := url.Values{}
	q.Set("stop_id", stopID)
	q.Set("chateau_id", chateau)
	q.Set("greater_than_time", strconv.FormatInt(from.Unix(), 10))
	q.Set("less_than_time", strconv.FormatInt(from.Add(StopLookahead).Unix(), 10))
	q.Set("include_shapes", "false")
	var out StopResponse
	if err := c.GetJSON(ctx, EndpointStop, c.stopBase+"/departures_at_stop?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Trip fetches a trip's stop times. A 404 yields a *NotFoundError.
func (c *Client) Trip(ctx context.Context, chateau, tripID string) (*TripResponse, error) {
	u := fmt.Sprintf("%s/get_trip_information/%s/?trip_id=%s", c.base, url.PathEscape(chateau), url.QueryEscape(tripID))
	var out TripResponse
	err := c.GetJSON(ctx, EndpointTrip, u, &out)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil, &NotFoundError{Chateau: chateau, TripID: tripID}
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetJSON performs a rate-limited GET and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, endpoint, rawURL string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(endpoint, "error", start)
		return fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.observe(endpoint, strconv.Itoa(resp.StatusCode), start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return &StatusError{Endpoint: endpoint, Code: resp.StatusCode}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 32<<20)).Decode(out); err != nil {
		return fmt.Errorf("parse %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) observe(endpoint, status string, start time.Time) {
	if c.metrics != nil {
		c.metrics.UpstreamObserve(endpoint, status, time.Since(start))
	}
}
