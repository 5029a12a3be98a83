// Package roadclient calls the external road-routing service: an
// OSRM-compatible HTTP API exposing /route/v1/driving and
// /table/v1/driving. It is grounded on the other_examples Valhalla client
// (http.Client + context-aware request/response JSON marshaling) adapted
// to OSRM's wire format with a fixed-delay retry on transport errors, with
// golang.org/x/time/rate added as a client-side self-throttle so a single
// planning request's deviation-check fan-out cannot hammer the road
// service past its configured rate.
package roadclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/shuttlecrew/routeplanner/internal/routing/geo"
)

// ErrorKind classifies a road-service failure the way spec.md §7 requires.
type ErrorKind string

const (
	KindUnavailable ErrorKind = "RoadServiceUnavailable"
	KindTransient   ErrorKind = "RoadServiceTransient"
)

// Error is the structured {kind, message, url} error RoadClient returns.
type Error struct {
	Kind    ErrorKind
	Message string
	URL     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.URL)
}

const (
	maxRetries    = 3
	retryDelay    = 150 * time.Millisecond
	routeTimeout  = 8 * time.Second
	tableBaseTime = 5 * time.Second
)

// Client calls the OSRM-compatible road service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Config configures a Client.
type Config struct {
	BaseURL string
	// RequestsPerSecond bounds this client's own outbound call rate,
	// independent of the per-endpoint server-side rate limiter guarding the
	// HTTP boundary.
	RequestsPerSecond float64
}

// New creates a road-service client.
func New(cfg Config) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 20
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)),
	}
}

// Waypoint carries one coordinate's index in the road service's chosen
// stop ordering — callers must map employees to sequence through this,
// never assume output order equals input order (spec.md §9).
type Waypoint struct {
	Location     geo.Point
	InputIndex   int
	MatchedIndex int
}

// RouteResult is the shape of a full-route response.
type RouteResult struct {
	TotalDistance float64 // meters
	TotalDuration float64 // seconds
	Legs          []LegResult
	Geometry      string // encoded polyline
	Waypoints     []Waypoint
}

// LegResult is one leg of a route between two consecutive stops.
type LegResult struct {
	Distance float64
	Duration float64
}

// TableResult is the shape of a distance/duration matrix response.
type TableResult struct {
	Distances [][]float64
	Durations [][]float64
}

// osrmRouteResponse and osrmTableResponse mirror OSRM's wire format
// (spec.md §6).
type osrmRouteResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry string  `json:"geometry"`
		Legs     []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"legs"`
	} `json:"routes"`
	Waypoints []struct {
		Location     [2]float64 `json:"location"`
		WaypointIndex int       `json:"waypoint_index"`
	} `json:"waypoints"`
}

type osrmTableResponse struct {
	Code      string      `json:"code"`
	Distances [][]float64 `json:"distances"`
	Durations [][]float64 `json:"durations"`
}

// coordsParam renders points as OSRM's "lng,lat;lng,lat..." format.
func coordsParam(points []geo.Point) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = strconv.FormatFloat(p.Lng, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lat, 'f', 6, 64)
	}
	return strings.Join(parts, ";")
}

// IsAvailable probes the road service with two trivial coordinates.
// Returns true iff the response carries code=="Ok" and a non-empty routes
// array.
func (c *Client) IsAvailable(ctx context.Context) bool {
	probe := []geo.Point{{Lat: 12.9716, Lng: 77.5946}, {Lat: 12.9352, Lng: 77.6146}}
	_, err := c.Route(ctx, probe, false)
	return err == nil
}

// Route requests a full road route across the given coordinates in order.
// withGeometry toggles overview=full so the polyline/legs are populated;
// when false the caller only wants distance/duration.
func (c *Client) Route(ctx context.Context, coords []geo.Point, withGeometry bool) (*RouteResult, error) {
	if len(coords) < 2 {
		return nil, &Error{Kind: KindTransient, Message: "at least two coordinates required"}
	}

	u := fmt.Sprintf("%s/route/v1/driving/%s?overview=%s&geometries=polyline&steps=true&annotations=distance",
		c.baseURL, coordsParam(coords), overviewValue(withGeometry))

	var parsed osrmRouteResponse
	if err := c.getJSON(ctx, u, routeTimeout, &parsed); err != nil {
		return nil, err
	}

	if parsed.Code != "Ok" || len(parsed.Routes) == 0 {
		return nil, &Error{Kind: KindTransient, Message: "road service returned non-Ok response", URL: u}
	}

	r := parsed.Routes[0]
	legs := make([]LegResult, len(r.Legs))
	for i, l := range r.Legs {
		legs[i] = LegResult{Distance: l.Distance, Duration: l.Duration}
	}

	waypoints := make([]Waypoint, len(parsed.Waypoints))
	for i, w := range parsed.Waypoints {
		waypoints[i] = Waypoint{
			Location:     geo.Point{Lng: w.Location[0], Lat: w.Location[1]},
			InputIndex:   i,
			MatchedIndex: w.WaypointIndex,
		}
	}

	return &RouteResult{
		TotalDistance: r.Distance,
		TotalDuration: r.Duration,
		Legs:          legs,
		Geometry:      r.Geometry,
		Waypoints:     waypoints,
	}, nil
}

func overviewValue(withGeometry bool) string {
	if withGeometry {
		return "full"
	}
	return "false"
}

// Table requests a symmetric or rectangular distance/duration matrix.
// sources/destinations are index lists into coords; nil means "all".
func (c *Client) Table(ctx context.Context, coords []geo.Point, sources, destinations []int) (*TableResult, error) {
	timeout := tableBaseTime + time.Duration(len(coords))*50*time.Millisecond

	u := fmt.Sprintf("%s/table/v1/driving/%s?annotations=distance,duration",
		c.baseURL, coordsParam(coords))
	if len(sources) > 0 {
		u += "&sources=" + joinInts(sources)
	}
	if len(destinations) > 0 {
		u += "&destinations=" + joinInts(destinations)
	}

	var parsed osrmTableResponse
	if err := c.getJSON(ctx, u, timeout, &parsed); err != nil {
		return nil, err
	}

	if parsed.Code != "Ok" {
		return nil, &Error{Kind: KindTransient, Message: "road service returned non-Ok response", URL: u}
	}

	return &TableResult{Distances: parsed.Distances, Durations: parsed.Durations}, nil
}

func joinInts(ints []int) string {
	parts := make([]string, len(ints))
	for i, v := range ints {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ";")
}

// getJSON issues a GET request with retry-with-fixed-delay on
// transport-level errors (connection reset, timeout); HTTP 4xx/5xx
// responses are not retried, per spec.md §4.1.
func (c *Client) getJSON(ctx context.Context, url string, timeout time.Duration, out interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return &Error{Kind: KindTransient, Message: ctx.Err().Error(), URL: url}
			case <-time.After(retryDelay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Kind: KindTransient, Message: err.Error(), URL: url}
		}

		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		body, status, err := c.do(reqCtx, url)
		cancel()

		if err != nil {
			lastErr = &Error{Kind: KindTransient, Message: err.Error(), URL: url}
			continue
		}

		if status >= 400 {
			return &Error{Kind: KindTransient, Message: fmt.Sprintf("unexpected status %d", status), URL: url}
		}

		if err := json.Unmarshal(body, out); err != nil {
			return &Error{Kind: KindTransient, Message: "malformed response body: " + err.Error(), URL: url}
		}
		return nil
	}

	return lastErr
}

func (c *Client) do(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}

	return body, resp.StatusCode, nil
}
