package tfl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/MarkHewis/tfl-drift/internal/stops"
)

// DefaultBaseURL is the public TfL Unified API endpoint.
const DefaultBaseURL = "https://api.tfl.gov.uk"

// Arrival is one prediction record from /Line/{id}/Arrivals. Only the
// fields the tracker reads are decoded. TimeToStation is a pointer so
// a record missing it can be told apart from a genuine zero, and
// ExpectedArrival stays a string so one bad timestamp spoils one
// record, not the whole batch.
type Arrival struct {
	VehicleID       string `json:"vehicleId"`
	NaptanID        string `json:"naptanId"`
	StationName     string `json:"stationName"`
	PlatformName    string `json:"platformName"`
	Direction       string `json:"direction"`
	TimeToStation   *int   `json:"timeToStation"`
	ExpectedArrival string `json:"expectedArrival"`
}

// Client calls the TfL Unified API. Requests are rate limited on the
// client side and retried with exponential backoff on transient
// upstream failures.
type Client struct {
	baseURL string
	appKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a TfL API client. maxRPS caps the outbound request
// rate across all calls sharing the client.
func NewClient(baseURL, appKey string, maxRPS int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if maxRPS <= 0 {
		maxRPS = 1
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		appKey:  appKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(maxRPS), maxRPS),
	}
}

// Arrivals fetches the current arrival predictions for a line.
func (c *Client) Arrivals(ctx context.Context, lineID string) ([]Arrival, error) {
	var arrivals []Arrival
	if err := c.getJSON(ctx, "/Line/"+url.PathEscape(lineID)+"/Arrivals", &arrivals); err != nil {
		return nil, fmt.Errorf("failed to fetch arrivals for line %s: %w", lineID, err)
	}
	return arrivals, nil
}

// stopPoint is the subset of /StopPoint/{id} the tracker reads. The
// full response is huge; only the name and coordinates matter here.
type stopPoint struct {
	CommonName string   `json:"commonName"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
}

// ResolveStop implements stops.Resolver via /StopPoint/{id}.
func (c *Client) ResolveStop(ctx context.Context, stopID string) (stops.Point, error) {
	var sp stopPoint
	if err := c.getJSON(ctx, "/StopPoint/"+url.PathEscape(stopID), &sp); err != nil {
		return stops.Point{}, fmt.Errorf("failed to fetch stop point %s: %w", stopID, err)
	}
	if sp.Lat == nil || sp.Lon == nil {
		return stops.Point{}, fmt.Errorf("stop point %s has no coordinates", stopID)
	}
	return stops.Point{Name: sp.CommonName, Lat: *sp.Lat, Lon: *sp.Lon}, nil
}

// getJSON performs one authenticated GET against the API and decodes
// the JSON body into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	reqURL := c.baseURL + path
	if c.appKey != "" {
		reqURL += "?app_key=" + url.QueryEscape(c.appKey)
	}

	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			err := fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
			if isTemporaryStatus(resp.StatusCode) {
				return err
			}
			return backoff.Permanent(err)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     500 * time.Millisecond,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         5 * time.Second,
		MaxElapsedTime:      20 * time.Second,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}

	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		log.Printf("TfL: retrying in %s: %v", d.Round(time.Millisecond), err)
	})
}

// Only rate limiting and upstream hiccups are worth retrying inside a
// cycle; anything else waits for the next poll.
func isTemporaryStatus(status int) bool {
	switch status {
	case 429, 500, 503:
		return true
	default:
		return false
	}
}
