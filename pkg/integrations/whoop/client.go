// Package whoop is a thin client for the WHOOP developer API. It attaches
// bearer auth, translates time-window filters to query parameters, follows
// pagination, and normalizes provider field variants into the canonical
// record shapes; it performs no retries (that is caller policy).
package whoop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	shared "github.com/gravacoach/server/pkg"
	"github.com/gravacoach/server/pkg/infrastructure/httputil"
	"github.com/gravacoach/server/pkg/types"
)

const (
	defaultTimeout = 12 * time.Second

	// maxPages caps pagination so a misbehaving next_token cannot hold a
	// request open forever.
	maxPages = 5
)

// ErrMalformedResponse means the upstream body was not the expected
// {records: [...]} envelope. Callers treat the resource as unavailable.
var ErrMalformedResponse = errors.New("whoop: malformed response")

type Resource string

const (
	ResourceCycles   Resource = "cycles"
	ResourceRecovery Resource = "recovery"
	ResourceSleep    Resource = "sleep"
	ResourceWorkouts Resource = "workouts"
)

// Path returns the API path for the resource.
func (r Resource) Path() (string, error) {
	switch r {
	case ResourceCycles:
		return "/cycle", nil
	case ResourceRecovery:
		return "/recovery", nil
	case ResourceSleep:
		return "/activity/sleep", nil
	case ResourceWorkouts:
		return "/activity/workout", nil
	default:
		return "", fmt.Errorf("unknown resource %q", string(r))
	}
}

// Filter bounds a record fetch. Zero values are omitted from the query.
type Filter struct {
	Start time.Time
	End   time.Time
	Limit int
}

// Client is an API client for the WHOOP developer API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient() *Client {
	return &Client{
		BaseURL: shared.WhoopAPIBase,
		HTTPClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

type envelope struct {
	Records   []json.RawMessage `json:"records"`
	NextToken string            `json:"next_token"`
}

// FetchRaw retrieves the raw record envelope for a resource, following
// pagination. An empty slice is a valid result, distinct from an error.
func (c *Client) FetchRaw(ctx context.Context, accessToken string, resource Resource, f Filter) ([]json.RawMessage, error) {
	path, err := resource.Path()
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	nextToken := ""

	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		if f.Limit > 0 {
			q.Set("limit", strconv.Itoa(f.Limit))
		}
		if !f.Start.IsZero() {
			q.Set("start", f.Start.UTC().Format(time.RFC3339))
		}
		if !f.End.IsZero() {
			q.Set("end", f.End.UTC().Format(time.RFC3339))
		}
		if nextToken != "" {
			q.Set("nextToken", nextToken)
		}

		reqURL := c.BaseURL + path
		if len(q) > 0 {
			reqURL += "?" + q.Encode()
		}

		env, err := c.getEnvelope(ctx, accessToken, reqURL)
		if err != nil {
			return nil, err
		}

		records = append(records, env.Records...)

		if env.NextToken == "" {
			break
		}
		if f.Limit > 0 && len(records) >= f.Limit {
			break
		}
		nextToken = env.NextToken
	}

	return records, nil
}

func (c *Client) getEnvelope(ctx context.Context, accessToken, reqURL string) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	// Non-2xx surfaces status and body verbatim so the boundary can render
	// a meaningful error.
	if err := httputil.ParseErrorResponse(resp); err != nil {
		return nil, err
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &env, nil
}

// FetchCycles returns normalized physiological cycles.
func (c *Client) FetchCycles(ctx context.Context, accessToken string, f Filter) ([]types.CycleRecord, error) {
	raw, err := c.FetchRaw(ctx, accessToken, ResourceCycles, f)
	if err != nil {
		return nil, err
	}
	return NormalizeCycles(raw), nil
}

// FetchRecoveries returns normalized recovery records.
func (c *Client) FetchRecoveries(ctx context.Context, accessToken string, f Filter) ([]types.RecoveryRecord, error) {
	raw, err := c.FetchRaw(ctx, accessToken, ResourceRecovery, f)
	if err != nil {
		return nil, err
	}
	return NormalizeRecoveries(raw), nil
}

// FetchSleeps returns normalized sleep records.
func (c *Client) FetchSleeps(ctx context.Context, accessToken string, f Filter) ([]types.SleepRecord, error) {
	raw, err := c.FetchRaw(ctx, accessToken, ResourceSleep, f)
	if err != nil {
		return nil, err
	}
	return NormalizeSleeps(raw), nil
}

// FetchWorkouts returns normalized workout records.
func (c *Client) FetchWorkouts(ctx context.Context, accessToken string, f Filter) ([]types.WorkoutRecord, error) {
	raw, err := c.FetchRaw(ctx, accessToken, ResourceWorkouts, f)
	if err != nil {
		return nil, err
	}
	return NormalizeWorkouts(raw), nil
}

// FetchProfile returns the basic user profile.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (*types.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/user/profile/basic", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if err := httputil.ParseErrorResponse(resp); err != nil {
		return nil, err
	}

	var profile types.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &profile, nil
}
