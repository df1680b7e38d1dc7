package whoop

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravacoach/server/pkg/infrastructure/httputil"
)

func testClient(ts *httptest.Server) *Client {
	return &Client{BaseURL: ts.URL, HTTPClient: ts.Client()}
}

func TestFetchRawSendsAuthAndFilter(t *testing.T) {
	var gotPath, gotAuth string
	var gotQuery map[string]string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"records":[{"id":1},{"id":2}],"next_token":""}`))
	}))
	defer ts.Close()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	records, err := testClient(ts).FetchRaw(context.Background(), "tok-123", ResourceCycles, Filter{
		Start: start,
		End:   end,
		Limit: 25,
	})

	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "/cycle", gotPath)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "25", gotQuery["limit"])
	assert.Equal(t, "2026-01-01T00:00:00Z", gotQuery["start"])
	assert.Equal(t, "2026-02-01T00:00:00Z", gotQuery["end"])
}

func TestFetchRawFollowsPagination(t *testing.T) {
	var tokens []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens = append(tokens, r.URL.Query().Get("nextToken"))
		w.Header().Set("Content-Type", "application/json")
		if len(tokens) == 1 {
			_, _ = w.Write([]byte(`{"records":[{"id":1}],"next_token":"page2"}`))
			return
		}
		_, _ = w.Write([]byte(`{"records":[{"id":2}],"next_token":""}`))
	}))
	defer ts.Close()

	records, err := testClient(ts).FetchRaw(context.Background(), "tok", ResourceSleep, Filter{})

	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, []string{"", "page2"}, tokens)
}

func TestFetchRawStopsAtLimit(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"records":[{"id":1},{"id":2}],"next_token":"more"}`))
	}))
	defer ts.Close()

	records, err := testClient(ts).FetchRaw(context.Background(), "tok", ResourceCycles, Filter{Limit: 2})

	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 1, calls, "limit satisfied, pagination must stop")
}

func TestFetchRawUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer ts.Close()

	_, err := testClient(ts).FetchRaw(context.Background(), "tok", ResourceRecovery, Filter{})

	var httpErr *httputil.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "rate limited")
}

func TestFetchRawMalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json at all`))
	}))
	defer ts.Close()

	_, err := testClient(ts).FetchRaw(context.Background(), "tok", ResourceCycles, Filter{})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestFetchRawEmptyRecords(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"records":[],"next_token":""}`))
	}))
	defer ts.Close()

	records, err := testClient(ts).FetchRaw(context.Background(), "tok", ResourceWorkouts, Filter{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestResourcePathUnknown(t *testing.T) {
	_, err := Resource("steps").Path()
	assert.Error(t, err)
}

func TestFetchProfile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/profile/basic", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user_id":42,"email":"rider@example.com","first_name":"Sam","last_name":"Rider"}`))
	}))
	defer ts.Close()

	profile, err := testClient(ts).FetchProfile(context.Background(), "tok")

	require.NoError(t, err)
	assert.Equal(t, int64(42), profile.UserID)
	assert.Equal(t, "rider@example.com", profile.Email)
}

func raws(t *testing.T, docs ...string) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(docs))
	for _, d := range docs {
		out = append(out, json.RawMessage(d))
	}
	return out
}

func TestNormalizeRecoveriesHRVFieldVariants(t *testing.T) {
	recs := NormalizeRecoveries(raws(t,
		`{"cycle_id":1,"created_at":"2026-08-01T06:00:00Z","score":{"recovery_score":80,"hrv_rmssd_millis":55.5}}`,
		`{"cycle_id":2,"created_at":"2026-08-02T06:00:00Z","score":{"recovery_score":70,"heart_rate_variability_rmssd_milliseconds":48.2}}`,
		`{"cycle_id":3,"created_at":"2026-08-03T06:00:00Z","score":{"recovery_score":65}}`,
	))

	require.Len(t, recs, 3)
	require.NotNil(t, recs[0].HRVMilli)
	assert.Equal(t, 55.5, *recs[0].HRVMilli)
	require.NotNil(t, recs[1].HRVMilli)
	assert.Equal(t, 48.2, *recs[1].HRVMilli)
	assert.Nil(t, recs[2].HRVMilli)
}

func TestNormalizeDropsUnparseableTimestamps(t *testing.T) {
	cycles := NormalizeCycles(raws(t,
		`{"id":1,"start":"garbage","score":{"strain":9.5}}`,
		`{"id":2,"start":"2026-08-01T04:00:00Z","score":{"strain":12.1}}`,
	))
	require.Len(t, cycles, 1)
	assert.Equal(t, "2", cycles[0].ID)
	assert.Equal(t, 12.1, cycles[0].Strain)

	recoveries := NormalizeRecoveries(raws(t,
		`{"cycle_id":1,"created_at":"","score":{"recovery_score":80}}`,
	))
	assert.Empty(t, recoveries)
}

func TestNormalizeCycleEffectiveTimestamp(t *testing.T) {
	cycles := NormalizeCycles(raws(t,
		`{"id":1,"start":"2026-08-01T04:00:00Z","created_at":"2026-08-02T09:30:00Z","score":{"strain":10}}`,
		`{"id":2,"start":"2026-08-03T04:00:00Z","score":{"strain":11}}`,
	))

	require.Len(t, cycles, 2)
	assert.Equal(t, time.Date(2026, 8, 2, 9, 30, 0, 0, time.UTC), cycles[0].Timestamp)
	assert.Equal(t, time.Date(2026, 8, 1, 4, 0, 0, 0, time.UTC), cycles[0].Start)
	assert.Equal(t, cycles[1].Start, cycles[1].Timestamp)
}

func TestNormalizeSleep(t *testing.T) {
	sleeps := NormalizeSleeps(raws(t,
		`{"id":"s1","start":"2026-08-01T22:00:00Z","score":{"sleep_performance_percentage":75,"stage_summary":{"total_in_bed_time_milli":27000000}}}`,
	))

	require.Len(t, sleeps, 1)
	require.NotNil(t, sleeps[0].PerformancePct)
	assert.Equal(t, 75.0, *sleeps[0].PerformancePct)
	require.NotNil(t, sleeps[0].InBedMilli)
	assert.Equal(t, int64(27000000), *sleeps[0].InBedMilli)
}
