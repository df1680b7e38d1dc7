package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shared "github.com/gravacoach/server/pkg"
	"github.com/gravacoach/server/pkg/testing/mocks"
	"github.com/gravacoach/server/pkg/types"
)

func testConfig(tokenURL string) Config {
	return Config{
		TokenURL:     tokenURL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Scope:        "offline",
	}
}

func validCredential(userID string) *types.CredentialRecord {
	return &types.CredentialRecord{
		UserID:       userID,
		Provider:     "whoop",
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresAt:    time.Now().Add(1 * time.Hour).Unix(),
	}
}

func expiredCredential(userID string) *types.CredentialRecord {
	c := validCredential(userID)
	c.ExpiresAt = time.Now().Add(-10 * time.Second).Unix()
	return c
}

// tokenEndpoint is a mock provider token endpoint counting refresh calls.
func tokenEndpoint(t *testing.T, calls *int64, delay time.Duration, response map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)
		if delay > 0 {
			time.Sleep(delay)
		}

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "client-id", r.Form.Get("client_id"))
		assert.Equal(t, "client-secret", r.Form.Get("client_secret"))
		assert.NotEmpty(t, r.Form.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
}

func TestTokenFastPathNoNetworkCall(t *testing.T) {
	var calls int64
	srv := tokenEndpoint(t, &calls, 0, map[string]interface{}{"access_token": "A2", "expires_in": 3600})
	defer srv.Close()

	var writes int64
	db := &mocks.MockDatabase{
		GetCredentialFunc: func(ctx context.Context, userID, provider string) (*types.CredentialRecord, error) {
			return validCredential(userID), nil
		},
		UpdateCredentialFunc: func(ctx context.Context, userID, provider string, data map[string]interface{}) error {
			atomic.AddInt64(&writes, 1)
			return nil
		},
	}

	ts := NewCredentialTokenSource(db, testConfig(srv.URL), "user-fast-path", "whoop")
	tok, err := ts.Token(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "A1", tok.AccessToken)
	assert.Equal(t, int64(0), atomic.LoadInt64(&calls), "valid token must not hit the network")
	assert.Equal(t, int64(0), atomic.LoadInt64(&writes), "fast path must not write")
}

func TestTokenRefreshesExpiredAndPersists(t *testing.T) {
	var calls int64
	srv := tokenEndpoint(t, &calls, 0, map[string]interface{}{
		"access_token":  "A2",
		"refresh_token": "R2",
		"expires_in":    3600,
		"token_type":    "bearer",
	})
	defer srv.Close()

	var persisted map[string]interface{}
	db := &mocks.MockDatabase{
		GetCredentialFunc: func(ctx context.Context, userID, provider string) (*types.CredentialRecord, error) {
			return expiredCredential(userID), nil
		},
		UpdateCredentialFunc: func(ctx context.Context, userID, provider string, data map[string]interface{}) error {
			persisted = data
			return nil
		},
	}

	before := time.Now()
	ts := NewCredentialTokenSource(db, testConfig(srv.URL), "user-refresh", "whoop")
	tok, err := ts.Token(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "A2", tok.AccessToken)
	assert.Equal(t, "R2", tok.RefreshToken)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

	require.NotNil(t, persisted)
	assert.Equal(t, "A2", persisted["access_token"])
	assert.Equal(t, "R2", persisted["refresh_token"])
	assert.Equal(t, "bearer", persisted["token_type"])

	expiresAt, ok := persisted["expires_at"].(int64)
	require.True(t, ok)
	want := before.Add(3600 * time.Second).Unix()
	assert.InDelta(t, want, expiresAt, 1, "persisted expiry should be now + expires_in within 1s")
}

func TestRefreshPreservesRefreshTokenWhenOmitted(t *testing.T) {
	var calls int64
	srv := tokenEndpoint(t, &calls, 0, map[string]interface{}{
		"access_token": "A2",
		"expires_in":   3600,
	})
	defer srv.Close()

	var persisted map[string]interface{}
	db := &mocks.MockDatabase{
		GetCredentialFunc: func(ctx context.Context, userID, provider string) (*types.CredentialRecord, error) {
			return expiredCredential(userID), nil
		},
		UpdateCredentialFunc: func(ctx context.Context, userID, provider string, data map[string]interface{}) error {
			persisted = data
			return nil
		},
	}

	ts := NewCredentialTokenSource(db, testConfig(srv.URL), "user-no-rotation", "whoop")
	tok, err := ts.Token(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "A2", tok.AccessToken)
	assert.Equal(t, "R1", tok.RefreshToken, "previous refresh token must be preserved")

	require.NotNil(t, persisted)
	_, hasRefresh := persisted["refresh_token"]
	assert.False(t, hasRefresh, "an omitted refresh token must not be overwritten")
}

func TestConcurrentRefreshesCollapseToOneCall(t *testing.T) {
	var calls int64
	srv := tokenEndpoint(t, &calls, 200*time.Millisecond, map[string]interface{}{
		"access_token":  "A2",
		"refresh_token": "R2",
		"expires_in":    3600,
	})
	defer srv.Close()

	var writes int64
	var mu sync.Mutex
	stored := expiredCredential("user-concurrent")
	db := &mocks.MockDatabase{
		GetCredentialFunc: func(ctx context.Context, userID, provider string) (*types.CredentialRecord, error) {
			mu.Lock()
			defer mu.Unlock()
			c := *stored
			return &c, nil
		},
		UpdateCredentialFunc: func(ctx context.Context, userID, provider string, data map[string]interface{}) error {
			atomic.AddInt64(&writes, 1)
			mu.Lock()
			defer mu.Unlock()
			stored.AccessToken = data["access_token"].(string)
			stored.ExpiresAt = data["expires_at"].(int64)
			if rt, ok := data["refresh_token"].(string); ok {
				stored.RefreshToken = rt
			}
			return nil
		},
	}

	ts := NewCredentialTokenSource(db, testConfig(srv.URL), "user-concurrent", "whoop")

	const workers = 10
	start := make(chan struct{})
	results := make([]*Token, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = ts.Token(context.Background())
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "A2", results[i].AccessToken)
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "concurrent callers must share one refresh")
	assert.Equal(t, int64(1), atomic.LoadInt64(&writes), "exactly one persistence write per refresh")
}

func TestRefreshFailureLeavesRecordUntouched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	var writes int64
	db := &mocks.MockDatabase{
		GetCredentialFunc: func(ctx context.Context, userID, provider string) (*types.CredentialRecord, error) {
			return expiredCredential(userID), nil
		},
		UpdateCredentialFunc: func(ctx context.Context, userID, provider string, data map[string]interface{}) error {
			atomic.AddInt64(&writes, 1)
			return nil
		},
	}

	ts := NewCredentialTokenSource(db, testConfig(srv.URL), "user-bad-grant", "whoop")
	_, err := ts.Token(context.Background())

	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.Equal(t, http.StatusBadRequest, refreshErr.StatusCode)
	assert.Contains(t, refreshErr.Body, "invalid_grant")
	assert.Equal(t, int64(0), atomic.LoadInt64(&writes), "failed refresh must not write")
}

func TestTokenNotLinked(t *testing.T) {
	db := &mocks.MockDatabase{
		GetCredentialFunc: func(ctx context.Context, userID, provider string) (*types.CredentialRecord, error) {
			return nil, shared.ErrCredentialNotFound
		},
	}

	ts := NewCredentialTokenSource(db, testConfig("http://unused"), "user-unlinked", "whoop")
	_, err := ts.Token(context.Background())
	assert.ErrorIs(t, err, ErrNotLinked)
}

func TestTokenUnknownExpiryUsedAsIs(t *testing.T) {
	var calls int64
	srv := tokenEndpoint(t, &calls, 0, map[string]interface{}{"access_token": "A2", "expires_in": 3600})
	defer srv.Close()

	db := &mocks.MockDatabase{
		GetCredentialFunc: func(ctx context.Context, userID, provider string) (*types.CredentialRecord, error) {
			c := validCredential(userID)
			c.ExpiresAt = 0 // unknown expiry
			return c, nil
		},
	}

	ts := NewCredentialTokenSource(db, testConfig(srv.URL), "user-no-expiry", "whoop")
	tok, err := ts.Token(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "A1", tok.AccessToken)
	assert.Equal(t, int64(0), atomic.LoadInt64(&calls))
}

func TestForceRefreshIgnoresExpiry(t *testing.T) {
	var calls int64
	srv := tokenEndpoint(t, &calls, 0, map[string]interface{}{
		"access_token":  "A2",
		"refresh_token": "R2",
		"expires_in":    3600,
	})
	defer srv.Close()

	db := &mocks.MockDatabase{
		GetCredentialFunc: func(ctx context.Context, userID, provider string) (*types.CredentialRecord, error) {
			return validCredential(userID), nil
		},
	}

	ts := NewCredentialTokenSource(db, testConfig(srv.URL), "user-force", "whoop")
	tok, err := ts.ForceRefresh(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "A2", tok.AccessToken)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}
