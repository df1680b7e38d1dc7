package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	shared "github.com/gravacoach/server/pkg"
	"github.com/gravacoach/server/pkg/infrastructure/httputil"
)

// expiryMargin is the proactive refresh window: a token expiring within it is
// refreshed before use so it cannot die mid-request.
const expiryMargin = 60 * time.Second

// defaultExpiresIn is assumed when the provider omits expires_in.
const defaultExpiresIn = 3600

// ErrNotLinked means no credential record exists for the user; the caller
// should prompt the user to connect their account.
var ErrNotLinked = errors.New("oauth: account not linked")

// RefreshError means the provider rejected a token refresh. The stored
// refresh token is likely expired or revoked, so retrying with it is
// pointless; the user must re-authorize.
type RefreshError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RefreshError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oauth: refresh failed: %v", e.Err)
	}
	return fmt.Sprintf("oauth: refresh failed with status %d: %s", e.StatusCode, e.Body)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// Token represents the OAuth token structure we care about
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// TokenSource returns a valid token.
// It is safe for concurrent use by multiple goroutines.
type TokenSource interface {
	Token(context.Context) (*Token, error)
	ForceRefresh(context.Context) (*Token, error)
}

// Config holds the static client credentials for a provider's token endpoint.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string

	// HTTPClient is used for the token endpoint exchange. If nil, a client
	// with a bounded timeout is used.
	HTTPClient *http.Client
}

var defaultClient = &http.Client{Timeout: 15 * time.Second}

// refreshFlight serializes refreshes per (user, provider). Most providers
// invalidate the old refresh token on use, so two concurrent refreshes with
// the same stored token would leave one of them holding a dead credential.
// Concurrent callers join the in-flight exchange instead; the entry is
// cleared once it settles, so the next expiry gets a fresh attempt.
var refreshFlight singleflight.Group

// CredentialTokenSource reads from the credential store and refreshes via the
// provider's token endpoint if necessary.
type CredentialTokenSource struct {
	db       shared.Database
	cfg      Config
	userID   string
	provider string
	now      func() time.Time
}

func NewCredentialTokenSource(db shared.Database, cfg Config, userID, provider string) *CredentialTokenSource {
	return &CredentialTokenSource{
		db:       db,
		cfg:      cfg,
		userID:   userID,
		provider: provider,
		now:      time.Now,
	}
}

// Token returns a token, refreshing it if necessary. The common path (stored
// token still valid) performs no network call and no write.
func (s *CredentialTokenSource) Token(ctx context.Context) (*Token, error) {
	cred, err := s.db.GetCredential(ctx, s.userID, s.provider)
	if err != nil {
		if errors.Is(err, shared.ErrCredentialNotFound) {
			return nil, ErrNotLinked
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}

	if cred.AccessToken != "" && !cred.Expired(s.now(), expiryMargin) {
		var expiry time.Time
		if cred.ExpiresAt != 0 {
			expiry = time.Unix(cred.ExpiresAt, 0)
		}
		return &Token{
			AccessToken:  cred.AccessToken,
			RefreshToken: cred.RefreshToken,
			Expiry:       expiry,
		}, nil
	}

	return s.refresh(ctx)
}

// ForceRefresh forcibly refreshes the token regardless of expiry. A caller
// that just saw a 401 with a token we believed valid uses this once before
// giving up.
func (s *CredentialTokenSource) ForceRefresh(ctx context.Context) (*Token, error) {
	return s.refresh(ctx)
}

func (s *CredentialTokenSource) flightKey() string {
	return s.userID + "/" + s.provider
}

func (s *CredentialTokenSource) refresh(ctx context.Context) (*Token, error) {
	v, err, _ := refreshFlight.Do(s.flightKey(), func() (interface{}, error) {
		return s.doRefresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Token), nil
}

// doRefresh performs the HTTP exchange for a new token and persists the
// rotated credentials. It runs at most once per flight key at a time.
func (s *CredentialTokenSource) doRefresh(ctx context.Context) (*Token, error) {
	// Re-read the stored refresh token inside the flight; a refresh that
	// completed while we were waiting may have rotated it.
	cred, err := s.db.GetCredential(ctx, s.userID, s.provider)
	if err != nil {
		if errors.Is(err, shared.ErrCredentialNotFound) {
			return nil, ErrNotLinked
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}

	if cred.RefreshToken == "" {
		return nil, &RefreshError{Err: errors.New("no refresh token stored; user must re-connect")}
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", cred.RefreshToken)
	data.Set("client_id", s.cfg.ClientID)
	data.Set("client_secret", s.cfg.ClientSecret)
	if s.cfg.Scope != "" {
		data.Set("scope", s.cfg.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := s.cfg.HTTPClient
	if client == nil {
		client = defaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &RefreshError{Err: fmt.Errorf("refresh request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &RefreshError{
			StatusCode: resp.StatusCode,
			Body:       httputil.Truncate(string(body), httputil.MaxErrorBodySize),
		}
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		TokenType    string `json:"token_type"`
		Scope        string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &RefreshError{Err: fmt.Errorf("decode refresh response: %w", err)}
	}
	if result.AccessToken == "" {
		return nil, &RefreshError{Err: errors.New("refresh response missing access_token")}
	}

	expiresIn := result.ExpiresIn
	if expiresIn == 0 {
		expiresIn = defaultExpiresIn
	}
	now := s.now()
	newExpiry := now.Add(time.Duration(expiresIn) * time.Second)

	update := map[string]interface{}{
		"access_token":      result.AccessToken,
		"expires_at":        newExpiry.Unix(),
		"last_refreshed_at": now,
	}
	if result.TokenType != "" {
		update["token_type"] = result.TokenType
	}
	if result.Scope != "" {
		update["scope"] = result.Scope
	}
	// Only update refresh_token if the provider returned a new one. Some
	// providers don't rotate on refresh, and writing the empty response
	// value would wipe the stored token.
	if result.RefreshToken != "" {
		update["refresh_token"] = result.RefreshToken
	}

	if err := s.db.UpdateCredential(ctx, s.userID, s.provider, update); err != nil {
		return nil, fmt.Errorf("persist refreshed tokens: %w", err)
	}

	newRefreshToken := result.RefreshToken
	if newRefreshToken == "" {
		newRefreshToken = cred.RefreshToken
	}

	return &Token{
		AccessToken:  result.AccessToken,
		RefreshToken: newRefreshToken,
		Expiry:       newExpiry,
	}, nil
}
