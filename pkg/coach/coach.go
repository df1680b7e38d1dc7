// Package coach orchestrates one coaching request: validate the user's
// credential, pull wearable records concurrently with partial-failure
// semantics, derive the signal snapshot, and produce a recommendation.
package coach

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	shared "github.com/gravacoach/server/pkg"
	"github.com/gravacoach/server/pkg/domain/metrics"
	"github.com/gravacoach/server/pkg/domain/plan"
	"github.com/gravacoach/server/pkg/infrastructure/httputil"
	"github.com/gravacoach/server/pkg/infrastructure/oauth"
	"github.com/gravacoach/server/pkg/integrations/whoop"
	"github.com/gravacoach/server/pkg/types"
)

const (
	defaultFetchTimeout = 12 * time.Second
	defaultRetryDelay   = 500 * time.Millisecond

	// historyDays covers the chronic load window with a week of slack.
	historyDays = 35
)

// Service wires the token lifecycle, upstream client and planners together.
// All methods take an explicit userID; there is no ambient session state.
type Service struct {
	DB          shared.Database
	Whoop       *whoop.Client
	TokenConfig oauth.Config
	Generator   Generator
	Logger      *slog.Logger

	// FetchTimeout bounds each upstream resource call.
	FetchTimeout time.Duration
	// RetryDelay is the pause before the single transient-failure retry.
	RetryDelay time.Duration

	now            func() time.Time
	newTokenSource func(userID string) oauth.TokenSource
}

func NewService(db shared.Database, whoopClient *whoop.Client, tokenCfg oauth.Config, gen Generator, logger *slog.Logger) *Service {
	return &Service{
		DB:           db,
		Whoop:        whoopClient,
		TokenConfig:  tokenCfg,
		Generator:    gen,
		Logger:       logger,
		FetchTimeout: defaultFetchTimeout,
		RetryDelay:   defaultRetryDelay,
		now:          time.Now,
	}
}

func (s *Service) tokenSource(userID string) oauth.TokenSource {
	if s.newTokenSource != nil {
		return s.newTokenSource(userID)
	}
	return oauth.NewCredentialTokenSource(s.DB, s.TokenConfig, userID, shared.ProviderWhoop)
}

// Summary is the aggregate coaching response: derived signals, the plan, and
// any resources whose data could not be fetched this time.
type Summary struct {
	Snapshot    types.Snapshot `json:"summary"`
	Plan        *types.Plan    `json:"plan"`
	Unavailable []string       `json:"unavailable,omitempty"`
}

// Summary validates the credential, fetches cycles, recovery and sleep
// concurrently, and derives the snapshot and plan. A single resource failing
// nulls that resource's signals instead of failing the request; only a
// missing or unrefreshable credential is fatal.
func (s *Service) Summary(ctx context.Context, userID string, goal *types.Goal) (*Summary, error) {
	ts := s.tokenSource(userID)

	// The token must be confirmed valid before any data fetch is issued.
	if _, err := ts.Token(ctx); err != nil {
		return nil, err
	}

	filter := whoop.Filter{
		Start: s.now().AddDate(0, 0, -historyDays),
		Limit: 25,
	}

	var (
		cycles     []types.CycleRecord
		recoveries []types.RecoveryRecord
		sleeps     []types.SleepRecord

		mu          sync.Mutex
		unavailable []string
	)

	markUnavailable := func(resource string, err error) {
		s.Logger.Warn("resource unavailable", "resource", resource, "user_id", userID, "error", err)
		mu.Lock()
		unavailable = append(unavailable, resource)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.fetchWithPolicy(gctx, ts, func(cctx context.Context, token string) error {
			var ferr error
			cycles, ferr = s.Whoop.FetchCycles(cctx, token, filter)
			return ferr
		})
		if err != nil {
			if isCredentialFailure(err) {
				return err
			}
			markUnavailable(string(whoop.ResourceCycles), err)
		}
		return nil
	})

	g.Go(func() error {
		err := s.fetchWithPolicy(gctx, ts, func(cctx context.Context, token string) error {
			var ferr error
			recoveries, ferr = s.Whoop.FetchRecoveries(cctx, token, filter)
			return ferr
		})
		if err != nil {
			if isCredentialFailure(err) {
				return err
			}
			markUnavailable(string(whoop.ResourceRecovery), err)
		}
		return nil
	})

	g.Go(func() error {
		err := s.fetchWithPolicy(gctx, ts, func(cctx context.Context, token string) error {
			var ferr error
			sleeps, ferr = s.Whoop.FetchSleeps(cctx, token, filter)
			return ferr
		})
		if err != nil {
			if isCredentialFailure(err) {
				return err
			}
			markUnavailable(string(whoop.ResourceSleep), err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Strings(unavailable)

	snap := metrics.Derive(s.now(), cycles, recoveries, sleeps)

	p, err := s.Generator.Plan(ctx, snap, goal)
	if err != nil || p == nil {
		if err != nil {
			s.Logger.Warn("model plan failed; using rule fallback", "user_id", userID, "error", err)
		}
		p = plan.BuildPlan(snap, goal)
	}

	return &Summary{
		Snapshot:    snap,
		Plan:        p,
		Unavailable: unavailable,
	}, nil
}

// Records fetches the raw record envelope for one resource, for callers that
// proxy upstream data through. Failures surface to the caller.
func (s *Service) Records(ctx context.Context, userID string, resource whoop.Resource, f whoop.Filter) ([]json.RawMessage, error) {
	ts := s.tokenSource(userID)
	var records []json.RawMessage
	err := s.fetchWithPolicy(ctx, ts, func(cctx context.Context, token string) error {
		var ferr error
		records, ferr = s.Whoop.FetchRaw(cctx, token, resource, f)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	return records, nil
}

// Profile fetches the wearable account profile.
func (s *Service) Profile(ctx context.Context, userID string) (*types.Profile, error) {
	ts := s.tokenSource(userID)
	var profile *types.Profile
	err := s.fetchWithPolicy(ctx, ts, func(cctx context.Context, token string) error {
		var ferr error
		profile, ferr = s.Whoop.FetchProfile(cctx, token)
		return ferr
	})
	return profile, err
}

// Chat answers a free-form question, enriched with the latest recovery score
// when available. Wearable failures are swallowed so chat still works for
// users whose account is unlinked or whose data is down.
func (s *Service) Chat(ctx context.Context, userID, question string) (string, error) {
	var recoveryScore *float64

	ts := s.tokenSource(userID)
	err := s.fetchWithPolicy(ctx, ts, func(cctx context.Context, token string) error {
		recoveries, ferr := s.Whoop.FetchRecoveries(cctx, token, whoop.Filter{Limit: 5})
		if ferr != nil {
			return ferr
		}
		for _, r := range recoveries {
			if r.Score != nil {
				recoveryScore = r.Score
			}
		}
		return nil
	})
	if err != nil {
		s.Logger.Debug("chat proceeding without wearable context", "user_id", userID, "error", err)
	}

	return s.Generator.Chat(ctx, question, recoveryScore)
}

// WeekPlan returns the deterministic 7-day schedule for a goal.
func (s *Service) WeekPlan(goal *types.Goal) []plan.DayPlan {
	return plan.BuildWeekPlan(goal)
}

// fetchWithPolicy runs fn with a validated access token. On 401/403 it forces
// exactly one refresh and retries; a second rejection is demoted to a refresh
// failure since the credential is evidently unusable. On a transient failure
// it retries once after a short delay. Each attempt gets its own bounded
// timeout.
func (s *Service) fetchWithPolicy(ctx context.Context, ts oauth.TokenSource, fn func(ctx context.Context, token string) error) error {
	tok, err := ts.Token(ctx)
	if err != nil {
		return err
	}

	call := func(token string) error {
		cctx, cancel := context.WithTimeout(ctx, s.FetchTimeout)
		defer cancel()
		return fn(cctx, token)
	}

	err = call(tok.AccessToken)
	if err == nil {
		return nil
	}

	if httputil.IsUnauthorized(err) {
		tok, rerr := ts.ForceRefresh(ctx)
		if rerr != nil {
			return rerr
		}
		err = call(tok.AccessToken)
		if err == nil {
			return nil
		}
		if httputil.IsUnauthorized(err) {
			var httpErr *httputil.HTTPError
			errors.As(err, &httpErr)
			return &oauth.RefreshError{StatusCode: httpErr.StatusCode, Body: httpErr.Body}
		}
		return err
	}

	if httputil.IsTransient(err) {
		select {
		case <-time.After(s.RetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
		return call(tok.AccessToken)
	}

	return err
}

// isCredentialFailure reports whether err means no further fetches can
// succeed for this user at all.
func isCredentialFailure(err error) bool {
	if errors.Is(err, oauth.ErrNotLinked) {
		return true
	}
	var refreshErr *oauth.RefreshError
	return errors.As(err, &refreshErr)
}
