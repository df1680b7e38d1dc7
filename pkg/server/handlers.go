// Package server exposes the coach API over HTTP. Handlers are thin: they
// parse the request, call the coach service, and map typed failures onto
// status codes.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gravacoach/server/pkg/coach"
	"github.com/gravacoach/server/pkg/infrastructure/httputil"
	"github.com/gravacoach/server/pkg/infrastructure/oauth"
	"github.com/gravacoach/server/pkg/infrastructure/sentry"
	"github.com/gravacoach/server/pkg/integrations/whoop"
	"github.com/gravacoach/server/pkg/types"
)

type Handlers struct {
	Coach  *coach.Service
	Linker *oauth.Linker
	Logger *slog.Logger
}

func NewHandlers(coachSvc *coach.Service, linker *oauth.Linker, logger *slog.Logger) *Handlers {
	return &Handlers{Coach: coachSvc, Linker: linker, Logger: logger}
}

// Records proxies one wearable resource through, with the upstream status and
// body surfaced on failure so the dashboard can render something meaningful.
func (h *Handlers) Records(w http.ResponseWriter, r *http.Request) {
	resource := whoop.Resource(chi.URLParam(r, "resource"))
	if _, err := resource.Path(); err != nil {
		writeJSONError(w, http.StatusNotFound, "unknown resource")
		return
	}

	records, err := h.Coach.Records(r.Context(), UserID(r.Context()), resource, parseFilter(r))
	if err != nil {
		h.writeUpstreamError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.Coach.Profile(r.Context(), UserID(r.Context()))
	if err != nil {
		h.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// Health reports whether the user's wearable link currently works.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	_, err := h.Coach.Profile(r.Context(), UserID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": false, "reason": reasonFor(err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// Summary returns derived signals plus the day's recommendation.
func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	goal := parseGoal(r)
	summary, err := h.Coach.Summary(r.Context(), UserID(r.Context()), goal)
	if err != nil {
		h.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handlers) Week(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Goal *types.Goal `json:"goal"`
	}
	// A malformed or empty body falls back to the default plan, matching
	// the permissive original behavior.
	_ = json.NewDecoder(r.Body).Decode(&body)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"week": h.Coach.WeekPlan(body.Goal),
	})
}

func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Question string `json:"question"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	reply, err := h.Coach.Chat(r.Context(), UserID(r.Context()), body.Question)
	if err != nil {
		sentry.CaptureException(err, map[string]interface{}{"path": r.URL.Path}, h.Logger)
		writeJSONError(w, http.StatusBadGateway, "chat failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reply": reply})
}

// Link starts the provider authorization flow.
func (h *Handlers) Link(w http.ResponseWriter, r *http.Request) {
	url := h.Linker.AuthURL(UserID(r.Context()))
	http.Redirect(w, r, url, http.StatusFound)
}

// LinkCallback completes the authorization flow and stores the credential.
func (h *Handlers) LinkCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		writeJSONError(w, http.StatusBadRequest, "missing state or code")
		return
	}

	userID, err := h.Linker.HandleCallback(r.Context(), state, code)
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidState) {
			writeJSONError(w, http.StatusBadRequest, "invalid state")
			return
		}
		sentry.CaptureException(err, map[string]interface{}{"path": r.URL.Path}, h.Logger)
		writeJSONError(w, http.StatusBadGateway, "authorization exchange failed")
		return
	}

	h.Logger.Info("account linked", "user_id", userID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"linked": true})
}

// writeUpstreamError maps typed failures onto status codes. A missing or
// unrefreshable credential asks the user to (re-)connect; anything else is an
// upstream problem reported as a bad gateway.
func (h *Handlers) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, oauth.ErrNotLinked):
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"error": "not_linked"})
	case isRefreshError(err):
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"error": "reauthorize_required"})
	default:
		var httpErr *httputil.HTTPError
		if errors.As(err, &httpErr) {
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error":           "upstream_error",
				"upstream_status": httpErr.StatusCode,
				"upstream_body":   httpErr.Body,
			})
			return
		}
		sentry.CaptureException(err, map[string]interface{}{"path": r.URL.Path}, h.Logger)
		h.Logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": "upstream_unavailable"})
	}
}

func isRefreshError(err error) bool {
	var refreshErr *oauth.RefreshError
	return errors.As(err, &refreshErr)
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, oauth.ErrNotLinked):
		return "not_linked"
	case isRefreshError(err):
		return "reauthorize_required"
	default:
		return "upstream_unavailable"
	}
}

func parseFilter(r *http.Request) whoop.Filter {
	q := r.URL.Query()
	var f whoop.Filter
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		f.Limit = limit
	}
	if start, err := time.Parse(time.RFC3339, q.Get("start")); err == nil {
		f.Start = start
	}
	if end, err := time.Parse(time.RFC3339, q.Get("end")); err == nil {
		f.End = end
	}
	return f
}

func parseGoal(r *http.Request) *types.Goal {
	q := r.URL.Query()
	goal := &types.Goal{
		Text:        q.Get("goal"),
		EventDate:   q.Get("event_date"),
		WeeklyFocus: types.WeeklyFocus(q.Get("weekly_focus")),
		LongRideDay: q.Get("long_ride_day"),
	}
	if goal.Text == "" && goal.EventDate == "" && goal.WeeklyFocus == "" && goal.LongRideDay == "" {
		return nil
	}
	return goal
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"error": msg})
}
