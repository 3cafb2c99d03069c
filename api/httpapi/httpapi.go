package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	wsadapter "mangrovewatch/adapters/websocket"
	"mangrovewatch/analytics"
	"mangrovewatch/core"
	"mangrovewatch/engine"
	"mangrovewatch/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	// RateLimitCleanup evicts idle client limiters; zero keeps them forever.
	RateLimitCleanup time.Duration
	// LeaderboardSize is the default ?limit for leaderboard reads.
	LeaderboardSize int
	// Metrics backs {prefix}/stats; the route answers 404 when nil.
	Metrics *analytics.CommunityMetrics
	Logger  *slog.Logger
}

type api struct {
	svc      *engine.Service
	metrics  *analytics.CommunityMetrics
	validate *validator.Validate
	log      *slog.Logger
	topN     int
}

// NewMux builds an http.Handler exposing the gamification REST API and WebSocket stream.
// Routes:
//   - POST   {prefix}/reports
//   - POST   {prefix}/reports/{id}/status
//   - GET    {prefix}/users/{id}
//   - GET    {prefix}/users/{id}/progress
//   - POST   {prefix}/users/{id}/points?delta=-20&reason=duplicate
//   - DELETE {prefix}/users/{id}
//   - GET    {prefix}/leaderboard?limit=10&region=kutch
//   - POST   {prefix}/leaderboard/refresh
//   - GET    {prefix}/achievements
//   - GET    {prefix}/levels
//   - GET    {prefix}/stats
//   - GET    {prefix}/healthz
//   - WS     {prefix}/ws?user={id}
func NewMux(svc *engine.Service, hub *realtime.Hub, opts Options) http.Handler {
	a := &api{
		svc:      svc,
		metrics:  opts.Metrics,
		validate: newValidator(),
		log:      opts.Logger,
		topN:     opts.LeaderboardSize,
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.topN <= 0 {
		a.topN = 10
	}

	mux := http.NewServeMux()
	route := func(method, path string, h http.HandlerFunc) {
		mux.HandleFunc(method+" "+withPrefix(opts.PathPrefix, path), h)
	}

	route(http.MethodGet, "/healthz", a.healthCheck)
	if hub != nil {
		mux.Handle("GET "+withPrefix(opts.PathPrefix, "/ws"), wsadapter.Handler(hub))
	}

	route(http.MethodPost, "/reports", a.submitReport)
	route(http.MethodPost, "/reports/{id}/status", a.changeStatus)

	route(http.MethodGet, "/users/{id}", a.getUser)
	route(http.MethodGet, "/users/{id}/progress", a.getProgress)
	route(http.MethodPost, "/users/{id}/points", a.adjustPoints)
	route(http.MethodDelete, "/users/{id}", a.deleteUser)

	route(http.MethodGet, "/leaderboard", a.leaderboard)
	route(http.MethodPost, "/leaderboard/refresh", a.refreshLeaderboard)

	route(http.MethodGet, "/achievements", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, core.Achievements())
	})
	route(http.MethodGet, "/levels", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Rules().Levels)
	})
	route(http.MethodGet, "/stats", a.stats)

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	keys := keySet(opts.APIKeys)
	if len(keys) > 0 {
		handler = withAPIKeyAuth(handler, keys)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, newRateLimiter(opts.RateLimitRPM, opts.RateLimitBurst, opts.RateLimitCleanup), keys)
	}
	return handler
}

// SubmitReportResponse is returned by POST /reports.
type SubmitReportResponse struct {
	Report        core.Report                  `json:"report"`
	PointsAwarded int64                        `json:"points_awarded"`
	BonusPoints   int64                        `json:"bonus_points"`
	LeveledUp     bool                         `json:"leveled_up"`
	Unlocked      []core.AchievementDefinition `json:"unlocked"`
	State         core.UserState               `json:"state"`
}

func (a *api) submitReport(w http.ResponseWriter, r *http.Request) {
	var report core.Report
	if !a.decode(w, r, &report) {
		return
	}
	res, err := a.svc.SubmitReport(r.Context(), report)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	unlocked := res.Unlocked
	if unlocked == nil {
		unlocked = []core.AchievementDefinition{}
	}
	writeJSON(w, http.StatusCreated, SubmitReportResponse{
		Report:        res.Report,
		PointsAwarded: res.ReportPoints,
		BonusPoints:   res.BonusPoints,
		LeveledUp:     res.LeveledUp(),
		Unlocked:      unlocked,
		State:         res.State,
	})
}

// StatusChangeRequest is the body of POST /reports/{id}/status.
type StatusChangeRequest struct {
	UserID core.UserID       `json:"user_id" validate:"required"`
	From   core.ReportStatus `json:"from" validate:"required,oneof=pending investigating resolved rejected"`
	To     core.ReportStatus `json:"to" validate:"required,oneof=pending investigating resolved rejected"`
}

func (a *api) changeStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusChangeRequest
	if !a.decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	if err := a.svc.ChangeReportStatus(r.Context(), req.UserID, id, req.From, req.To); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report_id": id, "status": req.To})
}

func (a *api) getUser(w http.ResponseWriter, r *http.Request) {
	st, err := a.svc.GetState(r.Context(), core.UserID(r.PathValue("id")))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *api) getProgress(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.Progress(r.Context(), core.UserID(r.PathValue("id")))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *api) adjustPoints(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	delta, err := strconv.ParseInt(q.Get("delta"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_delta", "delta must be an integer", nil)
		return
	}
	reason := strings.TrimSpace(q.Get("reason"))
	if reason == "" {
		reason = "admin_adjustment"
	}
	st, err := a.svc.AdjustPoints(r.Context(), core.UserID(r.PathValue("id")), delta, reason)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *api) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteUser(r.Context(), core.UserID(r.PathValue("id"))); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LeaderboardResponse is returned by the leaderboard routes.
type LeaderboardResponse struct {
	Version     int64            `json:"version,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
	Region      string           `json:"region,omitempty"`
	Standings   []LeaderboardRow `json:"standings"`
}

// LeaderboardRow is a standing plus the user's report impact. Impact is
// omitted when community analytics are disabled.
type LeaderboardRow struct {
	core.Standing
	*analytics.Impact
}

func (a *api) leaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := a.topN
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 100", nil)
			return
		}
		limit = n
	}

	if region := strings.TrimSpace(q.Get("region")); region != "" {
		standings, err := a.svc.RegionalLeaderboard(r.Context(), region, limit)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, LeaderboardResponse{
			GeneratedAt: time.Now().UTC(),
			Region:      region,
			Standings:   a.rows(standings),
		})
		return
	}

	snap, err := a.svc.Leaderboard(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LeaderboardResponse{
		Version:     snap.Version,
		GeneratedAt: snap.GeneratedAt,
		Standings:   a.rows(snap.TopN(limit)),
	})
}

func (a *api) refreshLeaderboard(w http.ResponseWriter, r *http.Request) {
	snap, err := a.svc.RefreshLeaderboard(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LeaderboardResponse{
		Version:     snap.Version,
		GeneratedAt: snap.GeneratedAt,
		Standings:   a.rows(snap.TopN(a.topN)),
	})
}

func (a *api) stats(w http.ResponseWriter, r *http.Request) {
	if a.metrics == nil {
		writeError(w, http.StatusNotFound, "not_enabled", "community analytics are disabled", nil)
		return
	}
	writeJSON(w, http.StatusOK, a.metrics.Stats(time.Now()))
}

// healthCheck verifies the service is working properly
func (a *api) healthCheck(w http.ResponseWriter, r *http.Request) {
	// reading an unknown user touches storage without writing
	_, err := a.svc.GetState(r.Context(), core.UserID("healthcheck_probe"))

	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"storage": "ok",
		},
	}
	code := http.StatusOK
	if err != nil {
		a.log.Error("health check failed", "error", err)
		code = http.StatusServiceUnavailable
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["storage"] = "failed"
	}
	writeJSON(w, code, status)
}

// Helpers

func (a *api) rows(standings []core.Standing) []LeaderboardRow {
	out := make([]LeaderboardRow, len(standings))
	for i, st := range standings {
		out[i].Standing = st
		if a.metrics != nil {
			im := a.metrics.UserImpact(st.UserID)
			out[i].Impact = &im
		}
	}
	return out
}

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}

const maxBodyBytes = 1 << 20

// decode reads a JSON body into v and validates it, writing the error
// response itself when it returns false.
func (a *api) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error(), nil)
		return false
	}
	if err := a.validate.Struct(v); err != nil {
		a.writeServiceError(w, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSON(w, status, apiError{Code: code, Message: msg, Details: details})
}

// fieldError describes one failed validation rule.
type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

func (a *api) writeServiceError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		details := make([]fieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fieldError{Field: fe.Namespace(), Rule: fe.Tag(), Param: fe.Param()})
		}
		writeError(w, http.StatusBadRequest, "validation_failed", "request validation failed", details)
	case errors.Is(err, core.ErrEmptyUserID):
		writeError(w, http.StatusBadRequest, "invalid_user", err.Error(), nil)
	case errors.Is(err, core.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, "invalid_transition", err.Error(), nil)
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, core.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, core.ErrPointsOverflow), errors.Is(err, engine.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	default:
		a.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
