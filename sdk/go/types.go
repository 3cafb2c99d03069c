package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"mangrovewatch/core"
)

// Shared payload types. They are the same values the server encodes.
type (
	Report                = core.Report
	Location              = core.Location
	UserState             = core.UserState
	Progress              = core.Progress
	Standing              = core.Standing
	AchievementDefinition = core.AchievementDefinition
	LevelTier             = core.LevelTier
	Event                 = core.Event
)

// SubmitResult is the response to SubmitReport.
type SubmitResult struct {
	Report        Report                  `json:"report"`
	PointsAwarded int64                   `json:"points_awarded"`
	BonusPoints   int64                   `json:"bonus_points"`
	LeveledUp     bool                    `json:"leveled_up"`
	Unlocked      []AchievementDefinition `json:"unlocked"`
	State         UserState               `json:"state"`
}

// Leaderboard is a page of standings. Version is zero for regional boards.
type Leaderboard struct {
	Version     int64            `json:"version"`
	GeneratedAt time.Time        `json:"generated_at"`
	Region      string           `json:"region"`
	Standings   []LeaderboardRow `json:"standings"`
}

// LeaderboardRow is one standing. Impact is nil when the server runs
// without community analytics.
type LeaderboardRow struct {
	Standing
	*Impact
}

// Impact counts a user's reports and how many were resolved.
type Impact struct {
	Reports  int64 `json:"reports_count"`
	Resolved int64 `json:"resolved_reports"`
	Score    int   `json:"impact_score"`
}

// CommunityStats describes the /stats response.
type CommunityStats struct {
	ActiveMembers    int   `json:"active_members"`
	ReportsThisMonth int64 `json:"reports_this_month"`
	AreasProtected   int   `json:"areas_protected"`
	ImpactScore      int   `json:"impact_score"`
	TotalReports     int64 `json:"total_reports"`
	ResolvedReports  int64 `json:"resolved_reports"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

// APIError is the error envelope returned by the server.
type APIError struct {
	StatusCode int             `json:"-"`
	Code       string          `json:"code"`
	Message    string          `json:"message"`
	Details    json.RawMessage `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "http_error"
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if target == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyUserID is returned when user id is empty.
var ErrEmptyUserID = errors.New("user id is required")
