// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// ClaimState is the ownership state of a token.
type ClaimState string

const (
	ClaimUnclaimed ClaimState = "unclaimed"
	ClaimPending   ClaimState = "pending"
	ClaimClaimed   ClaimState = "claimed"
)

// Token is a submitting client's credential record. Only the hash of the secret is stored.
type Token struct {
	ID             uuid.UUID  // PK
	Hash           []byte     // unique, keyed hash of the secret
	State          ClaimState // unclaimed -> pending -> claimed
	ClaimCode      *string    // cleared once claimed
	ClaimExpiresAt *time.Time // claim code expiry
	Owner          *string    // principal that requested the claim
	ClaimedAt      *time.Time
	CreatedAt      time.Time
	LastUsedAt     *time.Time
}

// Identity is the resolved caller behind a presented secret.
type Identity struct {
	TokenID uuid.UUID
	State   ClaimState
}

// Verified reports whether the token behind the identity has been claimed.
func (i Identity) Verified() bool { return i.State == ClaimClaimed }

// Registration is the result of issuing a new token. Secret is shown to the client once.
type Registration struct {
	TokenID        uuid.UUID
	Secret         string
	ClaimCode      string
	ClaimExpiresAt time.Time
}

// ClaimTicket is a freshly issued claim code of an existing token.
type ClaimTicket struct {
	TokenID   uuid.UUID
	Code      string
	ExpiresAt time.Time
}

// TokenUsage holds optional LLM token counters of a run.
type TokenUsage struct {
	Prompt     *int64 `json:"prompt_tokens,omitempty" validate:"omitempty,gte=0"`
	Completion *int64 `json:"completion_tokens,omitempty" validate:"omitempty,gte=0"`
	Total      *int64 `json:"total_tokens,omitempty" validate:"omitempty,gte=0"`
}

// TaskResult is one scored task of a submission.
type TaskResult struct {
	Name     string         `json:"name,omitempty"`
	Score    float64        `json:"score"`
	MaxScore float64        `json:"max_score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Submission is an accepted, immutable benchmark result.
type Submission struct {
	ID               uuid.UUID // client-generated PK (v4)
	TokenID          uuid.UUID // FK -> tokens.id
	Model            string
	Provider         *string
	TotalScore       float64
	MaxScore         float64
	ScorePercentage  float64 // total/max, 0 when max is 0
	ExecutionTimeMS  *float64
	Cost             *float64
	TokenUsage       *TokenUsage
	Timestamp        time.Time // client-declared
	ClientVersion    *string
	SoftwareVersion  *string
	BenchmarkVersion *string
	Tasks            []TaskResult
	UsageSummary     map[string]any
	Metadata         map[string]any
	CreatedAt        time.Time // server-assigned
}

// TaskPayload is a task as received from a client, before validation.
// Nil numeric fields mean "absent or not a number".
type TaskPayload struct {
	Name     string         `json:"name"`
	Score    *float64       `json:"score" validate:"required,finite,gte=0"`
	MaxScore *float64       `json:"max_score" validate:"required,finite,gte=0"`
	Metadata map[string]any `json:"metadata"`
}

// SubmissionPayload is a proposed submission as received from a client.
type SubmissionPayload struct {
	SubmissionID     string         `json:"submission_id" validate:"uuidv4"`
	Model            string         `json:"model" validate:"notblank"`
	Provider         string         `json:"provider"`
	TotalScore       *float64       `json:"total_score" validate:"required,finite,gte=0"`
	MaxScore         *float64       `json:"max_score" validate:"required,finite,gte=0"`
	ExecutionTimeMS  *float64       `json:"execution_time_ms" validate:"omitempty,finite,gte=0"`
	Cost             *float64       `json:"cost" validate:"omitempty,finite,gte=0"`
	TokenUsage       *TokenUsage    `json:"token_usage"`
	Timestamp        string         `json:"timestamp"`
	ClientVersion    string         `json:"client_version"`
	SoftwareVersion  string         `json:"software_version"`
	BenchmarkVersion string         `json:"benchmark_version"`
	Tasks            []TaskPayload  `json:"tasks" validate:"required,min=1,dive"`
	UsageSummary     map[string]any `json:"usage_summary"`
	Metadata         map[string]any `json:"metadata"`
}

// IngestResult reports the outcome of an idempotent ingest.
type IngestResult struct {
	SubmissionID    uuid.UUID
	ScorePercentage float64
	IsNew           bool
}

// Ranking is a score's standing within the global distribution.
type Ranking struct {
	Rank       int64
	Percentile float64
}

// SubmitResult is the response of a full submit flow.
type SubmitResult struct {
	IngestResult
	Ranking
}

// SubmissionDetail is a stored submission with its current ranking.
type SubmissionDetail struct {
	Submission Submission
	Ranking    Ranking
}

// BenchmarkVersion is a named checkpoint of the benchmark definition.
type BenchmarkVersion struct {
	ID        string
	CreatedAt time.Time
	Current   bool
	Hidden    bool
}

// LeaderboardFilter narrows a leaderboard query. Empty Scope means no version filter.
type LeaderboardFilter struct {
	Scope        []string
	Provider     string
	VerifiedOnly bool
	Limit        int
}

// LeaderboardEntry aggregates submissions of a single model.
type LeaderboardEntry struct {
	Model              string
	BestScore          float64
	AvgScore           float64
	AvgExecutionTimeMS *float64
	MinExecutionTimeMS *float64
	AvgCost            *float64
	MinCost            *float64
	SubmissionCount    int64
	LatestTimestamp    time.Time
	BestSubmissionID   uuid.UUID
}
