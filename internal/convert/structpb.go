// Package convert maps google.protobuf.Struct messages to domain types and back.
package convert

import (
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/benchboard/internal/model"
)

// --- helpers ---

func field(s *structpb.Struct, key string) *structpb.Value {
	if s == nil {
		return nil
	}
	return s.GetFields()[key]
}

// String returns the string at key, or "" when absent or not a string.
func String(s *structpb.Struct, key string) string {
	if v, ok := field(s, key).GetKind().(*structpb.Value_StringValue); ok {
		return v.StringValue
	}
	return ""
}

// Bool returns the bool at key, or false when absent or not a bool.
func Bool(s *structpb.Struct, key string) bool {
	if v, ok := field(s, key).GetKind().(*structpb.Value_BoolValue); ok {
		return v.BoolValue
	}
	return false
}

// Number returns the number at key, or nil when absent or not a number.
func Number(s *structpb.Struct, key string) *float64 {
	if v, ok := field(s, key).GetKind().(*structpb.Value_NumberValue); ok {
		f := v.NumberValue
		return &f
	}
	return nil
}

// Int returns the number at key rounded away from zero, or 0 when absent.
// A fraction never collapses to 0, which callers read as "unset".
func Int(s *structpb.Struct, key string) int {
	n := Number(s, key)
	if n == nil || math.IsNaN(*n) {
		return 0
	}
	switch {
	case *n > math.MaxInt32:
		return math.MaxInt32
	case *n < math.MinInt32:
		return math.MinInt32
	case *n > 0:
		return int(math.Ceil(*n))
	}
	return int(math.Floor(*n))
}

// counter accepts whole numbers only; anything else is treated as absent.
func counter(s *structpb.Struct, key string) *int64 {
	n := Number(s, key)
	if n == nil || *n != math.Trunc(*n) || math.Abs(*n) > 1<<53 {
		return nil
	}
	c := int64(*n)
	return &c
}

func object(s *structpb.Struct, key string) *structpb.Struct {
	if v, ok := field(s, key).GetKind().(*structpb.Value_StructValue); ok {
		return v.StructValue
	}
	return nil
}

func objectMap(s *structpb.Struct, key string) map[string]any {
	if o := object(s, key); o != nil {
		return o.AsMap()
	}
	return nil
}

func ts(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func optTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ts(*t)
}

func optFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func optString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func optMap(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}

// --- client -> server ---

// PayloadFromStruct reads a proposed submission. Numeric fields holding anything
// but a number are left nil so validation reports them.
func PayloadFromStruct(s *structpb.Struct) model.SubmissionPayload {
	p := model.SubmissionPayload{
		SubmissionID:     String(s, "submission_id"),
		Model:            String(s, "model"),
		Provider:         String(s, "provider"),
		TotalScore:       Number(s, "total_score"),
		MaxScore:         Number(s, "max_score"),
		ExecutionTimeMS:  Number(s, "execution_time_ms"),
		Cost:             Number(s, "cost"),
		Timestamp:        String(s, "timestamp"),
		ClientVersion:    String(s, "client_version"),
		SoftwareVersion:  String(s, "software_version"),
		BenchmarkVersion: String(s, "benchmark_version"),
		UsageSummary:     objectMap(s, "usage_summary"),
		Metadata:         objectMap(s, "metadata"),
	}
	if u := object(s, "token_usage"); u != nil {
		p.TokenUsage = &model.TokenUsage{
			Prompt:     counter(u, "prompt_tokens"),
			Completion: counter(u, "completion_tokens"),
			Total:      counter(u, "total_tokens"),
		}
	}
	if l, ok := field(s, "tasks").GetKind().(*structpb.Value_ListValue); ok {
		p.Tasks = make([]model.TaskPayload, 0, len(l.ListValue.GetValues()))
		for _, v := range l.ListValue.GetValues() {
			t := v.GetStructValue()
			p.Tasks = append(p.Tasks, model.TaskPayload{
				Name:     String(t, "name"),
				Score:    Number(t, "score"),
				MaxScore: Number(t, "max_score"),
				Metadata: objectMap(t, "metadata"),
			})
		}
	}
	return p
}

// LeaderboardFilterFromStruct reads {version, provider, verified_only, limit}.
// The version is returned apart because the service resolves it into a scope.
func LeaderboardFilterFromStruct(s *structpb.Struct) (version string, f model.LeaderboardFilter) {
	return String(s, "version"), model.LeaderboardFilter{
		Provider:     String(s, "provider"),
		VerifiedOnly: Bool(s, "verified_only"),
		Limit:        Int(s, "limit"),
	}
}

// --- server -> client ---

// RegistrationToStruct renders a fresh credential. This is the only time the secret leaves the server.
func RegistrationToStruct(r model.Registration) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"token_id":         r.TokenID.String(),
		"secret":           r.Secret,
		"claim_code":       r.ClaimCode,
		"claim_expires_at": ts(r.ClaimExpiresAt),
	})
}

// SubmitResultToStruct renders the outcome of a submit.
func SubmitResultToStruct(r model.SubmitResult) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"submission_id":    r.SubmissionID.String(),
		"score_percentage": r.ScorePercentage,
		"is_new":           r.IsNew,
		"rank":             r.Rank,
		"percentile":       r.Percentile,
	})
}

func tokenUsageMap(u *model.TokenUsage) any {
	if u == nil {
		return nil
	}
	out := map[string]any{}
	if u.Prompt != nil {
		out["prompt_tokens"] = *u.Prompt
	}
	if u.Completion != nil {
		out["completion_tokens"] = *u.Completion
	}
	if u.Total != nil {
		out["total_tokens"] = *u.Total
	}
	return out
}

func submissionMap(s model.Submission) map[string]any {
	tasks := make([]any, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		task := map[string]any{"score": t.Score, "max_score": t.MaxScore}
		if t.Name != "" {
			task["name"] = t.Name
		}
		if t.Metadata != nil {
			task["metadata"] = t.Metadata
		}
		tasks = append(tasks, task)
	}
	return map[string]any{
		"submission_id":     s.ID.String(),
		"model":             s.Model,
		"provider":          optString(s.Provider),
		"total_score":       s.TotalScore,
		"max_score":         s.MaxScore,
		"score_percentage":  s.ScorePercentage,
		"execution_time_ms": optFloat(s.ExecutionTimeMS),
		"cost":              optFloat(s.Cost),
		"token_usage":       tokenUsageMap(s.TokenUsage),
		"timestamp":         ts(s.Timestamp),
		"client_version":    optString(s.ClientVersion),
		"software_version":  optString(s.SoftwareVersion),
		"benchmark_version": optString(s.BenchmarkVersion),
		"tasks":             tasks,
		"usage_summary":     optMap(s.UsageSummary),
		"metadata":          optMap(s.Metadata),
		"created_at":        ts(s.CreatedAt),
	}
}

// SubmissionDetailToStruct renders a stored submission with its ranking.
// The owning token is not disclosed.
func SubmissionDetailToStruct(d model.SubmissionDetail) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"submission": submissionMap(d.Submission),
		"rank":       d.Ranking.Rank,
		"percentile": d.Ranking.Percentile,
	})
}

// LeaderboardToStruct renders entries and the version scope they were computed over.
func LeaderboardToStruct(scope []string, entries []model.LeaderboardEntry) (*structpb.Struct, error) {
	versions := make([]any, 0, len(scope))
	for _, v := range scope {
		versions = append(versions, v)
	}
	rows := make([]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, map[string]any{
			"model":                 e.Model,
			"best_score":            e.BestScore,
			"avg_score":             e.AvgScore,
			"avg_execution_time_ms": optFloat(e.AvgExecutionTimeMS),
			"min_execution_time_ms": optFloat(e.MinExecutionTimeMS),
			"avg_cost":              optFloat(e.AvgCost),
			"min_cost":              optFloat(e.MinCost),
			"submission_count":      e.SubmissionCount,
			"latest_timestamp":      ts(e.LatestTimestamp),
			"best_submission_id":    e.BestSubmissionID.String(),
		})
	}
	return structpb.NewStruct(map[string]any{"scope": versions, "entries": rows})
}

// VersionsToStruct renders versions. The hidden flag is only included for admin listings.
func VersionsToStruct(vs []model.BenchmarkVersion, withHidden bool) (*structpb.Struct, error) {
	rows := make([]any, 0, len(vs))
	for _, v := range vs {
		row := map[string]any{
			"id":         v.ID,
			"created_at": ts(v.CreatedAt),
			"current":    v.Current,
		}
		if withHidden {
			row["hidden"] = v.Hidden
		}
		rows = append(rows, row)
	}
	return structpb.NewStruct(map[string]any{"versions": rows})
}

// ClaimTicketToStruct renders a re-issued claim code.
func ClaimTicketToStruct(t model.ClaimTicket) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"token_id":         t.TokenID.String(),
		"claim_code":       t.Code,
		"claim_expires_at": ts(t.ExpiresAt),
	})
}
