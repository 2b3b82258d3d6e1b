package validate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/benchboard/internal/model"
)

func f(v float64) *float64 { return &v }

func validPayload() model.SubmissionPayload {
	return model.SubmissionPayload{
		SubmissionID: "b1f7c2a4-9d3e-4f6a-8b2c-1d2e3f4a5b6c",
		Model:        "gpt-x",
		TotalScore:   f(80),
		MaxScore:     f(100),
		Timestamp:    "2025-03-01T12:00:00Z",
		Tasks:        []model.TaskPayload{{Name: "t1", Score: f(80), MaxScore: f(100)}},
	}
}

func TestSubmission_Valid(t *testing.T) {
	t.Parallel()

	require.Empty(t, Submission(validPayload()))

	p := validPayload()
	p.SubmissionID = "B1F7C2A4-9D3E-4F6A-8B2C-1D2E3F4A5B6C"
	p.TotalScore, p.MaxScore = f(0), f(0)
	p.Tasks = []model.TaskPayload{{Score: f(0), MaxScore: f(0)}}
	require.Empty(t, Submission(p), "zero scores and upper-case uuid are acceptable")
}

func TestSubmission_ReportsEveryViolation(t *testing.T) {
	t.Parallel()

	p := model.SubmissionPayload{
		SubmissionID: "not-a-uuid",
		Model:        "   ",
		TotalScore:   f(120),
		MaxScore:     f(100),
		Timestamp:    "yesterday",
		Tasks:        nil,
	}
	require.ElementsMatch(t, []string{
		"submission_id must be a valid UUID v4",
		"model is required",
		"tasks must be a non-empty list",
		"timestamp must be a valid ISO-8601 date/time",
		"total_score must not exceed max_score",
	}, Submission(p))
}

func TestSubmission_NumericAndTaskRules(t *testing.T) {
	t.Parallel()

	p := validPayload()
	p.TotalScore = nil
	p.Tasks = []model.TaskPayload{
		{Score: f(5), MaxScore: f(10)},
		{Score: nil, MaxScore: f(10)},
		{Score: f(11), MaxScore: f(10)},
	}
	require.ElementsMatch(t, []string{
		"total_score must be a number",
		"tasks[1].score must be a number",
		"tasks[2].score must not exceed tasks[2].max_score",
	}, Submission(p))
}

func TestSubmission_RejectsVersion1UUIDAndEmptyTasks(t *testing.T) {
	t.Parallel()

	p := validPayload()
	p.SubmissionID = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	p.Tasks = []model.TaskPayload{}
	require.ElementsMatch(t, []string{
		"submission_id must be a valid UUID v4",
		"tasks must be a non-empty list",
	}, Submission(p))
}

func TestSubmission_OptionalCountersNonNegative(t *testing.T) {
	t.Parallel()

	neg := int64(-1)
	p := validPayload()
	p.Cost = f(-0.5)
	p.TokenUsage = &model.TokenUsage{Prompt: &neg}
	require.ElementsMatch(t, []string{
		"cost must be non-negative",
		"token_usage.prompt_tokens must be non-negative",
	}, Submission(p))
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2025-03-01T12:00:00Z",
		"2025-03-01T14:00:00+02:00",
		"2025-03-01T12:00:00.000Z",
		"2025-03-01T12:00:00",
		"2025-03-01 12:00:00",
	} {
		got, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		require.True(t, want.Equal(got), "%s -> %s", in, got)
	}

	for _, in := range []string{"", "2025-13-01T00:00:00Z", "12:00", "now"} {
		_, err := ParseTimestamp(in)
		require.Error(t, err, in)
	}
}

func TestSubmission_ScoresMustBeFiniteAndNonNegative(t *testing.T) {
	t.Parallel()

	p := validPayload()
	p.TotalScore = f(-5)
	p.MaxScore = f(math.Inf(1))
	p.ExecutionTimeMS = f(math.NaN())
	p.Tasks = []model.TaskPayload{{Score: f(-1), MaxScore: f(10)}}
	require.ElementsMatch(t, []string{
		"total_score must be non-negative",
		"max_score must be a number",
		"execution_time_ms must be a number",
		"tasks[0].score must be non-negative",
	}, Submission(p))
}
