// Package validate checks proposed submissions for structural and numeric well-formedness.
package validate

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/and161185/benchboard/internal/model"
)

var (
	structValidator = newStructValidator()
	uuidV4Pattern   = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
)

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	_ = v.RegisterValidation("uuidv4", func(fl validator.FieldLevel) bool {
		return uuidV4Pattern.MatchString(fl.Field().String())
	})
	return v
}

// timestampLayouts are tried in order; zone-less forms are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses a client-declared ISO-8601 date/time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Submission returns every rule violated by p. An empty result means p is acceptable.
func Submission(p model.SubmissionPayload) []string {
	var out []string

	if err := structValidator.Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return []string{err.Error()}
		}
		for _, fe := range fieldErrs {
			out = append(out, message(fe))
		}
	}

	if _, err := ParseTimestamp(p.Timestamp); err != nil {
		out = append(out, "timestamp must be a valid ISO-8601 date/time")
	}
	if p.TotalScore != nil && p.MaxScore != nil && *p.TotalScore > *p.MaxScore {
		out = append(out, "total_score must not exceed max_score")
	}
	for i, task := range p.Tasks {
		if task.Score != nil && task.MaxScore != nil && *task.Score > *task.MaxScore {
			out = append(out, fmt.Sprintf("tasks[%d].score must not exceed tasks[%d].max_score", i, i))
		}
	}
	return out
}

func message(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch {
	case field == "submission_id":
		return "submission_id must be a valid UUID v4"
	case field == "model":
		return "model is required"
	case field == "tasks":
		return "tasks must be a non-empty list"
	case fe.Tag() == "required", fe.Tag() == "finite":
		return field + " must be a number"
	case fe.Tag() == "gte":
		return field + " must be non-negative"
	default:
		return fmt.Sprintf("%s failed %q", field, fe.Tag())
	}
}
