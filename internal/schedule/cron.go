package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/cronexpr"
)

// CronSpec is a parsed cron expression with minute resolution.
type CronSpec struct {
	expr string
	cron *cronexpr.Expression
}

// ParseCronSpec accepts the five field form ("0 2 * * *") and the
// predefined macros such as @daily.
func ParseCronSpec(expr string) (CronSpec, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return CronSpec{}, fmt.Errorf("empty expression")
	}
	if !strings.HasPrefix(expr, "@") && len(strings.Fields(expr)) != 5 {
		return CronSpec{}, fmt.Errorf("expected 5 fields")
	}

	cron, err := cronexpr.Parse(expr)
	if err != nil {
		return CronSpec{}, err
	}
	return CronSpec{expr: expr, cron: cron}, nil
}

func (s CronSpec) String() string { return s.expr }

// Matches reports whether the minute t falls in is scheduled.
func (s CronSpec) Matches(t time.Time) bool {
	minute := t.Truncate(time.Minute)
	return s.cron.Next(minute.Add(-time.Nanosecond)).Equal(minute)
}

// Next returns the first scheduled minute after t, or the zero time if
// there is none.
func (s CronSpec) Next(t time.Time) time.Time {
	return s.cron.Next(t)
}
