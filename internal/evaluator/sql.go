package evaluator

import (
	"context"
	"strings"
	"time"

	"github.com/talentgrid/assessment-backend/internal/model"
)

// SQLRunner judges query-language answers by normalized text. There is no
// reference database, so each test case's expected value is the reference
// query and its input is ignored.
type SQLRunner struct{}

// NewSQLRunner creates a SQLRunner.
func NewSQLRunner() *SQLRunner { return &SQLRunner{} }

// Run implements Runner.
func (SQLRunner) Run(ctx context.Context, source string, cases []model.TestCase) []model.Verdict {
	start := time.Now()
	got := NormalizeQuery(source)
	if got == "" {
		return FailAll(cases, model.VerdictCompileError, "empty query")
	}

	verdicts := make([]model.Verdict, len(cases))
	for i, tc := range cases {
		want, ok := tc.Expected.(string)
		v := model.Verdict{
			ActualOutput:   source,
			ExpectedOutput: tc.Expected,
			Status:         model.VerdictWrongAnswer,
			DurationMs:     time.Since(start).Milliseconds(),
		}
		if ok && strings.EqualFold(got, NormalizeQuery(want)) {
			v.Passed = true
			v.Status = model.VerdictPassed
		}
		verdicts[i] = v
	}
	return verdicts
}

// NormalizeQuery collapses whitespace, drops SQL line comments and trailing
// semicolons so that formatting differences do not fail a query.
func NormalizeQuery(q string) string {
	lines := strings.Split(q, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if i := strings.Index(l, "--"); i >= 0 {
			l = l[:i]
		}
		kept = append(kept, l)
	}
	q = strings.Join(strings.Fields(strings.Join(kept, " ")), " ")
	q = strings.TrimRight(q, "; ")
	return q
}
