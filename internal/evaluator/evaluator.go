// Package evaluator runs candidate submissions against test cases and turns
// every outcome, including compile failures, crashes and timeouts, into
// per-test-case verdicts.
package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/talentgrid/assessment-backend/internal/model"
)

// Runner executes submissions for a single language.
//
// Run must return one verdict per test case in order. It receives a context
// already bounded by the evaluator's overall deadline.
type Runner interface {
	Run(ctx context.Context, source string, cases []model.TestCase) []model.Verdict
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, source string, cases []model.TestCase) []model.Verdict

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, source string, cases []model.TestCase) []model.Verdict {
	return f(ctx, source, cases)
}

// Evaluator dispatches submissions to the runner registered for the
// question's language.
type Evaluator struct {
	runners map[model.Language]Runner
	timeout time.Duration
	log     zerolog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithRunner registers (or replaces) the runner for a language.
func WithRunner(lang model.Language, r Runner) Option {
	return func(e *Evaluator) { e.runners[lang] = r }
}

// WithQuestionTimeout bounds the wall-clock time of one question's evaluation.
func WithQuestionTimeout(d time.Duration) Option {
	return func(e *Evaluator) { e.timeout = d }
}

// New creates an Evaluator with the in-process JavaScript and SQL runners.
// Python needs a sandbox runner registered with WithRunner.
func New(log zerolog.Logger, opts ...Option) *Evaluator {
	e := &Evaluator{
		runners: map[model.Language]Runner{
			model.LanguageJavaScript: NewJavaScriptRunner(),
			model.LanguageSQL:        NewSQLRunner(),
		},
		timeout: 30 * time.Second,
		log:     log.With().Str("component", "evaluator").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs source against every test case of q. It never fails: missing
// runners, runner panics and short results become INTERNAL_ERROR verdicts.
func (e *Evaluator) Evaluate(ctx context.Context, q model.Question, source string) (verdicts []model.Verdict) {
	if len(q.TestCases) == 0 || !q.Language.Executable() {
		return []model.Verdict{}
	}

	runner, ok := e.runners[q.Language]
	if !ok {
		e.log.Warn().Str("language", string(q.Language)).Msg("No runner registered")
		return FailAll(q.TestCases, model.VerdictInternalError,
			fmt.Sprintf("no runner available for %s", q.Language))
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error().
				Interface("panic", r).
				Str("question_id", q.ID.String()).
				Msg("Runner panicked")
			verdicts = FailAll(q.TestCases, model.VerdictInternalError, "evaluation crashed")
		}
	}()

	start := time.Now()
	verdicts = runner.Run(ctx, source, q.TestCases)
	verdicts = fitVerdicts(verdicts, q.TestCases)

	e.log.Debug().
		Str("question_id", q.ID.String()).
		Str("language", string(q.Language)).
		Int("passed", model.CountPassed(verdicts)).
		Int("total", len(q.TestCases)).
		Dur("took", time.Since(start)).
		Msg("Question evaluated")

	return verdicts
}

// FailAll returns one failed verdict per case with the same status and message.
func FailAll(cases []model.TestCase, status model.VerdictStatus, message string) []model.Verdict {
	out := make([]model.Verdict, len(cases))
	for i, tc := range cases {
		out[i] = model.FailedVerdict(status, message, tc.Expected)
	}
	return out
}

// Judge compares an actual value against a test case and builds its verdict.
func Judge(actual any, tc model.TestCase, took time.Duration) model.Verdict {
	v := model.Verdict{
		ActualOutput:   Normalize(actual),
		ExpectedOutput: tc.Expected,
		DurationMs:     took.Milliseconds(),
	}
	if Equal(actual, tc.Expected) {
		v.Passed = true
		v.Status = model.VerdictPassed
	} else {
		v.Status = model.VerdictWrongAnswer
	}
	return v
}

// fitVerdicts pads or trims a runner's output to one verdict per case.
func fitVerdicts(vs []model.Verdict, cases []model.TestCase) []model.Verdict {
	if len(vs) == len(cases) {
		return vs
	}
	out := make([]model.Verdict, len(cases))
	for i, tc := range cases {
		if i < len(vs) {
			out[i] = vs[i]
			continue
		}
		out[i] = model.FailedVerdict(model.VerdictInternalError, "no result reported", tc.Expected)
	}
	return out
}
