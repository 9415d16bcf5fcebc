package evaluator_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentgrid/assessment-backend/internal/evaluator"
	"github.com/talentgrid/assessment-backend/internal/model"
)

func jsQuestion(cases ...model.TestCase) model.Question {
	return model.Question{ID: uuid.New(), Language: model.LanguageJavaScript, TestCases: cases}
}

func tc(expected any, input ...any) model.TestCase {
	if input == nil {
		input = []any{}
	}
	return model.TestCase{Input: input, Expected: expected}
}

func newEvaluator(opts ...evaluator.Option) *evaluator.Evaluator {
	return evaluator.New(zerolog.Nop(), opts...)
}

func TestEvaluate_CorrectSum(t *testing.T) {
	q := jsQuestion(tc(3, 1, 2), tc(0, -1, 1), tc(15, 10, 5))
	verdicts := newEvaluator().Evaluate(context.Background(), q, "function sum(a, b) { return a + b }")

	require.Len(t, verdicts, 3)
	for _, v := range verdicts {
		assert.True(t, v.Passed)
		assert.Equal(t, model.VerdictPassed, v.Status)
	}
	assert.Equal(t, float64(3), verdicts[0].ActualOutput)
}

func TestEvaluate_ArrowFunctionAndArrays(t *testing.T) {
	q := jsQuestion(tc([]any{1, 4, 9}, []any{1, 2, 3}), tc([]any{0, 25}, []any{0, 5}))
	verdicts := newEvaluator().Evaluate(context.Background(), q, "arr => arr.map(x => x * x)")

	require.Len(t, verdicts, 2)
	assert.True(t, verdicts[0].Passed)
	assert.True(t, verdicts[1].Passed)
}

func TestEvaluate_ThrowingCaseDoesNotAffectSiblings(t *testing.T) {
	q := jsQuestion(tc("err", 1), tc(4, 2))
	src := `function f(x) { if (x === 1) { throw new Error("boom") } return x * 2 }`

	verdicts := newEvaluator().Evaluate(context.Background(), q, src)

	require.Len(t, verdicts, 2)
	assert.False(t, verdicts[0].Passed)
	assert.Equal(t, model.VerdictRuntimeError, verdicts[0].Status)
	assert.Equal(t, "boom", verdicts[0].ActualOutput)
	assert.True(t, verdicts[1].Passed)
	assert.Equal(t, float64(4), verdicts[1].ActualOutput)
	assert.Equal(t, 4, verdicts[1].ExpectedOutput)
}

func TestEvaluate_CompileFailureFailsEveryCase(t *testing.T) {
	q := jsQuestion(tc(1, 1), tc(2, 2), tc(3, 3))
	verdicts := newEvaluator().Evaluate(context.Background(), q, "function f(x) { return x ")

	require.Len(t, verdicts, 3)
	for _, v := range verdicts {
		assert.False(t, v.Passed)
		assert.Equal(t, model.VerdictCompileError, v.Status)
		assert.NotEmpty(t, v.ActualOutput)
	}
}

func TestEvaluate_NonCallableSubmission(t *testing.T) {
	q := jsQuestion(tc(1), tc(2))
	verdicts := newEvaluator().Evaluate(context.Background(), q, "42")

	require.Len(t, verdicts, 2)
	for _, v := range verdicts {
		assert.Equal(t, model.VerdictCompileError, v.Status)
	}
}

func TestEvaluate_StarterCodeReturnsUndefined(t *testing.T) {
	q := jsQuestion(tc(3, 1, 2))
	verdicts := newEvaluator().Evaluate(context.Background(), q, "function sum(a, b) {\n  // your code here\n}")

	require.Len(t, verdicts, 1)
	assert.False(t, verdicts[0].Passed)
	assert.Equal(t, model.VerdictWrongAnswer, verdicts[0].Status)
	assert.Equal(t, "undefined", verdicts[0].ActualOutput)
}

func TestEvaluate_UndefinedDoesNotMatchNullExpectation(t *testing.T) {
	q := jsQuestion(tc(nil, []any{}), tc(nil, []any{1}))
	starter := "function firstOrNull(xs) {\n  // your code here\n}"

	verdicts := newEvaluator().Evaluate(context.Background(), q, starter)

	require.Len(t, verdicts, 2)
	for _, v := range verdicts {
		assert.False(t, v.Passed)
		assert.Equal(t, model.VerdictWrongAnswer, v.Status)
		assert.Equal(t, "undefined", v.ActualOutput)
	}

	solved := "function firstOrNull(xs) { return xs.length ? xs[0] : null }"
	verdicts = newEvaluator().Evaluate(context.Background(), q, solved)

	require.Len(t, verdicts, 2)
	assert.True(t, verdicts[0].Passed)
	assert.False(t, verdicts[1].Passed)
}

func TestEvaluate_NoTypeCoercion(t *testing.T) {
	q := jsQuestion(tc(0), tc("0"))
	verdicts := newEvaluator().Evaluate(context.Background(), q, `function f() { return "0" }`)

	require.Len(t, verdicts, 2)
	assert.False(t, verdicts[0].Passed)
	assert.True(t, verdicts[1].Passed)
}

func TestEvaluate_InfiniteLoopTimesOut(t *testing.T) {
	r := evaluator.NewJavaScriptRunner(evaluator.WithCaseTimeout(50 * time.Millisecond))
	e := newEvaluator(evaluator.WithRunner(model.LanguageJavaScript, r))
	q := jsQuestion(tc(1, 1), tc(2, 2))
	src := `function f(x) { if (x === 1) { while (true) {} } return x }`

	verdicts := e.Evaluate(context.Background(), q, src)

	require.Len(t, verdicts, 2)
	assert.Equal(t, model.VerdictTimeout, verdicts[0].Status)
	assert.False(t, verdicts[0].Passed)
	assert.True(t, verdicts[1].Passed)
}

func TestEvaluate_RunawayRecursionIsContained(t *testing.T) {
	q := jsQuestion(tc(1, 1))
	verdicts := newEvaluator().Evaluate(context.Background(), q, "function f(x) { return f(x) }")

	require.Len(t, verdicts, 1)
	assert.False(t, verdicts[0].Passed)
}

func TestEvaluate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := jsQuestion(tc(1, 1))
	verdicts := newEvaluator().Evaluate(ctx, q, "x => x")

	require.Len(t, verdicts, 1)
	assert.Equal(t, model.VerdictTimeout, verdicts[0].Status)
}

func TestEvaluate_Deterministic(t *testing.T) {
	q := jsQuestion(tc(3, 1, 2), tc("err", 0), tc(10, 5, 5))
	src := `function f(a, b) { if (a === 0) { throw new TypeError("zero") } return a + b }`
	e := newEvaluator()

	first := e.Evaluate(context.Background(), q, src)
	second := e.Evaluate(context.Background(), q, src)

	require.Len(t, first, 3)
	for i := range first {
		first[i].DurationMs, second[i].DurationMs = 0, 0
	}
	assert.Equal(t, first, second)
}

func TestEvaluate_GlobalStateDoesNotLeakBetweenCases(t *testing.T) {
	q := jsQuestion(tc(1), tc(1))
	src := `function f() { globalThis.n = (globalThis.n || 0) + 1; return globalThis.n }`

	verdicts := newEvaluator().Evaluate(context.Background(), q, src)

	assert.True(t, verdicts[0].Passed)
	assert.True(t, verdicts[1].Passed)
}

func TestEvaluate_NoTestCases(t *testing.T) {
	q := model.Question{ID: uuid.New(), Language: model.LanguageConceptual}
	verdicts := newEvaluator().Evaluate(context.Background(), q, "Describe your design here")

	assert.NotNil(t, verdicts)
	assert.Empty(t, verdicts)
}

func TestEvaluate_MissingRunner(t *testing.T) {
	q := model.Question{ID: uuid.New(), Language: model.LanguagePython, TestCases: []model.TestCase{tc(6, []any{1, 2, 3})}}
	verdicts := newEvaluator().Evaluate(context.Background(), q, "def sum_list(lst):\n    return sum(lst)")

	require.Len(t, verdicts, 1)
	assert.Equal(t, model.VerdictInternalError, verdicts[0].Status)
}

func TestEvaluate_RunnerPanicBecomesVerdicts(t *testing.T) {
	boom := evaluator.RunnerFunc(func(context.Context, string, []model.TestCase) []model.Verdict {
		panic("runner exploded")
	})
	e := newEvaluator(evaluator.WithRunner(model.LanguageJavaScript, boom))

	verdicts := e.Evaluate(context.Background(), jsQuestion(tc(1), tc(2)), "x => x")

	require.Len(t, verdicts, 2)
	for _, v := range verdicts {
		assert.Equal(t, model.VerdictInternalError, v.Status)
	}
}

func TestEvaluate_ShortRunnerOutputIsPadded(t *testing.T) {
	short := evaluator.RunnerFunc(func(_ context.Context, _ string, cases []model.TestCase) []model.Verdict {
		return []model.Verdict{{Passed: true, Status: model.VerdictPassed}}
	})
	e := newEvaluator(evaluator.WithRunner(model.LanguageJavaScript, short))

	verdicts := e.Evaluate(context.Background(), jsQuestion(tc(1), tc(2), tc(3)), "x => x")

	require.Len(t, verdicts, 3)
	assert.True(t, verdicts[0].Passed)
	assert.Equal(t, model.VerdictInternalError, verdicts[1].Status)
	assert.Equal(t, model.VerdictInternalError, verdicts[2].Status)
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name     string
		actual   any
		expected any
		want     bool
	}{
		{"int vs float", float64(3), 3, true},
		{"number vs string", 0, "0", false},
		{"nested arrays", []any{[]any{1, 2}, []any{3}}, [][]int{{1, 2}, {3}}, true},
		{"array order matters", []any{1, 2}, []int{2, 1}, false},
		{"objects", map[string]any{"a": 1.0}, map[string]int{"a": 1}, true},
		{"empty vs nil", []any{}, nil, false},
		{"nil vs nil", nil, nil, true},
		{"bool vs number", true, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evaluator.Equal(tt.actual, tt.expected))
		})
	}
}
