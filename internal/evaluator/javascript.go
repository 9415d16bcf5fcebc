package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dop251/goja"
	"github.com/talentgrid/assessment-backend/internal/model"
)

const (
	defaultCaseTimeout  = 2 * time.Second
	defaultMaxCallStack = 1024
)

var errNotCallable = errors.New("submission did not evaluate to a function")

// JavaScriptRunner evaluates a submission as a single function expression in
// an isolated goja runtime. Each test case gets a fresh runtime, so global
// state cannot leak between cases, and is interrupted after the case timeout.
type JavaScriptRunner struct {
	caseTimeout  time.Duration
	maxCallStack int
}

// JavaScriptOption configures a JavaScriptRunner.
type JavaScriptOption func(*JavaScriptRunner)

// WithCaseTimeout bounds the wall-clock time of one test case.
func WithCaseTimeout(d time.Duration) JavaScriptOption {
	return func(r *JavaScriptRunner) {
		if d > 0 {
			r.caseTimeout = d
		}
	}
}

// WithMaxCallStack bounds recursion depth inside the interpreter.
func WithMaxCallStack(n int) JavaScriptOption {
	return func(r *JavaScriptRunner) {
		if n > 0 {
			r.maxCallStack = n
		}
	}
}

// NewJavaScriptRunner creates a JavaScriptRunner.
func NewJavaScriptRunner(opts ...JavaScriptOption) *JavaScriptRunner {
	r := &JavaScriptRunner{
		caseTimeout:  defaultCaseTimeout,
		maxCallStack: defaultMaxCallStack,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run implements Runner.
func (r *JavaScriptRunner) Run(ctx context.Context, source string, cases []model.TestCase) []model.Verdict {
	prog, err := goja.Compile("submission.js", "("+source+"\n)", false)
	if err != nil {
		return FailAll(cases, model.VerdictCompileError, compileMessage(err))
	}

	verdicts := make([]model.Verdict, len(cases))
	for i, tc := range cases {
		verdicts[i] = r.runCase(ctx, prog, tc)
		if verdicts[i].Status == model.VerdictCompileError {
			// Instantiation is deterministic; the remaining cases would fail the same way.
			for j := i + 1; j < len(cases); j++ {
				verdicts[j] = model.FailedVerdict(model.VerdictCompileError,
					verdicts[i].ActualOutput.(string), cases[j].Expected)
			}
			break
		}
	}
	return verdicts
}

func (r *JavaScriptRunner) runCase(ctx context.Context, prog *goja.Program, tc model.TestCase) model.Verdict {
	if err := ctx.Err(); err != nil {
		return model.FailedVerdict(model.VerdictTimeout, "evaluation cancelled", tc.Expected)
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(r.maxCallStack)

	caseCtx, cancel := context.WithTimeout(ctx, r.caseTimeout)
	defer cancel()
	stop := context.AfterFunc(caseCtx, func() {
		vm.Interrupt("evaluation timed out")
	})
	defer stop()

	start := time.Now()

	fnValue, err := vm.RunProgram(prog)
	if err != nil {
		if status, msg, ok := interruption(err, r.caseTimeout); ok {
			return model.FailedVerdict(status, msg, tc.Expected)
		}
		return model.FailedVerdict(model.VerdictCompileError, errorMessage(vm, err), tc.Expected)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return model.FailedVerdict(model.VerdictCompileError, errNotCallable.Error(), tc.Expected)
	}

	args, err := toArgs(vm, tc.Input)
	if err != nil {
		return model.FailedVerdict(model.VerdictInternalError, err.Error(), tc.Expected)
	}

	out, err := fn(goja.Undefined(), args...)
	if err != nil {
		if status, msg, ok := interruption(err, r.caseTimeout); ok {
			return model.FailedVerdict(status, msg, tc.Expected)
		}
		return model.FailedVerdict(model.VerdictRuntimeError, errorMessage(vm, err), tc.Expected)
	}

	if out == nil || goja.IsUndefined(out) {
		return model.Verdict{
			Status:         model.VerdictWrongAnswer,
			ActualOutput:   "undefined",
			ExpectedOutput: tc.Expected,
			DurationMs:     time.Since(start).Milliseconds(),
		}
	}

	actual, err := exportJSON(vm, out)
	if err != nil {
		return model.FailedVerdict(model.VerdictRuntimeError, errorMessage(vm, err), tc.Expected)
	}
	return Judge(actual, tc, time.Since(start))
}

// toArgs materialises the test input as native JS values via JSON.parse so
// arrays and objects behave exactly like literals written in JS.
func toArgs(vm *goja.Runtime, input []any) ([]goja.Value, error) {
	if len(input) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encode test input: %w", err)
	}
	parse, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
	if !ok {
		return nil, errors.New("JSON.parse unavailable")
	}
	parsed, err := parse(goja.Undefined(), vm.ToValue(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode test input: %w", err)
	}
	arr := parsed.ToObject(vm)
	args := make([]goja.Value, len(input))
	for i := range args {
		args[i] = arr.Get(strconv.Itoa(i))
	}
	return args, nil
}

// exportJSON converts a JS value through JSON.stringify, matching how the
// browser runner compared outputs. Infinity and nested undefined become null.
// A top-level undefined never reaches here.
func exportJSON(vm *goja.Runtime, v goja.Value) (any, error) {
	stringify, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify"))
	if !ok {
		return nil, errors.New("JSON.stringify unavailable")
	}
	s, err := stringify(goja.Undefined(), v)
	if err != nil {
		return nil, err
	}
	if s == nil || goja.IsUndefined(s) || goja.IsNull(s) {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal([]byte(s.String()), &out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return out, nil
}

func interruption(err error, caseTimeout time.Duration) (model.VerdictStatus, string, bool) {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return model.VerdictTimeout, fmt.Sprintf("time limit of %s exceeded", caseTimeout), true
	}
	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return model.VerdictResourceExceeded, "maximum call stack size exceeded", true
	}
	return "", "", false
}

// errorMessage extracts err.message from a thrown JS error, falling back to
// the thrown value or the Go error text.
func errorMessage(vm *goja.Runtime, err error) string {
	var ex *goja.Exception
	if !errors.As(err, &ex) {
		return err.Error()
	}
	val := ex.Value()
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return ex.Error()
	}
	if obj, ok := val.(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			return msg.String()
		}
	}
	return val.String()
}

func compileMessage(err error) string {
	var ce *goja.CompilerSyntaxError
	if errors.As(err, &ce) {
		return "SyntaxError: " + ce.Error()
	}
	return err.Error()
}
