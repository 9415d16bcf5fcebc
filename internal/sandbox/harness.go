package sandbox

import (
	"encoding/json"

	"github.com/talentgrid/assessment-backend/internal/model"
)

// pythonHarness runs inside the container. It reads its input from stdin,
// loads the submission, picks the first function it defines and writes one
// result line per test case. A load failure writes a single compile_error
// line instead.
//
// Result lines go to a private duplicate of the original stdout and start
// with the per-run nonce. File descriptor 1 is pointed at stderr before the
// submission loads, so anything the submission prints lands in stderr and is
// never read as a result.
const pythonHarness = `
import inspect, json, os, signal, sys, time

class CaseTimeout(BaseException):
    pass

def _alarm(signum, frame):
    raise CaseTimeout()

def main():
    payload = json.loads(sys.stdin.buffer.read() or b"{}")
    nonce = payload.get("nonce", "")
    source = payload.get("source", "")
    cases = payload.get("cases", [])
    limit = float(payload.get("timeout", 2))
    del payload

    results = os.fdopen(os.dup(1), "w")
    os.dup2(2, 1)
    devnull = os.open(os.devnull, os.O_RDONLY)
    os.dup2(devnull, 0)

    def emit(obj):
        try:
            line = json.dumps(obj, allow_nan=False)
        except (TypeError, ValueError):
            line = json.dumps({"i": obj.get("i"), "ok": False, "error": "result is not JSON serializable"})
        results.write(nonce + " " + line + "\n")
        results.flush()

    signal.signal(signal.SIGALRM, _alarm)

    namespace = {"__name__": "submission"}
    try:
        exec(compile(source, "<submission>", "exec"), namespace)
        funcs = [v for v in namespace.values()
                 if inspect.isfunction(v) and v.__code__.co_filename == "<submission>"]
        if not funcs:
            raise TypeError("submission does not define a function")
        fn = funcs[0]
    except BaseException as e:
        emit({"compile_error": "%s: %s" % (type(e).__name__, e)})
        return

    for i, args in enumerate(cases):
        start = time.monotonic()
        signal.setitimer(signal.ITIMER_REAL, limit)
        try:
            value = fn(*args)
            signal.setitimer(signal.ITIMER_REAL, 0)
            emit({"i": i, "ok": True, "value": value, "ms": int((time.monotonic() - start) * 1000)})
        except CaseTimeout:
            emit({"i": i, "ok": False, "timeout": True, "error": "time limit exceeded"})
        except MemoryError:
            signal.setitimer(signal.ITIMER_REAL, 0)
            emit({"i": i, "ok": False, "oom": True, "error": "memory limit exceeded"})
        except BaseException as e:
            signal.setitimer(signal.ITIMER_REAL, 0)
            emit({"i": i, "ok": False, "error": "%s: %s" % (type(e).__name__, e)})

main()
`

// harnessInput is written to the harness's stdin.
type harnessInput struct {
	Nonce   string  `json:"nonce"`
	Source  string  `json:"source"`
	Cases   [][]any `json:"cases"`
	Timeout float64 `json:"timeout"`
}

// harnessLine is one result line, after the nonce prefix.
type harnessLine struct {
	Index        *int    `json:"i"`
	CompileError *string `json:"compile_error"`
	OK           bool    `json:"ok"`
	Value        any     `json:"value"`
	Error        string  `json:"error"`
	Timeout      bool    `json:"timeout"`
	OOM          bool    `json:"oom"`
	Ms           int64   `json:"ms"`
}

func encodeHarnessInput(nonce, source string, cases []model.TestCase, timeoutSeconds float64) ([]byte, error) {
	inputs := make([][]any, len(cases))
	for i, tc := range cases {
		inputs[i] = tc.Input
		if inputs[i] == nil {
			inputs[i] = []any{}
		}
	}
	return json.Marshal(harnessInput{
		Nonce:   nonce,
		Source:  source,
		Cases:   inputs,
		Timeout: timeoutSeconds,
	})
}
