package model

// VerdictStatus classifies the outcome of a single test case.
type VerdictStatus string

const (
	VerdictPassed           VerdictStatus = "PASSED"
	VerdictWrongAnswer      VerdictStatus = "WRONG_ANSWER"
	VerdictCompileError     VerdictStatus = "COMPILE_ERROR"
	VerdictRuntimeError     VerdictStatus = "RUNTIME_ERROR"
	VerdictTimeout          VerdictStatus = "TIMEOUT"
	VerdictResourceExceeded VerdictStatus = "RESOURCE_EXCEEDED"
	VerdictInternalError    VerdictStatus = "INTERNAL_ERROR"
)

// Verdict is the result of running a submission against one test case.
// For failures other than WRONG_ANSWER, ActualOutput holds the failure description.
type Verdict struct {
	Passed         bool          `json:"passed"`
	Status         VerdictStatus `json:"status"`
	ActualOutput   any           `json:"actual_output"`
	ExpectedOutput any           `json:"expected_output"`
	DurationMs     int64         `json:"duration_ms"`
}

// FailedVerdict builds a non-passing verdict whose actual output is the failure message.
func FailedVerdict(status VerdictStatus, message string, expected any) Verdict {
	return Verdict{
		Passed:         false,
		Status:         status,
		ActualOutput:   message,
		ExpectedOutput: expected,
	}
}

// CountPassed returns the number of passing verdicts.
func CountPassed(vs []Verdict) int {
	n := 0
	for _, v := range vs {
		if v.Passed {
			n++
		}
	}
	return n
}
