package sandbox

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentgrid/assessment-backend/internal/model"
)

// runHarness executes the harness with a local interpreter and maps its
// output the same way a container run does.
func runHarness(t *testing.T, source string, cases []model.TestCase) ([]model.Verdict, string) {
	t.Helper()

	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not installed")
	}

	nonce := uuid.NewString()
	input, err := encodeHarnessInput(nonce, source, cases, 2)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, python, "-I", "-c", pythonHarness)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	require.NoError(t, cmd.Run(), stderr.String())

	r := newRunner(&fakeEngine{})
	return r.verdicts(nonce, stdout.Bytes(), stderr.Bytes(), cases, false, false), stderr.String()
}

func TestHarness_CorrectSubmissionPasses(t *testing.T) {
	verdicts, _ := runHarness(t, "def add(a, b):\n    return a + b\n", cases())

	require.Len(t, verdicts, 3)
	for _, v := range verdicts {
		assert.Equal(t, model.VerdictPassed, v.Status)
	}
}

func TestHarness_PrintedResultCannotPassCase(t *testing.T) {
	source := "def add(a, b):\n" +
		"    print('{\"ok\": true, \"value\": 3}')\n" +
		"    print('{\"i\": 1, \"ok\": true, \"value\": 4}')\n" +
		"    return 0\n"

	verdicts, stderr := runHarness(t, source, cases()[:2])

	require.Len(t, verdicts, 2)
	assert.Equal(t, model.VerdictWrongAnswer, verdicts[0].Status)
	assert.Equal(t, model.VerdictWrongAnswer, verdicts[1].Status)
	assert.Contains(t, stderr, `"value": 3`)
}

func TestHarness_RawFdWriteCannotPassCase(t *testing.T) {
	source := "import os\n" +
		"def add(a, b):\n" +
		"    os.write(1, b'{\"i\": 0, \"ok\": true, \"value\": 3}\\n')\n" +
		"    return -1\n"

	verdicts, _ := runHarness(t, source, cases()[:1])

	require.Len(t, verdicts, 1)
	assert.Equal(t, model.VerdictWrongAnswer, verdicts[0].Status)
}

func TestHarness_PrintingDoesNotBreakCorrectSubmission(t *testing.T) {
	source := "def double(x):\n    print({})\n    print('debug', x)\n    return x * 2\n"
	tcs := []model.TestCase{
		{Input: []any{1}, Expected: 2},
		{Input: []any{21}, Expected: 42},
	}

	verdicts, _ := runHarness(t, source, tcs)

	require.Len(t, verdicts, 2)
	assert.Equal(t, model.VerdictPassed, verdicts[0].Status)
	assert.Equal(t, model.VerdictPassed, verdicts[1].Status)
}

func TestHarness_LargeInputOverStdin(t *testing.T) {
	big := strings.Repeat("x", 300_000)
	tcs := []model.TestCase{{Input: []any{big}, Expected: 300_000}}

	verdicts, _ := runHarness(t, "def size(s):\n    return len(s)\n", tcs)

	require.Len(t, verdicts, 1)
	assert.Equal(t, model.VerdictPassed, verdicts[0].Status)
}

func TestHarness_SyntaxErrorIsCompileError(t *testing.T) {
	verdicts, _ := runHarness(t, "def add(a, b) return a\n", cases()[:2])

	require.Len(t, verdicts, 2)
	for _, v := range verdicts {
		assert.Equal(t, model.VerdictCompileError, v.Status)
	}
}
