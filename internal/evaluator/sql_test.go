package evaluator_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentgrid/assessment-backend/internal/evaluator"
	"github.com/talentgrid/assessment-backend/internal/model"
)

func TestSQLRunner(t *testing.T) {
	q := model.Question{
		ID:        uuid.New(),
		Language:  model.LanguageSQL,
		TestCases: []model.TestCase{{Input: []any{}, Expected: "SELECT * FROM users WHERE age > 18;"}},
	}
	e := newEvaluator()

	tests := []struct {
		name   string
		source string
		passed bool
		status model.VerdictStatus
	}{
		{"exact", "SELECT * FROM users WHERE age > 18;", true, model.VerdictPassed},
		{"formatting", "select *\n  from users\n where age > 18 -- adults\n", true, model.VerdictPassed},
		{"different predicate", "SELECT * FROM users WHERE age >= 18;", false, model.VerdictWrongAnswer},
		{"empty", "  ;  ", false, model.VerdictCompileError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdicts := e.Evaluate(context.Background(), q, tt.source)
			require.Len(t, verdicts, 1)
			assert.Equal(t, tt.passed, verdicts[0].Passed)
			assert.Equal(t, tt.status, verdicts[0].Status)
		})
	}
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "SELECT 1", evaluator.NormalizeQuery("  SELECT\t1 ;;\n"))
	assert.Equal(t, "SELECT a FROM t", evaluator.NormalizeQuery("SELECT a -- column\nFROM t"))
}
