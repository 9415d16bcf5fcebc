package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentgrid/assessment-backend/internal/model"
	"github.com/talentgrid/assessment-backend/internal/validator"
)

func TestLoadCatalog_Builtin(t *testing.T) {
	exams, err := loadCatalog(bytes.NewReader(builtinCatalog), validator.New())
	require.NoError(t, err)
	require.Len(t, exams, 6)

	langs := map[model.Language]bool{}
	for _, e := range exams {
		assert.NotEmpty(t, e.Questions, e.Slug)
		langs[e.Language] = true
		for _, q := range e.Questions {
			assert.NotEqual(t, uuid.Nil, q.ID)
		}
	}
	assert.Len(t, langs, 4)
	assert.Equal(t, 2700, exams[0].DurationSeconds)
}

func TestLoadCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `[{`},
		{"unknown field", `[{"slug":"abc","bogus":1}]`},
		{"bad language", `[{"slug":"abc","title":"Abc","difficulty":"EASY","duration_seconds":600,"language":"COBOL",
			"questions":[{"prompt":"p","language":"COBOL"}]}]`},
		{"no questions", `[{"slug":"abc","title":"Abc","difficulty":"EASY","duration_seconds":600,"language":"SQL","questions":[]}]`},
		{"duplicate slug", `[
			{"slug":"abc","title":"Abc","difficulty":"EASY","duration_seconds":600,"language":"SQL","questions":[{"prompt":"p","language":"SQL"}]},
			{"slug":"abc","title":"Abc","difficulty":"EASY","duration_seconds":600,"language":"SQL","questions":[{"prompt":"p","language":"SQL"}]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadCatalog(strings.NewReader(tt.body), validator.New())
			assert.Error(t, err)
		})
	}
}
