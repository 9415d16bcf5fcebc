package model

import (
	"strings"

	"github.com/google/uuid"
)

// Language is the execution language of a question.
type Language string

const (
	LanguageJavaScript Language = "JAVASCRIPT"
	LanguagePython     Language = "PYTHON"
	LanguageSQL        Language = "SQL"
	LanguageConceptual Language = "CONCEPTUAL"
)

var languages = map[string]Language{
	"JAVASCRIPT": LanguageJavaScript,
	"PYTHON":     LanguagePython,
	"SQL":        LanguageSQL,
	"CONCEPTUAL": LanguageConceptual,
}

// ParseLanguage maps a case-insensitive tag onto a Language.
func ParseLanguage(s string) (Language, bool) {
	l, ok := languages[strings.ToUpper(strings.TrimSpace(s))]
	return l, ok
}

// Executable reports whether submissions in this language are run against test cases.
func (l Language) Executable() bool {
	return l != LanguageConceptual
}

// TestCase is one (arguments, expected return value) pair.
type TestCase struct {
	Input    []any `json:"input"`
	Expected any   `json:"expected"`
}

// Question is an immutable prompt with its test cases.
type Question struct {
	ID          uuid.UUID  `json:"id"`
	Prompt      string     `json:"prompt"`
	StarterCode string     `json:"starter_code"`
	Language    Language   `json:"language"`
	TestCases   []TestCase `json:"test_cases"`
}

// QuestionForCandidate is a question without its expected outputs.
type QuestionForCandidate struct {
	ID            uuid.UUID `json:"id"`
	Prompt        string    `json:"prompt"`
	StarterCode   string    `json:"starter_code"`
	Language      Language  `json:"language"`
	TestCaseCount int       `json:"test_case_count"`
	OrderNum      int       `json:"order_num"`
}

// CreateQuestionRequest is one question inside CreateExamRequest.
type CreateQuestionRequest struct {
	Prompt      string     `json:"prompt" binding:"required,min=1,max=4000"`
	StarterCode string     `json:"starter_code" binding:"max=20000"`
	Language    string     `json:"language" binding:"required,language"`
	TestCases   []TestCase `json:"test_cases" binding:"max=50"`
}

// ToQuestion converts the request into a Question with a fresh ID.
func (r CreateQuestionRequest) ToQuestion() Question {
	lang, _ := ParseLanguage(r.Language)
	tcs := r.TestCases
	if tcs == nil {
		tcs = []TestCase{}
	}
	for i := range tcs {
		if tcs[i].Input == nil {
			tcs[i].Input = []any{}
		}
	}
	return Question{
		ID:          uuid.New(),
		Prompt:      r.Prompt,
		StarterCode: r.StarterCode,
		Language:    lang,
		TestCases:   tcs,
	}
}
