package model

import (
	"time"

	"github.com/google/uuid"
)

// Difficulty is the coarse difficulty label shown in the exam catalog.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// Exam is an immutable assessment definition: an ordered list of questions plus a duration.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Slug            string     `json:"slug"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Difficulty      Difficulty `json:"difficulty"`
	DurationSeconds int        `json:"duration_seconds"`
	Topics          []string   `json:"topics"`
	Language        Language   `json:"language"`
	Questions       []Question `json:"questions"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// QuestionIndex returns the position of the question with the given ID, or -1.
func (e *Exam) QuestionIndex(id uuid.UUID) int {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return i
		}
	}
	return -1
}

// ExamSummary is the catalog view of an exam (no questions).
type ExamSummary struct {
	ID              uuid.UUID  `json:"id"`
	Slug            string     `json:"slug"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Difficulty      Difficulty `json:"difficulty"`
	DurationSeconds int        `json:"duration_seconds"`
	Topics          []string   `json:"topics"`
	Language        Language   `json:"language"`
	QuestionCount   int        `json:"question_count"`
}

// Summary projects the exam onto its catalog view.
func (e *Exam) Summary() ExamSummary {
	return ExamSummary{
		ID:              e.ID,
		Slug:            e.Slug,
		Title:           e.Title,
		Description:     e.Description,
		Difficulty:      e.Difficulty,
		DurationSeconds: e.DurationSeconds,
		Topics:          e.Topics,
		Language:        e.Language,
		QuestionCount:   len(e.Questions),
	}
}

// ExamPaper is the candidate-facing exam payload. Expected outputs are withheld
// until a question is run.
type ExamPaper struct {
	ExamID          uuid.UUID              `json:"exam_id"`
	Title           string                 `json:"title"`
	DurationSeconds int                    `json:"duration_seconds"`
	Questions       []QuestionForCandidate `json:"questions"`
}

// Paper builds the candidate-facing payload.
func (e *Exam) Paper() ExamPaper {
	qs := make([]QuestionForCandidate, len(e.Questions))
	for i, q := range e.Questions {
		qs[i] = QuestionForCandidate{
			ID:            q.ID,
			Prompt:        q.Prompt,
			StarterCode:   q.StarterCode,
			Language:      q.Language,
			TestCaseCount: len(q.TestCases),
			OrderNum:      i,
		}
	}
	return ExamPaper{
		ExamID:          e.ID,
		Title:           e.Title,
		DurationSeconds: e.DurationSeconds,
		Questions:       qs,
	}
}

// CreateExamRequest is the payload for authoring a new exam.
type CreateExamRequest struct {
	Slug            string                  `json:"slug" binding:"required,min=3,max=100"`
	Title           string                  `json:"title" binding:"required,min=3,max=255"`
	Description     string                  `json:"description" binding:"max=2000"`
	Difficulty      string                  `json:"difficulty" binding:"required,oneof=EASY MEDIUM HARD"`
	DurationSeconds int                     `json:"duration_seconds" binding:"required,min=60,max=28800"`
	Topics          []string                `json:"topics" binding:"max=20,dive,min=1,max=50"`
	Language        string                  `json:"language" binding:"required,language"`
	Questions       []CreateQuestionRequest `json:"questions" binding:"required,min=1,max=100,dive"`
}

// ToExam converts the request into an unsaved Exam.
func (r *CreateExamRequest) ToExam() *Exam {
	lang, _ := ParseLanguage(r.Language)
	exam := &Exam{
		Slug:            r.Slug,
		Title:           r.Title,
		Description:     r.Description,
		Difficulty:      Difficulty(r.Difficulty),
		DurationSeconds: r.DurationSeconds,
		Topics:          r.Topics,
		Language:        lang,
		Questions:       make([]Question, len(r.Questions)),
	}
	if exam.Topics == nil {
		exam.Topics = []string{}
	}
	for i, q := range r.Questions {
		exam.Questions[i] = q.ToQuestion()
	}
	return exam
}
