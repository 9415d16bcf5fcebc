package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/talentgrid/assessment-backend/internal/model"
)

// Domain errors.
var (
	ErrExamNotFound      = errors.New("exam not found")
	ErrNoQuestions       = errors.New("exam has no questions")
	ErrDuplicateExamSlug = errors.New("exam slug already exists")
	ErrSessionNotFound   = errors.New("exam session not found")
	ErrNotSessionOwner   = errors.New("exam session belongs to another candidate")
)

// ExamStore is the exam persistence used by ExamService.
// Implemented by repository.ExamRepository.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListSummaries(ctx context.Context) ([]model.ExamSummary, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
	ExistsBySlug(ctx context.Context, slug string) (bool, error)
	Create(ctx context.Context, e *model.Exam) error
}

// SessionStore is the session persistence used by ExamSessionService.
// Implemented by repository.ExamSessionRepository.
type SessionStore interface {
	Create(ctx context.Context, s *model.ExamSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	GetActive(ctx context.Context, examID uuid.UUID, candidateID string) (*model.ExamSession, error)
	ListActive(ctx context.Context) ([]model.ExamSession, error)
	ListByCandidate(ctx context.Context, candidateID string) ([]model.CandidateResult, error)
	ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ExamResultRow, int, error)
	ListQuestionScores(ctx context.Context, sessionID uuid.UUID) ([]model.QuestionScore, error)
}

// AnswerStore is the durable answer copy used to restore sessions when the
// Redis autosave hash is gone. Implemented by repository.AnswerRepository.
type AnswerStore interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]string, error)
}

// ExamLoader is the content provider consumed by ExamSessionService.
type ExamLoader interface {
	LoadExam(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}
