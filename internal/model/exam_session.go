package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusSubmitted  SessionStatus = "SUBMITTED"
)

// SubmitReason records why a session was finalized.
type SubmitReason string

const (
	SubmitReasonExplicit    SubmitReason = "SUBMITTED"
	SubmitReasonTimeExpired SubmitReason = "TIME_EXPIRED"
)

// ExamSession is the persisted record of a candidate's attempt.
type ExamSession struct {
	ID           uuid.UUID     `json:"id"`
	ExamID       uuid.UUID     `json:"exam_id"`
	CandidateID  string        `json:"candidate_id"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`
	Status       SessionStatus `json:"status"`
	FinalScore   *int          `json:"final_score,omitempty"`
	SubmitReason *SubmitReason `json:"submit_reason,omitempty"`
}

// QuestionScore is the per-question entry of a SubmissionResult.
type QuestionScore struct {
	QuestionID uuid.UUID `json:"question_id"`
	Score      int       `json:"score"`
	Passed     int       `json:"passed"`
	Total      int       `json:"total"`
}

// SubmissionResult is the payload handed to persistence once a session is finalized.
type SubmissionResult struct {
	SessionID         uuid.UUID       `json:"session_id"`
	ExamID            uuid.UUID       `json:"exam_id"`
	CandidateID       string          `json:"candidate_id"`
	PerQuestionScores []QuestionScore `json:"per_question_scores"`
	TotalScore        int             `json:"total_score"`
	CompletedAt       time.Time       `json:"completed_at"`
	Reason            SubmitReason    `json:"reason"`
}

// QuestionState is the per-question view inside SessionState.
type QuestionState struct {
	QuestionID uuid.UUID `json:"question_id"`
	Answer     string    `json:"answer"`
	Evaluated  bool      `json:"evaluated"`
	Verdicts   []Verdict `json:"verdicts"`
	Score      int       `json:"score"`
}

// SessionState is a read-only snapshot of a live or finished session.
type SessionState struct {
	SessionID     uuid.UUID     `json:"session_id"`
	ExamID        uuid.UUID     `json:"exam_id"`
	Status        SessionStatus `json:"status"`
	CurrentIndex  int           `json:"current_index"`
	TimeRemaining int           `json:"time_remaining"`
	// TimeRemainingLabel is TimeRemaining rendered as mm:ss.
	TimeRemainingLabel string            `json:"time_remaining_label"`
	Questions          []QuestionState   `json:"questions"`
	TotalScore         int               `json:"total_score"`
	Result             *SubmissionResult `json:"result,omitempty"`
}

// CandidateResult is one row of a candidate's completed-exams list.
type CandidateResult struct {
	SessionID  uuid.UUID     `json:"session_id"`
	ExamID     uuid.UUID     `json:"exam_id"`
	ExamTitle  string        `json:"exam_title"`
	FinalScore *int          `json:"final_score"`
	Status     SessionStatus `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at"`
}

// NavigateRequest moves the question cursor.
type NavigateRequest struct {
	Index *int `json:"index" binding:"required"`
}

// EditAnswerRequest replaces the answer text of one question.
type EditAnswerRequest struct {
	Source string `json:"source" binding:"max=65536"`
}

// SessionEventType enumerates the events published for a live session.
type SessionEventType string

const (
	SessionEventTick      SessionEventType = "tick"
	SessionEventVerdicts  SessionEventType = "verdicts"
	SessionEventSubmitted SessionEventType = "submitted"
)

// SessionEvent is published on the session's event channel.
type SessionEvent struct {
	Type          SessionEventType  `json:"type"`
	SessionID     uuid.UUID         `json:"session_id"`
	TimeRemaining int               `json:"time_remaining"`
	QuestionIndex *int              `json:"question_index,omitempty"`
	Verdicts      []Verdict         `json:"verdicts,omitempty"`
	Score         *int              `json:"score,omitempty"`
	Result        *SubmissionResult `json:"result,omitempty"`
}

// ExamResultRow is one candidate's attempt as listed for recruiters.
type ExamResultRow struct {
	SessionID    uuid.UUID     `json:"session_id"`
	CandidateID  string        `json:"candidate_id"`
	FinalScore   *int          `json:"final_score"`
	Status       SessionStatus `json:"status"`
	SubmitReason *SubmitReason `json:"submit_reason,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at"`
}

// AutosavedAnswer is one answer edit queued for durable storage.
type AutosavedAnswer struct {
	SessionID  uuid.UUID `json:"session_id"`
	QuestionID uuid.UUID `json:"question_id"`
	Source     string    `json:"source"`
}

// RunResult is returned when a candidate runs one question.
type RunResult struct {
	QuestionIndex int       `json:"question_index"`
	Verdicts      []Verdict `json:"verdicts"`
	Score         int       `json:"score"`
	TotalScore    int       `json:"total_score"`
}
