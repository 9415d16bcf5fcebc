package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/talentgrid/assessment-backend/internal/model"
)

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

const sessionColumns = `id, exam_id, candidate_id, started_at, finished_at, status, final_score, submit_reason`

func scanSession(row pgx.Row, s *model.ExamSession) error {
	return row.Scan(&s.ID, &s.ExamID, &s.CandidateID, &s.StartedAt, &s.FinishedAt,
		&s.Status, &s.FinalScore, &s.SubmitReason)
}

// Create inserts a new IN_PROGRESS session. When the candidate already has a
// live attempt on the exam nothing is inserted and pgx.ErrNoRows is returned.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, candidate_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (exam_id, candidate_id) WHERE status = 'IN_PROGRESS' DO NOTHING
		 RETURNING id, started_at, status`,
		s.ExamID, s.CandidateID, model.SessionStatusInProgress,
	).Scan(&s.ID, &s.StartedAt, &s.Status)
}

// GetByID retrieves a session. Returns pgx.ErrNoRows when absent.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	if err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id), s); err != nil {
		return nil, err
	}
	return s, nil
}

// GetActive retrieves the candidate's live attempt on an exam.
func (r *ExamSessionRepository) GetActive(ctx context.Context, examID uuid.UUID, candidateID string) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	if err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE exam_id = $1 AND candidate_id = $2 AND status = 'IN_PROGRESS'`,
		examID, candidateID), s); err != nil {
		return nil, err
	}
	return s, nil
}

// ListActive returns every IN_PROGRESS session. Used to re-arm timers after a restart.
func (r *ExamSessionRepository) ListActive(ctx context.Context) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE status = 'IN_PROGRESS'
		 ORDER BY started_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []model.ExamSession{}
	for rows.Next() {
		var s model.ExamSession
		if err := scanSession(rows, &s); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListByCandidate returns a candidate's attempts, newest first.
func (r *ExamSessionRepository) ListByCandidate(ctx context.Context, candidateID string) ([]model.CandidateResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT es.id, es.exam_id, e.title, es.final_score, es.status, es.started_at, es.finished_at
		 FROM exam_sessions es
		 JOIN exams e ON e.id = es.exam_id
		 WHERE es.candidate_id = $1
		 ORDER BY es.started_at DESC`, candidateID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []model.CandidateResult{}
	for rows.Next() {
		var cr model.CandidateResult
		if err := rows.Scan(&cr.SessionID, &cr.ExamID, &cr.ExamTitle, &cr.FinalScore,
			&cr.Status, &cr.StartedAt, &cr.FinishedAt); err != nil {
			return nil, err
		}
		results = append(results, cr)
	}
	return results, rows.Err()
}

// ListByExam returns attempts on an exam, best score first, with the total count.
func (r *ExamSessionRepository) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ExamResultRow, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_sessions WHERE exam_id = $1`, examID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, candidate_id, final_score, status, submit_reason, started_at, finished_at
		 FROM exam_sessions
		 WHERE exam_id = $1
		 ORDER BY final_score DESC NULLS LAST, started_at ASC
		 LIMIT $2 OFFSET $3`,
		examID, perPage, (page-1)*perPage,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results := []model.ExamResultRow{}
	for rows.Next() {
		var row model.ExamResultRow
		if err := rows.Scan(&row.SessionID, &row.CandidateID, &row.FinalScore, &row.Status,
			&row.SubmitReason, &row.StartedAt, &row.FinishedAt); err != nil {
			return nil, 0, err
		}
		results = append(results, row)
	}
	return results, total, rows.Err()
}

// ListQuestionScores returns the stored per-question scores of a finished session.
func (r *ExamSessionRepository) ListQuestionScores(ctx context.Context, sessionID uuid.UUID) ([]model.QuestionScore, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT qs.question_id, qs.score, qs.passed, qs.total
		 FROM question_scores qs
		 JOIN questions q ON q.id = qs.question_id
		 WHERE qs.session_id = $1
		 ORDER BY q.order_num`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scores := []model.QuestionScore{}
	for rows.Next() {
		var s model.QuestionScore
		if err := rows.Scan(&s.QuestionID, &s.Score, &s.Passed, &s.Total); err != nil {
			return nil, err
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// CompleteBatch marks sessions SUBMITTED and stores their per-question scores
// in a single transaction. Rows already SUBMITTED are left untouched.
func (r *ExamSessionRepository) CompleteBatch(ctx context.Context, results []model.SubmissionResult) error {
	n := len(results)
	if n == 0 {
		return nil
	}

	ids := make([]uuid.UUID, n)
	scores := make([]int32, n)
	reasons := make([]string, n)
	finishedAts := make([]time.Time, n)

	var (
		qsSessions  []uuid.UUID
		qsQuestions []uuid.UUID
		qsScores    []int32
		qsPassed    []int32
		qsTotal     []int32
	)

	for i, res := range results {
		ids[i] = res.SessionID
		scores[i] = int32(res.TotalScore)
		reasons[i] = string(res.Reason)
		finishedAts[i] = res.CompletedAt
		for _, qs := range res.PerQuestionScores {
			qsSessions = append(qsSessions, res.SessionID)
			qsQuestions = append(qsQuestions, qs.QuestionID)
			qsScores = append(qsScores, int32(qs.Score))
			qsPassed = append(qsPassed, int32(qs.Passed))
			qsTotal = append(qsTotal, int32(qs.Total))
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE exam_sessions AS s
		SET status = 'SUBMITTED',
		    final_score = t.score,
		    submit_reason = t.reason,
		    finished_at = t.finished_at
		FROM UNNEST(
			$1::uuid[],
			$2::int[],
			$3::text[],
			$4::timestamptz[]
		) AS t (id, score, reason, finished_at)
		WHERE s.id = t.id
		  AND s.status = 'IN_PROGRESS'`,
		ids, scores, reasons, finishedAts,
	)
	if err != nil {
		return fmt.Errorf("update sessions: %w", err)
	}

	if len(qsSessions) > 0 {
		_, err = tx.Exec(ctx, `
			INSERT INTO question_scores (session_id, question_id, score, passed, total)
			SELECT * FROM UNNEST($1::uuid[], $2::uuid[], $3::int[], $4::int[], $5::int[])
			ON CONFLICT (session_id, question_id) DO NOTHING`,
			qsSessions, qsQuestions, qsScores, qsPassed, qsTotal,
		)
		if err != nil {
			return fmt.Errorf("insert question scores: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Complete is the single-row fallback of CompleteBatch.
func (r *ExamSessionRepository) Complete(ctx context.Context, res model.SubmissionResult) error {
	return r.CompleteBatch(ctx, []model.SubmissionResult{res})
}
