package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/talentgrid/assessment-backend/internal/model"
)

// AnswerRepository stores the durable copy of autosaved answers.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// UpsertBatch writes answers with UNNEST. Within one batch the last entry for
// a (session, question) pair wins.
func (r *AnswerRepository) UpsertBatch(ctx context.Context, answers []model.AutosavedAnswer) error {
	if len(answers) == 0 {
		return nil
	}

	latest := make(map[[2]uuid.UUID]int, len(answers))
	for i, a := range answers {
		latest[[2]uuid.UUID{a.SessionID, a.QuestionID}] = i
	}

	sessions := make([]uuid.UUID, 0, len(latest))
	questions := make([]uuid.UUID, 0, len(latest))
	sources := make([]string, 0, len(latest))
	for i, a := range answers {
		if latest[[2]uuid.UUID{a.SessionID, a.QuestionID}] != i {
			continue
		}
		sessions = append(sessions, a.SessionID)
		questions = append(questions, a.QuestionID)
		sources = append(sources, a.Source)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO candidate_answers (session_id, question_id, source)
		SELECT * FROM UNNEST($1::uuid[], $2::uuid[], $3::text[])
		ON CONFLICT (session_id, question_id) DO UPDATE
		SET source = EXCLUDED.source, updated_at = NOW()`,
		sessions, questions, sources,
	)
	return err
}

// Upsert is the single-row fallback of UpsertBatch.
func (r *AnswerRepository) Upsert(ctx context.Context, a model.AutosavedAnswer) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO candidate_answers (session_id, question_id, source)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id, question_id) DO UPDATE
		 SET source = EXCLUDED.source, updated_at = NOW()`,
		a.SessionID, a.QuestionID, a.Source,
	)
	return err
}

// ListBySession returns the stored answers of a session keyed by question ID.
func (r *AnswerRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, source FROM candidate_answers WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(map[uuid.UUID]string)
	for rows.Next() {
		var (
			qid    uuid.UUID
			source string
		)
		if err := rows.Scan(&qid, &source); err != nil {
			return nil, err
		}
		answers[qid] = source
	}
	return answers, rows.Err()
}
