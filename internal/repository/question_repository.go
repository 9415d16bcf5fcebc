package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/talentgrid/assessment-backend/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam retrieves all questions for a given exam, ordered by order_num.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, prompt, starter_code, language, test_cases
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		var (
			q   model.Question
			raw []byte
		)
		if err := rows.Scan(&q.ID, &q.Prompt, &q.StarterCode, &q.Language, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &q.TestCases); err != nil {
			return nil, fmt.Errorf("decode test cases of %s: %w", q.ID, err)
		}
		if q.TestCases == nil {
			q.TestCases = []model.TestCase{}
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// insertAll writes the exam's questions inside tx, numbering them by position.
func (r *QuestionRepository) insertAll(ctx context.Context, tx pgx.Tx, examID uuid.UUID, questions []model.Question) error {
	batch := &pgx.Batch{}
	for i, q := range questions {
		raw, err := json.Marshal(q.TestCases)
		if err != nil {
			return fmt.Errorf("encode test cases of question %d: %w", i, err)
		}
		batch.Queue(
			`INSERT INTO questions (id, exam_id, order_num, prompt, starter_code, language, test_cases)
			 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)`,
			q.ID, examID, i, q.Prompt, q.StarterCode, q.Language, string(raw),
		)
	}
	return tx.SendBatch(ctx, batch).Close()
}
