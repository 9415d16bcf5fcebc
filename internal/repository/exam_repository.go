package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/talentgrid/assessment-backend/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool      *pgxpool.Pool
	questions *QuestionRepository
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool, questions: NewQuestionRepository(pool)}
}

const examColumns = `id, slug, title, description, difficulty, duration_seconds, topics, language, created_at, updated_at`

func scanExam(row pgx.Row, e *model.Exam) error {
	return row.Scan(&e.ID, &e.Slug, &e.Title, &e.Description, &e.Difficulty,
		&e.DurationSeconds, &e.Topics, &e.Language, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID retrieves an exam with its ordered questions.
// Returns pgx.ErrNoRows when the exam does not exist.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	if err := scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id), e); err != nil {
		return nil, err
	}

	questions, err := r.questions.ListByExam(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	e.Questions = questions
	return e, nil
}

// ListSummaries returns the catalog view of every exam.
func (r *ExamRepository) ListSummaries(ctx context.Context) ([]model.ExamSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT e.id, e.slug, e.title, e.description, e.difficulty, e.duration_seconds,
		        e.topics, e.language, COUNT(q.id)
		 FROM exams e
		 LEFT JOIN questions q ON q.exam_id = e.id
		 GROUP BY e.id
		 ORDER BY e.title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []model.ExamSummary{}
	for rows.Next() {
		var s model.ExamSummary
		if err := rows.Scan(&s.ID, &s.Slug, &s.Title, &s.Description, &s.Difficulty,
			&s.DurationSeconds, &s.Topics, &s.Language, &s.QuestionCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// ListIDs returns every exam ID. Used for cache prewarming on startup.
func (r *ExamRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM exams ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// ExistsBySlug reports whether an exam with the slug is already stored.
func (r *ExamRepository) ExistsBySlug(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM exams WHERE slug = $1)`, slug).Scan(&exists)
	return exists, err
}

// Create inserts an exam and its questions in one transaction.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO exams (slug, title, description, difficulty, duration_seconds, topics, language)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		e.Slug, e.Title, e.Description, e.Difficulty, e.DurationSeconds, e.Topics, e.Language,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return err
	}

	if err := r.questions.insertAll(ctx, tx, e.ID, e.Questions); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}

	return tx.Commit(ctx)
}
