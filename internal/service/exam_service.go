package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/talentgrid/assessment-backend/internal/config"
	"github.com/talentgrid/assessment-backend/internal/model"
)

const (
	examDefinitionTTL = 24 * time.Hour
	examCatalogTTL    = 5 * time.Minute
)

// ExamService loads immutable exam definitions through a Redis read-through
// cache and handles exam authoring.
type ExamService struct {
	examRepo ExamStore
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(examRepo ExamStore, rdb *redis.Client, log zerolog.Logger) *ExamService {
	return &ExamService{
		examRepo: examRepo,
		rdb:      rdb,
		log:      log.With().Str("component", "exam_service").Logger(),
	}
}

// LoadExam returns the full exam definition, test cases included.
// Returns ErrExamNotFound when the exam does not exist.
func (s *ExamService) LoadExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	key := config.CacheKey.ExamDefinitionKey(id.String())

	data, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var exam model.Exam
		if jsonErr := json.Unmarshal(data, &exam); jsonErr == nil {
			return &exam, nil
		}
		s.log.Warn().Str("exam_id", id.String()).Msg("Corrupt cached exam, reloading")
	case !errors.Is(err, redis.Nil):
		// Redis trouble must not block exams; fall through to PostgreSQL.
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Exam cache read failed")
	}

	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	// Self-heal so the next load is served from Redis.
	if err := s.WarmExamCache(ctx, exam); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Exam cache write failed")
	}
	return exam, nil
}

// GetPaper returns the candidate-facing view of an exam.
func (s *ExamService) GetPaper(ctx context.Context, id uuid.UUID) (*model.ExamPaper, error) {
	exam, err := s.LoadExam(ctx, id)
	if err != nil {
		return nil, err
	}
	paper := exam.Paper()
	return &paper, nil
}

// List returns the exam catalog.
func (s *ExamService) List(ctx context.Context) ([]model.ExamSummary, error) {
	key := config.CacheKey.ExamCatalogKey()
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var summaries []model.ExamSummary
		if json.Unmarshal(data, &summaries) == nil {
			return summaries, nil
		}
	}

	summaries, err := s.examRepo.ListSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}

	if raw, err := json.Marshal(summaries); err == nil {
		_ = s.rdb.Set(ctx, key, raw, examCatalogTTL).Err()
	}
	return summaries, nil
}

// Create stores a new exam and warms its cache.
func (s *ExamService) Create(ctx context.Context, exam *model.Exam) error {
	if len(exam.Questions) == 0 {
		return ErrNoQuestions
	}

	exists, err := s.examRepo.ExistsBySlug(ctx, exam.Slug)
	if err != nil {
		return fmt.Errorf("check slug: %w", err)
	}
	if exists {
		return ErrDuplicateExamSlug
	}

	if err := s.examRepo.Create(ctx, exam); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateExamSlug
		}
		return fmt.Errorf("create exam: %w", err)
	}

	if err := s.WarmExamCache(ctx, exam); err != nil {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Exam cache write failed")
	}
	_ = s.rdb.Del(ctx, config.CacheKey.ExamCatalogKey()).Err()

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Str("slug", exam.Slug).
		Int("questions", len(exam.Questions)).
		Msg("Exam created")
	return nil
}

// WarmExamCache writes an exam definition into Redis.
func (s *ExamService) WarmExamCache(ctx context.Context, exam *model.Exam) error {
	raw, err := json.Marshal(exam)
	if err != nil {
		return fmt.Errorf("marshal exam: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.ExamDefinitionKey(exam.ID.String()), raw, examDefinitionTTL).Err(); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(exam.Questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads every exam into Redis before the server accepts traffic.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	ids, err := s.examRepo.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("list exams: %w", err)
	}

	if len(ids) == 0 {
		s.log.Info().Msg("No exams to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(ids)).Msg("Prewarming exams...")

	warmed := 0
	for _, id := range ids {
		exam, err := s.examRepo.GetByID(ctx, id)
		if err == nil {
			err = s.WarmExamCache(ctx, exam)
		}
		if err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", id.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(ids)).
		Msg("Prewarming complete")
	return nil
}
