package service

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentgrid/assessment-backend/internal/config"
	"github.com/talentgrid/assessment-backend/internal/model"
)

type memExamStore struct {
	mu        sync.Mutex
	exams     map[uuid.UUID]*model.Exam
	gets      int
	createErr error
}

func newMemExamStore(exams ...*model.Exam) *memExamStore {
	s := &memExamStore{exams: map[uuid.UUID]*model.Exam{}}
	for _, e := range exams {
		s.exams[e.ID] = e
	}
	return s
}

func (s *memExamStore) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	e, ok := s.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return e, nil
}

func (s *memExamStore) ListSummaries(context.Context) ([]model.ExamSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ExamSummary, 0, len(s.exams))
	for _, e := range s.exams {
		out = append(out, e.Summary())
	}
	return out, nil
}

func (s *memExamStore) ListIDs(context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(s.exams))
	for id := range s.exams {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memExamStore) ExistsBySlug(_ context.Context, slug string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.exams {
		if e.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (s *memExamStore) Create(_ context.Context, e *model.Exam) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	e.ID = uuid.New()
	s.exams[e.ID] = e
	return nil
}

func (s *memExamStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func sampleExam(slug string) *model.Exam {
	return &model.Exam{
		ID:              uuid.New(),
		Slug:            slug,
		Title:           "Sample",
		DurationSeconds: 600,
		Language:        model.LanguageJavaScript,
		Topics:          []string{},
		Questions: []model.Question{{
			ID:        uuid.New(),
			Prompt:    "sum",
			Language:  model.LanguageJavaScript,
			TestCases: []model.TestCase{{Input: []any{1.0, 2.0}, Expected: 3.0}},
		}},
	}
}

func newExamService(t *testing.T, store ExamStore) (*ExamService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewExamService(store, rdb, zerolog.Nop()), mr
}

func TestExamService_LoadExamReadThrough(t *testing.T) {
	exam := sampleExam("js")
	store := newMemExamStore(exam)
	svc, mr := newExamService(t, store)
	ctx := context.Background()

	got, err := svc.LoadExam(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, exam.Questions[0].ID, got.Questions[0].ID)
	assert.True(t, mr.Exists(config.CacheKey.ExamDefinitionKey(exam.ID.String())))

	_, err = svc.LoadExam(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, store.getCount(), "second load is served from Redis")

	// A corrupt entry falls back to the store and is rewritten.
	require.NoError(t, mr.Set(config.CacheKey.ExamDefinitionKey(exam.ID.String()), "{not json"))
	_, err = svc.LoadExam(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, store.getCount())

	_, err = svc.LoadExam(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrExamNotFound)
}

func TestExamService_GetPaperWithholdsExpected(t *testing.T) {
	exam := sampleExam("js")
	svc, _ := newExamService(t, newMemExamStore(exam))

	paper, err := svc.GetPaper(context.Background(), exam.ID)
	require.NoError(t, err)
	require.Len(t, paper.Questions, 1)
	assert.Equal(t, 1, paper.Questions[0].TestCaseCount)
}

func TestExamService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("stores, warms and invalidates the catalog", func(t *testing.T) {
		store := newMemExamStore()
		svc, mr := newExamService(t, store)

		_, err := svc.List(ctx)
		require.NoError(t, err)
		require.True(t, mr.Exists(config.CacheKey.ExamCatalogKey()))

		exam := sampleExam("new-exam")
		require.NoError(t, svc.Create(ctx, exam))
		assert.True(t, mr.Exists(config.CacheKey.ExamDefinitionKey(exam.ID.String())))
		assert.False(t, mr.Exists(config.CacheKey.ExamCatalogKey()))

		list, err := svc.List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("rejects empty exams", func(t *testing.T) {
		svc, _ := newExamService(t, newMemExamStore())
		exam := sampleExam("empty")
		exam.Questions = nil
		assert.ErrorIs(t, svc.Create(ctx, exam), ErrNoQuestions)
	})

	t.Run("duplicate slug", func(t *testing.T) {
		svc, _ := newExamService(t, newMemExamStore(sampleExam("taken")))
		assert.ErrorIs(t, svc.Create(ctx, sampleExam("taken")), ErrDuplicateExamSlug)
	})

	t.Run("unique violation race", func(t *testing.T) {
		store := newMemExamStore()
		store.createErr = &pgconn.PgError{Code: "23505"}
		svc, _ := newExamService(t, store)
		assert.ErrorIs(t, svc.Create(ctx, sampleExam("racy")), ErrDuplicateExamSlug)
	})
}

func TestExamService_PrewarmAllCaches(t *testing.T) {
	a, b := sampleExam("a"), sampleExam("b")
	svc, mr := newExamService(t, newMemExamStore(a, b))

	require.NoError(t, svc.PrewarmAllCaches(context.Background()))
	assert.True(t, mr.Exists(config.CacheKey.ExamDefinitionKey(a.ID.String())))
	assert.True(t, mr.Exists(config.CacheKey.ExamDefinitionKey(b.ID.String())))
}
