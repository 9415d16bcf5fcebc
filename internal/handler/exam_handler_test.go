package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentgrid/assessment-backend/internal/model"
	"github.com/talentgrid/assessment-backend/internal/response"
	"github.com/talentgrid/assessment-backend/internal/service"
	"github.com/talentgrid/assessment-backend/internal/session"
	"github.com/talentgrid/assessment-backend/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

type examStore struct {
	exams map[uuid.UUID]*model.Exam
}

func (s *examStore) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	if e, ok := s.exams[id]; ok {
		return e, nil
	}
	return nil, pgx.ErrNoRows
}

func (s *examStore) ListSummaries(context.Context) ([]model.ExamSummary, error) {
	out := []model.ExamSummary{}
	for _, e := range s.exams {
		out = append(out, e.Summary())
	}
	return out, nil
}

func (s *examStore) ListIDs(context.Context) ([]uuid.UUID, error) { return nil, nil }

func (s *examStore) ExistsBySlug(_ context.Context, slug string) (bool, error) {
	for _, e := range s.exams {
		if e.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (s *examStore) Create(_ context.Context, e *model.Exam) error {
	e.ID = uuid.New()
	s.exams[e.ID] = e
	return nil
}

func newExamRouter(t *testing.T) *gin.Engine {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := NewExamHandler(service.NewExamService(&examStore{exams: map[uuid.UUID]*model.Exam{}}, rdb, zerolog.Nop()), nil)
	r := gin.New()
	r.GET("/exams", h.ListExams)
	r.GET("/exams/:exam_id", h.GetExam)
	r.POST("/exams", h.CreateExam)
	return r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func validExam() map[string]any {
	return map[string]any{
		"slug":             "js-basics",
		"title":            "JS Basics",
		"difficulty":       "EASY",
		"duration_seconds": 600,
		"language":         "javascript",
		"questions": []map[string]any{{
			"prompt":     "sum",
			"language":   "JAVASCRIPT",
			"test_cases": []map[string]any{{"input": []any{1, 2}, "expected": 3}},
		}},
	}
}

func TestExamHandler_CreateAndFetch(t *testing.T) {
	r := newExamRouter(t)

	w := doJSON(r, http.MethodPost, "/exams", validExam())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Data struct {
			Exam model.ExamSummary `json:"exam"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, model.LanguageJavaScript, created.Data.Exam.Language)
	assert.Equal(t, 1, created.Data.Exam.QuestionCount)

	w = doJSON(r, http.MethodGet, "/exams/"+created.Data.Exam.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "expected")

	w = doJSON(r, http.MethodPost, "/exams", validExam())
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(r, http.MethodGet, "/exams", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "js-basics")
}

func TestExamHandler_Validation(t *testing.T) {
	r := newExamRouter(t)

	body := validExam()
	body["language"] = "COBOL"
	delete(body, "slug")

	w := doJSON(r, http.MethodPost, "/exams", body)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, response.ErrValidation, resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "slug")
	assert.Contains(t, resp.Error.Fields, "language")
}

func TestExamHandler_GetErrors(t *testing.T) {
	r := newExamRouter(t)

	w := doJSON(r, http.MethodGet, "/exams/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodGet, "/exams/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   response.ErrCode
		ok     bool
	}{
		{service.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound, true},
		{fmt.Errorf("load: %w", service.ErrSessionNotFound), http.StatusNotFound, response.ErrSessionNotFound, true},
		{service.ErrNotSessionOwner, http.StatusForbidden, response.ErrNotSessionOwner, true},
		{session.ErrInvalidTransition, http.StatusConflict, response.ErrSessionSubmitted, true},
		{session.ErrQuestionOutOfRange, http.StatusBadRequest, response.ErrQuestionOutOfRange, true},
		{service.ErrDuplicateExamSlug, http.StatusConflict, response.ErrDuplicateExamSlug, true},
		{context.DeadlineExceeded, http.StatusInternalServerError, response.ErrInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, code, ok := errorStatus(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
