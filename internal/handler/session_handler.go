package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/talentgrid/assessment-backend/internal/middleware"
	"github.com/talentgrid/assessment-backend/internal/model"
	"github.com/talentgrid/assessment-backend/internal/response"
	"github.com/talentgrid/assessment-backend/internal/service"
	"github.com/talentgrid/assessment-backend/internal/validator"
)

// SessionHandler handles the candidate's exam session endpoints.
type SessionHandler struct {
	sessionService *service.ExamSessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.ExamSessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// StartSession godoc
// POST /api/v1/candidate/exams/:exam_id/sessions
// Opens the exam. A live attempt is returned instead of starting a new one.
func (h *SessionHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}

	view, err := h.sessionService.StartSession(c.Request.Context(), examID, claims.UserID())
	if err != nil {
		failWith(c, err, "Start session failed")
		return
	}
	response.Success(c, http.StatusOK, view)
}

// GetSession godoc
// GET /api/v1/candidate/sessions/:session_id
func (h *SessionHandler) GetSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	state, err := h.sessionService.State(c.Request.Context(), middleware.GetSessionID(c), claims.UserID())
	if err != nil {
		failWith(c, err, "Get session failed")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": state})
}

// Navigate godoc
// POST /api/v1/candidate/sessions/:session_id/navigate
// Body: {"index": 2}. Out-of-range indexes leave the cursor unchanged.
func (h *SessionHandler) Navigate(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	state, err := h.sessionService.Navigate(c.Request.Context(), middleware.GetSessionID(c), claims.UserID(), *req.Index)
	if err != nil {
		failWith(c, err, "Navigate failed")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": state})
}

// EditAnswer godoc
// PUT /api/v1/candidate/sessions/:session_id/answers/:index
// Body: {"source": "..."}. Replaces the answer and autosaves it.
func (h *SessionHandler) EditAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	index, ok := parseIndexParam(c)
	if !ok {
		return
	}

	var req model.EditAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.sessionService.EditAnswer(c.Request.Context(), middleware.GetSessionID(c), claims.UserID(), index, req.Source); err != nil {
		failWith(c, err, "Edit answer failed")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// RunQuestion godoc
// POST /api/v1/candidate/sessions/:session_id/questions/:index/run
// Evaluates one question and returns its verdicts.
func (h *SessionHandler) RunQuestion(c *gin.Context) {
	claims := middleware.GetClaims(c)
	index, ok := parseIndexParam(c)
	if !ok {
		return
	}

	res, err := h.sessionService.RunQuestion(c.Request.Context(), middleware.GetSessionID(c), claims.UserID(), index)
	if err != nil {
		failWith(c, err, "Run question failed")
		return
	}
	response.Success(c, http.StatusOK, res)
}

// Submit godoc
// POST /api/v1/candidate/sessions/:session_id/submit
// Evaluates unrun questions and finalizes the session.
func (h *SessionHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	res, err := h.sessionService.Submit(c.Request.Context(), middleware.GetSessionID(c), claims.UserID())
	if err != nil {
		failWith(c, err, "Submit failed")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": res})
}

// ListResults godoc
// GET /api/v1/candidate/results
// Lists the candidate's attempts with final scores.
func (h *SessionHandler) ListResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	results, err := h.sessionService.ListResults(c.Request.Context(), claims.UserID())
	if err != nil {
		failWith(c, err, "List results failed")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"results": results})
}
