package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/talentgrid/assessment-backend/internal/model"
	"github.com/talentgrid/assessment-backend/internal/response"
	"github.com/talentgrid/assessment-backend/internal/service"
	"github.com/talentgrid/assessment-backend/internal/validator"
)

// ExamHandler handles the exam catalog and recruiter endpoints.
type ExamHandler struct {
	examService    *service.ExamService
	sessionService *service.ExamSessionService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService, sessionService *service.ExamSessionService) *ExamHandler {
	return &ExamHandler{
		examService:    examService,
		sessionService: sessionService,
	}
}

// ListExams godoc
// GET /api/v1/exams
// Lists the exam catalog.
func (h *ExamHandler) ListExams(c *gin.Context) {
	exams, err := h.examService.List(c.Request.Context())
	if err != nil {
		failWith(c, err, "List exams failed")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// GetExam godoc
// GET /api/v1/exams/:exam_id
// Returns the candidate-facing paper. Expected outputs are withheld.
func (h *ExamHandler) GetExam(c *gin.Context) {
	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}

	paper, err := h.examService.GetPaper(c.Request.Context(), examID)
	if err != nil {
		failWith(c, err, "Get exam failed")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": paper})
}

// CreateExam godoc
// POST /api/v1/recruiter/exams
// Creates an exam with its questions and test cases.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam := req.ToExam()
	if err := h.examService.Create(c.Request.Context(), exam); err != nil {
		failWith(c, err, "Create exam failed")
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"exam": exam.Summary()})
}

// ExamResults godoc
// GET /api/v1/recruiter/exams/:exam_id/results?page=1&per_page=20
// Lists candidate attempts on an exam.
func (h *ExamHandler) ExamResults(c *gin.Context) {
	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	rows, pagination, err := h.sessionService.ExamResults(c.Request.Context(), examID, page, perPage)
	if err != nil {
		failWith(c, err, "List exam results failed")
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": rows}, pagination)
}
