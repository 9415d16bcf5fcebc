package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/talentgrid/assessment-backend/internal/response"
	"github.com/talentgrid/assessment-backend/internal/service"
	"github.com/talentgrid/assessment-backend/internal/session"
)

// errorStatus maps a domain error onto an HTTP status and error code.
// ok is false for unexpected errors.
func errorStatus(err error) (status int, code response.ErrCode, ok bool) {
	switch {
	case errors.Is(err, service.ErrExamNotFound):
		return http.StatusNotFound, response.ErrExamNotFound, true
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, response.ErrSessionNotFound, true
	case errors.Is(err, service.ErrNotSessionOwner):
		return http.StatusForbidden, response.ErrNotSessionOwner, true
	case errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict, response.ErrSessionSubmitted, true
	case errors.Is(err, session.ErrQuestionOutOfRange):
		return http.StatusBadRequest, response.ErrQuestionOutOfRange, true
	case errors.Is(err, service.ErrNoQuestions):
		return http.StatusBadRequest, response.ErrNoQuestions, true
	case errors.Is(err, service.ErrDuplicateExamSlug):
		return http.StatusConflict, response.ErrDuplicateExamSlug, true
	default:
		return http.StatusInternalServerError, response.ErrInternal, false
	}
}

// failWith writes the envelope for err and logs unexpected errors on the
// request-scoped logger.
func failWith(c *gin.Context, err error, msg string) {
	status, code, ok := errorStatus(err)
	if !ok {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg(msg)
	}
	response.Fail(c, status, code)
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

func parseIndexParam(c *gin.Context) (int, bool) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrQuestionOutOfRange)
		return 0, false
	}
	return idx, true
}
