package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quizforge/quiz-session-service/internal/services"
	"github.com/quizforge/quiz-session-service/internal/utils"
	"github.com/quizforge/quiz-session-service/internal/validator"
)

type SessionHandler struct {
	BaseHandler
	sessionService services.SessionService
	blockService   services.BlockService
	validator      *validator.Validator
}

func NewSessionHandler(
	sessionService services.SessionService,
	blockService services.BlockService,
	validator *validator.Validator,
	logger utils.Logger,
) *SessionHandler {
	return &SessionHandler{
		BaseHandler:    NewBaseHandler(logger),
		sessionService: sessionService,
		blockService:   blockService,
		validator:      validator,
	}
}

// FetchQuiz delivers the student's session: locked-in assignment, progress,
// and block status.
func (h *SessionHandler) FetchQuiz(c *gin.Context) {
	quizID := c.Param("quiz_id")
	studentID := h.getStudentID(c)
	if studentID == "" {
		return
	}

	h.LogRequest(c, "Fetching quiz session", "quiz_id", quizID, "student_id", studentID)

	response, err := h.sessionService.FetchQuiz(c.Request.Context(), quizID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// SubmitAnswer records a selected option for one assigned question.
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	quizID := c.Param("quiz_id")
	studentID := h.getStudentID(c)
	if studentID == "" {
		return
	}

	var req services.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Submitting answer", "quiz_id", quizID, "student_id", studentID, "question_id", req.QuestionID)

	if err := h.sessionService.SubmitAnswer(c.Request.Context(), quizID, studentID, &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Answer submitted successfully",
	})
}

// TriggerBlock starts a lockout for the student on this quiz. Already-blocked
// students get the existing lockout back unchanged.
func (h *SessionHandler) TriggerBlock(c *gin.Context) {
	quizID := c.Param("quiz_id")
	studentID := h.getStudentID(c)
	if studentID == "" {
		return
	}

	var req services.TriggerBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Triggering block", "quiz_id", quizID, "student_id", studentID, "duration_seconds", req.DurationSeconds)

	status, err := h.blockService.TriggerBlock(c.Request.Context(), quizID, studentID, req.DurationSeconds)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// CheckBlock reports the current lockout state without side effects beyond
// expiry cleanup.
func (h *SessionHandler) CheckBlock(c *gin.Context) {
	quizID := c.Param("quiz_id")
	studentID := h.getStudentID(c)
	if studentID == "" {
		return
	}

	status, err := h.blockService.CheckBlock(c.Request.Context(), quizID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// CleanupAbandoned deletes incomplete sessions idle longer than the given
// number of hours. Invoked by the retention sweep, not by students.
func (h *SessionHandler) CleanupAbandoned(c *gin.Context) {
	hoursStr := c.DefaultQuery("older_than_hours", "720")
	hours, err := strconv.Atoi(hoursStr)
	if err != nil || hours <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid older_than_hours value",
		})
		return
	}

	h.LogRequest(c, "Cleaning up abandoned sessions", "older_than_hours", hours)

	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	deleted, err := h.sessionService.CleanupAbandoned(c.Request.Context(), cutoff)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Cleanup completed",
		Data:    map[string]int64{"deleted": deleted},
	})
}

// getStudentID reads the student identity injected by the upstream gateway.
// Authentication itself happens before requests reach this service.
func (h *SessionHandler) getStudentID(c *gin.Context) string {
	studentID := strings.TrimSpace(c.GetHeader("X-Student-ID"))
	if studentID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "Student not authenticated",
		})
		return ""
	}
	return studentID
}

func (h *SessionHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var configError *services.ConfigurationError
	if errors.As(err, &configError) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Quiz is misconfigured",
			Details: map[string]interface{}{
				"quiz_id": configError.QuizID,
				"reason":  configError.Reason,
			},
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrQuizNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Quiz not found",
		})
	case errors.Is(err, services.ErrProgressNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Session not found",
		})
	case errors.Is(err, services.ErrSessionCompleted):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Session already completed",
		})
	case errors.Is(err, services.ErrQuestionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Question is not part of this session",
		})
	case errors.Is(err, services.ErrStudentBlocked):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Student is blocked for this quiz",
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
