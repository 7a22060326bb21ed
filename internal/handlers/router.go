package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quizforge/quiz-session-service/internal/repositories"
	"github.com/quizforge/quiz-session-service/internal/services"
	"github.com/quizforge/quiz-session-service/internal/utils"
	"github.com/quizforge/quiz-session-service/internal/validator"
)

type HandlerManager struct {
	sessionHandler *SessionHandler
	repo           repositories.Repository
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	repo repositories.Repository,
	validator *validator.Validator,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		sessionHandler: NewSessionHandler(serviceManager.Session(), serviceManager.Block(), validator, logger),
		repo:           repo,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("/:quiz_id/fetch", hm.sessionHandler.FetchQuiz)
			sessions.POST("/:quiz_id/answers", hm.sessionHandler.SubmitAnswer)
			sessions.POST("/:quiz_id/block", hm.sessionHandler.TriggerBlock)
			sessions.GET("/:quiz_id/block", hm.sessionHandler.CheckBlock)

			// Retention sweep entry point, called by a scheduler.
			sessions.DELETE("/abandoned", hm.sessionHandler.CleanupAbandoned)
		}
	}

	router.GET("/health", hm.healthCheck)
}

func (hm *HandlerManager) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := hm.repo.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "quiz-session-service",
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "quiz-session-service",
	})
}
