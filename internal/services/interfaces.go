package services

import (
	"context"
	"time"

	"github.com/quizforge/quiz-session-service/internal/models"
)

// ===== REQUEST/RESPONSE DTOs =====

type SubmitAnswerRequest struct {
	QuestionID     string `json:"question_id" validate:"required,len=64,hexadecimal"`
	SelectedOption string `json:"selected_option" validate:"required"`
	Position       *int   `json:"position" validate:"omitempty,min=0"`
	Completed      bool   `json:"completed"`
}

type TriggerBlockRequest struct {
	DurationSeconds int `json:"duration_seconds" validate:"required,min=1,max=86400"`
}

// QuestionView is the client-facing copy of an assigned question. It never
// carries the correct answer; grading happens elsewhere.
type QuestionView struct {
	ID             string              `json:"id"`
	Prompt         string              `json:"prompt"`
	Options        []string            `json:"options"`
	Image          *string             `json:"image,omitempty"`
	Description    *string             `json:"description,omitempty"`
	Kind           models.QuestionKind `json:"kind"`
	SelectedOption *string             `json:"selected_option"`
}

type AssignmentGroupView struct {
	Subcategory string         `json:"subcategory"`
	Questions   []QuestionView `json:"questions"`
}

type AnswerView struct {
	QuestionID     string `json:"question_id"`
	SelectedOption string `json:"selected_option"`
}

type ProgressView struct {
	Position        int          `json:"position"`
	TimeLeftSeconds int          `json:"time_left_seconds"`
	Completed       bool         `json:"completed"`
	Answers         []AnswerView `json:"answers"`
}

// FetchQuizResponse is the orchestrator's result for one fetch request.
// ExpiresAt is epoch milliseconds, zero when not blocked.
type FetchQuizResponse struct {
	Blocked          bool                  `json:"blocked"`
	RemainingSeconds int                   `json:"remaining_seconds"`
	ExpiresAt        int64                 `json:"expires_at"`
	IsCompleted      bool                  `json:"is_completed"`
	Assignment       []AssignmentGroupView `json:"assignment"`
	Progress         ProgressView          `json:"progress"`
	ServerTimeMs     int64                 `json:"server_time_ms"`
}

// BlockStatus reports the lockout state for one (quiz, student) pair.
type BlockStatus struct {
	Blocked          bool      `json:"blocked"`
	RemainingSeconds int       `json:"remaining_seconds"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// ===== SERVICE INTERFACES =====

type SessionService interface {
	// FetchQuiz runs the full fetch sequence: get-or-create progress, block
	// check, completion check, reuse-or-generate assignment, pending penalty
	// application, response assembly.
	FetchQuiz(ctx context.Context, quizPublicID, studentID string) (*FetchQuizResponse, error)

	// SubmitAnswer records a selected option against the locked-in question
	// map. Grading is out of scope; only the selection is stored.
	SubmitAnswer(ctx context.Context, quizPublicID, studentID string, req *SubmitAnswerRequest) error

	// CleanupAbandoned deletes incomplete sessions idle since the cutoff.
	CleanupAbandoned(ctx context.Context, olderThan time.Time) (int64, error)
}

type BlockService interface {
	// TriggerBlock starts a lockout, or reports the existing one when the
	// student is already blocked. Never stacks a second active entry.
	TriggerBlock(ctx context.Context, quizPublicID, studentID string, durationSeconds int) (*BlockStatus, error)

	// CheckBlock reports the current lockout state, persisting expiry
	// cleanup as a side effect.
	CheckBlock(ctx context.Context, quizPublicID, studentID string) (*BlockStatus, error)
}

// ServiceManager owns construction and lifecycle of all services.
type ServiceManager interface {
	Session() SessionService
	Block() BlockService

	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
