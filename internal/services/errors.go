package services

import (
	"errors"
	"fmt"
)

var (
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrProgressNotFound = errors.New("session progress not found")
	ErrSessionCompleted = errors.New("session already completed")
	ErrQuestionNotFound = errors.New("question not part of this session")
	ErrStudentBlocked   = errors.New("student is blocked for this quiz")
)

// ConfigurationError marks quiz setups that can never produce a valid
// session: missing selections, or selections whose pools are all empty. It is
// surfaced distinctly so an empty quiz is never silently delivered.
type ConfigurationError struct {
	QuizID string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("quiz %s misconfigured: %s", e.QuizID, e.Reason)
}

func NewConfigurationError(quizID, reason string) *ConfigurationError {
	return &ConfigurationError{QuizID: quizID, Reason: reason}
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var configErr *ConfigurationError
	return errors.As(err, &configErr)
}
