package repositories

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrQuestionMapConflict is returned when a caller tries to overwrite an
	// already-populated question map with a different one. The locked-in map
	// is immutable after first persistence.
	ErrQuestionMapConflict = errors.New("question map already persisted with different content")

	// ErrAnswerNotInOptions is returned by bank writes whose correct answer is
	// not a member of the option list.
	ErrAnswerNotInOptions = errors.New("correct answer is not one of the options")
)

// IsNotFoundError reports whether err represents a missing row.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
