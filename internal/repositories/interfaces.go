package repositories

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/quizforge/quiz-session-service/internal/models"
)

// ===== QUIZ DOMAIN =====

type QuizRepository interface {
	Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error

	// GetByPublicID serves cached reads outside transactions. Block
	// decisions never rely on this snapshot; they go through the locked
	// read below.
	GetByPublicID(ctx context.Context, tx *gorm.DB, publicID string) (*models.Quiz, error)

	// GetByPublicIDForUpdate takes a row lock on the quiz and always reads
	// the database. Only meaningful inside WithTransaction; block-list
	// read-modify-write cycles use it to serialize the expiry filter and
	// append.
	GetByPublicIDForUpdate(ctx context.Context, tx *gorm.DB, publicID string) (*models.Quiz, error)

	// UpdateBlockList replaces the quiz's block list column. Callers must run
	// this inside WithTransaction together with the read that produced the new
	// list, otherwise concurrent filter-and-append cycles lose updates.
	UpdateBlockList(ctx context.Context, tx *gorm.DB, quiz *models.Quiz, list datatypes.JSON) error
}

// ===== QUESTION BANK DOMAIN =====

type QuestionBankRepository interface {
	CreateBucket(ctx context.Context, tx *gorm.DB, bucket *models.QuestionBucket) error
	GetBucket(ctx context.Context, tx *gorm.DB, id uint) (*models.QuestionBucket, error)

	// ListBucketsBySubcategory returns every bucket whose subcategory matches,
	// regardless of category.
	ListBucketsBySubcategory(ctx context.Context, tx *gorm.DB, subcategory string) ([]*models.QuestionBucket, error)

	// AppendQuestions appends entries to a bucket. Each entry's answer must be
	// a member of its option list; the write fails otherwise.
	AppendQuestions(ctx context.Context, tx *gorm.DB, bucketID uint, questions []models.BankQuestion) error
}

// ===== SESSION PROGRESS DOMAIN =====

type SessionRepository interface {
	// GetOrCreate inserts a fresh progress row for (studentID, quizID) or
	// fetches the existing one. Concurrent first calls converge on a single
	// row; the bool reports whether this call created it.
	GetOrCreate(ctx context.Context, tx *gorm.DB, studentID string, quizID uint, initialTimeLeft int) (*models.SessionProgress, bool, error)

	Get(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (*models.SessionProgress, error)

	// PersistQuestionMap writes the locked-in map, but only while the stored
	// map is still empty. Rewriting an identical map is a no-op; rewriting a
	// different one returns ErrQuestionMapConflict.
	PersistQuestionMap(ctx context.Context, tx *gorm.DB, progress *models.SessionProgress, questionMap map[string]models.AssignedQuestion) error

	// ApplyTimePenalty subtracts deltaSeconds from the remaining time,
	// clamping at zero, and persists.
	ApplyTimePenalty(ctx context.Context, tx *gorm.DB, progress *models.SessionProgress, deltaSeconds int) error

	// SaveAnswer merges a selected option into the stored answers in a
	// single statement, so concurrent submissions for different questions
	// never drop each other, and advances the position index.
	SaveAnswer(ctx context.Context, tx *gorm.DB, progress *models.SessionProgress, questionID, selectedOption string, position int) error

	// MarkCompleted flips the terminal completed flag.
	MarkCompleted(ctx context.Context, tx *gorm.DB, progress *models.SessionProgress) error

	// DeleteAbandoned removes incomplete progress rows untouched since the
	// cutoff. Used by the external retention sweep.
	DeleteAbandoned(ctx context.Context, tx *gorm.DB, olderThan time.Time) (int64, error)
}
