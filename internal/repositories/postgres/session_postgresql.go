package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quizforge/quiz-session-service/internal/models"
	"github.com/quizforge/quiz-session-service/internal/repositories"
)

// SessionPostgreSQL reads and writes progress rows uncached: every field is
// hot session state, so a stale copy is never acceptable.
type SessionPostgreSQL struct {
	db *gorm.DB
}

func NewSessionPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.SessionRepository {
	return &SessionPostgreSQL{db: db}
}

// GetOrCreate is race-free: the insert carries ON CONFLICT DO NOTHING against
// the (quiz_id, student_id) unique index, so concurrent first requests
// converge on one row and the losers fall through to the fetch.
func (s *SessionPostgreSQL) GetOrCreate(ctx context.Context, tx *gorm.DB, studentID string, quizID uint, initialTimeLeft int) (*models.SessionProgress, bool, error) {
	db := s.getDB(tx)

	progress := &models.SessionProgress{
		QuizID:      quizID,
		StudentID:   studentID,
		TimeLeft:    initialTimeLeft,
		QuestionMap: datatypes.JSON("{}"),
		Answers:     datatypes.JSON("{}"),
	}

	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "quiz_id"}, {Name: "student_id"}},
			DoNothing: true,
		}).
		Create(progress)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to create progress: %w", res.Error)
	}

	if res.RowsAffected == 1 {
		return progress, true, nil
	}

	existing, err := s.Get(ctx, tx, studentID, quizID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *SessionPostgreSQL) Get(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (*models.SessionProgress, error) {
	db := s.getDB(tx)
	var progress models.SessionProgress
	if err := db.WithContext(ctx).
		Where("quiz_id = ? AND student_id = ?", quizID, studentID).
		First(&progress).Error; err != nil {
		return nil, err
	}
	return &progress, nil
}

// PersistQuestionMap only writes while the stored map is empty. An identical
// rewrite (the benign race of two deterministic first assignments) is a
// no-op; a differing rewrite is rejected, since overwriting a populated map
// would break the same-student-same-questions guarantee.
func (s *SessionPostgreSQL) PersistQuestionMap(ctx context.Context, tx *gorm.DB, progress *models.SessionProgress, questionMap map[string]models.AssignedQuestion) error {
	db := s.getDB(tx)

	data, err := json.Marshal(questionMap)
	if err != nil {
		return fmt.Errorf("failed to encode question map: %w", err)
	}

	res := db.WithContext(ctx).
		Model(&models.SessionProgress{}).
		Where("id = ? AND (question_map IS NULL OR question_map::text IN ('null', '{}'))", progress.ID).
		Update("question_map", datatypes.JSON(data))
	if res.Error != nil {
		return fmt.Errorf("failed to persist question map: %w", res.Error)
	}

	if res.RowsAffected == 1 {
		progress.QuestionMap = datatypes.JSON(data)
		return nil
	}

	// Lost the write: re-read the canonical row and compare.
	current, err := s.Get(ctx, tx, progress.StudentID, progress.QuizID)
	if err != nil {
		return err
	}
	stored, err := current.DecodeQuestionMap()
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(stored, questionMap) {
		return repositories.ErrQuestionMapConflict
	}
	progress.QuestionMap = current.QuestionMap
	return nil
}

// ApplyTimePenalty subtracts deltaSeconds atomically, clamping at zero.
func (s *SessionPostgreSQL) ApplyTimePenalty(ctx context.Context, tx *gorm.DB, progress *models.SessionProgress, deltaSeconds int) error {
	if deltaSeconds <= 0 {
		return nil
	}

	db := s.getDB(tx)
	if err := db.WithContext(ctx).
		Model(&models.SessionProgress{}).
		Where("id = ?", progress.ID).
		Update("time_left", gorm.Expr("GREATEST(time_left - ?, 0)", deltaSeconds)).Error; err != nil {
		return fmt.Errorf("failed to apply time penalty: %w", err)
	}

	progress.TimeLeft -= deltaSeconds
	if progress.TimeLeft < 0 {
		progress.TimeLeft = 0
	}
	return nil
}

// SaveAnswer merges one selection into the answers column server-side.
// Concurrent submissions for the same student touch disjoint JSON keys, so
// neither can overwrite the other with a stale snapshot.
func (s *SessionPostgreSQL) SaveAnswer(ctx context.Context, tx *gorm.DB, progress *models.SessionProgress, questionID, selectedOption string, position int) error {
	db := s.getDB(tx)

	if err := db.WithContext(ctx).
		Model(&models.SessionProgress{}).
		Where("id = ?", progress.ID).
		Updates(map[string]interface{}{
			"answers":  gorm.Expr("jsonb_set(COALESCE(answers, '{}'::jsonb), ARRAY[?::text], to_jsonb(?::text))", questionID, selectedOption),
			"position": position,
		}).Error; err != nil {
		return fmt.Errorf("failed to save answer: %w", err)
	}

	answers, err := progress.DecodeAnswers()
	if err != nil {
		return err
	}
	if answers == nil {
		answers = make(map[string]string)
	}
	answers[questionID] = selectedOption

	data, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("failed to encode answers: %w", err)
	}
	progress.Answers = datatypes.JSON(data)
	progress.Position = position
	return nil
}

func (s *SessionPostgreSQL) MarkCompleted(ctx context.Context, tx *gorm.DB, progress *models.SessionProgress) error {
	db := s.getDB(tx)
	if err := db.WithContext(ctx).
		Model(&models.SessionProgress{}).
		Where("id = ?", progress.ID).
		Update("completed", true).Error; err != nil {
		return fmt.Errorf("failed to mark progress completed: %w", err)
	}
	progress.Completed = true
	return nil
}

func (s *SessionPostgreSQL) DeleteAbandoned(ctx context.Context, tx *gorm.DB, olderThan time.Time) (int64, error) {
	db := s.getDB(tx)
	res := db.WithContext(ctx).
		Where("completed = ? AND updated_at < ?", false, olderThan).
		Delete(&models.SessionProgress{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete abandoned progress: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *SessionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}
