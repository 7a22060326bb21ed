package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quizforge/quiz-session-service/internal/cache"
	"github.com/quizforge/quiz-session-service/internal/models"
	"github.com/quizforge/quiz-session-service/internal/repositories"
)

type QuizPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuizPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.QuizRepository {
	return &QuizPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (q *QuizPostgreSQL) Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	db := q.getDB(tx)
	if err := db.WithContext(ctx).Create(quiz).Error; err != nil {
		return fmt.Errorf("failed to create quiz: %w", err)
	}
	cache.InvalidateQuizCache(ctx, q.cacheManager, quiz.PublicID)
	return nil
}

func (q *QuizPostgreSQL) GetByPublicID(ctx context.Context, tx *gorm.DB, publicID string) (*models.Quiz, error) {
	db := q.getDB(tx)

	// Transactional readers need the current row, not a snapshot.
	if tx != nil {
		var quiz models.Quiz
		if err := db.WithContext(ctx).Where("public_id = ?", publicID).First(&quiz).Error; err != nil {
			return nil, err
		}
		return &quiz, nil
	}

	cacheKey := quizCacheKey(publicID)
	var quiz models.Quiz
	err := q.cacheManager.Quiz.CacheOrExecute(ctx, cacheKey, &quiz, cache.QuizCacheConfig.TTL, func() (interface{}, error) {
		var dbQuiz models.Quiz
		if err := db.WithContext(ctx).Where("public_id = ?", publicID).First(&dbQuiz).Error; err != nil {
			return nil, err
		}
		return &dbQuiz, nil
	})
	return &quiz, err
}

func (q *QuizPostgreSQL) GetByPublicIDForUpdate(ctx context.Context, tx *gorm.DB, publicID string) (*models.Quiz, error) {
	db := q.getDB(tx)
	var quiz models.Quiz
	if err := db.WithContext(ctx).
		Clauses(lockForUpdate()).
		Where("public_id = ?", publicID).
		First(&quiz).Error; err != nil {
		return nil, err
	}
	return &quiz, nil
}

func (q *QuizPostgreSQL) UpdateBlockList(ctx context.Context, tx *gorm.DB, quiz *models.Quiz, list datatypes.JSON) error {
	db := q.getDB(tx)
	if err := db.WithContext(ctx).
		Model(&models.Quiz{}).
		Where("id = ?", quiz.ID).
		Update("block_list", list).Error; err != nil {
		return fmt.Errorf("failed to update block list: %w", err)
	}

	// The cached snapshot carries the stale list; drop it.
	cache.SafeDelete(ctx, q.cacheManager.Quiz, quizCacheKey(quiz.PublicID))
	return nil
}

func quizCacheKey(publicID string) string {
	return fmt.Sprintf("public:%s", publicID)
}

// lockForUpdate returns a row-level lock clause for read-modify-write cycles.
func lockForUpdate() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}

func (q *QuizPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}
