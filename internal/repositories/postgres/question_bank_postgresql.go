package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/quizforge/quiz-session-service/internal/cache"
	"github.com/quizforge/quiz-session-service/internal/models"
	"github.com/quizforge/quiz-session-service/internal/repositories"
)

type QuestionBankPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuestionBankPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.QuestionBankRepository {
	return &QuestionBankPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (r *QuestionBankPostgreSQL) CreateBucket(ctx context.Context, tx *gorm.DB, bucket *models.QuestionBucket) error {
	db := r.getDB(tx)

	questions, err := bucket.DecodeQuestions()
	if err != nil {
		return err
	}
	if err := validateAnswerMembership(questions); err != nil {
		return err
	}

	if err := db.WithContext(ctx).Create(bucket).Error; err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	cache.InvalidateBucketCache(ctx, r.cacheManager, bucket.ID, bucket.Subcategory)
	return nil
}

func (r *QuestionBankPostgreSQL) GetBucket(ctx context.Context, tx *gorm.DB, id uint) (*models.QuestionBucket, error) {
	db := r.getDB(tx)
	var bucket models.QuestionBucket
	if err := db.WithContext(ctx).First(&bucket, id).Error; err != nil {
		return nil, err
	}
	return &bucket, nil
}

func (r *QuestionBankPostgreSQL) ListBucketsBySubcategory(ctx context.Context, tx *gorm.DB, subcategory string) ([]*models.QuestionBucket, error) {
	db := r.getDB(tx)

	if tx != nil {
		return r.listBySubcategory(ctx, db, subcategory)
	}

	cacheKey := fmt.Sprintf("subcategory:%s", subcategory)
	var buckets []*models.QuestionBucket
	err := r.cacheManager.Bank.CacheOrExecute(ctx, cacheKey, &buckets, cache.BankCacheConfig.TTL, func() (interface{}, error) {
		return r.listBySubcategory(ctx, db, subcategory)
	})
	return buckets, err
}

func (r *QuestionBankPostgreSQL) listBySubcategory(ctx context.Context, db *gorm.DB, subcategory string) ([]*models.QuestionBucket, error) {
	var buckets []*models.QuestionBucket
	if err := db.WithContext(ctx).
		Where("subcategory = ?", subcategory).
		Order("id ASC").
		Find(&buckets).Error; err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}
	return buckets, nil
}

func (r *QuestionBankPostgreSQL) AppendQuestions(ctx context.Context, tx *gorm.DB, bucketID uint, questions []models.BankQuestion) error {
	if err := validateAnswerMembership(questions); err != nil {
		return err
	}

	db := r.getDB(tx)
	return db.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		var bucket models.QuestionBucket
		if err := inner.Clauses(lockForUpdate()).First(&bucket, bucketID).Error; err != nil {
			return err
		}

		existing, err := bucket.DecodeQuestions()
		if err != nil {
			return err
		}

		merged, err := json.Marshal(append(existing, questions...))
		if err != nil {
			return fmt.Errorf("failed to encode bucket questions: %w", err)
		}

		if err := inner.Model(&models.QuestionBucket{}).
			Where("id = ?", bucketID).
			Update("questions", datatypes.JSON(merged)).Error; err != nil {
			return fmt.Errorf("failed to append questions: %w", err)
		}

		cache.InvalidateBucketCache(ctx, r.cacheManager, bucketID, bucket.Subcategory)
		return nil
	})
}

// validateAnswerMembership enforces the write-time invariant that every
// entry's correct answer is one of its options.
func validateAnswerMembership(questions []models.BankQuestion) error {
	for i, question := range questions {
		options, err := models.NormalizeOptions(question.Options)
		if err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
		found := false
		for _, opt := range options {
			if opt == question.Answer {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("question %d: %w", i, repositories.ErrAnswerNotInOptions)
		}
	}
	return nil
}

func (r *QuestionBankPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}
