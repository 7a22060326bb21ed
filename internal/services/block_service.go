package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"

	"github.com/quizforge/quiz-session-service/internal/events"
	"github.com/quizforge/quiz-session-service/internal/models"
	"github.com/quizforge/quiz-session-service/internal/repositories"
	"github.com/quizforge/quiz-session-service/internal/validator"
)

type blockService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.Publisher
	now       func() time.Time
}

func NewBlockService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.Publisher) BlockService {
	return &blockService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		now:       time.Now,
	}
}

// TriggerBlock appends a lockout entry, unless one is already active for the
// student: that entry is returned unchanged, so repeated triggers never
// renew or stack lockouts. The expiry filter runs and persists inside the
// same transaction, keeping the list from growing without bound.
func (s *blockService) TriggerBlock(ctx context.Context, quizPublicID, studentID string, durationSeconds int) (*BlockStatus, error) {
	s.logger.Info("Triggering block",
		"quiz_id", quizPublicID,
		"student_id", studentID,
		"duration_seconds", durationSeconds)

	if err := s.validator.Validate(&TriggerBlockRequest{DurationSeconds: durationSeconds}); err != nil {
		return nil, err
	}

	var status *BlockStatus
	var created bool

	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		quiz, err := txRepo.Quiz().GetByPublicIDForUpdate(ctx, nil, quizPublicID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrQuizNotFound
			}
			return fmt.Errorf("failed to get quiz: %w", err)
		}

		entries, err := quiz.DecodeBlockList()
		if err != nil {
			return err
		}

		now := s.now()
		active, expired := partitionBlockEntries(entries, now)

		if existing, ok := findBlockEntry(active, studentID); ok {
			status = &BlockStatus{
				Blocked:          true,
				RemainingSeconds: existing.Remaining(now),
				ExpiresAt:        existing.ExpiresAt,
			}
			if len(expired) > 0 {
				return persistBlockList(ctx, txRepo, quiz, active)
			}
			return nil
		}

		entry := models.BlockEntry{
			StudentID: studentID,
			CreatedAt: now,
			ExpiresAt: now.Add(time.Duration(durationSeconds) * time.Second),
		}
		active = append(active, entry)

		if err := persistBlockList(ctx, txRepo, quiz, active); err != nil {
			return err
		}

		status = &BlockStatus{
			Blocked:          true,
			RemainingSeconds: durationSeconds,
			ExpiresAt:        entry.ExpiresAt,
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.publishBlocked(ctx, quizPublicID, studentID, durationSeconds, status.ExpiresAt)
	}

	return status, nil
}

// CheckBlock reports the student's lockout state. Every read path performs
// the same expiry filter; observed expired entries are persisted away as a
// side effect of the check.
func (s *blockService) CheckBlock(ctx context.Context, quizPublicID, studentID string) (*BlockStatus, error) {
	var status *BlockStatus

	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		quiz, err := txRepo.Quiz().GetByPublicIDForUpdate(ctx, nil, quizPublicID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrQuizNotFound
			}
			return fmt.Errorf("failed to get quiz: %w", err)
		}

		entries, err := quiz.DecodeBlockList()
		if err != nil {
			return err
		}

		now := s.now()
		active, expired := partitionBlockEntries(entries, now)

		if len(expired) > 0 {
			if err := persistBlockList(ctx, txRepo, quiz, active); err != nil {
				return err
			}
		}

		if entry, ok := findBlockEntry(active, studentID); ok {
			status = &BlockStatus{
				Blocked:          true,
				RemainingSeconds: entry.Remaining(now),
				ExpiresAt:        entry.ExpiresAt,
			}
		} else {
			status = &BlockStatus{Blocked: false}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return status, nil
}

func (s *blockService) publishBlocked(ctx context.Context, quizPublicID, studentID string, durationSeconds int, expiresAt time.Time) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.TypeSessionBlocked, events.SessionBlockedEvent{
		QuizID:          quizPublicID,
		StudentID:       studentID,
		DurationSeconds: durationSeconds,
		ExpiresAtMs:     expiresAt.UnixMilli(),
	})
	if err != nil {
		s.logger.Error("Failed to publish block event",
			"quiz_id", quizPublicID,
			"student_id", studentID,
			"error", err)
	}
}

// partitionBlockEntries splits a block list into still-active and expired
// entries, preserving order. This is the single expiry filter every reader
// must apply; "expired" is derived state, never persisted.
func partitionBlockEntries(entries []models.BlockEntry, now time.Time) (active, expired []models.BlockEntry) {
	for _, entry := range entries {
		if entry.Active(now) {
			active = append(active, entry)
		} else {
			expired = append(expired, entry)
		}
	}
	return active, expired
}

func findBlockEntry(entries []models.BlockEntry, studentID string) (models.BlockEntry, bool) {
	for _, entry := range entries {
		if entry.StudentID == studentID {
			return entry, true
		}
	}
	return models.BlockEntry{}, false
}

func persistBlockList(ctx context.Context, repo repositories.Repository, quiz *models.Quiz, entries []models.BlockEntry) error {
	if entries == nil {
		entries = []models.BlockEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode block list: %w", err)
	}
	return repo.Quiz().UpdateBlockList(ctx, nil, quiz, datatypes.JSON(data))
}
