package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/quizforge/quiz-session-service/internal/events"
	"github.com/quizforge/quiz-session-service/internal/models"
	"github.com/quizforge/quiz-session-service/internal/validator"
)

func newTestBlockService(repo *fakeRepository, now *time.Time) (*blockService, *events.MockEventPublisher) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	publisher := events.NewMockEventPublisher(logger)
	return &blockService{
		repo:      repo,
		logger:    logger,
		validator: validator.New(),
		publisher: publisher,
		now:       func() time.Time { return *now },
	}, publisher
}

func seedQuiz(repo *fakeRepository, publicID string) *models.Quiz {
	quiz := &models.Quiz{PublicID: publicID, Title: "Test Quiz", TimeLimit: 30}
	if err := repo.quiz.Create(context.Background(), nil, quiz); err != nil {
		panic(err)
	}
	return quiz
}

func TestBlockService_TriggerAndCheck(t *testing.T) {
	repo := newFakeRepository()
	seedQuiz(repo, "quiz-1")
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	service, publisher := newTestBlockService(repo, &now)
	ctx := context.Background()

	status, err := service.TriggerBlock(ctx, "quiz-1", "student-1", 30)
	if err != nil {
		t.Fatalf("TriggerBlock failed: %v", err)
	}
	if !status.Blocked || status.RemainingSeconds != 30 {
		t.Errorf("expected 30s block, got %+v", status)
	}

	checked, err := service.CheckBlock(ctx, "quiz-1", "student-1")
	if err != nil {
		t.Fatalf("CheckBlock failed: %v", err)
	}
	if !checked.Blocked {
		t.Error("expected student to be blocked")
	}

	other, err := service.CheckBlock(ctx, "quiz-1", "student-2")
	if err != nil {
		t.Fatalf("CheckBlock failed: %v", err)
	}
	if other.Blocked {
		t.Error("unrelated student should not be blocked")
	}

	published := publisher.GetPublishedEvents()
	if len(published) != 1 || published[0].Type != events.TypeSessionBlocked {
		t.Errorf("expected one %s event, got %+v", events.TypeSessionBlocked, published)
	}
}

func TestBlockService_TriggerIsIdempotent(t *testing.T) {
	repo := newFakeRepository()
	seedQuiz(repo, "quiz-1")
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	service, publisher := newTestBlockService(repo, &now)
	ctx := context.Background()

	first, err := service.TriggerBlock(ctx, "quiz-1", "student-1", 60)
	if err != nil {
		t.Fatalf("TriggerBlock failed: %v", err)
	}

	// 20 seconds later a second trigger must not renew or stack.
	now = now.Add(20 * time.Second)
	second, err := service.TriggerBlock(ctx, "quiz-1", "student-1", 60)
	if err != nil {
		t.Fatalf("second TriggerBlock failed: %v", err)
	}

	if !second.ExpiresAt.Equal(first.ExpiresAt) {
		t.Errorf("expiry renewed: %v vs %v", second.ExpiresAt, first.ExpiresAt)
	}
	if second.RemainingSeconds != 40 {
		t.Errorf("expected 40s remaining, got %d", second.RemainingSeconds)
	}

	entries, err := repo.quiz.quizzes["quiz-1"].DecodeBlockList()
	if err != nil {
		t.Fatalf("DecodeBlockList failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected a single block entry, got %d", len(entries))
	}

	if got := len(publisher.GetPublishedEvents()); got != 1 {
		t.Errorf("idempotent retrigger must not publish again, got %d events", got)
	}
}

func TestBlockService_ExpiryFilteredAndPersisted(t *testing.T) {
	repo := newFakeRepository()
	seedQuiz(repo, "quiz-1")
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	service, _ := newTestBlockService(repo, &now)
	ctx := context.Background()

	if _, err := service.TriggerBlock(ctx, "quiz-1", "student-1", 30); err != nil {
		t.Fatalf("TriggerBlock failed: %v", err)
	}

	now = now.Add(31 * time.Second)

	status, err := service.CheckBlock(ctx, "quiz-1", "student-1")
	if err != nil {
		t.Fatalf("CheckBlock failed: %v", err)
	}
	if status.Blocked {
		t.Error("expired block still reported active")
	}

	entries, err := repo.quiz.quizzes["quiz-1"].DecodeBlockList()
	if err != nil {
		t.Fatalf("DecodeBlockList failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expired entry not cleaned up, %d entries remain", len(entries))
	}
}

func TestBlockService_ReblockAfterExpiry(t *testing.T) {
	repo := newFakeRepository()
	seedQuiz(repo, "quiz-1")
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	service, _ := newTestBlockService(repo, &now)
	ctx := context.Background()

	if _, err := service.TriggerBlock(ctx, "quiz-1", "student-1", 30); err != nil {
		t.Fatalf("TriggerBlock failed: %v", err)
	}

	now = now.Add(time.Minute)

	status, err := service.TriggerBlock(ctx, "quiz-1", "student-1", 45)
	if err != nil {
		t.Fatalf("re-trigger after expiry failed: %v", err)
	}
	if status.RemainingSeconds != 45 {
		t.Errorf("expected fresh 45s block, got %d", status.RemainingSeconds)
	}

	entries, _ := repo.quiz.quizzes["quiz-1"].DecodeBlockList()
	if len(entries) != 1 {
		t.Errorf("expected single fresh entry, got %d", len(entries))
	}
	if !entries[0].CreatedAt.Equal(now) {
		t.Errorf("fresh entry should carry the new creation time")
	}
}

func TestBlockService_QuizNotFound(t *testing.T) {
	repo := newFakeRepository()
	now := time.Now()
	service, _ := newTestBlockService(repo, &now)

	_, err := service.TriggerBlock(context.Background(), "missing", "student-1", 30)
	if !errors.Is(err, ErrQuizNotFound) {
		t.Errorf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestBlockService_DurationValidation(t *testing.T) {
	repo := newFakeRepository()
	seedQuiz(repo, "quiz-1")
	now := time.Now()
	service, _ := newTestBlockService(repo, &now)

	for _, duration := range []int{0, -5, 100000} {
		if _, err := service.TriggerBlock(context.Background(), "quiz-1", "student-1", duration); err == nil {
			t.Errorf("duration %d should be rejected", duration)
		}
	}
}
