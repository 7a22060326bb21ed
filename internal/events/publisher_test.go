package events

import (
	"context"
	"log/slog"
	"os"
	"testing"
)

func TestMockEventPublisher_EnvelopeStructure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	publisher := NewMockEventPublisher(logger)
	ctx := context.Background()

	err := publisher.Publish(ctx, TypeSessionCreated, SessionCreatedEvent{
		QuizID:    "quiz-1",
		StudentID: "student-1",
		TimeLeft:  1800,
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	published := publisher.GetPublishedEvents()
	if len(published) != 1 {
		t.Fatalf("expected 1 event, got %d", len(published))
	}

	event := published[0]
	if event.ID == "" {
		t.Error("event ID should not be empty")
	}
	if event.Type != TypeSessionCreated {
		t.Errorf("expected type %s, got %s", TypeSessionCreated, event.Type)
	}
	if event.Source != "quiz-session-service" {
		t.Errorf("expected source 'quiz-session-service', got %s", event.Source)
	}
	if event.Version != "1.0" {
		t.Errorf("expected version '1.0', got %s", event.Version)
	}
	if event.Timestamp.IsZero() {
		t.Error("event timestamp should not be zero")
	}

	publisher.ClearEvents()
	if len(publisher.GetPublishedEvents()) != 0 {
		t.Error("ClearEvents should drop everything")
	}
}
