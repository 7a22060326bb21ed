package services

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/quizforge/quiz-session-service/internal/models"
)

func TestBuildPool_DeduplicatesTextQuestions(t *testing.T) {
	bank := &fakeBankRepo{}
	bank.addBucket("math", "algebra", []models.BankQuestion{
		textQuestion("2+2?", []string{"3", "4"}, "4"),
		textQuestion("2+2?", []string{"3", "4"}, "4"), // duplicate
		textQuestion("3+3?", []string{"5", "6"}, "6"),
	})
	// Same subcategory under a different category still feeds the pool.
	bank.addBucket("science", "algebra", []models.BankQuestion{
		textQuestion("2+2?", []string{"3", "4"}, "4"), // cross-bucket duplicate
		textQuestion("5+5?", []string{"10", "11"}, "10"),
	})

	pool, err := BuildPool(context.Background(), bank, "algebra")
	if err != nil {
		t.Fatalf("BuildPool failed: %v", err)
	}

	if len(pool) != 3 {
		t.Fatalf("expected 3 deduplicated questions, got %d", len(pool))
	}
	// First occurrence wins: the math-bucket copy of "2+2?" survives.
	if pool[0].Prompt != "2+2?" || pool[0].Category != "math" {
		t.Errorf("expected first occurrence from math bucket, got %+v", pool[0])
	}
}

func TestBuildPool_SamePromptDifferentOptionsKept(t *testing.T) {
	bank := &fakeBankRepo{}
	bank.addBucket("math", "algebra", []models.BankQuestion{
		textQuestion("2+2?", []string{"3", "4"}, "4"),
		textQuestion("2+2?", []string{"4", "5"}, "4"),
	})

	pool, err := BuildPool(context.Background(), bank, "algebra")
	if err != nil {
		t.Fatalf("BuildPool failed: %v", err)
	}
	if len(pool) != 2 {
		t.Errorf("distinct option lists should not be deduplicated, got %d", len(pool))
	}
}

func TestBuildPool_ImageIdentity(t *testing.T) {
	img1 := "diagrams/1.png"
	img2 := "diagrams/2.png"
	question := func(image string) models.BankQuestion {
		raw, _ := json.Marshal([]string{"A", "B"})
		return models.BankQuestion{
			Options: json.RawMessage(raw),
			Answer:  "A",
			Image:   &image,
			Kind:    models.KindImage,
		}
	}

	bank := &fakeBankRepo{}
	bank.addBucket("geometry", "shapes", []models.BankQuestion{
		question(img1),
		question(img1), // duplicate by image ref
		question(img2),
	})

	pool, err := BuildPool(context.Background(), bank, "shapes")
	if err != nil {
		t.Fatalf("BuildPool failed: %v", err)
	}
	if len(pool) != 2 {
		t.Errorf("expected 2 image questions after dedup, got %d", len(pool))
	}
}

func TestBuildPool_NormalizesDelimitedOptions(t *testing.T) {
	raw, _ := json.Marshal("yes, no ,  maybe ,")
	bank := &fakeBankRepo{}
	bank.addBucket("general", "trivia", []models.BankQuestion{
		{Prompt: "Sure?", Options: json.RawMessage(raw), Answer: "yes", Kind: models.KindText},
	})

	pool, err := BuildPool(context.Background(), bank, "trivia")
	if err != nil {
		t.Fatalf("BuildPool failed: %v", err)
	}
	if len(pool) != 1 {
		t.Fatalf("expected 1 question, got %d", len(pool))
	}

	want := []string{"yes", "no", "maybe"}
	if !reflect.DeepEqual(pool[0].Options, want) {
		t.Errorf("expected normalized options %v, got %v", want, pool[0].Options)
	}
}

func TestBuildPool_EmptySubcategoryIsValid(t *testing.T) {
	bank := &fakeBankRepo{}
	bank.addBucket("math", "algebra", []models.BankQuestion{
		textQuestion("2+2?", []string{"3", "4"}, "4"),
	})

	pool, err := BuildPool(context.Background(), bank, "geometry")
	if err != nil {
		t.Fatalf("empty subcategory should not fail: %v", err)
	}
	if len(pool) != 0 {
		t.Errorf("expected empty pool, got %d questions", len(pool))
	}
}
