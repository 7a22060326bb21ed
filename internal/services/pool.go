package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/quizforge/quiz-session-service/internal/models"
	"github.com/quizforge/quiz-session-service/internal/repositories"
)

// PoolQuestion is a bank question with its options already normalized and
// its owning bucket's categorization attached. Everything downstream of the
// pool builder works with this shape only.
type PoolQuestion struct {
	Category    string
	Subcategory string
	Prompt      string
	Options     []string
	Answer      string
	Image       *string
	Description *string
	Kind        models.QuestionKind
}

// BuildPool collects every question from buckets matching the subcategory
// (category is deliberately not filtered here), normalizes options, and
// deduplicates. An empty result is valid: it means no content exists for the
// subcategory, and callers decide how to surface that.
func BuildPool(ctx context.Context, bank repositories.QuestionBankRepository, subcategory string) ([]PoolQuestion, error) {
	buckets, err := bank.ListBucketsBySubcategory(ctx, nil, subcategory)
	if err != nil {
		return nil, fmt.Errorf("failed to load buckets for %q: %w", subcategory, err)
	}

	var pool []PoolQuestion
	seen := make(map[string]struct{})

	for _, bucket := range buckets {
		questions, err := bucket.DecodeQuestions()
		if err != nil {
			return nil, err
		}
		for _, question := range questions {
			options, err := models.NormalizeOptions(question.Options)
			if err != nil {
				return nil, fmt.Errorf("bucket %d: %w", bucket.ID, err)
			}

			key := identityKey(question, options)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			pool = append(pool, PoolQuestion{
				Category:    bucket.Category,
				Subcategory: bucket.Subcategory,
				Prompt:      question.Prompt,
				Options:     options,
				Answer:      question.Answer,
				Image:       question.Image,
				Description: question.Description,
				Kind:        question.Kind,
			})
		}
	}

	return pool, nil
}

// identityKey computes the dedup key: image questions are identified by
// their image reference, text questions by their prompt, both combined with
// the serialized option list. First occurrence wins.
func identityKey(question models.BankQuestion, options []string) string {
	serialized := strings.Join(options, "\x1f")
	if question.Kind == models.KindImage {
		image := ""
		if question.Image != nil {
			image = *question.Image
		}
		return "img\x1e" + image + "\x1e" + serialized
	}
	return "txt\x1e" + question.Prompt + "\x1e" + serialized
}
