package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/quizforge/quiz-session-service/internal/models"
	"github.com/quizforge/quiz-session-service/internal/repositories"
)

// SubcategoryAssignment is one ordered group of the per-student assignment.
type SubcategoryAssignment struct {
	Subcategory string
	Requested   int
	Questions   []models.AssignedQuestion
}

// AssignmentResult is the outcome of one deterministic assignment run.
// Groups preserves selection order; QuestionMap is the flat side-table the
// progress store locks in.
type AssignmentResult struct {
	Groups      []SubcategoryAssignment
	QuestionMap map[string]models.AssignedQuestion
	Total       int
}

// Shortfalls lists subcategories that could not fully satisfy their
// requested count, for diagnostics.
func (r *AssignmentResult) Shortfalls() map[string]int {
	shortfalls := make(map[string]int)
	for _, group := range r.Groups {
		if len(group.Questions) < group.Requested {
			shortfalls[group.Subcategory] = group.Requested - len(group.Questions)
		}
	}
	return shortfalls
}

// Assign computes the fixed question subset for a (quiz, student) pair. The
// permutation seed is quizID + "_" + studentID, so the same pair always
// reproduces the same assignment and either value changing changes the
// permutation. Empty subcategory pools are skipped, not fatal; the caller
// checks Total before persisting anything.
func Assign(ctx context.Context, bank repositories.QuestionBankRepository, quizID, studentID string, selections []models.QuizSelection) (*AssignmentResult, error) {
	seed := quizID + "_" + studentID

	result := &AssignmentResult{
		QuestionMap: make(map[string]models.AssignedQuestion),
	}

	for _, selection := range selections {
		pool, err := BuildPool(ctx, bank, selection.Subcategory)
		if err != nil {
			return nil, err
		}

		group := SubcategoryAssignment{
			Subcategory: selection.Subcategory,
			Requested:   selection.QuestionCount,
		}

		if len(pool) > 0 {
			shuffled := Shuffle(pool, seed)
			count := selection.QuestionCount
			if count > len(shuffled) {
				count = len(shuffled) // partial fulfillment
			}
			for _, question := range shuffled[:count] {
				assigned := models.AssignedQuestion{
					ID:          QuestionID(question.Subcategory, question.Prompt),
					Subcategory: question.Subcategory,
					Prompt:      question.Prompt,
					Options:     question.Options,
					Answer:      question.Answer,
					Image:       question.Image,
					Description: question.Description,
					Kind:        question.Kind,
				}
				group.Questions = append(group.Questions, assigned)
				result.QuestionMap[assigned.ID] = assigned
			}
		}

		result.Groups = append(result.Groups, group)
		result.Total += len(group.Questions)
	}

	return result, nil
}

// QuestionID derives the stable identifier of an assigned question: the
// SHA-256 digest of subcategory and prompt concatenated with no separator.
// Image reference and options are not part of the input, so two distinct
// image questions with empty prompts in one subcategory collide. The shape
// is load-bearing for persisted question maps and must not change quietly.
func QuestionID(subcategory, prompt string) string {
	sum := sha256.Sum256([]byte(subcategory + prompt))
	return hex.EncodeToString(sum[:])
}
