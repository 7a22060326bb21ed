package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type QuestionKind string

const (
	KindText  QuestionKind = "text"
	KindImage QuestionKind = "image"
)

// QuestionBucket groups bank questions under a (category, subcategory) pair.
// Buckets are append-only: questions are never edited in place.
type QuestionBucket struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	Category    string `json:"category" gorm:"not null;size:200;index"`
	Subcategory string `json:"subcategory" gorm:"not null;size:200;index"`

	Questions datatypes.JSON `json:"questions" gorm:"type:jsonb"` // []BankQuestion

	CreatedBy string    `json:"created_by" gorm:"index;size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DecodeQuestions unmarshals the JSONB questions column.
func (b *QuestionBucket) DecodeQuestions() ([]BankQuestion, error) {
	if len(b.Questions) == 0 {
		return nil, nil
	}
	var questions []BankQuestion
	if err := json.Unmarshal(b.Questions, &questions); err != nil {
		return nil, fmt.Errorf("failed to decode bucket questions: %w", err)
	}
	return questions, nil
}

// BankQuestion is one immutable entry of a question bucket. Prompt may be
// empty for image questions. Options is kept raw because legacy ingestion
// wrote either a JSON string array or a single comma-delimited string; it is
// normalized exactly once at the pool-builder boundary.
type BankQuestion struct {
	Prompt      string          `json:"prompt"`
	Options     json.RawMessage `json:"options"`
	Answer      string          `json:"answer"`
	Image       *string         `json:"image,omitempty"`
	Description *string         `json:"description,omitempty"`
	Kind        QuestionKind    `json:"kind"`
}
