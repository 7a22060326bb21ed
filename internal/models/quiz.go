package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// QuizSelection is one (subcategory, requested count) pair of a quiz's
// selection requirements. Order is significant: assignment groups are
// returned in selection order.
type QuizSelection struct {
	Subcategory   string `json:"subcategory" validate:"required,max=200"`
	QuestionCount int    `json:"question_count" validate:"required,min=1"`
}

type Quiz struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	PublicID string `json:"public_id" gorm:"not null;uniqueIndex;size:64"`

	Title    string `json:"title" gorm:"not null;size:200" validate:"required,max=200"`
	Category string `json:"category" gorm:"size:200;index"`

	// Selection requirements and time limit (minutes)
	Selections datatypes.JSON `json:"selections" gorm:"type:jsonb"` // []QuizSelection
	TimeLimit  int            `json:"time_limit" validate:"min=1"`

	// Per-quiz lockout entries, one active entry per student at most.
	// Expired entries are filtered lazily on every read path.
	BlockList datatypes.JSON `json:"-" gorm:"type:jsonb"` // []BlockEntry

	CreatedBy string    `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DecodeSelections unmarshals the JSONB selections column. A null or empty
// column yields an empty slice, not an error.
func (q *Quiz) DecodeSelections() ([]QuizSelection, error) {
	if len(q.Selections) == 0 {
		return nil, nil
	}
	var selections []QuizSelection
	if err := json.Unmarshal(q.Selections, &selections); err != nil {
		return nil, fmt.Errorf("failed to decode quiz selections: %w", err)
	}
	return selections, nil
}

// DecodeBlockList unmarshals the JSONB block list column.
func (q *Quiz) DecodeBlockList() ([]BlockEntry, error) {
	if len(q.BlockList) == 0 {
		return nil, nil
	}
	var entries []BlockEntry
	if err := json.Unmarshal(q.BlockList, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode quiz block list: %w", err)
	}
	return entries, nil
}

// BlockEntry is one lockout record inside a quiz's block list.
type BlockEntry struct {
	StudentID string    `json:"student_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Active reports whether the entry has not yet expired at the given instant.
func (b BlockEntry) Active(now time.Time) bool {
	return b.ExpiresAt.After(now)
}

// Remaining returns the whole seconds left until expiry, never negative.
func (b BlockEntry) Remaining(now time.Time) int {
	remaining := int(b.ExpiresAt.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}
