package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// AssignedQuestion is the per-student locked-in copy of a bank question.
// ID is a digest of subcategory + prompt; it deliberately ignores the image
// reference and options, so two image questions sharing an empty prompt in
// one subcategory would collide. Changing the digest input would invalidate
// every persisted question map, so the shape is kept as-is.
type AssignedQuestion struct {
	ID          string       `json:"id"`
	Subcategory string       `json:"subcategory"`
	Prompt      string       `json:"prompt"`
	Options     []string     `json:"options"`
	Answer      string       `json:"answer"` // server-side only, stripped from client views
	Image       *string      `json:"image,omitempty"`
	Description *string      `json:"description,omitempty"`
	Kind        QuestionKind `json:"kind"`
}

// SessionProgress is the single mutable row per (student, quiz) pair.
// The composite unique index backs the atomic get-or-create.
type SessionProgress struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	QuizID    uint   `json:"quiz_id" gorm:"not null;uniqueIndex:idx_student_quiz"`
	StudentID string `json:"student_id" gorm:"not null;uniqueIndex:idx_student_quiz;size:255"`

	Position  int  `json:"position"`
	TimeLeft  int  `json:"time_left"` // seconds
	Completed bool `json:"completed"`

	// Populated exactly once on first fetch, then reused verbatim.
	QuestionMap datatypes.JSON `json:"question_map" gorm:"type:jsonb"` // map[questionID]AssignedQuestion

	// questionID -> selected option. Written by the submission flow.
	Answers datatypes.JSON `json:"answers" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Quiz Quiz `json:"-" gorm:"foreignKey:QuizID"`
}

// DecodeQuestionMap unmarshals the locked-in question map. An empty column
// means assignment has not happened yet.
func (p *SessionProgress) DecodeQuestionMap() (map[string]AssignedQuestion, error) {
	if len(p.QuestionMap) == 0 {
		return nil, nil
	}
	var questionMap map[string]AssignedQuestion
	if err := json.Unmarshal(p.QuestionMap, &questionMap); err != nil {
		return nil, fmt.Errorf("failed to decode question map: %w", err)
	}
	return questionMap, nil
}

// HasQuestionMap reports whether the question map has been persisted.
func (p *SessionProgress) HasQuestionMap() bool {
	return len(p.QuestionMap) > 0 && string(p.QuestionMap) != "null" && string(p.QuestionMap) != "{}"
}

// DecodeAnswers unmarshals the submitted answers column.
func (p *SessionProgress) DecodeAnswers() (map[string]string, error) {
	if len(p.Answers) == 0 {
		return nil, nil
	}
	var answers map[string]string
	if err := json.Unmarshal(p.Answers, &answers); err != nil {
		return nil, fmt.Errorf("failed to decode answers: %w", err)
	}
	return answers, nil
}
