package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Interview is one archived, finished interview.
type Interview struct {
	ID            string        `json:"id"`
	Mode          string        `json:"mode"`
	Subject       string        `json:"subject"`
	QuestionCount int           `json:"question_count"`
	FinalFeedback string        `json:"final_feedback"`
	StartedAt     time.Time     `json:"started_at"`
	EndedAt       time.Time     `json:"ended_at"`
	Exchanges     []ExchangeRow `json:"exchanges,omitempty"`
}

// ExchangeRow is one archived question/answer/feedback triple, ordered by
// Position within its interview.
type ExchangeRow struct {
	Position   int     `json:"position"`
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Feedback   string  `json:"feedback"`
	Score      float64 `json:"score"`
	IsFollowup bool    `json:"is_followup"`
}
