package interview

import (
	"fmt"
	"sync"
	"time"
)

// Mode selects what the interview questions are grounded on.
type Mode string

const (
	// ModeRole interviews for a named job role.
	ModeRole Mode = "role"
	// ModeResume interviews against the candidate's résumé text.
	ModeResume Mode = "resume"
)

// ParseMode validates a wire-format mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeRole, ModeResume:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Status is the session lifecycle state. A session starts Active and moves
// to Ended exactly once.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Exchange is one committed question/answer/feedback triple. Committed
// exchanges are immutable; the history is append-only.
type Exchange struct {
	Question   string
	Answer     string
	Feedback   string
	Score      float64
	IsFollowup bool
}

// Session holds the state of one interview. All mutable fields are guarded
// by mu and mutated only by Machine transitions.
type Session struct {
	ID        string
	Mode      Mode
	Subject   string
	CreatedAt time.Time

	// transitionMu admits at most one in-flight submit transition.
	// Acquired with TryLock; a losing caller gets ErrSessionBusy.
	transitionMu sync.Mutex

	// endMu serializes End so repeated end requests observe the stored
	// final feedback instead of recomputing it.
	endMu sync.Mutex

	mu              sync.Mutex
	status          Status
	questionCount   int
	exchanges       []Exchange
	currentQuestion string
	pendingFollowup bool
	followupUsed    bool
	finalFeedback   string
	endedAt         time.Time
}

// Snapshot is a read-only copy of a session's observable state.
type Snapshot struct {
	ID              string
	Mode            Mode
	Status          Status
	QuestionCount   int
	TotalExchanges  int
	CurrentQuestion string
	PendingFollowup bool
	FollowupUsed    bool
	FinalFeedback   string
	Exchanges       []Exchange
	CreatedAt       time.Time
	EndedAt         time.Time
}

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]Exchange, len(s.exchanges))
	copy(history, s.exchanges)

	return Snapshot{
		ID:              s.ID,
		Mode:            s.Mode,
		Status:          s.status,
		QuestionCount:   s.questionCount,
		TotalExchanges:  len(s.exchanges),
		CurrentQuestion: s.currentQuestion,
		PendingFollowup: s.pendingFollowup,
		FollowupUsed:    s.followupUsed,
		FinalFeedback:   s.finalFeedback,
		Exchanges:       history,
		CreatedAt:       s.CreatedAt,
		EndedAt:         s.endedAt,
	}
}

// Active reports whether the session still accepts answers.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusActive
}
