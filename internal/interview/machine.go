package interview

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Judgement is the evaluation gateway's verdict on one answer.
type Judgement struct {
	Feedback      string
	NeedsFollowup bool
	Score         float64
	Strengths     []string
	Weaknesses    []string
}

// Evaluator scores answers and produces the closing summary. Implemented by
// the evaluation gateway; calls may block on external I/O and must honor ctx.
type Evaluator interface {
	Evaluate(ctx context.Context, mode Mode, subject string, history []Exchange, question, answer string) (Judgement, error)
	Summarize(ctx context.Context, mode Mode, subject string, history []Exchange) (string, error)
}

// QuestionBank builds interview questions. InitialQuestion must always
// return a non-empty question; the other two may fail when their generative
// backend is unavailable.
type QuestionBank interface {
	InitialQuestion(ctx context.Context, mode Mode, subject string) string
	FollowupQuestion(ctx context.Context, last Exchange, weaknesses []string) (string, error)
	NextMainQuestion(ctx context.Context, mode Mode, subject string, history []Exchange) (string, error)
}

// Record is a finalized interview handed to the archiver.
type Record struct {
	SessionID     string
	Mode          Mode
	Subject       string
	QuestionCount int
	Exchanges     []Exchange
	FinalFeedback string
	StartedAt     time.Time
	EndedAt       time.Time
}

// Archiver persists finalized interviews. Archive failures are logged, not
// surfaced: ending a session must always succeed.
type Archiver interface {
	Archive(ctx context.Context, rec Record) error
}

// Machine drives interview sessions through their lifecycle. It owns the
// decision logic: question counting, follow-up gating, termination, and
// final-feedback aggregation.
type Machine struct {
	registry     *Registry
	evaluator    Evaluator
	bank         QuestionBank
	archiver     Archiver // optional
	maxQuestions int
	logger       *slog.Logger
}

// NewMachine creates a Machine. archiver may be nil. If maxQuestions <= 0
// it defaults to 10.
func NewMachine(registry *Registry, evaluator Evaluator, bank QuestionBank, archiver Archiver, maxQuestions int) *Machine {
	if maxQuestions <= 0 {
		maxQuestions = 10
	}
	return &Machine{
		registry:     registry,
		evaluator:    evaluator,
		bank:         bank,
		archiver:     archiver,
		maxQuestions: maxQuestions,
		logger:       slog.Default(),
	}
}

// MaxQuestions returns the configured main-question budget.
func (m *Machine) MaxQuestions() int { return m.maxQuestions }

// StartResult is returned by Start.
type StartResult struct {
	SessionID     string
	FirstQuestion string
}

// Start validates the mode, obtains the opening question, and registers a
// new active session.
func (m *Machine) Start(ctx context.Context, modeStr, subject, id string) (StartResult, error) {
	mode, err := ParseMode(modeStr)
	if err != nil {
		return StartResult{}, err
	}

	first := m.bank.InitialQuestion(ctx, mode, subject)

	s, err := m.registry.create(id, mode, subject, first)
	if err != nil {
		return StartResult{}, err
	}

	m.logger.Info("interview started", "session_id", s.ID, "mode", mode)
	return StartResult{SessionID: s.ID, FirstQuestion: first}, nil
}

// AnswerResult is returned by SubmitAnswer. IsFollowup describes
// NextQuestion, not the answer that was just evaluated.
type AnswerResult struct {
	Feedback          string
	Score             float64
	NextQuestion      string
	IsFollowup        bool
	InterviewComplete bool
	FinalFeedback     string
}

// SubmitAnswer runs one answer through the full transition: evaluate,
// commit the exchange, then either issue a follow-up, advance to the next
// main question, or terminate when the question budget is spent.
//
// All external calls happen before anything is committed. If the evaluation
// gateway (or question generation, which rides on the same backend) fails,
// the session is left exactly as it was and the caller may retry.
func (m *Machine) SubmitAnswer(ctx context.Context, sessionID, answer string) (AnswerResult, error) {
	s, err := m.registry.Get(sessionID)
	if err != nil {
		return AnswerResult{}, err
	}

	if !s.transitionMu.TryLock() {
		return AnswerResult{}, ErrSessionBusy
	}
	defer s.transitionMu.Unlock()

	snap := s.Snapshot()
	if snap.Status != StatusActive {
		return AnswerResult{}, ErrSessionClosed
	}

	judgement, err := m.evaluator.Evaluate(ctx, s.Mode, s.Subject, snap.Exchanges, snap.CurrentQuestion, answer)
	if err != nil {
		return AnswerResult{}, fmt.Errorf("%w: %v", ErrEvaluationUnavailable, err)
	}

	exchange := Exchange{
		Question:   snap.CurrentQuestion,
		Answer:     answer,
		Feedback:   judgement.Feedback,
		Score:      judgement.Score,
		IsFollowup: snap.PendingFollowup,
	}
	committed := append(snap.Exchanges, exchange)

	// The evaluator's follow-up request is honored at most once per main
	// question; a second request is downgraded to advancing.
	issueFollowup := judgement.NeedsFollowup && !snap.FollowupUsed

	var nextQuestion string
	var terminate bool
	var finalFeedback string

	switch {
	case issueFollowup:
		nextQuestion, err = m.bank.FollowupQuestion(ctx, exchange, judgement.Weaknesses)
		if err != nil {
			return AnswerResult{}, fmt.Errorf("%w: generating follow-up: %v", ErrEvaluationUnavailable, err)
		}

	case snap.QuestionCount+1 >= m.maxQuestions:
		terminate = true
		finalFeedback = m.summarize(ctx, s.Mode, s.Subject, committed)

	default:
		nextQuestion, err = m.bank.NextMainQuestion(ctx, s.Mode, s.Subject, committed)
		if err != nil {
			return AnswerResult{}, fmt.Errorf("%w: generating next question: %v", ErrEvaluationUnavailable, err)
		}
	}

	// Commit. The session may have been ended explicitly while the
	// gateway calls were in flight; in that case the late result is
	// discarded and nothing is mutated.
	s.mu.Lock()
	if s.status != StatusActive {
		s.mu.Unlock()
		return AnswerResult{}, ErrSessionClosed
	}

	s.exchanges = append(s.exchanges, exchange)

	switch {
	case issueFollowup:
		s.currentQuestion = nextQuestion
		s.pendingFollowup = true
		s.followupUsed = true

	case terminate:
		s.questionCount++
		s.currentQuestion = ""
		s.pendingFollowup = false
		s.status = StatusEnded
		s.finalFeedback = finalFeedback
		s.endedAt = time.Now().UTC()

	default:
		s.questionCount++
		s.currentQuestion = nextQuestion
		s.pendingFollowup = false
		s.followupUsed = false
	}
	s.mu.Unlock()

	if terminate {
		m.archive(ctx, s)
		m.logger.Info("interview complete", "session_id", s.ID, "questions", m.maxQuestions)
		return AnswerResult{
			Feedback:          judgement.Feedback,
			Score:             judgement.Score,
			InterviewComplete: true,
			FinalFeedback:     finalFeedback,
		}, nil
	}

	return AnswerResult{
		Feedback:     judgement.Feedback,
		Score:        judgement.Score,
		NextQuestion: nextQuestion,
		IsFollowup:   issueFollowup,
	}, nil
}

// EndResult is returned by End.
type EndResult struct {
	FinalFeedback  string
	TotalQuestions int
}

// End terminates the session regardless of progress and returns the final
// feedback. Ending an already-ended session returns the stored feedback
// without calling the evaluation gateway again.
//
// End does not wait for an in-flight answer transition: the Ended status is
// published first, so a late evaluation result is discarded at commit time.
func (m *Machine) End(ctx context.Context, sessionID string) (EndResult, error) {
	s, err := m.registry.Get(sessionID)
	if err != nil {
		return EndResult{}, err
	}

	s.endMu.Lock()
	defer s.endMu.Unlock()

	s.mu.Lock()
	if s.status == StatusEnded {
		res := EndResult{FinalFeedback: s.finalFeedback, TotalQuestions: s.questionCount}
		s.mu.Unlock()
		return res, nil
	}
	s.status = StatusEnded
	s.currentQuestion = ""
	s.pendingFollowup = false
	s.endedAt = time.Now().UTC()
	history := make([]Exchange, len(s.exchanges))
	copy(history, s.exchanges)
	count := s.questionCount
	s.mu.Unlock()

	feedback := m.summarize(ctx, s.Mode, s.Subject, history)

	s.mu.Lock()
	s.finalFeedback = feedback
	s.mu.Unlock()

	m.archive(ctx, s)
	m.logger.Info("interview ended", "session_id", s.ID, "questions", count)
	return EndResult{FinalFeedback: feedback, TotalQuestions: count}, nil
}

// summarize asks the evaluation gateway for the overall assessment, falling
// back to a locally built summary so termination never fails outward.
func (m *Machine) summarize(ctx context.Context, mode Mode, subject string, history []Exchange) string {
	feedback, err := m.evaluator.Summarize(ctx, mode, subject, history)
	if err == nil && strings.TrimSpace(feedback) != "" {
		return feedback
	}
	if err != nil {
		m.logger.Warn("summary generation failed, using fallback", "error", err)
	}
	return fallbackSummary(history)
}

// fallbackSummary stitches per-exchange feedback into a closing summary.
func fallbackSummary(history []Exchange) string {
	if len(history) == 0 {
		return "The interview ended before any answers were given."
	}

	var sb strings.Builder
	sb.WriteString("Interview summary:\n")
	var total float64
	for i, ex := range history {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, ex.Question)
		if ex.Feedback != "" {
			fmt.Fprintf(&sb, "   %s\n", ex.Feedback)
		}
		total += ex.Score
	}
	fmt.Fprintf(&sb, "Average score: %.2f across %d answers.", total/float64(len(history)), len(history))
	return sb.String()
}

func (m *Machine) archive(ctx context.Context, s *Session) {
	if m.archiver == nil {
		return
	}

	snap := s.Snapshot()
	rec := Record{
		SessionID:     snap.ID,
		Mode:          snap.Mode,
		Subject:       s.Subject,
		QuestionCount: snap.QuestionCount,
		Exchanges:     snap.Exchanges,
		FinalFeedback: snap.FinalFeedback,
		StartedAt:     snap.CreatedAt,
		EndedAt:       snap.EndedAt,
	}
	if err := m.archiver.Archive(ctx, rec); err != nil {
		m.logger.Warn("archiving interview failed", "session_id", snap.ID, "error", err)
	}
}

// Status returns the session's observable state.
func (m *Machine) Status(sessionID string) (Snapshot, error) {
	s, err := m.registry.Get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Snapshot(), nil
}
