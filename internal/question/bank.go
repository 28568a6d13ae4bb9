package question

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Amaanudeen/ai-interview-bot/internal/gemini"
	"github.com/Amaanudeen/ai-interview-bot/internal/interview"
)

const (
	generationTimeout = 20 * time.Second

	// defaultOpener is used when the generative backend cannot produce an
	// opening question; create must always yield a non-empty one.
	defaultOpener = "Tell me about yourself."

	// historyWindow bounds how many recent exchanges are fed into the
	// next-question prompt.
	historyWindow = 3
)

// Generator is the interface for text generation. Satisfied by *gemini.Client.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, schema *gemini.Schema) (string, error)
}

// Bank builds interview questions with a generative backend. It implements
// interview.QuestionBank.
type Bank struct {
	client Generator
	model  string
	logger *slog.Logger
}

// NewBank creates a Bank using the given backend and model identifier.
func NewBank(client Generator, model string) *Bank {
	return &Bank{client: client, model: model, logger: slog.Default()}
}

// InitialQuestion returns the opening question for a new interview. It never
// returns an empty string: when generation fails the canned opener is used.
func (b *Bank) InitialQuestion(ctx context.Context, mode interview.Mode, subject string) string {
	ctx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()

	prompt := buildInitialPrompt(mode, subject)
	text, err := b.client.Generate(ctx, b.model, prompt, nil)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			b.logger.Warn("opening question generation failed, using default", "error", err)
		}
		return defaultOpener
	}
	return strings.TrimSpace(text)
}

// FollowupQuestion builds a probing follow-up grounded in the exchange just
// answered and the weaknesses the evaluator reported.
func (b *Bank) FollowupQuestion(ctx context.Context, last interview.Exchange, weaknesses []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString("Generate a follow-up interview question based on:\n\n")
	fmt.Fprintf(&sb, "Original question: %s\nAnswer: %s\n", last.Question, last.Answer)
	if len(weaknesses) > 0 {
		fmt.Fprintf(&sb, "Issues with the answer: %s\n", strings.Join(weaknesses, ", "))
	}
	sb.WriteString("\nReturn ONLY the follow-up question text.")

	text, err := b.client.Generate(ctx, b.model, sb.String(), nil)
	if err != nil {
		return "", fmt.Errorf("generating follow-up question: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("backend returned an empty follow-up question")
	}
	return text, nil
}

// NextMainQuestion generates the next main question, steering the backend
// away from questions already asked. A near-duplicate is accepted with a
// warning rather than failed: repetition is a quality risk, not an error.
func (b *Bank) NextMainQuestion(ctx context.Context, mode interview.Mode, subject string, history []interview.Exchange) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()

	prompt := buildNextPrompt(mode, subject, history)
	text, err := b.client.Generate(ctx, b.model, prompt, nil)
	if err != nil {
		return "", fmt.Errorf("generating next question: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("backend returned an empty question")
	}

	asked := make(map[string]struct{}, len(history))
	for _, ex := range history {
		asked[Fingerprint(ex.Question)] = struct{}{}
	}
	if _, dup := asked[Fingerprint(text)]; dup {
		b.logger.Warn("repeat question risk: generated question matches one already asked", "question", text)
	}

	return text, nil
}

func buildInitialPrompt(mode interview.Mode, subject string) string {
	var sb strings.Builder
	sb.WriteString("Generate the opening question for a technical interview.\n\n")
	writeSubject(&sb, mode, subject)
	sb.WriteString("\nReturn ONLY the question text.")
	return sb.String()
}

func buildNextPrompt(mode interview.Mode, subject string, history []interview.Exchange) string {
	var sb strings.Builder
	sb.WriteString("Generate the next technical interview question.\n\n")
	writeSubject(&sb, mode, subject)

	recent := history
	if len(recent) > historyWindow {
		recent = recent[len(recent)-historyWindow:]
	}
	if len(recent) > 0 {
		sb.WriteString("\nPrevious questions:\n")
		for _, ex := range recent {
			fmt.Fprintf(&sb, "Q: %s\nA: %s\n", ex.Question, ex.Answer)
		}
	}

	sb.WriteString("\nDo not repeat a question that was already asked. Return ONLY the question text.")
	return sb.String()
}

func writeSubject(sb *strings.Builder, mode interview.Mode, subject string) {
	if mode == interview.ModeResume {
		fmt.Fprintf(sb, "The questions are based on the candidate's résumé:\n%s\n", subject)
		return
	}
	fmt.Fprintf(sb, "The candidate is interviewing for the role: %s\n", subject)
}

// Fingerprint normalizes a question so near-identical phrasings collide.
// Lowercased, punctuation stripped, whitespace collapsed.
func Fingerprint(q string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(q) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ', r == '\t', r == '\n':
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
