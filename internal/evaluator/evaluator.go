package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Amaanudeen/ai-interview-bot/internal/gemini"
	"github.com/Amaanudeen/ai-interview-bot/internal/interview"
)

const evaluationTimeout = 30 * time.Second

// Generator is the interface for structured text generation. Satisfied by
// *gemini.Client.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, schema *gemini.Schema) (string, error)
}

// Evaluator scores interview answers and writes the closing assessment
// using a generative backend. It implements interview.Evaluator.
type Evaluator struct {
	client Generator
	model  string
}

// New creates an Evaluator using the given backend and model identifier.
// The model identifier is passed through opaquely.
func New(client Generator, model string) *Evaluator {
	return &Evaluator{client: client, model: model}
}

// judgementPayload mirrors the JSON the model is asked to produce.
type judgementPayload struct {
	Feedback      string   `json:"feedback"`
	NeedsFollowup bool     `json:"needs_followup"`
	Score         float64  `json:"score"`
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
}

// Evaluate scores one answer in the context of the interview so far.
func (e *Evaluator) Evaluate(ctx context.Context, mode interview.Mode, subject string, history []interview.Exchange, question, answer string) (interview.Judgement, error) {
	ctx, cancel := context.WithTimeout(ctx, evaluationTimeout)
	defer cancel()

	prompt := buildEvaluationPrompt(mode, subject, history, question, answer)

	raw, err := e.client.Generate(ctx, e.model, prompt, judgementSchema())
	if err != nil {
		return interview.Judgement{}, fmt.Errorf("evaluating answer: %w", err)
	}

	var payload judgementPayload
	if err := json.Unmarshal([]byte(StripFences(raw)), &payload); err != nil {
		return interview.Judgement{}, fmt.Errorf("decoding judgement: %w (response: %q)", err, raw)
	}

	if strings.TrimSpace(payload.Feedback) == "" {
		return interview.Judgement{}, fmt.Errorf("judgement missing feedback (response: %q)", raw)
	}

	return interview.Judgement{
		Feedback:      payload.Feedback,
		NeedsFollowup: payload.NeedsFollowup,
		Score:         payload.Score,
		Strengths:     payload.Strengths,
		Weaknesses:    payload.Weaknesses,
	}, nil
}

// Summarize produces the overall assessment of a finished interview.
func (e *Evaluator) Summarize(ctx context.Context, mode interview.Mode, subject string, history []interview.Exchange) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, evaluationTimeout)
	defer cancel()

	prompt := buildSummaryPrompt(mode, subject, history)

	text, err := e.client.Generate(ctx, e.model, prompt, nil)
	if err != nil {
		return "", fmt.Errorf("generating final feedback: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// judgementSchema returns the response schema for answer evaluation.
func judgementSchema() *gemini.Schema {
	return &gemini.Schema{
		Type: "object",
		Properties: map[string]gemini.SchemaProperty{
			"feedback":       {Type: "string", Description: "Detailed feedback on the answer"},
			"needs_followup": {Type: "boolean", Description: "Whether a probing follow-up question is warranted"},
			"score":          {Type: "number", Description: "Answer quality from 0.0 to 1.0"},
			"strengths":      {Type: "array", Items: &gemini.SchemaProperty{Type: "string"}},
			"weaknesses":     {Type: "array", Items: &gemini.SchemaProperty{Type: "string"}},
		},
		Required: []string{"feedback", "needs_followup", "score", "strengths", "weaknesses"},
	}
}

// StripFences removes a surrounding markdown code fence from a model
// response. Some models wrap JSON output in ```json fences even when a
// structured response was requested.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}
	return s
}

func describeSubject(mode interview.Mode, subject string) string {
	if mode == interview.ModeResume {
		return "The candidate's résumé:\n" + subject
	}
	return "The candidate is interviewing for the role: " + subject
}

func buildEvaluationPrompt(mode interview.Mode, subject string, history []interview.Exchange, question, answer string) string {
	var sb strings.Builder
	sb.WriteString("You are a technical interviewer. Evaluate this interview answer and return JSON.\n\n")
	fmt.Fprintf(&sb, "%s\n\n", describeSubject(mode, subject))

	if len(history) > 0 {
		sb.WriteString("Previous exchanges:\n")
		for _, ex := range history {
			fmt.Fprintf(&sb, "Q: %s\nA: %s\n", ex.Question, ex.Answer)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Question: %s\nAnswer: %s\n\n", question, answer)
	sb.WriteString(`Return JSON with fields:
- "feedback": detailed feedback on the answer
- "needs_followup": whether a probing follow-up is warranted
- "score": 0.0-1.0
- "strengths": list of strengths
- "weaknesses": list of weaknesses`)
	return sb.String()
}

func buildSummaryPrompt(mode interview.Mode, subject string, history []interview.Exchange) string {
	var sb strings.Builder
	sb.WriteString("Provide final interview feedback for this completed interview.\n\n")
	fmt.Fprintf(&sb, "%s\n\n", describeSubject(mode, subject))

	for _, ex := range history {
		fmt.Fprintf(&sb, "Q: %s\nA: %s\nScore: %.2f\n", ex.Question, ex.Answer, ex.Score)
	}

	sb.WriteString("\nInclude: overall performance, strengths, improvements, recommendations.")
	return sb.String()
}
