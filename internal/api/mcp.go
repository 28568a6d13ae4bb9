package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Amaanudeen/ai-interview-bot/internal/interview"
	"github.com/Amaanudeen/ai-interview-bot/internal/storage"
)

// MCPDeps holds dependencies for the MCP server. Store is optional; when
// nil the archive resource is not registered.
type MCPDeps struct {
	Machine *interview.Machine
	Store   *storage.Store
}

// NewMCPServer creates an MCP server exposing the interview lifecycle as
// tools, so agent clients can conduct interviews over stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"interviewbot",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("interviewbot runs automated spoken technical interviews: start a session, submit answers, and collect the final assessment."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("start_interview",
			mcp.WithDescription("Start a new interview session. Returns the session id and the first question."),
			mcp.WithString("mode", mcp.Description(`Interview mode: "role" or "resume"`), mcp.Required()),
			mcp.WithString("content", mcp.Description("Job role title (role mode) or résumé text (resume mode)"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Optional session id; generated when omitted")),
		),
		mcpStartInterview(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_answer",
			mcp.WithDescription("Submit an answer to the current question. Returns feedback and the next question, or the final assessment when the interview is complete."),
			mcp.WithString("session_id", mcp.Description("Session id from start_interview"), mcp.Required()),
			mcp.WithString("answer", mcp.Description("The candidate's answer"), mcp.Required()),
		),
		mcpSubmitAnswer(deps),
	)

	s.AddTool(
		mcp.NewTool("interview_status",
			mcp.WithDescription("Get the current state of an interview session."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
		),
		mcpInterviewStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("end_interview",
			mcp.WithDescription("End an interview early and get the final assessment."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
		),
		mcpEndInterview(deps),
	)

	if deps.Store != nil {
		s.AddResource(
			mcp.NewResource(
				"interviews://recent",
				"Recent Interviews",
				mcp.WithResourceDescription("Last 10 archived interviews (summaries only)"),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceRecent(deps),
		)
	}

	return s
}

func mcpStartInterview(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		mode, err := req.RequireString("mode")
		if err != nil {
			return mcpError("mode is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		sessionID := req.GetString("session_id", "")

		result, err := deps.Machine.Start(ctx, mode, content, sessionID)
		if err != nil {
			return mcpError(interviewErrorMessage(err)), nil
		}

		b, err := json.Marshal(map[string]string{
			"session_id":     result.SessionID,
			"first_question": result.FirstQuestion,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSubmitAnswer(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		answer, err := req.RequireString("answer")
		if err != nil {
			return mcpError("answer is required"), nil
		}

		result, err := deps.Machine.SubmitAnswer(ctx, sessionID, answer)
		if err != nil {
			return mcpError(interviewErrorMessage(err)), nil
		}

		b, err := json.Marshal(map[string]any{
			"feedback":           result.Feedback,
			"score":              result.Score,
			"next_question":      result.NextQuestion,
			"is_followup":        result.IsFollowup,
			"interview_complete": result.InterviewComplete,
			"final_feedback":     result.FinalFeedback,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpInterviewStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		snap, err := deps.Machine.Status(sessionID)
		if err != nil {
			return mcpError(interviewErrorMessage(err)), nil
		}

		b, err := json.Marshal(map[string]any{
			"session_id":       snap.ID,
			"mode":             string(snap.Mode),
			"question_count":   snap.QuestionCount,
			"total_exchanges":  snap.TotalExchanges,
			"current_question": snap.CurrentQuestion,
			"interview_active": snap.Status == interview.StatusActive,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpEndInterview(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		result, err := deps.Machine.End(ctx, sessionID)
		if err != nil {
			return mcpError(interviewErrorMessage(err)), nil
		}

		b, err := json.Marshal(map[string]any{
			"final_feedback":  result.FinalFeedback,
			"total_questions": result.TotalQuestions,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		interviews, err := deps.Store.ListInterviews(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list interviews: %w", err)
		}

		type interviewSummary struct {
			ID        string `json:"id"`
			Mode      string `json:"mode"`
			Questions int    `json:"questions"`
			EndedAt   string `json:"ended_at"`
		}

		summaries := make([]interviewSummary, len(interviews))
		for i, iv := range interviews {
			summaries[i] = interviewSummary{
				ID:        iv.ID,
				Mode:      iv.Mode,
				Questions: iv.QuestionCount,
				EndedAt:   iv.EndedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal interviews: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// interviewErrorMessage renders taxonomy errors for tool results without
// leaking wrapped internals for caller errors.
func interviewErrorMessage(err error) string {
	switch {
	case errors.Is(err, interview.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, interview.ErrSessionClosed):
		return "interview already ended"
	case errors.Is(err, interview.ErrSessionBusy):
		return "an answer is already being evaluated for this session"
	case errors.Is(err, interview.ErrDuplicateSession):
		return "session already exists"
	case errors.Is(err, interview.ErrInvalidMode):
		return `mode must be "role" or "resume"`
	default:
		return err.Error()
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
