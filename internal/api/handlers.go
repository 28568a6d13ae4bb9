package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Amaanudeen/ai-interview-bot/internal/interview"
	"github.com/Amaanudeen/ai-interview-bot/internal/resume"
	"github.com/Amaanudeen/ai-interview-bot/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB
const maxAudioBodySize = 10 << 20  // 10MB

// Transcriber converts uploaded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}

// Speaker renders interview questions to speech, fire-and-forget.
type Speaker interface {
	Speak(ctx context.Context, text string) <-chan struct{}
}

// Deps holds the handler dependencies. Transcriber, Speaker, and Store are
// optional; their endpoints degrade cleanly when absent.
type Deps struct {
	Machine     *interview.Machine
	Transcriber Transcriber
	Speaker     Speaker
	Store       *storage.Store
	Token       string
}

// NewHandler returns the interview REST API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/", handleRoot)
	r.Get("/health", handleHealth)

	r.Route("/api/interview", func(r chi.Router) {
		r.Post("/start", handleStart(deps))
		r.Post("/answer", handleAnswer(deps))
		r.Post("/transcribe", handleTranscribe(deps))
		r.Get("/status/{sessionID}", handleStatus(deps))
		r.Delete("/end/{sessionID}", handleEnd(deps))
	})

	if deps.Store != nil {
		r.Route("/api/interviews", func(r chi.Router) {
			if deps.Token != "" {
				r.Use(BearerAuth(deps.Token))
			}
			r.Get("/", handleListArchive(deps))
			r.Get("/{id}", handleGetArchive(deps))
			r.Delete("/{id}", handleDeleteArchive(deps))
		})
	}

	return r
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "AI Interview Bot API",
		"endpoints": map[string]string{
			"start_interview":  "/api/interview/start",
			"submit_answer":    "/api/interview/answer",
			"transcribe_audio": "/api/interview/transcribe",
			"get_status":       "/api/interview/status/{session_id}",
			"end_interview":    "/api/interview/end/{session_id}",
		},
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// StartRequest starts a new interview. Content is the role title in role
// mode, or the résumé in resume mode; set ContentType to "pdf" and
// base64-encode Content to submit a PDF résumé.
type StartRequest struct {
	Mode        string `json:"mode"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

type StartResponse struct {
	SessionID     string `json:"session_id"`
	FirstQuestion string `json:"first_question"`
	Message       string `json:"message"`
}

func handleStart(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "content is required")
			return
		}

		content := req.Content
		if req.ContentType == "pdf" {
			decoded, err := base64.StdEncoding.DecodeString(req.Content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid base64 content")
				return
			}
			content, err = resume.ExtractText(decoded)
			if err != nil {
				httpError(w, http.StatusBadRequest, "extracting résumé text: %v", err)
				return
			}
		}

		result, err := deps.Machine.Start(r.Context(), req.Mode, content, req.SessionID)
		if err != nil {
			writeInterviewError(w, err)
			return
		}

		speak(deps, result.FirstQuestion)
		writeJSON(w, http.StatusOK, StartResponse{
			SessionID:     result.SessionID,
			FirstQuestion: result.FirstQuestion,
			Message:       "Interview started successfully",
		})
	}
}

type AnswerRequest struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

type AnswerResponse struct {
	Feedback          string  `json:"feedback"`
	Score             float64 `json:"score"`
	NextQuestion      *string `json:"next_question"`
	IsFollowup        bool    `json:"is_followup"`
	InterviewComplete bool    `json:"interview_complete"`
	FinalFeedback     *string `json:"final_feedback"`
}

func handleAnswer(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req AnswerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.SessionID == "" || req.Answer == "" {
			httpError(w, http.StatusBadRequest, "session_id and answer are required")
			return
		}

		result, err := deps.Machine.SubmitAnswer(r.Context(), req.SessionID, req.Answer)
		if err != nil {
			writeInterviewError(w, err)
			return
		}

		resp := AnswerResponse{
			Feedback:          result.Feedback,
			Score:             result.Score,
			IsFollowup:        result.IsFollowup,
			InterviewComplete: result.InterviewComplete,
		}
		if result.NextQuestion != "" {
			resp.NextQuestion = &result.NextQuestion
			speak(deps, result.NextQuestion)
		}
		if result.FinalFeedback != "" {
			resp.FinalFeedback = &result.FinalFeedback
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleTranscribe(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Transcriber == nil {
			httpError(w, http.StatusNotImplemented, "transcription is not configured")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxAudioBodySize)
		defer r.Body.Close()

		file, header, err := r.FormFile("audio")
		if err != nil {
			httpError(w, http.StatusBadRequest, "audio file is required: %v", err)
			return
		}
		defer file.Close()

		audio, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "reading audio: %v", err)
			return
		}

		text, err := deps.Transcriber.Transcribe(r.Context(), header.Filename, audio)
		if err != nil {
			writeInterviewError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"transcription": text})
	}
}

type StatusResponse struct {
	SessionID       string `json:"session_id"`
	Mode            string `json:"mode"`
	QuestionCount   int    `json:"question_count"`
	TotalExchanges  int    `json:"total_exchanges"`
	CurrentQuestion string `json:"current_question"`
	InterviewActive bool   `json:"interview_active"`
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")

		snap, err := deps.Machine.Status(id)
		if err != nil {
			writeInterviewError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, StatusResponse{
			SessionID:       snap.ID,
			Mode:            string(snap.Mode),
			QuestionCount:   snap.QuestionCount,
			TotalExchanges:  snap.TotalExchanges,
			CurrentQuestion: snap.CurrentQuestion,
			InterviewActive: snap.Status == interview.StatusActive,
		})
	}
}

type EndResponse struct {
	Message        string `json:"message"`
	FinalFeedback  string `json:"final_feedback"`
	TotalQuestions int    `json:"total_questions"`
}

func handleEnd(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")

		result, err := deps.Machine.End(r.Context(), id)
		if err != nil {
			writeInterviewError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, EndResponse{
			Message:        "Interview ended",
			FinalFeedback:  result.FinalFeedback,
			TotalQuestions: result.TotalQuestions,
		})
	}
}

func handleListArchive(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		interviews, err := deps.Store.ListInterviews(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "listing interviews: %v", err)
			return
		}
		if interviews == nil {
			interviews = []storage.Interview{}
		}
		writeJSON(w, http.StatusOK, interviews)
	}
}

func handleGetArchive(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		iv, err := deps.Store.GetInterview(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "interview not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "loading interview: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, iv)
	}
}

func handleDeleteArchive(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteInterview(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "interview not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "deleting interview: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func speak(deps Deps, text string) {
	if deps.Speaker == nil {
		return
	}
	// Detached from the request context: the response should not wait for
	// audio, and synthesis may outlive the request.
	deps.Speaker.Speak(context.Background(), text)
}

// writeInterviewError maps the interview error taxonomy onto HTTP status
// codes. Internal detail beyond the mapped message is never exposed.
func writeInterviewError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interview.ErrSessionNotFound):
		httpError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, interview.ErrSessionClosed):
		httpError(w, http.StatusBadRequest, "Interview already ended")
	case errors.Is(err, interview.ErrSessionBusy):
		httpError(w, http.StatusConflict, "An answer is already being evaluated for this session")
	case errors.Is(err, interview.ErrDuplicateSession):
		httpError(w, http.StatusConflict, "Session already exists")
	case errors.Is(err, interview.ErrInvalidMode):
		httpError(w, http.StatusBadRequest, "mode must be \"role\" or \"resume\"")
	case errors.Is(err, interview.ErrEvaluationUnavailable):
		httpError(w, http.StatusBadGateway, "Evaluation service unavailable, please retry")
	case errors.Is(err, interview.ErrTranscription):
		httpError(w, http.StatusBadRequest, "Could not transcribe audio")
	default:
		httpError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]string{"detail": fmt.Sprintf(format, args...)})
}
