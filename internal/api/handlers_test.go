package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Amaanudeen/ai-interview-bot/internal/interview"
	"github.com/Amaanudeen/ai-interview-bot/internal/storage"
)

// --- mocks ---

type scriptedEvaluator struct {
	judgements []interview.Judgement
	err        error
	summary    string
	summaryErr error
}

func (s *scriptedEvaluator) Evaluate(_ context.Context, _ interview.Mode, _ string, _ []interview.Exchange, _, _ string) (interview.Judgement, error) {
	if s.err != nil {
		return interview.Judgement{}, s.err
	}
	if len(s.judgements) == 0 {
		return interview.Judgement{Feedback: "noted", Score: 0.5}, nil
	}
	j := s.judgements[0]
	s.judgements = s.judgements[1:]
	return j, nil
}

func (s *scriptedEvaluator) Summarize(_ context.Context, _ interview.Mode, _ string, _ []interview.Exchange) (string, error) {
	if s.summaryErr != nil {
		return "", s.summaryErr
	}
	return s.summary, nil
}

type scriptedBank struct {
	calls int
}

func (b *scriptedBank) InitialQuestion(_ context.Context, _ interview.Mode, _ string) string {
	return "Tell me about yourself."
}

func (b *scriptedBank) FollowupQuestion(_ context.Context, _ interview.Exchange, _ []string) (string, error) {
	return "Can you elaborate?", nil
}

func (b *scriptedBank) NextMainQuestion(_ context.Context, _ interview.Mode, _ string, _ []interview.Exchange) (string, error) {
	b.calls++
	return fmt.Sprintf("main question %d", b.calls+1), nil
}

type fakeTranscriber struct {
	text string
	err  error

	gotFilename string
	gotAudio    []byte
}

func (f *fakeTranscriber) Transcribe(_ context.Context, filename string, audio []byte) (string, error) {
	f.gotFilename = filename
	f.gotAudio = audio
	return f.text, f.err
}

type fakeSpeaker struct {
	spoken []string
}

func (f *fakeSpeaker) Speak(_ context.Context, text string) <-chan struct{} {
	f.spoken = append(f.spoken, text)
	done := make(chan struct{})
	close(done)
	return done
}

// --- helpers ---

func newTestDeps(eval *scriptedEvaluator, maxQuestions int) Deps {
	machine := interview.NewMachine(interview.NewRegistry(), eval, &scriptedBank{}, nil, maxQuestions)
	return Deps{Machine: machine}
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Detail string `json:"detail"`
	}
	decodeBody(t, w, &resp)
	return resp.Detail
}

func startSession(t *testing.T, handler http.Handler) string {
	t.Helper()
	w := doJSON(t, handler, "POST", "/api/interview/start", StartRequest{Mode: "role", Content: "Go Developer"})
	if w.Code != 200 {
		t.Fatalf("start status = %d: %s", w.Code, w.Body.String())
	}
	var resp StartResponse
	decodeBody(t, w, &resp)
	return resp.SessionID
}

// --- tests ---

func TestRootListsEndpoints(t *testing.T) {
	handler := NewHandler(newTestDeps(&scriptedEvaluator{}, 10))

	w := doJSON(t, handler, "GET", "/", nil)
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Endpoints map[string]string `json:"endpoints"`
	}
	decodeBody(t, w, &resp)
	if resp.Endpoints["start_interview"] != "/api/interview/start" {
		t.Errorf("endpoints = %v", resp.Endpoints)
	}
}

func TestHealth(t *testing.T) {
	handler := NewHandler(newTestDeps(&scriptedEvaluator{}, 10))

	w := doJSON(t, handler, "GET", "/health", nil)
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestStartInterview(t *testing.T) {
	handler := NewHandler(newTestDeps(&scriptedEvaluator{}, 10))

	w := doJSON(t, handler, "POST", "/api/interview/start", StartRequest{Mode: "role", Content: "Go Developer"})
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp StartResponse
	decodeBody(t, w, &resp)
	if resp.SessionID == "" {
		t.Error("missing session_id")
	}
	if resp.FirstQuestion != "Tell me about yourself." {
		t.Errorf("first_question = %q", resp.FirstQuestion)
	}
}

func TestStartInvalidMode(t *testing.T) {
	handler := NewHandler(newTestDeps(&scriptedEvaluator{}, 10))

	w := doJSON(t, handler, "POST", "/api/interview/start", StartRequest{Mode: "panel", Content: "x"})
	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(detail(t, w), "mode") {
		t.Errorf("detail = %q", detail(t, w))
	}
}

func TestStartMissingContent(t *testing.T) {
	handler := NewHandler(newTestDeps(&scriptedEvaluator{}, 10))

	w := doJSON(t, handler, "POST", "/api/interview/start", StartRequest{Mode: "role"})
	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestStartDuplicateSession(t *testing.T) {
	handler := NewHandler(newTestDeps(&scriptedEvaluator{}, 10))

	req := StartRequest{Mode: "role", Content: "dev", SessionID: "dup"}
	if w := doJSON(t, handler, "POST", "/api/interview/start", req); w.Code != 200 {
		t.Fatalf("first start status = %d", w.Code)
	}
	w := doJSON(t, handler, "POST", "/api/interview/start", req)
	if w.Code != 409 {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestStartWithBase64Resume(t *testing.T) {
	handler := NewHandler(newTestDeps(&scriptedEvaluator{}, 10))

	encoded := base64.StdEncoding.EncodeToString([]byte("Jane Doe, Go developer"))
	w := doJSON(t, handler, "POST", "/api/interview/start", StartRequest{
		Mode:        "resume",
		Content:     encoded,
		ContentType: "pdf",
	})
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
}

func TestStartWithInvalidBase64(t *testing.T) {
	handler := NewHandler(newTestDeps(&scriptedEvaluator{}, 10))

	w := doJSON(t, handler, "POST", "/api/interview/start", StartRequest{
		Mode:        "resume",
		Content:     "not-base64!!!",
		ContentType: "pdf",
	})
	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestSubmitAnswer(t *testing.T) {
	eval := &scriptedEvaluator{judgements: []interview.Judgement{{Feedback: "good", Score: 0.9}}}
	handler := NewHandler(newTestDeps(eval, 10))
	id := startSession(t, handler)

	w := doJSON(t, handler, "POST", "/api/interview/answer", AnswerRequest{SessionID: id, Answer: "my answer"})
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp AnswerResponse
	decodeBody(t, w, &resp)
	if resp.Feedback != "good" {
		t.Errorf("feedback = %q", resp.Feedback)
	}
	if resp.NextQuestion == nil || *resp.NextQuestion != "main question 2" {
		t.Errorf("next_question = %v", resp.NextQuestion)
	}
	if resp.InterviewComplete {
		t.Error("interview_complete = true")
	}
	if resp.FinalFeedback != nil {
		t.Errorf("final_feedback = %v, want null", *resp.FinalFeedback)
	}
}

func TestSubmitAnswerUnknownSession(t *testing.T) {
	handler := NewHandler(newTestDeps(&scriptedEvaluator{}, 10))

	w := doJSON(t, handler, "POST", "/api/interview/answer", AnswerRequest{SessionID: "missing", Answer: "x"})
	if w.Code != 404 {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if detail(t, w) != "Session not found" {
		t.Errorf("detail = %q", detail(t, w))
	}
}

func TestSubmitAnswerEvaluatorDown(t *testing.T) {
	eval := &scriptedEvaluator{err: errors.New("llm down")}
	handler := NewHandler(newTestDeps(eval, 10))
	id := startSession(t, handler)

	w := doJSON(t, handler, "POST", "/api/interview/answer", AnswerRequest{SessionID: id, Answer: "x"})
	if w.Code != 502 {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if !strings.Contains(detail(t, w), "retry") {
		t.Errorf("detail = %q", detail(t, w))
	}
}

func TestSubmitAnswerCompletesInterview(t *testing.T) {
	eval := &scriptedEvaluator{summary: "strong candidate"}
	handler := NewHandler(newTestDeps(eval, 1))
	id := startSession(t, handler)

	w := doJSON(t, handler, "POST", "/api/interview/answer", AnswerRequest{SessionID: id, Answer: "only answer"})
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp AnswerResponse
	decodeBody(t, w, &resp)
	if !resp.InterviewComplete {
		t.Fatal("expected interview_complete")
	}
	if resp.NextQuestion != nil {
		t.Errorf("next_question = %v, want null", *resp.NextQuestion)
	}
	if resp.FinalFeedback == nil || *resp.FinalFeedback != "strong candidate" {
		t.Errorf("final_feedback = %v", resp.FinalFeedback)
	}
}

func TestStatusEndpoint(t *testing.T) {
	handler := NewHandler(newTestDeps(&scriptedEvaluator{}, 10))
	id := startSession(t, handler)

	w := doJSON(t, handler, "GET", "/api/interview/status/"+id, nil)
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}

	var resp StatusResponse
	decodeBody(t, w, &resp)
	if resp.SessionID != id {
		t.Errorf("session_id = %q", resp.SessionID)
	}
	if !resp.InterviewActive {
		t.Error("interview_active = false")
	}
	if resp.CurrentQuestion != "Tell me about yourself." {
		t.Errorf("current_question = %q", resp.CurrentQuestion)
	}
}

func TestStatusUnknown(t *testing.T) {
	handler := NewHandler(newTestDeps(&scriptedEvaluator{}, 10))

	w := doJSON(t, handler, "GET", "/api/interview/status/missing", nil)
	if w.Code != 404 {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestEndEndpoint(t *testing.T) {
	eval := &scriptedEvaluator{summary: "final thoughts"}
	handler := NewHandler(newTestDeps(eval, 10))
	id := startSession(t, handler)

	w := doJSON(t, handler, "DELETE", "/api/interview/end/"+id, nil)
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp EndResponse
	decodeBody(t, w, &resp)
	if resp.FinalFeedback != "final thoughts" {
		t.Errorf("final_feedback = %q", resp.FinalFeedback)
	}

	// Ending again is idempotent.
	w = doJSON(t, handler, "DELETE", "/api/interview/end/"+id, nil)
	if w.Code != 200 {
		t.Fatalf("repeat end status = %d", w.Code)
	}

	// Answering afterwards is rejected.
	w = doJSON(t, handler, "POST", "/api/interview/answer", AnswerRequest{SessionID: id, Answer: "x"})
	if w.Code != 400 {
		t.Fatalf("answer after end status = %d, want 400", w.Code)
	}
	if detail(t, w) != "Interview already ended" {
		t.Errorf("detail = %q", detail(t, w))
	}
}

func TestSpeakerReceivesQuestions(t *testing.T) {
	speaker := &fakeSpeaker{}
	deps := newTestDeps(&scriptedEvaluator{}, 10)
	deps.Speaker = speaker
	handler := NewHandler(deps)

	id := startSession(t, handler)
	doJSON(t, handler, "POST", "/api/interview/answer", AnswerRequest{SessionID: id, Answer: "a"})

	if len(speaker.spoken) != 2 {
		t.Fatalf("spoken = %d, want 2 (first question + next question)", len(speaker.spoken))
	}
	if speaker.spoken[0] != "Tell me about yourself." {
		t.Errorf("spoken[0] = %q", speaker.spoken[0])
	}
}

func TestTranscribeEndpoint(t *testing.T) {
	tr := &fakeTranscriber{text: "spoken answer"}
	deps := newTestDeps(&scriptedEvaluator{}, 10)
	deps.Transcriber = tr
	handler := NewHandler(deps)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", "answer.wav")
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	fw.Write([]byte("wav-bytes"))
	mw.Close()

	req := httptest.NewRequest("POST", "/api/interview/transcribe", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	decodeBody(t, w, &resp)
	if resp["transcription"] != "spoken answer" {
		t.Errorf("transcription = %q", resp["transcription"])
	}
	if tr.gotFilename != "answer.wav" {
		t.Errorf("filename = %q", tr.gotFilename)
	}
	if string(tr.gotAudio) != "wav-bytes" {
		t.Errorf("audio = %q", tr.gotAudio)
	}
}

func TestTranscribeNotConfigured(t *testing.T) {
	handler := NewHandler(newTestDeps(&scriptedEvaluator{}, 10))

	w := doJSON(t, handler, "POST", "/api/interview/transcribe", nil)
	if w.Code != 501 {
		t.Fatalf("status = %d, want 501", w.Code)
	}
}

func TestTranscribeFailure(t *testing.T) {
	// The wrapped error carries an upstream server body; only the fixed
	// message may reach the client.
	tr := &fakeTranscriber{err: fmt.Errorf("%w: unexpected status 500: whisper internal stack trace", interview.ErrTranscription)}
	deps := newTestDeps(&scriptedEvaluator{}, 10)
	deps.Transcriber = tr
	handler := NewHandler(deps)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("audio", "silence.wav")
	fw.Write([]byte("..."))
	mw.Close()

	req := httptest.NewRequest("POST", "/api/interview/transcribe", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if got := detail(t, w); got != "Could not transcribe audio" {
		t.Errorf("detail = %q, want the fixed transcription message", got)
	}
	if strings.Contains(w.Body.String(), "stack trace") {
		t.Error("upstream transcription error leaked to the client")
	}
}

func TestArchiveEndpoints(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	rec := interview.Record{
		SessionID:     "iv-1",
		Mode:          interview.ModeRole,
		Subject:       "dev",
		QuestionCount: 1,
		Exchanges:     []interview.Exchange{{Question: "q", Answer: "a", Score: 0.5}},
		FinalFeedback: "fine",
		StartedAt:     time.Now().UTC().Add(-time.Hour),
		EndedAt:       time.Now().UTC(),
	}
	if err := store.Archive(context.Background(), rec); err != nil {
		t.Fatalf("archive: %v", err)
	}

	deps := newTestDeps(&scriptedEvaluator{}, 10)
	deps.Store = store
	handler := NewHandler(deps)

	w := doJSON(t, handler, "GET", "/api/interviews", nil)
	if w.Code != 200 {
		t.Fatalf("list status = %d", w.Code)
	}
	var list []storage.Interview
	decodeBody(t, w, &list)
	if len(list) != 1 || list[0].ID != "iv-1" {
		t.Fatalf("list = %+v", list)
	}

	w = doJSON(t, handler, "GET", "/api/interviews/iv-1", nil)
	if w.Code != 200 {
		t.Fatalf("get status = %d", w.Code)
	}
	var iv storage.Interview
	decodeBody(t, w, &iv)
	if len(iv.Exchanges) != 1 {
		t.Errorf("exchanges = %d, want 1", len(iv.Exchanges))
	}

	w = doJSON(t, handler, "GET", "/api/interviews/missing", nil)
	if w.Code != 404 {
		t.Fatalf("get missing status = %d", w.Code)
	}

	w = doJSON(t, handler, "DELETE", "/api/interviews/iv-1", nil)
	if w.Code != 200 {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = doJSON(t, handler, "DELETE", "/api/interviews/iv-1", nil)
	if w.Code != 404 {
		t.Fatalf("repeat delete status = %d, want 404", w.Code)
	}
}

func TestArchiveBearerAuth(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	deps := newTestDeps(&scriptedEvaluator{}, 10)
	deps.Store = store
	deps.Token = "sekrit"
	handler := NewHandler(deps)

	w := doJSON(t, handler, "GET", "/api/interviews", nil)
	if w.Code != 401 {
		t.Fatalf("unauthenticated status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest("GET", "/api/interviews", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("authenticated status = %d: %s", rec.Code, rec.Body.String())
	}

	// Interview endpoints stay open; auth guards only the archive.
	w = doJSON(t, handler, "GET", "/health", nil)
	if w.Code != 200 {
		t.Fatalf("health status = %d", w.Code)
	}
}
