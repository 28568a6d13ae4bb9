package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type captureSink struct {
	audio []byte
}

func (s *captureSink) WriteAudio(audio []byte) {
	s.audio = audio
}

func TestSpeak(t *testing.T) {
	var gotPath, gotKey string
	var gotBody ttsRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3-bytes"))
	}))
	defer ts.Close()

	sink := &captureSink{}
	c := New("secret", "voice-1", sink).WithBaseURL(ts.URL)

	<-c.Speak(context.Background(), "Tell me about yourself.")

	if gotPath != "/v1/text-to-speech/voice-1" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("api key = %q", gotKey)
	}
	if gotBody.Text != "Tell me about yourself." {
		t.Errorf("text = %q", gotBody.Text)
	}
	if string(sink.audio) != "mp3-bytes" {
		t.Errorf("sink audio = %q", sink.audio)
	}
}

func TestSpeakDisabledClient(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	c := New("", "", nil).WithBaseURL(ts.URL)
	if c.Enabled() {
		t.Error("client without credentials should be disabled")
	}

	<-c.Speak(context.Background(), "hello")
	if called {
		t.Error("disabled client must not call the API")
	}
}

func TestSpeakEmptyText(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	c := New("k", "v", nil).WithBaseURL(ts.URL)
	<-c.Speak(context.Background(), "")
	if called {
		t.Error("empty text must not call the API")
	}
}

func TestSpeakFailureDoesNotPanic(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"detail":"invalid api key"}`))
	}))
	defer ts.Close()

	c := New("bad", "voice-1", nil).WithBaseURL(ts.URL)

	// Failures are logged; Speak never surfaces them.
	<-c.Speak(context.Background(), "hello")
}
