package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModelID = "eleven_flash_v2_5"
	defaultTimeout = 30 * time.Second
)

// AudioSink receives synthesized audio. Implementations may play it, stream
// it to a client, or drop it.
type AudioSink interface {
	WriteAudio(audio []byte)
}

// Client renders text to speech via the ElevenLabs REST API. Speak is
// fire-and-forget: failures are logged and never surface to the interview.
type Client struct {
	apiKey     string
	voiceID    string
	baseURL    string
	httpClient *http.Client
	sink       AudioSink // optional
	logger     *slog.Logger
}

// New creates a Client. When apiKey or voiceID is empty the client is
// disabled and Speak becomes a no-op.
func New(apiKey, voiceID string, sink AudioSink) *Client {
	return &Client{
		apiKey:  apiKey,
		voiceID: voiceID,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		sink:   sink,
		logger: slog.Default(),
	}
}

// WithBaseURL points the client at a custom base URL (for testing).
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

// Enabled reports whether speech synthesis is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != "" && c.voiceID != ""
}

type ttsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Speak synthesizes the text in the background. The returned channel closes
// when synthesis finishes; callers that don't care may ignore it.
func (c *Client) Speak(ctx context.Context, text string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if !c.Enabled() || text == "" {
			return
		}
		if err := c.synthesize(ctx, text); err != nil {
			c.logger.Warn("speech synthesis failed", "error", err)
		}
	}()
	return done
}

func (c *Client) synthesize(ctx context.Context, text string) error {
	body, err := json.Marshal(ttsRequest{Text: text, ModelID: defaultModelID})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, c.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading audio: %w", err)
	}
	if c.sink != nil {
		c.sink.WriteAudio(audio)
	}
	return nil
}
