package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Interview InterviewConfig
	Gemini    GeminiConfig
	Whisper   WhisperConfig
	Speech    SpeechConfig
	Storage   StorageConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
	// APIToken protects the archive endpoints. Optional: when empty they
	// are served without auth (the server binds to localhost only).
	APIToken string
}

type InterviewConfig struct {
	// MaxQuestions bounds the number of main questions per interview.
	// Follow-ups are not counted against it.
	MaxQuestions int
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type WhisperConfig struct {
	BaseURL string
}

type SpeechConfig struct {
	APIKey  string
	VoiceID string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		Interview: InterviewConfig{
			MaxQuestions: 10,
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.0-flash",
		},
		Whisper: WhisperConfig{
			BaseURL: "http://localhost:8080",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a .env file (if present), the JSON config
// file at $XDG_CONFIG_HOME/interviewbot/config.json, and environment
// variables. Environment variables (INTERVIEWBOT_*) override file values;
// secrets are env-only.
func Load() (Config, error) {
	// .env is a developer convenience; absence is not an error.
	_ = godotenv.Load()
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Gemini.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: Gemini API key. Set it via environment variable INTERVIEWBOT_GEMINI_API_KEY")
	}
	if cfg.Interview.MaxQuestions <= 0 {
		return Config{}, fmt.Errorf("interview.max_questions must be positive, got %d", cfg.Interview.MaxQuestions)
	}

	return cfg, nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "interviewbot-data"
		}
	}
	return filepath.Join(dir, "interviewbot")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "interviewbot", "config.json")
}
