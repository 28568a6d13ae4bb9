package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Amaanudeen/ai-interview-bot/internal/api"
	"github.com/Amaanudeen/ai-interview-bot/internal/config"
	"github.com/Amaanudeen/ai-interview-bot/internal/evaluator"
	"github.com/Amaanudeen/ai-interview-bot/internal/gemini"
	"github.com/Amaanudeen/ai-interview-bot/internal/interview"
	"github.com/Amaanudeen/ai-interview-bot/internal/question"
	"github.com/Amaanudeen/ai-interview-bot/internal/speech"
	"github.com/Amaanudeen/ai-interview-bot/internal/storage"
	"github.com/Amaanudeen/ai-interview-bot/internal/transcribe"
)

// Ended sessions linger in memory so status stays queryable for a while,
// then get swept.
const (
	sessionTTL    = 2 * time.Hour
	sweepInterval = 10 * time.Minute
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the interviewbot server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running interviewbot server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show interviewbot system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "interviewbot.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "interviewbot version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("interviewbot is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("interviewbot is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the interview archive.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Wire the interview machine to its gateways.
	client := gemini.NewClient(cfg.Gemini.APIKey)
	eval := evaluator.New(client, cfg.Gemini.Model)
	bank := question.NewBank(client, cfg.Gemini.Model)
	registry := interview.NewRegistry()
	machine := interview.NewMachine(registry, eval, bank, store, cfg.Interview.MaxQuestions)

	var speaker api.Speaker
	if tts := speech.New(cfg.Speech.APIKey, cfg.Speech.VoiceID, nil); tts.Enabled() {
		speaker = tts
		slog.Info("speech synthesis enabled", "voice", cfg.Speech.VoiceID)
	}

	handler := api.NewHandler(api.Deps{
		Machine:     machine,
		Transcriber: transcribe.New(cfg.Whisper.BaseURL),
		Speaker:     speaker,
		Store:       store,
		Token:       cfg.Server.APIToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build MCP server (stdio transport).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Machine: machine,
		Store:   store,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "interviewbot listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})
	slog.Info("MCP server started (stdio transport)")

	// Session janitor.
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := registry.Sweep(time.Now().Add(-sessionTTL)); n > 0 {
					slog.Info("swept stale sessions", "count", n)
				}
			}
		}
	})

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("interviewbot is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop interviewbot (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to interviewbot (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Check the whisper.cpp transcription server.
	whisperResp, err := client.Get(cfg.Whisper.BaseURL + "/health")
	if err != nil {
		printStatus("Whisper", "not running")
	} else {
		whisperResp.Body.Close()
		printStatus("Whisper", "running at %s", cfg.Whisper.BaseURL)
	}

	printStatus("Model", "%s", cfg.Gemini.Model)
	if cfg.Speech.APIKey != "" && cfg.Speech.VoiceID != "" {
		printStatus("Speech", "enabled (voice %s)", cfg.Speech.VoiceID)
	} else {
		printStatus("Speech", "disabled")
	}
	printStatus("Max questions", "%d", cfg.Interview.MaxQuestions)

	// Show archived interview count if server is running.
	if resp != nil && resp.StatusCode == 200 {
		archResp, err := apiGet(client, serverURL+"/api/interviews?limit=100", cfg.Server.APIToken)
		if err == nil {
			var interviews []struct {
				ID string `json:"id"`
			}
			if decodeJSON(archResp, &interviews) == nil {
				printStatus("Archived interviews", "%s", countLabel(len(interviews), 100))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return client.Do(req)
}
