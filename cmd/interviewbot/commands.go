package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Amaanudeen/ai-interview-bot/internal/config"
	"github.com/Amaanudeen/ai-interview-bot/internal/resume"
)

// --- interview ---

var interviewCmd = &cobra.Command{
	Use:   "interview",
	Short: "Run an interactive interview in the terminal",
	Long: `Run an interactive interview in the terminal.

Examples:
  interviewbot interview --role "Senior Go Developer"
  interviewbot interview --resume ./resume.pdf

Type your answer and press Enter, or type "speak <audio-file>" to answer
with a recording (transcribed server-side). Type "end" to finish early.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		resumePath, _ := cmd.Flags().GetString("resume")

		if (role == "") == (resumePath == "") {
			return fmt.Errorf("exactly one of --role or --resume is required")
		}

		req := map[string]string{}
		switch {
		case role != "":
			req["mode"] = "role"
			req["content"] = role
		default:
			data, err := os.ReadFile(resumePath)
			if err != nil {
				return fmt.Errorf("reading résumé: %w", err)
			}
			req["mode"] = "resume"
			if resume.IsPDF(data) {
				req["content"] = base64.StdEncoding.EncodeToString(data)
				req["content_type"] = "pdf"
			} else {
				req["content"] = string(data)
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		resp, err := client.post(ctx, "/api/interview/start", req)
		if err != nil {
			return err
		}

		var started struct {
			SessionID     string `json:"session_id"`
			FirstQuestion string `json:"first_question"`
		}
		if err := decodeJSON(resp, &started); err != nil {
			return err
		}

		printSuccess("Interview started (session %s)", started.SessionID)

		questionNo := 1
		question := started.FirstQuestion
		followup := false
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 64*1024), 64*1024)

		for {
			printQuestion(questionNo, followup, question)
			fmt.Print("> ")

			if !scanner.Scan() {
				fmt.Println()
				return endInterview(cmd, client, started.SessionID)
			}
			answer := strings.TrimSpace(scanner.Text())
			if answer == "" {
				continue
			}
			if strings.EqualFold(answer, "end") {
				return endInterview(cmd, client, started.SessionID)
			}
			if strings.HasPrefix(answer, "speak ") {
				audioPath := strings.TrimSpace(strings.TrimPrefix(answer, "speak "))
				transcribed, err := transcribeAnswer(ctx, client, audioPath)
				if err != nil {
					printError("%v", err)
					continue
				}
				fmt.Printf("%s %s\n", colorize(colorBold, "You said:"), transcribed)
				answer = transcribed
			}

			resp, err := client.post(ctx, "/api/interview/answer", map[string]string{
				"session_id": started.SessionID,
				"answer":     answer,
			})
			if err != nil {
				return err
			}

			var result struct {
				Feedback          string  `json:"feedback"`
				Score             float64 `json:"score"`
				NextQuestion      *string `json:"next_question"`
				IsFollowup        bool    `json:"is_followup"`
				InterviewComplete bool    `json:"interview_complete"`
				FinalFeedback     *string `json:"final_feedback"`
			}
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}

			printFeedback(result.Feedback, result.Score)

			if result.InterviewComplete {
				fmt.Printf("\n%s\n", colorize(colorBold, "Interview complete"))
				if result.FinalFeedback != nil {
					fmt.Printf("\n%s\n", *result.FinalFeedback)
				}
				return nil
			}

			if !result.IsFollowup {
				questionNo++
			}
			followup = result.IsFollowup
			if result.NextQuestion != nil {
				question = *result.NextQuestion
			}
		}
	},
}

// transcribeAnswer uploads an audio file and returns the recognized text.
func transcribeAnswer(ctx context.Context, client *apiClient, path string) (string, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading audio: %w", err)
	}

	resp, err := client.postMultipart(ctx, "/api/interview/transcribe", "audio", filepath.Base(path), audio)
	if err != nil {
		return "", err
	}

	var result struct {
		Transcription string `json:"transcription"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return "", err
	}
	return result.Transcription, nil
}

func endInterview(cmd *cobra.Command, client *apiClient, sessionID string) error {
	resp, err := client.delete(cmd.Context(), "/api/interview/end/"+sessionID)
	if err != nil {
		return err
	}

	var ended struct {
		FinalFeedback  string `json:"final_feedback"`
		TotalQuestions int    `json:"total_questions"`
	}
	if err := decodeJSON(resp, &ended); err != nil {
		return err
	}

	fmt.Printf("\n%s (%d questions)\n", colorize(colorBold, "Interview ended"), ended.TotalQuestions)
	if ended.FinalFeedback != "" {
		fmt.Printf("\n%s\n", ended.FinalFeedback)
	}
	return nil
}

func init() {
	interviewCmd.Flags().String("role", "", "job role to interview for")
	interviewCmd.Flags().String("resume", "", "path to a résumé (PDF or plain text)")
}

// --- interviews ---

var interviewsCmd = &cobra.Command{
	Use:   "interviews",
	Short: "Browse archived interviews",
}

var interviewsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived interviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/api/interviews?limit=%d", limit))
		if err != nil {
			return err
		}

		var interviews []struct {
			ID            string `json:"id"`
			Mode          string `json:"mode"`
			QuestionCount int    `json:"question_count"`
			EndedAt       string `json:"ended_at"`
		}
		if err := decodeJSON(resp, &interviews); err != nil {
			return err
		}

		if len(interviews) == 0 {
			fmt.Println("No archived interviews.")
			return nil
		}

		for _, iv := range interviews {
			fmt.Printf("%s  %s  %-6s  %d questions\n",
				colorize(colorCyan, iv.ID[:min(8, len(iv.ID))]),
				iv.EndedAt,
				iv.Mode,
				iv.QuestionCount,
			)
		}
		return nil
	},
}

var interviewsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single archived interview",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/interviews/"+args[0])
		if err != nil {
			return err
		}

		var iv any
		if err := decodeJSON(resp, &iv); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(iv)
	},
}

var interviewsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an archived interview",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/api/interviews/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted interview %s", args[0])
		return nil
	},
}

func init() {
	interviewsListCmd.Flags().Int("limit", 20, "maximum number of interviews to list")
	interviewsCmd.AddCommand(interviewsListCmd)
	interviewsCmd.AddCommand(interviewsShowCmd)
	interviewsCmd.AddCommand(interviewsDeleteCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
