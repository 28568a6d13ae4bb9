package main

import (
	"fmt"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

// printQuestion and printFeedback go to stdout: they are the interview
// itself, not diagnostics.
func printQuestion(number int, followup bool, text string) {
	label := fmt.Sprintf("Question %d", number)
	if followup {
		label = "Follow-up"
	}
	fmt.Printf("\n%s\n%s\n\n", colorize(colorBold, label), text)
}

func printFeedback(feedback string, score float64) {
	fmt.Printf("\n%s %s\n", colorize(colorCyan, "Feedback:"), feedback)
	fmt.Printf("%s %.2f\n", colorize(colorCyan, "Score:"), score)
}
