// Package export renders a debate snapshot as a downloadable transcript.
// The markdown and text layouts are part of the public contract; changing
// them breaks downstream tooling that parses exports.
package export

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/neo/arbiter_backend/internal/debate"
	"github.com/neo/arbiter_backend/internal/types"
)

// Result is a rendered export plus its media type
type Result struct {
	Content     []byte
	ContentType string
}

// Export renders the snapshot in the requested format. Unsupported formats
// yield ErrUnsupportedFormat.
func Export(state *debate.DebateState, format types.ExportFormat) (*Result, error) {
	switch format {
	case types.ExportJSON:
		content, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal debate: %v", err)
		}
		return &Result{Content: content, ContentType: "application/json"}, nil

	case types.ExportMarkdown:
		return &Result{Content: []byte(renderMarkdown(state)), ContentType: "text/markdown"}, nil

	case types.ExportText:
		return &Result{Content: []byte(renderText(state)), ContentType: "text/plain"}, nil

	default:
		return nil, fmt.Errorf("%w: %q", debate.ErrUnsupportedFormat, format)
	}
}

func renderMarkdown(state *debate.DebateState) string {
	var lines []string

	lines = append(lines,
		fmt.Sprintf("# Debate: %s", state.Config.Topic),
		"",
		fmt.Sprintf("**Date:** %s", state.CreatedAt.Format("2006-01-02T15:04:05Z07:00")),
		fmt.Sprintf("**Rounds:** %d", state.Config.NumRounds),
		fmt.Sprintf("**Status:** %s", state.Status),
		"",
		"## Participants",
		"",
	)
	for _, agent := range state.Config.Agents {
		lines = append(lines,
			fmt.Sprintf("- **%s** (%s)", agent.Name, agent.Stance),
			fmt.Sprintf("  - Model: %s", agent.Model),
			fmt.Sprintf("  - Role: %s", agent.Role),
		)
	}
	lines = append(lines, "", "## Debate Transcript", "")

	currentRound := 0
	for _, msg := range state.History {
		if msg.RoundNumber != currentRound {
			currentRound = msg.RoundNumber
			lines = append(lines, fmt.Sprintf("### Round %d", currentRound), "")
		}
		lines = append(lines,
			fmt.Sprintf("**%s (%s):**", msg.AgentName, msg.Stance),
			"",
			msg.Content,
			"",
		)
	}

	if state.JudgeResult != nil {
		r := state.JudgeResult
		lines = append(lines,
			"## Judge's Decision",
			"",
			fmt.Sprintf("**Winner:** %s", r.WinnerName),
			"",
			"### Summary",
			"",
			r.Summary,
			"",
			"### Scores",
			"",
		)
		for _, score := range r.AgentScores {
			lines = append(lines,
				fmt.Sprintf("- **%s:** %g/10", score.AgentName, score.Score),
				fmt.Sprintf("  - %s", score.Reasoning),
				"",
			)
		}
		if len(r.KeyArguments) > 0 {
			lines = append(lines, "### Key Arguments", "")
			for _, arg := range r.KeyArguments {
				lines = append(lines, fmt.Sprintf("- %s", arg))
			}
			lines = append(lines, "")
		}
	}

	return strings.Join(lines, "\n")
}

func renderText(state *debate.DebateState) string {
	var lines []string

	lines = append(lines,
		fmt.Sprintf("DEBATE: %s", state.Config.Topic),
		strings.Repeat("=", 80),
		"",
		fmt.Sprintf("Date: %s", state.CreatedAt.Format("2006-01-02T15:04:05Z07:00")),
		fmt.Sprintf("Rounds: %d", state.Config.NumRounds),
		fmt.Sprintf("Status: %s", state.Status),
		"",
		"PARTICIPANTS:",
		strings.Repeat("-", 80),
	)
	for _, agent := range state.Config.Agents {
		lines = append(lines,
			fmt.Sprintf("%s (%s)", agent.Name, agent.Stance),
			fmt.Sprintf("  Model: %s", agent.Model),
			fmt.Sprintf("  Role: %s", agent.Role),
		)
	}
	lines = append(lines,
		"",
		"DEBATE TRANSCRIPT:",
		strings.Repeat("-", 80),
		"",
	)

	currentRound := 0
	for _, msg := range state.History {
		if msg.RoundNumber != currentRound {
			currentRound = msg.RoundNumber
			lines = append(lines,
				fmt.Sprintf("\nROUND %d", currentRound),
				strings.Repeat("-", 40),
				"",
			)
		}
		lines = append(lines,
			fmt.Sprintf("%s (%s):", msg.AgentName, msg.Stance),
			"",
			msg.Content,
			"",
		)
	}

	if state.JudgeResult != nil {
		r := state.JudgeResult
		lines = append(lines,
			"JUDGE'S DECISION:",
			strings.Repeat("-", 80),
			"",
			fmt.Sprintf("Winner: %s", r.WinnerName),
			"",
			"Summary:",
			r.Summary,
			"",
			"Scores:",
		)
		for _, score := range r.AgentScores {
			lines = append(lines,
				fmt.Sprintf("  %s: %g/10", score.AgentName, score.Score),
				fmt.Sprintf("    %s", score.Reasoning),
				"",
			)
		}
		if len(r.KeyArguments) > 0 {
			lines = append(lines, "Key Arguments:")
			for _, arg := range r.KeyArguments {
				lines = append(lines, fmt.Sprintf("  - %s", arg))
			}
			lines = append(lines, "")
		}
	}

	return strings.Join(lines, "\n")
}
