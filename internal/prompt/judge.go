package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"

	"github.com/neo/arbiter_backend/internal/debate"
	"github.com/neo/arbiter_backend/internal/logging"
)

// ErrJudgeUnparseable means no usable scores could be salvaged from the
// judge's output
var ErrJudgeUnparseable = errors.New("judge response could not be parsed")

// rawJudgeResponse tolerates partially populated judge output
type rawJudgeResponse struct {
	Summary      string          `json:"summary"`
	AgentScores  []rawAgentScore `json:"agent_scores"`
	WinnerID     string          `json:"winner_id"`
	WinnerName   string          `json:"winner_name"`
	KeyArguments []string        `json:"key_arguments"`
}

type rawAgentScore struct {
	AgentID   string  `json:"agent_id"`
	AgentName string  `json:"agent_name"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// ParseJudgeResponse extracts the first well-formed JSON block from the
// judge's text and builds a JudgeResult.
//
// Salvage rules are fixed: when agent_scores is present, a missing or
// invalid winner_id is derived as the highest-scoring debater (ties broken
// by earliest agent in config order), summary defaults to "" and
// key_arguments to empty. Scores for unknown agent IDs are dropped. Only
// when no usable scores remain does parsing fail with ErrJudgeUnparseable.
func ParseJudgeResponse(responseText string, agents []debate.AgentConfig) (*debate.JudgeResult, error) {
	block := extractJSONBlock(responseText)
	if block == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrJudgeUnparseable)
	}

	var raw rawJudgeResponse
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		// LLM output is frequently almost-JSON; repair before giving up
		repaired, repairErr := jsonrepair.RepairJSON(block)
		if repairErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrJudgeUnparseable, err)
		}
		if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrJudgeUnparseable, err)
		}
	}

	byID := make(map[string]*debate.AgentConfig, len(agents))
	for i := range agents {
		byID[agents[i].AgentID] = &agents[i]
	}

	scores := make([]debate.AgentScore, 0, len(raw.AgentScores))
	for _, s := range raw.AgentScores {
		agent, known := byID[s.AgentID]
		if !known {
			logging.Warn("Dropping judge score for unknown agent", map[string]interface{}{
				"agent_id": s.AgentID,
			})
			continue
		}
		name := s.AgentName
		if name == "" {
			name = agent.Name
		}
		scores = append(scores, debate.AgentScore{
			AgentID:   s.AgentID,
			AgentName: name,
			Score:     clampScore(s.Score),
			Reasoning: s.Reasoning,
		})
	}

	if len(scores) == 0 {
		return nil, fmt.Errorf("%w: no usable agent scores", ErrJudgeUnparseable)
	}

	result := &debate.JudgeResult{
		Summary:      raw.Summary,
		AgentScores:  scores,
		WinnerID:     raw.WinnerID,
		WinnerName:   raw.WinnerName,
		KeyArguments: raw.KeyArguments,
	}
	if result.KeyArguments == nil {
		result.KeyArguments = []string{}
	}

	// The winner must reference a debater; otherwise derive it from scores
	if _, known := byID[result.WinnerID]; !known {
		winnerID := deriveWinner(result, agents)
		result.WinnerID = winnerID
		result.WinnerName = byID[winnerID].Name
	} else if result.WinnerName == "" {
		result.WinnerName = byID[result.WinnerID].Name
	}

	return result, nil
}

// deriveWinner picks the highest-scoring debater, ties broken by earliest
// position in config order
func deriveWinner(result *debate.JudgeResult, agents []debate.AgentConfig) string {
	best := ""
	bestScore := -1.0
	for _, agent := range agents {
		for _, s := range result.AgentScores {
			if s.AgentID == agent.AgentID && s.Score > bestScore {
				best = agent.AgentID
				bestScore = s.Score
			}
		}
	}
	return best
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

// extractJSONBlock returns the first balanced JSON object in the text,
// stripping markdown code fences if present
func extractJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	if idx := strings.Index(text, "```json"); idx >= 0 {
		text = text[idx+len("```json"):]
	} else if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+3:]
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[:idx]
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	// Unterminated object; hand the tail to the repair pass
	return text[start:]
}
