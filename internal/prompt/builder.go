// Package prompt contains the deterministic prompt composition for debaters
// and the judge, plus the judge-response parser. Everything here is pure:
// no I/O, no clocks, no randomness.
package prompt

import (
	"fmt"
	"strings"

	"github.com/neo/arbiter_backend/internal/debate"
	"github.com/neo/arbiter_backend/internal/llm"
)

// BuildDebaterPrompt composes the system prompt for a debater turn. The
// context block format is fixed and stable across versions.
func BuildDebaterPrompt(agent *debate.AgentConfig, topic string, currentRound, totalRounds int) string {
	prompt := fmt.Sprintf(`%s

DEBATE CONTEXT:
- Topic: %s
- Your stance: %s
- Current round: %d of %d

INSTRUCTIONS:
- Present clear arguments supporting your position
- Respond to opposing arguments from previous turns
- Maintain your persona and debate style
- Be persuasive but respectful
- Aim for 200-400 words per response`,
		agent.SystemPrompt, topic, agent.Stance, currentRound, totalRounds)

	return strings.TrimSpace(prompt)
}

// FormatHistoryContext renders the transcript so far as a single user-role
// message for the next debater. With no prior messages the agent is told to
// open the debate.
func FormatHistoryContext(history []debate.Message, topic string, currentRound, totalRounds int) string {
	if len(history) == 0 {
		return fmt.Sprintf(`DEBATE TOPIC: %s
ROUND: %d of %d

DEBATE HISTORY:
(No previous messages)

YOUR TURN: Please provide your opening statement.`, topic, currentRound, totalRounds)
	}

	formatted := make([]string, 0, len(history))
	for _, msg := range history {
		formatted = append(formatted, fmt.Sprintf("[Round %d, Turn %d] %s (%s): %s",
			msg.RoundNumber, msg.TurnNumber, msg.AgentName, msg.Stance, msg.Content))
	}

	return fmt.Sprintf(`DEBATE TOPIC: %s
ROUND: %d of %d

DEBATE HISTORY:
%s

YOUR TURN: Please provide your response.`,
		topic, currentRound, totalRounds, strings.Join(formatted, "\n\n"))
}

// BuildJudgePrompt composes the system prompt for the judge, including the
// participant list and the required JSON output contract.
func BuildJudgePrompt(topic string, agents []debate.AgentConfig, judge *debate.AgentConfig) string {
	participants := make([]string, 0, len(agents))
	for _, agent := range agents {
		participants = append(participants, fmt.Sprintf("- %s (%s)", agent.Name, agent.Stance))
	}

	prompt := fmt.Sprintf(`%s

DEBATE TOPIC: %s

PARTICIPANTS:
%s

TASK:
1. Score each participant 0-10 on: argument quality, logic, evidence, rebuttals, persuasiveness
2. Provide detailed reasoning for each score
3. Identify key arguments from each side
4. Declare the winner (highest score)

Respond in JSON format:
{
  "summary": "Overall debate analysis",
  "agent_scores": [
    {"agent_id": "...", "agent_name": "...", "score": 8.5, "reasoning": "..."}
  ],
  "winner_id": "...",
  "winner_name": "...",
  "key_arguments": ["...", "..."]
}`,
		judge.SystemPrompt, topic, strings.Join(participants, "\n"))

	return strings.TrimSpace(prompt)
}

// FormatHistoryForJudge renders the full transcript as the judge's user
// message
func FormatHistoryForJudge(history []debate.Message, topic string) string {
	formatted := make([]string, 0, len(history))
	for _, msg := range history {
		formatted = append(formatted, fmt.Sprintf("[Round %d, Turn %d] %s (%s):\n%s",
			msg.RoundNumber, msg.TurnNumber, msg.AgentName, msg.Stance, msg.Content))
	}

	return strings.TrimSpace(fmt.Sprintf(`DEBATE TOPIC: %s

FULL TRANSCRIPT:
%s

Please evaluate the debate and provide your judgment in the specified JSON format.`,
		topic, strings.Join(formatted, "\n\n---\n\n")))
}

// UserMessage wraps content as a single user-role chat message
func UserMessage(content string) []llm.ChatMessage {
	return []llm.ChatMessage{{Role: "user", Content: content}}
}
