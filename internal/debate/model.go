package debate

import (
	"time"

	"github.com/neo/arbiter_backend/internal/types"
)

// ModelBinding identifies how to reach a concrete model: the provider tag,
// the model name and, where needed, a credential reference and endpoint
// override for local or OpenAI-compatible servers.
type ModelBinding struct {
	Provider     string `json:"provider" validate:"required"`
	ModelName    string `json:"model_name" validate:"required"`
	APIKeyEnvVar string `json:"api_key_env_var,omitempty"`
	Endpoint     string `json:"endpoint,omitempty"`
}

// String renders the binding as "provider/model_name" for transcripts
func (b ModelBinding) String() string {
	return b.Provider + "/" + b.ModelName
}

// AgentConfig holds the immutable configuration for one participant
type AgentConfig struct {
	AgentID      string          `json:"agent_id" validate:"required"`
	Name         string          `json:"name" validate:"required"`
	Stance       string          `json:"stance"`
	Role         types.AgentRole `json:"role" validate:"required"`
	SystemPrompt string          `json:"system_prompt"`
	Temperature  float64         `json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens    int             `json:"max_tokens" validate:"gte=1"`
	Model        ModelBinding    `json:"model" validate:"required"`
}

// DebateConfig is the immutable configuration a debate is created from
type DebateConfig struct {
	Topic       string        `json:"topic" validate:"required"`
	NumRounds   int           `json:"num_rounds" validate:"gte=1"`
	Agents      []AgentConfig `json:"agents" validate:"min=2,dive"`
	JudgeConfig *AgentConfig  `json:"judge_config,omitempty" validate:"omitempty"`
}

// AgentByID returns the debater with the given ID, or nil
func (c *DebateConfig) AgentByID(agentID string) *AgentConfig {
	for i := range c.Agents {
		if c.Agents[i].AgentID == agentID {
			return &c.Agents[i]
		}
	}
	return nil
}

// Message is a single committed contribution in a debate.
// Round numbers are 1-indexed; turn numbers are 0-indexed within a round.
type Message struct {
	AgentID     string    `json:"agent_id"`
	AgentName   string    `json:"agent_name"`
	Stance      string    `json:"stance"`
	RoundNumber int       `json:"round_number"`
	TurnNumber  int       `json:"turn_number"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

// AgentScore is the judge's score for a single debater
type AgentScore struct {
	AgentID   string  `json:"agent_id"`
	AgentName string  `json:"agent_name"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// JudgeResult is the judge's final evaluation of a completed debate
type JudgeResult struct {
	Summary      string       `json:"summary"`
	AgentScores  []AgentScore `json:"agent_scores"`
	WinnerID     string       `json:"winner_id"`
	WinnerName   string       `json:"winner_name"`
	KeyArguments []string     `json:"key_arguments"`
}

// ScoreForAgent returns the score assigned to the given agent, or 0
func (r *JudgeResult) ScoreForAgent(agentID string) float64 {
	for _, s := range r.AgentScores {
		if s.AgentID == agentID {
			return s.Score
		}
	}
	return 0
}

// DebateState is the full state of one debate. During execution it is
// mutated only by the owning manager task through the store; every other
// accessor works on deep-copied snapshots.
type DebateState struct {
	DebateID     string             `json:"debate_id"`
	Config       DebateConfig       `json:"config"`
	Status       types.DebateStatus `json:"status"`
	CurrentRound int                `json:"current_round"`
	CurrentTurn  int                `json:"current_turn"`
	History      []Message          `json:"history"`
	JudgeResult  *JudgeResult       `json:"judge_result,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	StartedAt    *time.Time         `json:"started_at,omitempty"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
}

// AddMessage appends a message to the history
func (s *DebateState) AddMessage(msg Message) {
	s.History = append(s.History, msg)
}

// Clone returns a deep copy of the state, safe to hand to concurrent readers
func (s *DebateState) Clone() *DebateState {
	out := *s

	out.Config.Agents = make([]AgentConfig, len(s.Config.Agents))
	copy(out.Config.Agents, s.Config.Agents)
	if s.Config.JudgeConfig != nil {
		judge := *s.Config.JudgeConfig
		out.Config.JudgeConfig = &judge
	}

	out.History = make([]Message, len(s.History))
	copy(out.History, s.History)

	if s.JudgeResult != nil {
		result := *s.JudgeResult
		result.AgentScores = make([]AgentScore, len(s.JudgeResult.AgentScores))
		copy(result.AgentScores, s.JudgeResult.AgentScores)
		result.KeyArguments = make([]string, len(s.JudgeResult.KeyArguments))
		copy(result.KeyArguments, s.JudgeResult.KeyArguments)
		out.JudgeResult = &result
	}

	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}

	return &out
}
