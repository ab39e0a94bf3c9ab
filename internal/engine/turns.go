package engine

import (
	"context"
	"time"

	"github.com/neo/arbiter_backend/internal/debate"
	"github.com/neo/arbiter_backend/internal/events"
	"github.com/neo/arbiter_backend/internal/llm"
	"github.com/neo/arbiter_backend/internal/logging"
	"github.com/neo/arbiter_backend/internal/prompt"
	"github.com/neo/arbiter_backend/internal/store"
)

// TurnExecutor runs one agent turn end to end: announce, snapshot, prompt,
// generate, commit, announce again. The transcript commit and the events are
// driven from the same committed message, so observers never see content
// that is not in the store.
type TurnExecutor struct {
	store       store.Store
	gateway     llm.Gateway
	broadcaster *events.Broadcaster
}

// NewTurnExecutor wires a turn executor over the shared store, gateway and
// broadcaster
func NewTurnExecutor(st store.Store, gateway llm.Gateway, broadcaster *events.Broadcaster) *TurnExecutor {
	return &TurnExecutor{
		store:       st,
		gateway:     gateway,
		broadcaster: broadcaster,
	}
}

// ExecuteTurn produces and commits one message for the given agent.
// roundNumber is 1-indexed, turnNumber is 0-indexed within the round.
// On failure nothing is committed and the error carries the gateway's
// normalized kind.
func (e *TurnExecutor) ExecuteTurn(ctx context.Context, debateID string, agent *debate.AgentConfig,
	roundNumber, turnNumber, totalRounds int) (*debate.Message, error) {

	e.broadcaster.Publish(debateID, events.New(events.EventAgentThinking, debateID, map[string]interface{}{
		"agent_id":     agent.AgentID,
		"agent_name":   agent.Name,
		"round_number": roundNumber,
		"turn_number":  turnNumber,
	}))

	logging.LogAgentEvent("turn_started", agent.AgentID, debateID, map[string]interface{}{
		"round": roundNumber,
		"turn":  turnNumber,
	})

	// Snapshot the transcript so far; the manager is the only writer, so
	// the history cannot move under us between here and the commit
	snapshot, err := e.store.Get(debateID)
	if err != nil {
		return nil, err
	}

	systemPrompt := prompt.BuildDebaterPrompt(agent, snapshot.Config.Topic, roundNumber, totalRounds)
	historyContext := prompt.FormatHistoryContext(snapshot.History, snapshot.Config.Topic, roundNumber, totalRounds)

	content, err := e.gateway.Generate(ctx, agent.Model, systemPrompt,
		prompt.UserMessage(historyContext), agent.Temperature, agent.MaxTokens)
	if err != nil {
		return nil, err
	}

	message := debate.Message{
		AgentID:     agent.AgentID,
		AgentName:   agent.Name,
		Stance:      agent.Stance,
		RoundNumber: roundNumber,
		TurnNumber:  turnNumber,
		Content:     content,
		Timestamp:   time.Now().UTC(),
	}

	if _, err := e.store.Update(debateID, func(state *debate.DebateState) error {
		state.AddMessage(message)
		state.CurrentRound = roundNumber
		state.CurrentTurn = turnNumber
		return nil
	}); err != nil {
		return nil, err
	}

	e.broadcaster.Publish(debateID, events.New(events.EventMessageReceived, debateID, map[string]interface{}{
		"agent_id":     message.AgentID,
		"agent_name":   message.AgentName,
		"stance":       message.Stance,
		"round_number": message.RoundNumber,
		"turn_number":  message.TurnNumber,
		"content":      message.Content,
		"timestamp":    message.Timestamp,
	}))
	e.broadcaster.Publish(debateID, events.New(events.EventTurnComplete, debateID, map[string]interface{}{
		"agent_id":     message.AgentID,
		"round_number": roundNumber,
		"turn_number":  turnNumber,
	}))

	logging.LogAgentEvent("turn_complete", agent.AgentID, debateID, map[string]interface{}{
		"round":  roundNumber,
		"turn":   turnNumber,
		"length": len(content),
	})

	return &message, nil
}
