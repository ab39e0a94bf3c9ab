// Package engine contains the debate lifecycle: creation, the single
// background task that drives rounds and judging, and cancellation.
//
// Each running debate is owned by exactly one goroutine. All state changes
// go through the store, all progress is announced on the broadcaster, and a
// debate reaches exactly one terminal status.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/neo/arbiter_backend/internal/debate"
	"github.com/neo/arbiter_backend/internal/events"
	"github.com/neo/arbiter_backend/internal/llm"
	"github.com/neo/arbiter_backend/internal/logging"
	"github.com/neo/arbiter_backend/internal/prompt"
	"github.com/neo/arbiter_backend/internal/store"
	"github.com/neo/arbiter_backend/internal/types"
)

// defaultTurnDelay paces consecutive turns so streamed debates read naturally
const defaultTurnDelay = 1 * time.Second

// Archiver receives terminal debate snapshots for durable storage. A nil
// archiver disables archiving.
type Archiver interface {
	SaveDebate(state *debate.DebateState) error
}

// ProviderCheck reports whether a provider tag is known to the catalog
type ProviderCheck func(provider string) bool

// DebateManager owns debate lifecycles. It is safe for concurrent use by
// HTTP handlers; per-debate execution is serialized on the debate's own
// manager goroutine.
type DebateManager struct {
	store         store.Store
	gateway       llm.Gateway
	broadcaster   *events.Broadcaster
	executor      *TurnExecutor
	archive       Archiver
	providerCheck ProviderCheck

	mu      sync.Mutex
	running map[string]context.CancelFunc

	// turnDelay is the pause between consecutive turns; shortened in tests
	turnDelay time.Duration
}

// NewDebateManager wires a manager over the shared components. archive may
// be nil.
func NewDebateManager(st store.Store, gateway llm.Gateway, broadcaster *events.Broadcaster,
	archive Archiver, providerCheck ProviderCheck) *DebateManager {

	return &DebateManager{
		store:         st,
		gateway:       gateway,
		broadcaster:   broadcaster,
		executor:      NewTurnExecutor(st, gateway, broadcaster),
		archive:       archive,
		providerCheck: providerCheck,
		running:       make(map[string]context.CancelFunc),
		turnDelay:     defaultTurnDelay,
	}
}

// SetTurnDelay overrides the pause between consecutive turns
func (m *DebateManager) SetTurnDelay(d time.Duration) {
	m.turnDelay = d
}

// CreateDebate validates the configuration and persists a new CREATED debate
func (m *DebateManager) CreateDebate(config debate.DebateConfig) (*debate.DebateState, error) {
	if err := debate.ValidateConfig(&config, debate.ProviderCheck(m.providerCheck)); err != nil {
		return nil, err
	}

	state, err := m.store.Create(config)
	if err != nil {
		return nil, err
	}

	logging.LogDebateEvent("debate_created", state.DebateID, map[string]interface{}{
		"topic":      config.Topic,
		"num_rounds": config.NumRounds,
		"agents":     len(config.Agents),
		"has_judge":  config.JudgeConfig != nil,
	})
	return state, nil
}

// GetDebate returns a snapshot of the debate
func (m *DebateManager) GetDebate(debateID string) (*debate.DebateState, error) {
	return m.store.Get(debateID)
}

// ListDebates returns snapshots of all debates ordered by creation time
func (m *DebateManager) ListDebates() []*debate.DebateState {
	return m.store.List()
}

// StartDebate transitions the debate from CREATED to IN_PROGRESS and launches
// its manager task. A debate can be started exactly once; any other current
// status yields ErrInvalidTransition.
func (m *DebateManager) StartDebate(debateID string) (*debate.DebateState, error) {
	state, err := m.store.Update(debateID, func(s *debate.DebateState) error {
		if s.Status != types.StatusCreated {
			return fmt.Errorf("%w: cannot start debate in status %s", debate.ErrInvalidTransition, s.Status)
		}
		now := time.Now().UTC()
		s.Status = types.StatusInProgress
		s.StartedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.running[debateID] = cancel
	m.mu.Unlock()

	// The topic must exist before the task publishes; publish itself never
	// creates one, so a deleted debate cannot leave an orphan topic behind
	m.broadcaster.Open(debateID)
	go m.runDebate(ctx, debateID)

	logging.LogDebateEvent("debate_started", debateID, nil)
	return state, nil
}

// DeleteDebate cancels any running task, removes the record and drops the
// event topic
func (m *DebateManager) DeleteDebate(debateID string) error {
	m.mu.Lock()
	if cancel, active := m.running[debateID]; active {
		cancel()
		delete(m.running, debateID)
	}
	m.mu.Unlock()

	if err := m.store.Delete(debateID); err != nil {
		return err
	}
	m.broadcaster.Remove(debateID)

	logging.LogDebateEvent("debate_deleted", debateID, nil)
	return nil
}

// Shutdown cancels every running debate task
func (m *DebateManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cancel := range m.running {
		cancel()
		delete(m.running, id)
	}
}

// runDebate is the single manager task for one debate. It drives every round
// and turn in order, invokes the judge, and commits exactly one terminal
// status before closing the event topic.
func (m *DebateManager) runDebate(ctx context.Context, debateID string) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Debate task panicked", map[string]interface{}{
				"debate_id": debateID,
				"panic":     fmt.Sprintf("%v", r),
			})
			m.failDebate(debateID, fmt.Errorf("internal error: %v", r))
		}
		m.mu.Lock()
		delete(m.running, debateID)
		m.mu.Unlock()
	}()

	snapshot, err := m.store.Get(debateID)
	if err != nil {
		// Deleted between start and launch; nothing to announce
		return
	}
	config := snapshot.Config

	agentSummaries := make([]map[string]interface{}, 0, len(config.Agents))
	for _, agent := range config.Agents {
		agentSummaries = append(agentSummaries, map[string]interface{}{
			"agent_id": agent.AgentID,
			"name":     agent.Name,
			"stance":   agent.Stance,
		})
	}
	m.broadcaster.Publish(debateID, events.New(events.EventDebateStarted, debateID, map[string]interface{}{
		"topic":      config.Topic,
		"num_rounds": config.NumRounds,
		"num_agents": len(config.Agents),
		"agents":     agentSummaries,
	}))

	totalTurns := config.NumRounds * len(config.Agents)
	turnsDone := 0

	for round := 1; round <= config.NumRounds; round++ {
		m.broadcaster.Publish(debateID, events.New(events.EventRoundStarted, debateID, map[string]interface{}{
			"round_number": round,
			"total_rounds": config.NumRounds,
		}))

		for turn := range config.Agents {
			agent := &config.Agents[turn]
			if _, err := m.executor.ExecuteTurn(ctx, debateID, agent, round, turn, config.NumRounds); err != nil {
				if llm.IsCancelled(err) || ctx.Err() != nil {
					logging.LogDebateEvent("debate_cancelled", debateID, map[string]interface{}{
						"round": round,
						"turn":  turn,
					})
					return
				}
				m.failDebate(debateID, fmt.Errorf("agent %s failed in round %d: %w", agent.AgentID, round, err))
				return
			}

			turnsDone++
			if turnsDone < totalTurns {
				select {
				case <-time.After(m.turnDelay):
				case <-ctx.Done():
					return
				}
			}
		}

		m.broadcaster.Publish(debateID, events.New(events.EventRoundComplete, debateID, map[string]interface{}{
			"round_number": round,
		}))
	}

	var result *debate.JudgeResult
	if config.JudgeConfig != nil {
		result, err = m.runJudging(ctx, debateID, &config)
		if err != nil {
			if llm.IsCancelled(err) || ctx.Err() != nil {
				return
			}
			m.failDebate(debateID, fmt.Errorf("judging failed: %w", err))
			return
		}
	}

	final, err := m.store.Update(debateID, func(s *debate.DebateState) error {
		now := time.Now().UTC()
		s.Status = types.StatusCompleted
		s.CompletedAt = &now
		s.JudgeResult = result
		return nil
	})
	if err != nil {
		// Deleted mid-flight; the topic is gone with it
		return
	}

	completePayload := map[string]interface{}{
		"winner_id":      "",
		"winner_name":    "",
		"total_messages": len(final.History),
	}
	if result != nil {
		completePayload["winner_id"] = result.WinnerID
		completePayload["winner_name"] = result.WinnerName
	}
	m.broadcaster.Publish(debateID, events.New(events.EventDebateComplete, debateID, completePayload))
	m.broadcaster.CloseTopic(debateID)

	m.archiveSnapshot(final)

	logging.LogDebateEvent("debate_complete", debateID, map[string]interface{}{
		"messages": len(final.History),
		"judged":   result != nil,
	})
}

// runJudging asks the judge model for an evaluation of the full transcript
// and parses it into a JudgeResult
func (m *DebateManager) runJudging(ctx context.Context, debateID string, config *debate.DebateConfig) (*debate.JudgeResult, error) {
	judge := config.JudgeConfig

	snapshot, err := m.store.Get(debateID)
	if err != nil {
		return nil, err
	}

	m.broadcaster.Publish(debateID, events.New(events.EventJudgingStarted, debateID, map[string]interface{}{
		"judge_id":      judge.AgentID,
		"judge_name":    judge.Name,
		"message_count": len(snapshot.History),
	}))
	logging.LogDebateEvent("judging_started", debateID, map[string]interface{}{
		"judge_id": judge.AgentID,
	})

	systemPrompt := prompt.BuildJudgePrompt(config.Topic, config.Agents, judge)
	transcript := prompt.FormatHistoryForJudge(snapshot.History, config.Topic)

	responseText, err := m.gateway.Generate(ctx, judge.Model, systemPrompt,
		prompt.UserMessage(transcript), judge.Temperature, judge.MaxTokens)
	if err != nil {
		return nil, err
	}

	result, err := prompt.ParseJudgeResponse(responseText, config.Agents)
	if err != nil {
		return nil, err
	}

	m.broadcaster.Publish(debateID, events.New(events.EventJudgeResult, debateID, map[string]interface{}{
		"summary":       result.Summary,
		"agent_scores":  result.AgentScores,
		"winner_id":     result.WinnerID,
		"winner_name":   result.WinnerName,
		"key_arguments": result.KeyArguments,
	}))
	return result, nil
}

// failDebate commits the FAILED terminal status and announces the error.
// The commit is skipped if the debate was deleted meanwhile.
func (m *DebateManager) failDebate(debateID string, cause error) {
	logging.Error("Debate failed", map[string]interface{}{
		"debate_id": debateID,
		"error":     cause.Error(),
	})

	final, err := m.store.Update(debateID, func(s *debate.DebateState) error {
		if s.Status.IsTerminal() {
			return fmt.Errorf("%w: debate already %s", debate.ErrInvalidTransition, s.Status)
		}
		now := time.Now().UTC()
		s.Status = types.StatusFailed
		s.ErrorMessage = cause.Error()
		s.CompletedAt = &now
		return nil
	})
	if err != nil {
		if !errors.Is(err, debate.ErrNotFound) {
			logging.Error("Failed to record debate failure", map[string]interface{}{
				"debate_id": debateID,
				"error":     err.Error(),
			})
		}
		return
	}

	kind := string(llm.KindOf(cause))
	if kind == "" {
		kind = "internal"
	}
	// The error event is terminal on the stream; debate_complete is reserved
	// for successful completion
	m.broadcaster.Publish(debateID, events.New(events.EventError, debateID, map[string]interface{}{
		"error_kind":    kind,
		"error_message": cause.Error(),
	}))
	m.broadcaster.CloseTopic(debateID)

	m.archiveSnapshot(final)
}

func (m *DebateManager) archiveSnapshot(state *debate.DebateState) {
	if m.archive == nil || state == nil {
		return
	}
	if err := m.archive.SaveDebate(state); err != nil {
		logging.Warn("Failed to archive debate", map[string]interface{}{
			"debate_id": state.DebateID,
			"error":     err.Error(),
		})
	}
}
