package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neo/arbiter_backend/internal/debate"
	"github.com/neo/arbiter_backend/internal/events"
	"github.com/neo/arbiter_backend/internal/llm"
	"github.com/neo/arbiter_backend/internal/store"
	"github.com/neo/arbiter_backend/internal/types"
)

// fakeGateway scripts responses per provider/model binding and records calls
type fakeGateway struct {
	mu       sync.Mutex
	calls    int
	generate func(call int, binding debate.ModelBinding, systemPrompt string) (string, error)
}

func (g *fakeGateway) Generate(ctx context.Context, binding debate.ModelBinding, systemPrompt string,
	messages []llm.ChatMessage, temperature float64, maxTokens int) (string, error) {

	if err := ctx.Err(); err != nil {
		return "", &llm.Error{Kind: llm.KindCancelled, Provider: binding.Provider, Model: binding.ModelName, Err: err}
	}

	g.mu.Lock()
	call := g.calls
	g.calls++
	g.mu.Unlock()

	return g.generate(call, binding, systemPrompt)
}

func scriptedDebater(judgeResponse string) *fakeGateway {
	return &fakeGateway{
		generate: func(call int, binding debate.ModelBinding, systemPrompt string) (string, error) {
			if strings.Contains(systemPrompt, "TASK:") {
				return judgeResponse, nil
			}
			return fmt.Sprintf("argument %d from %s", call, binding.ModelName), nil
		},
	}
}

func testJudgeResponse() string {
	return `{
	  "summary": "Pro was more convincing.",
	  "agent_scores": [
	    {"agent_id": "pro", "agent_name": "Pro", "score": 8.0, "reasoning": "solid"},
	    {"agent_id": "con", "agent_name": "Con", "score": 6.0, "reasoning": "thin"}
	  ],
	  "winner_id": "pro",
	  "winner_name": "Pro",
	  "key_arguments": ["air quality"]
	}`
}

func testConfig(numRounds int, withJudge bool) debate.DebateConfig {
	config := debate.DebateConfig{
		Topic:     "Should cities ban private cars?",
		NumRounds: numRounds,
		Agents: []debate.AgentConfig{
			{AgentID: "pro", Name: "Pro", Stance: "for", Role: types.RoleDebater,
				SystemPrompt: "Argue in favor.", Temperature: 0.7, MaxTokens: 256,
				Model: debate.ModelBinding{Provider: "openai", ModelName: "model-pro"}},
			{AgentID: "con", Name: "Con", Stance: "against", Role: types.RoleDebater,
				SystemPrompt: "Argue against.", Temperature: 0.7, MaxTokens: 256,
				Model: debate.ModelBinding{Provider: "openai", ModelName: "model-con"}},
		},
	}
	if withJudge {
		config.JudgeConfig = &debate.AgentConfig{
			AgentID: "judge", Name: "Judge", Role: types.RoleJudge,
			SystemPrompt: "Evaluate.", Temperature: 0.2, MaxTokens: 1024,
			Model: debate.ModelBinding{Provider: "openai", ModelName: "model-judge"},
		}
	}
	return config
}

func newTestManager(gateway llm.Gateway) (*DebateManager, *events.Broadcaster) {
	broadcaster := events.NewBroadcaster()
	manager := NewDebateManager(store.NewMemoryStore(), gateway, broadcaster, nil,
		func(provider string) bool { return provider == "openai" })
	manager.turnDelay = time.Millisecond
	return manager, broadcaster
}

func waitForTerminal(t *testing.T, manager *DebateManager, debateID string) *debate.DebateState {
	t.Helper()
	var final *debate.DebateState
	require.Eventually(t, func() bool {
		state, err := manager.GetDebate(debateID)
		if err != nil {
			return false
		}
		if state.Status.IsTerminal() {
			final = state
			return true
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	return final
}

// waitForLog waits until the debate's event log has been sealed with the
// expected terminal event, which is published after the terminal commit
func waitForLog(t *testing.T, broadcaster *events.Broadcaster, debateID string, terminal events.EventType) []events.Event {
	t.Helper()
	var log []events.Event
	require.Eventually(t, func() bool {
		log = broadcaster.EventLog(debateID)
		return len(log) > 0 && log[len(log)-1].Type == terminal
	}, 5*time.Second, 10*time.Millisecond)
	return log
}

func eventTypes(log []events.Event) []events.EventType {
	out := make([]events.EventType, 0, len(log))
	for _, event := range log {
		out = append(out, event.Type)
	}
	return out
}

func TestHappyPathWithJudge(t *testing.T) {
	manager, broadcaster := newTestManager(scriptedDebater(testJudgeResponse()))

	created, err := manager.CreateDebate(testConfig(2, true))
	require.NoError(t, err)
	assert.Equal(t, types.StatusCreated, created.Status)

	started, err := manager.StartDebate(created.DebateID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, started.Status)
	require.NotNil(t, started.StartedAt)

	final := waitForTerminal(t, manager, created.DebateID)
	assert.Equal(t, types.StatusCompleted, final.Status)
	require.NotNil(t, final.CompletedAt)
	require.Len(t, final.History, 4, "2 rounds x 2 agents")

	// History ordered by (round, turn) with agents in config order
	expected := []struct {
		agentID     string
		round, turn int
	}{
		{"pro", 1, 0}, {"con", 1, 1}, {"pro", 2, 0}, {"con", 2, 1},
	}
	for i, want := range expected {
		assert.Equal(t, want.agentID, final.History[i].AgentID)
		assert.Equal(t, want.round, final.History[i].RoundNumber)
		assert.Equal(t, want.turn, final.History[i].TurnNumber)
	}

	require.NotNil(t, final.JudgeResult)
	assert.Equal(t, "pro", final.JudgeResult.WinnerID)

	got := eventTypes(waitForLog(t, broadcaster, created.DebateID, events.EventDebateComplete))
	assert.Equal(t, []events.EventType{
		events.EventDebateStarted,
		events.EventRoundStarted,
		events.EventAgentThinking, events.EventMessageReceived, events.EventTurnComplete,
		events.EventAgentThinking, events.EventMessageReceived, events.EventTurnComplete,
		events.EventRoundComplete,
		events.EventRoundStarted,
		events.EventAgentThinking, events.EventMessageReceived, events.EventTurnComplete,
		events.EventAgentThinking, events.EventMessageReceived, events.EventTurnComplete,
		events.EventRoundComplete,
		events.EventJudgingStarted,
		events.EventJudgeResult,
		events.EventDebateComplete,
	}, got)
}

func TestJudgelessDebateCompletes(t *testing.T) {
	manager, broadcaster := newTestManager(scriptedDebater(""))

	created, err := manager.CreateDebate(testConfig(1, false))
	require.NoError(t, err)
	_, err = manager.StartDebate(created.DebateID)
	require.NoError(t, err)

	final := waitForTerminal(t, manager, created.DebateID)
	assert.Equal(t, types.StatusCompleted, final.Status)
	assert.Nil(t, final.JudgeResult)

	got := eventTypes(waitForLog(t, broadcaster, created.DebateID, events.EventDebateComplete))
	assert.NotContains(t, got, events.EventJudgingStarted)
	assert.NotContains(t, got, events.EventJudgeResult)
	assert.Equal(t, events.EventDebateComplete, got[len(got)-1])
}

func TestStartIsExactlyOnce(t *testing.T) {
	manager, _ := newTestManager(scriptedDebater(""))

	created, err := manager.CreateDebate(testConfig(1, false))
	require.NoError(t, err)

	_, err = manager.StartDebate(created.DebateID)
	require.NoError(t, err)

	_, err = manager.StartDebate(created.DebateID)
	assert.ErrorIs(t, err, debate.ErrInvalidTransition)

	final := waitForTerminal(t, manager, created.DebateID)
	_, err = manager.StartDebate(final.DebateID)
	assert.ErrorIs(t, err, debate.ErrInvalidTransition)
}

func TestStartUnknownDebate(t *testing.T) {
	manager, _ := newTestManager(scriptedDebater(""))
	_, err := manager.StartDebate("missing")
	assert.ErrorIs(t, err, debate.ErrNotFound)
}

func TestCreateRejectsInvalidConfig(t *testing.T) {
	manager, _ := newTestManager(scriptedDebater(""))

	config := testConfig(1, false)
	config.Agents[1].AgentID = "pro"
	_, err := manager.CreateDebate(config)
	require.Error(t, err)
	assert.True(t, debate.IsInvalidConfig(err))
}

func TestAgentFailureFailsDebate(t *testing.T) {
	upstream := &llm.Error{Kind: llm.KindUnavailable, Provider: "openai", Model: "model-con",
		Err: errors.New("503 service unavailable")}
	gateway := &fakeGateway{
		generate: func(call int, binding debate.ModelBinding, systemPrompt string) (string, error) {
			if binding.ModelName == "model-con" {
				return "", upstream
			}
			return "an argument", nil
		},
	}
	manager, broadcaster := newTestManager(gateway)

	created, err := manager.CreateDebate(testConfig(2, true))
	require.NoError(t, err)
	_, err = manager.StartDebate(created.DebateID)
	require.NoError(t, err)

	final := waitForTerminal(t, manager, created.DebateID)
	assert.Equal(t, types.StatusFailed, final.Status)
	assert.Contains(t, final.ErrorMessage, "con")
	require.NotNil(t, final.CompletedAt)

	// The failing turn committed nothing: only pro's round-1 message exists
	require.Len(t, final.History, 1)
	assert.Equal(t, "pro", final.History[0].AgentID)
	assert.Nil(t, final.JudgeResult)

	got := eventTypes(waitForLog(t, broadcaster, created.DebateID, events.EventError))
	assert.NotContains(t, got, events.EventDebateComplete)
	// The failing turn's announcement still precedes the error
	assert.Contains(t, got, events.EventAgentThinking)
}

func TestJudgeUnparseableFailsDebate(t *testing.T) {
	manager, _ := newTestManager(scriptedDebater("I refuse to answer in JSON."))

	created, err := manager.CreateDebate(testConfig(1, true))
	require.NoError(t, err)
	_, err = manager.StartDebate(created.DebateID)
	require.NoError(t, err)

	final := waitForTerminal(t, manager, created.DebateID)
	assert.Equal(t, types.StatusFailed, final.Status)
	assert.Contains(t, final.ErrorMessage, "judging failed")
	assert.Nil(t, final.JudgeResult)
	// The transcript survives even though judging failed
	assert.Len(t, final.History, 2)
}

func TestDeleteCancelsRunningDebate(t *testing.T) {
	release := make(chan struct{})
	gateway := &fakeGateway{
		generate: func(call int, binding debate.ModelBinding, systemPrompt string) (string, error) {
			if call == 0 {
				return "opening", nil
			}
			<-release
			return "", &llm.Error{Kind: llm.KindCancelled, Err: context.Canceled}
		},
	}
	manager, broadcaster := newTestManager(gateway)

	created, err := manager.CreateDebate(testConfig(3, false))
	require.NoError(t, err)
	_, err = manager.StartDebate(created.DebateID)
	require.NoError(t, err)

	// Wait for the first turn to commit, then delete mid-flight
	require.Eventually(t, func() bool {
		state, err := manager.GetDebate(created.DebateID)
		return err == nil && len(state.History) >= 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, manager.DeleteDebate(created.DebateID))
	close(release)

	_, err = manager.GetDebate(created.DebateID)
	assert.ErrorIs(t, err, debate.ErrNotFound)
	assert.Nil(t, broadcaster.EventLog(created.DebateID))

	// The manager goroutine exits without recreating any state, and its
	// racing publishes must not bring the removed topic back
	require.Eventually(t, func() bool {
		manager.mu.Lock()
		defer manager.mu.Unlock()
		return len(manager.running) == 0
	}, 5*time.Second, 10*time.Millisecond)
	_, err = manager.GetDebate(created.DebateID)
	assert.ErrorIs(t, err, debate.ErrNotFound)
	assert.Nil(t, broadcaster.EventLog(created.DebateID))
}

func TestDeleteUnknownDebate(t *testing.T) {
	manager, _ := newTestManager(scriptedDebater(""))
	assert.ErrorIs(t, manager.DeleteDebate("missing"), debate.ErrNotFound)
}

func TestLateSubscriberSeesFullLog(t *testing.T) {
	manager, broadcaster := newTestManager(scriptedDebater(testJudgeResponse()))

	created, err := manager.CreateDebate(testConfig(1, true))
	require.NoError(t, err)
	_, err = manager.StartDebate(created.DebateID)
	require.NoError(t, err)

	waitForTerminal(t, manager, created.DebateID)

	// Subscribe after completion: replay everything, then end of stream
	sub := broadcaster.Subscribe(created.DebateID)
	var got []events.EventType
	for event := range sub.Events {
		got = append(got, event.Type)
	}

	assert.Equal(t, events.EventDebateStarted, got[0])
	assert.Equal(t, events.EventDebateComplete, got[len(got)-1])
	assert.Contains(t, got, events.EventJudgeResult)
}

func TestConcurrentDebatesAreIndependent(t *testing.T) {
	manager, _ := newTestManager(scriptedDebater(testJudgeResponse()))

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		created, err := manager.CreateDebate(testConfig(1, true))
		require.NoError(t, err)
		_, err = manager.StartDebate(created.DebateID)
		require.NoError(t, err)
		ids = append(ids, created.DebateID)
	}

	for _, id := range ids {
		final := waitForTerminal(t, manager, id)
		assert.Equal(t, types.StatusCompleted, final.Status)
		assert.Len(t, final.History, 2)
	}
}

// archiveRecorder captures terminal snapshots handed to the archive
type archiveRecorder struct {
	mu     sync.Mutex
	states []*debate.DebateState
}

func (a *archiveRecorder) SaveDebate(state *debate.DebateState) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.states = append(a.states, state)
	return nil
}

func TestTerminalSnapshotIsArchived(t *testing.T) {
	recorder := &archiveRecorder{}
	broadcaster := events.NewBroadcaster()
	manager := NewDebateManager(store.NewMemoryStore(), scriptedDebater(testJudgeResponse()),
		broadcaster, recorder, func(string) bool { return true })
	manager.turnDelay = time.Millisecond

	created, err := manager.CreateDebate(testConfig(1, true))
	require.NoError(t, err)
	_, err = manager.StartDebate(created.DebateID)
	require.NoError(t, err)

	waitForTerminal(t, manager, created.DebateID)

	require.Eventually(t, func() bool {
		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		return len(recorder.states) == 1
	}, 5*time.Second, 10*time.Millisecond)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.Equal(t, created.DebateID, recorder.states[0].DebateID)
	assert.Equal(t, types.StatusCompleted, recorder.states[0].Status)
}
