package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neo/arbiter_backend/internal/debate"
	"github.com/neo/arbiter_backend/internal/engine"
	"github.com/neo/arbiter_backend/internal/events"
	"github.com/neo/arbiter_backend/internal/llm"
	"github.com/neo/arbiter_backend/internal/store"
	"github.com/neo/arbiter_backend/internal/types"
)

// stubGateway answers every debater with canned text and the judge with a
// fixed JSON verdict
type stubGateway struct{}

func (stubGateway) Generate(ctx context.Context, binding debate.ModelBinding, systemPrompt string,
	messages []llm.ChatMessage, temperature float64, maxTokens int) (string, error) {

	if strings.Contains(systemPrompt, "TASK:") {
		return `{
		  "summary": "Pro wins.",
		  "agent_scores": [
		    {"agent_id": "pro", "agent_name": "Pro", "score": 8.0, "reasoning": "good"},
		    {"agent_id": "con", "agent_name": "Con", "score": 6.0, "reasoning": "ok"}
		  ],
		  "winner_id": "pro",
		  "winner_name": "Pro",
		  "key_arguments": ["air quality"]
		}`, nil
	}
	return "a canned argument", nil
}

func newTestServer(t *testing.T) (*Server, *engine.DebateManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	broadcaster := events.NewBroadcaster()
	manager := engine.NewDebateManager(store.NewMemoryStore(), stubGateway{}, broadcaster, nil,
		func(provider string) bool { return provider == "openai" || provider == "anthropic" })
	manager.SetTurnDelay(time.Millisecond)

	return NewServer(manager, broadcaster), manager
}

func wsDial(url string) (*websocket.Conn, *http.Response, error) {
	return websocket.DefaultDialer.Dial(url, nil)
}

func debateRequestBody() string {
	return `{
	  "topic": "Should cities ban private cars?",
	  "num_rounds": 1,
	  "agents": [
	    {"agent_id": "pro", "name": "Pro", "stance": "for", "role": "debater",
	     "system_prompt": "Argue in favor.", "temperature": 0.7, "max_tokens": 256,
	     "model": {"provider": "openai", "model_name": "gpt-4o"}},
	    {"agent_id": "con", "name": "Con", "stance": "against", "role": "debater",
	     "system_prompt": "Argue against.", "temperature": 0.7, "max_tokens": 256,
	     "model": {"provider": "openai", "model_name": "gpt-4o"}}
	  ],
	  "judge_config": {"agent_id": "judge", "name": "Judge", "role": "judge",
	    "system_prompt": "Evaluate.", "temperature": 0.2, "max_tokens": 1024,
	    "model": {"provider": "openai", "model_name": "gpt-4o"}}
	}`
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func createTestDebate(t *testing.T, s *Server) string {
	t.Helper()
	w := doRequest(s, http.MethodPost, "/api/debates", debateRequestBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Debate debate.DebateState `json:"debate"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Debate.DebateID)
	return resp.Debate.DebateID
}

func waitForStatus(t *testing.T, manager *engine.DebateManager, id string, want types.DebateStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		state, err := manager.GetDebate(id)
		return err == nil && state.Status == want
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCreateDebate(t *testing.T) {
	s, _ := newTestServer(t)
	id := createTestDebate(t, s)
	assert.NotEmpty(t, id)
}

func TestCreateDebateInvalidBody(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodPost, "/api/debates", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateDebateInvalidConfig(t *testing.T) {
	s, _ := newTestServer(t)
	body := strings.Replace(debateRequestBody(), `"agent_id": "con"`, `"agent_id": "pro"`, 1)

	w := doRequest(s, http.MethodPost, "/api/debates", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "duplicate")
}

func TestGetDebate(t *testing.T) {
	s, _ := newTestServer(t)
	id := createTestDebate(t, s)

	w := doRequest(s, http.MethodGet, "/api/debates/"+id, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id)

	w = doRequest(s, http.MethodGet, "/api/debates/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListDebates(t *testing.T) {
	s, _ := newTestServer(t)
	createTestDebate(t, s)
	createTestDebate(t, s)

	w := doRequest(s, http.MethodGet, "/api/debates", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestStartDebateLifecycle(t *testing.T) {
	s, manager := newTestServer(t)
	id := createTestDebate(t, s)

	w := doRequest(s, http.MethodPost, "/api/debates/"+id+"/start", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Second start conflicts regardless of how far the task has run
	w = doRequest(s, http.MethodPost, "/api/debates/"+id+"/start", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	waitForStatus(t, manager, id, types.StatusCompleted)

	w = doRequest(s, http.MethodGet, "/api/debates/"+id+"/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status struct {
		Status       string `json:"status"`
		CurrentRound int    `json:"current_round"`
		CurrentTurn  int    `json:"current_turn"`
		TotalRounds  int    `json:"total_rounds"`
		MessageCount int    `json:"message_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "completed", status.Status)
	assert.Equal(t, 1, status.TotalRounds)
	assert.Equal(t, 1, status.CurrentRound)
	assert.Equal(t, 1, status.CurrentTurn)
	assert.Equal(t, 2, status.MessageCount)
}

func TestStartUnknownDebate(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodPost, "/api/debates/missing/start", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportDebate(t *testing.T) {
	s, manager := newTestServer(t)
	id := createTestDebate(t, s)
	doRequest(s, http.MethodPost, "/api/debates/"+id+"/start", "")
	waitForStatus(t, manager, id, types.StatusCompleted)

	w := doRequest(s, http.MethodGet, "/api/debates/"+id+"/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	w = doRequest(s, http.MethodGet, "/api/debates/"+id+"/export?format=markdown", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, w.Body.String(), "# Debate:")

	w = doRequest(s, http.MethodGet, "/api/debates/"+id+"/export?format=text", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "DEBATE:")

	w = doRequest(s, http.MethodGet, "/api/debates/"+id+"/export?format=xml", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteDebate(t *testing.T) {
	s, _ := newTestServer(t)
	id := createTestDebate(t, s)

	w := doRequest(s, http.MethodDelete, "/api/debates/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(s, http.MethodGet, "/api/debates/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(s, http.MethodDelete, "/api/debates/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListProviders(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodGet, "/api/providers", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "anthropic")
	assert.Contains(t, w.Body.String(), "openai")
	assert.Contains(t, w.Body.String(), "ollama")
}

func TestListPersonas(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(s, http.MethodGet, "/api/personas", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Personas []struct {
			PersonaID            string `json:"persona_id"`
			DebateStyle          string `json:"debate_style"`
			SystemPromptTemplate string `json:"system_prompt_template"`
		} `json:"personas"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, len(resp.Personas), resp.Total)
	assert.GreaterOrEqual(t, resp.Total, 8)
	for _, p := range resp.Personas {
		assert.NotEmpty(t, p.PersonaID)
		assert.Contains(t, p.SystemPromptTemplate, "{stance}")
	}
}

func TestWebSocketStreamsDebate(t *testing.T) {
	s, manager := newTestServer(t)
	id := createTestDebate(t, s)

	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws/" + id
	conn, _, err := wsDial(wsURL)
	require.NoError(t, err)
	defer conn.Close()

	var hello events.Event
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, events.EventConnectionEstablished, hello.Type)
	assert.Equal(t, "created", fmt.Sprintf("%v", hello.Payload["status"]))

	doRequest(s, http.MethodPost, "/api/debates/"+id+"/start", "")
	waitForStatus(t, manager, id, types.StatusCompleted)

	var got []events.EventType
	for {
		var event events.Event
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&event); err != nil {
			break
		}
		got = append(got, event.Type)
		if event.Type == events.EventDebateComplete {
			break
		}
	}

	assert.Contains(t, got, events.EventDebateStarted)
	assert.Contains(t, got, events.EventMessageReceived)
	assert.Contains(t, got, events.EventJudgeResult)
	assert.Equal(t, events.EventDebateComplete, got[len(got)-1])
}

func TestWebSocketUnknownDebate(t *testing.T) {
	s, _ := newTestServer(t)

	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws/missing"
	_, resp, err := wsDial(wsURL)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
