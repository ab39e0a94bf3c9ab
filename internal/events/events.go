package events

import (
	"time"
)

// EventType identifies the kind of a debate event
type EventType string

const (
	EventConnectionEstablished EventType = "connection_established"
	EventDebateStarted         EventType = "debate_started"
	EventRoundStarted          EventType = "round_started"
	EventAgentThinking         EventType = "agent_thinking"
	EventMessageReceived       EventType = "message_received"
	EventTurnComplete          EventType = "turn_complete"
	EventRoundComplete         EventType = "round_complete"
	EventJudgingStarted        EventType = "judging_started"
	EventJudgeResult           EventType = "judge_result"
	EventDebateComplete        EventType = "debate_complete"
	EventError                 EventType = "error"
)

// Event is the envelope delivered to every subscriber of a debate topic
type Event struct {
	Type      EventType              `json:"type"`
	DebateID  string                 `json:"debate_id"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// New builds an event stamped with the current UTC time
func New(eventType EventType, debateID string, payload map[string]interface{}) Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return Event{
		Type:      eventType,
		DebateID:  debateID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}
