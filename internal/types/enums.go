package types

import (
	"fmt"
)

// DebateStatus represents the lifecycle state of a debate
type DebateStatus string

const (
	StatusCreated    DebateStatus = "created"     // Configured but not started
	StatusInProgress DebateStatus = "in_progress" // Background task is running
	StatusCompleted  DebateStatus = "completed"   // All rounds done, judging finished
	StatusFailed     DebateStatus = "failed"      // Terminated with an error
)

// AgentRole represents the role of an agent in a debate
type AgentRole string

const (
	RoleDebater AgentRole = "debater"
	RoleJudge   AgentRole = "judge"
)

// ExportFormat represents a supported transcript export format
type ExportFormat string

const (
	ExportJSON     ExportFormat = "json"
	ExportMarkdown ExportFormat = "markdown"
	ExportText     ExportFormat = "text"
)

var (
	// AllDebateStatuses contains all valid debate statuses
	AllDebateStatuses = []DebateStatus{
		StatusCreated,
		StatusInProgress,
		StatusCompleted,
		StatusFailed,
	}

	// AllExportFormats contains all valid export formats
	AllExportFormats = []ExportFormat{
		ExportJSON,
		ExportMarkdown,
		ExportText,
	}

	// debateStatusMap maps string values to DebateStatus
	debateStatusMap = map[string]DebateStatus{
		string(StatusCreated):    StatusCreated,
		string(StatusInProgress): StatusInProgress,
		string(StatusCompleted):  StatusCompleted,
		string(StatusFailed):     StatusFailed,
	}

	// agentRoleMap maps string values to AgentRole
	agentRoleMap = map[string]AgentRole{
		string(RoleDebater): RoleDebater,
		string(RoleJudge):   RoleJudge,
	}

	// exportFormatMap maps string values to ExportFormat
	exportFormatMap = map[string]ExportFormat{
		string(ExportJSON):     ExportJSON,
		string(ExportMarkdown): ExportMarkdown,
		string(ExportText):     ExportText,
	}
)

// Error types for invalid values
var (
	ErrInvalidDebateStatus = fmt.Errorf("invalid debate status")
	ErrInvalidAgentRole    = fmt.Errorf("invalid agent role")
	ErrInvalidExportFormat = fmt.Errorf("invalid export format")
)

// IsValid checks if the DebateStatus is valid
func (s DebateStatus) IsValid() bool {
	_, ok := debateStatusMap[string(s)]
	return ok
}

// IsTerminal reports whether the status is a terminal state
func (s DebateStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// String converts the enum to string
func (s DebateStatus) String() string {
	return string(s)
}

// ParseDebateStatus parses a string into a DebateStatus
func ParseDebateStatus(s string) (DebateStatus, error) {
	if status, ok := debateStatusMap[s]; ok {
		return status, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidDebateStatus, s)
}

// IsValid checks if the AgentRole is valid
func (r AgentRole) IsValid() bool {
	_, ok := agentRoleMap[string(r)]
	return ok
}

// String converts the enum to string
func (r AgentRole) String() string {
	return string(r)
}

// ParseAgentRole parses a string into an AgentRole
func ParseAgentRole(s string) (AgentRole, error) {
	if role, ok := agentRoleMap[s]; ok {
		return role, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidAgentRole, s)
}

// IsValid checks if the ExportFormat is valid
func (f ExportFormat) IsValid() bool {
	_, ok := exportFormatMap[string(f)]
	return ok
}

// String converts the enum to string
func (f ExportFormat) String() string {
	return string(f)
}

// ParseExportFormat parses a string into an ExportFormat
func ParseExportFormat(s string) (ExportFormat, error) {
	if format, ok := exportFormatMap[s]; ok {
		return format, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidExportFormat, s)
}
