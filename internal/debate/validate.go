package debate

import (
	"github.com/go-playground/validator/v10"

	"github.com/neo/arbiter_backend/internal/types"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ProviderCheck reports whether a provider tag is known to the catalog.
// Bindings with an endpoint override bypass the check (local pass-through).
type ProviderCheck func(provider string) bool

// ValidateConfig checks a DebateConfig at the ingress boundary. It returns
// an *InvalidConfigError describing the first violation found, so the engine
// never has to re-validate deep inside execution.
func ValidateConfig(config *DebateConfig, knownProvider ProviderCheck) error {
	if err := validate.Struct(config); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return NewInvalidConfig("field %s failed rule %q", errs[0].Namespace(), errs[0].Tag())
		}
		return NewInvalidConfig("%v", err)
	}

	seen := make(map[string]bool, len(config.Agents))
	for i := range config.Agents {
		agent := &config.Agents[i]
		if seen[agent.AgentID] {
			return NewInvalidConfig("duplicate agent_id %q", agent.AgentID)
		}
		seen[agent.AgentID] = true

		if agent.Role != types.RoleDebater {
			return NewInvalidConfig("agent %q must have role %q, got %q",
				agent.AgentID, types.RoleDebater, agent.Role)
		}
		if err := validateBinding(&agent.Model, agent.AgentID, knownProvider); err != nil {
			return err
		}
	}

	if config.JudgeConfig != nil {
		judge := config.JudgeConfig
		if judge.Role != types.RoleJudge {
			return NewInvalidConfig("judge %q must have role %q, got %q",
				judge.AgentID, types.RoleJudge, judge.Role)
		}
		if judge.Temperature < 0 || judge.Temperature > 2 {
			return NewInvalidConfig("judge temperature %.2f out of range [0,2]", judge.Temperature)
		}
		if judge.MaxTokens < 1 {
			return NewInvalidConfig("judge max_tokens must be at least 1")
		}
		if err := validateBinding(&judge.Model, judge.AgentID, knownProvider); err != nil {
			return err
		}
	}

	return nil
}

func validateBinding(binding *ModelBinding, agentID string, knownProvider ProviderCheck) error {
	if binding.Provider == "" || binding.ModelName == "" {
		return NewInvalidConfig("agent %q has an incomplete model binding", agentID)
	}
	// Unknown provider tags are allowed only when an endpoint override is
	// given (local OpenAI-compatible servers).
	if knownProvider != nil && !knownProvider(binding.Provider) && binding.Endpoint == "" {
		return NewInvalidConfig("agent %q references unknown provider %q", agentID, binding.Provider)
	}
	return nil
}
