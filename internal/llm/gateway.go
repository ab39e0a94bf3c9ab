// Package llm provides the uniform text-generation primitive over
// heterogeneous model providers, with gateway-local retry so higher layers
// only ever see terminal success or a normalized failure kind.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/neo/arbiter_backend/internal/debate"
	"github.com/neo/arbiter_backend/internal/logging"
)

// ChatMessage is one prior exchange handed to the model
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Gateway is the single generation primitive the engine calls
type Gateway interface {
	Generate(ctx context.Context, binding debate.ModelBinding, systemPrompt string,
		messages []ChatMessage, temperature float64, maxTokens int) (string, error)
}

const (
	maxAttempts     = 3
	initialBackoff  = 1 * time.Second
	maxBackoffDelay = 4 * time.Second
)

// ChainGateway dispatches generation requests to langchaingo provider
// backends selected by the binding's provider tag.
type ChainGateway struct {
	// newModel is swappable so tests can inject a scripted backend
	newModel func(binding debate.ModelBinding) (llms.Model, error)
}

// NewChainGateway creates a gateway over the real provider backends
func NewChainGateway() *ChainGateway {
	return &ChainGateway{newModel: buildModel}
}

// Generate produces a single response string for the given binding. On
// transient upstream failures it retries up to 3 attempts with exponential
// backoff (1s, 2s); other 4xx failures are not retried.
func (g *ChainGateway) Generate(ctx context.Context, binding debate.ModelBinding, systemPrompt string,
	messages []ChatMessage, temperature float64, maxTokens int) (string, error) {

	model, err := g.newModel(binding)
	if err != nil {
		return "", &Error{Kind: KindAuth, Provider: binding.Provider, Model: binding.ModelName, Err: err}
	}

	content := make([]llms.MessageContent, 0, len(messages)+1)
	if systemPrompt != "" {
		content = append(content, llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt))
	}
	for _, msg := range messages {
		role := schema.ChatMessageTypeHuman
		if msg.Role == "assistant" {
			role = schema.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, msg.Content))
	}

	var result string
	attempt := 0

	operation := func() error {
		attempt++
		logging.LogGatewayEvent("generate_attempt", binding.Provider, binding.ModelName, map[string]interface{}{
			"attempt":     attempt,
			"max_tokens":  maxTokens,
			"temperature": temperature,
		})

		resp, err := model.GenerateContent(ctx, content,
			llms.WithTemperature(temperature),
			llms.WithMaxTokens(maxTokens),
		)
		if err != nil {
			return g.normalize(binding, err)
		}

		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
			return backoff.Permanent(&Error{
				Kind:     KindMalformed,
				Provider: binding.Provider,
				Model:    binding.ModelName,
				Err:      errors.New("empty completion"),
			})
		}

		result = resp.Choices[0].Content
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialBackoff
	bo.Multiplier = 2
	bo.MaxInterval = maxBackoffDelay
	bo.RandomizationFactor = 0.1

	err = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, maxAttempts-1), ctx))
	if err != nil {
		if ctx.Err() != nil {
			return "", &Error{Kind: KindCancelled, Provider: binding.Provider, Model: binding.ModelName, Err: ctx.Err()}
		}
		logging.LogGatewayEvent("generate_failed", binding.Provider, binding.ModelName, map[string]interface{}{
			"attempts": attempt,
			"error":    err.Error(),
		})
		return "", err
	}

	logging.LogGatewayEvent("generate_success", binding.Provider, binding.ModelName, map[string]interface{}{
		"attempts": attempt,
		"length":   len(result),
	})
	return result, nil
}

// normalize classifies a provider error and decides retryability. Transient
// failures are returned bare so backoff retries them; everything else is
// wrapped permanent.
func (g *ChainGateway) normalize(binding debate.ModelBinding, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(&Error{Kind: KindCancelled, Provider: binding.Provider, Model: binding.ModelName, Err: err})
	}
	if isAuthFailure(err) {
		return backoff.Permanent(&Error{Kind: KindAuth, Provider: binding.Provider, Model: binding.ModelName, Err: err})
	}
	if isTransient(err) {
		logging.LogGatewayEvent("generate_retryable_error", binding.Provider, binding.ModelName, map[string]interface{}{
			"error": err.Error(),
		})
		// Wrapped so retry exhaustion surfaces as UpstreamUnavailable
		return &Error{Kind: KindUnavailable, Provider: binding.Provider, Model: binding.ModelName, Err: err}
	}
	return backoff.Permanent(&Error{Kind: KindMalformed, Provider: binding.Provider, Model: binding.ModelName, Err: err})
}

// buildModel constructs the langchaingo backend for a binding. Credentials
// come from the environment variable the binding names; a named but unset
// variable is an auth failure for cloud providers.
func buildModel(binding debate.ModelBinding) (llms.Model, error) {
	apiKey := ""
	if binding.APIKeyEnvVar != "" {
		apiKey = os.Getenv(binding.APIKeyEnvVar)
	}

	switch binding.Provider {
	case "openai":
		if apiKey == "" {
			return nil, fmt.Errorf("api key environment variable %q is not set", binding.APIKeyEnvVar)
		}
		opts := []openai.Option{
			openai.WithToken(apiKey),
			openai.WithModel(binding.ModelName),
		}
		if binding.Endpoint != "" {
			opts = append(opts, openai.WithBaseURL(binding.Endpoint))
		}
		return openai.New(opts...)

	case "anthropic":
		if apiKey == "" {
			return nil, fmt.Errorf("api key environment variable %q is not set", binding.APIKeyEnvVar)
		}
		opts := []anthropic.Option{
			anthropic.WithToken(apiKey),
			anthropic.WithModel(binding.ModelName),
		}
		if binding.Endpoint != "" {
			opts = append(opts, anthropic.WithBaseURL(binding.Endpoint))
		}
		return anthropic.New(opts...)

	case "ollama":
		opts := []ollama.Option{
			ollama.WithModel(binding.ModelName),
		}
		if binding.Endpoint != "" {
			opts = append(opts, ollama.WithServerURL(binding.Endpoint))
		}
		return ollama.New(opts...)

	default:
		// Unknown tags pass through to any OpenAI-compatible endpoint
		if binding.Endpoint == "" {
			return nil, fmt.Errorf("unknown provider %q requires an endpoint override", binding.Provider)
		}
		if apiKey == "" {
			apiKey = "local"
		}
		return openai.New(
			openai.WithToken(apiKey),
			openai.WithModel(binding.ModelName),
			openai.WithBaseURL(binding.Endpoint),
		)
	}
}

// Ensure ChainGateway implements Gateway
var _ Gateway = (*ChainGateway)(nil)
