// Package ai talks to the generative model behind plan generation, stage
// reports, note recognition and interview analysis.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"audit-portal/portal-backend/pkg/apperr"
)

var (
	// ErrUnavailable reports that the model could not be reached or refused
	// the request.
	ErrUnavailable = apperr.New(apperr.ErrUpstream, "AI service unavailable")
	// ErrInvalidResponse reports output that does not match the requested
	// format.
	ErrInvalidResponse = apperr.New(apperr.ErrUnprocessable, "invalid AI response format")
)

// Provider names accepted in configuration
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Role of a conversation turn
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one message of a multi-turn conversation
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Part is an inline binary input, such as a photo
type Part struct {
	MIMEType string
	Data     []byte
}

// SchemaType is the JSON type of a schema node
type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
	TypeString  SchemaType = "string"
	TypeBoolean SchemaType = "boolean"
	TypeInteger SchemaType = "integer"
)

// Schema constrains structured output. It is translated to each provider's
// own schema format.
type Schema struct {
	Type        SchemaType         `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// Request is a single generation call. History is resent in full every time.
type Request struct {
	System  string
	History []Turn
	Prompt  string
	Parts   []Part
	Schema  *Schema
}

// Generator produces text, or JSON when Schema is set
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Config selects and configures a provider
type Config struct {
	Provider     string `json:"provider" yaml:"provider"`
	Model        string `json:"model" yaml:"model"`
	GeminiAPIKey string `json:"gemini_api_key" yaml:"gemini_api_key"`
	OpenAIAPIKey string `json:"openai_api_key" yaml:"openai_api_key"`
	OpenAIURL    string `json:"openai_base_url" yaml:"openai_base_url"`
}

// NewGenerator builds the configured provider. Without an API key it returns
// a generator that fails every call with ErrUnavailable.
func NewGenerator(ctx context.Context, cfg Config, logger *zap.Logger) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			logger.Warn("Gemini API key not set; AI features are disabled")
			return unavailable{}, nil
		}
		return NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.Model, logger)
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("OpenAI API key not set; AI features are disabled")
			return unavailable{}, nil
		}
		return NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIURL, cfg.Model, logger), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}

type unavailable struct{}

func (unavailable) Generate(context.Context, Request) (string, error) {
	return "", fmt.Errorf("%w: no provider configured", ErrUnavailable)
}

// upstream wraps a provider failure unless it is already classified
func upstream(provider string, err error) error {
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, provider, err)
}
