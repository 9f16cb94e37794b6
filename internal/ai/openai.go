package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"go.uber.org/zap"
)

const DefaultOpenAIModel = "gpt-4o"

// OpenAIGenerator calls the OpenAI chat completions API
type OpenAIGenerator struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIGenerator creates a client for model, or the default model. A
// non-empty baseURL points it at an OpenAI-compatible endpoint.
func NewOpenAIGenerator(apiKey, baseURL, model string, logger *zap.Logger) *OpenAIGenerator {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	logger.Info("OpenAI provider configured", zap.String("model", model))
	return &OpenAIGenerator{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logger,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	messages, err := openAIMessages(req)
	if err != nil {
		return "", err
	}

	g.logger.Debug("Sending openai request", zap.String("model", g.model), zap.Int("messages", len(messages)))
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: messages,
	})
	if err != nil {
		g.logger.Error("OpenAI request failed", zap.Error(err))
		return "", upstream("openai", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrUnavailable)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if req.Schema != nil {
		text = stripCodeFence(text)
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	return text, nil
}

// openAIMessages flattens a request into chat messages. The schema travels
// as an instruction since chat completions has no per-call schema here.
func openAIMessages(req Request) ([]openai.ChatCompletionMessageParamUnion, error) {
	var messages []openai.ChatCompletionMessageParamUnion

	system := req.System
	if req.Schema != nil {
		raw, err := json.Marshal(req.Schema)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema: %w", err)
		}
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON document, no prose, matching this JSON schema:\n" + string(raw))
	}
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}

	for _, turn := range req.History {
		if turn.Role == RoleModel {
			messages = append(messages, openai.AssistantMessage(turn.Text))
		} else {
			messages = append(messages, openai.UserMessage(turn.Text))
		}
	}

	if len(req.Parts) == 0 {
		return append(messages, openai.UserMessage(req.Prompt)), nil
	}
	content := make([]openai.ChatCompletionContentPartUnionParam, 0, len(req.Parts)+1)
	for _, p := range req.Parts {
		if !strings.HasPrefix(p.MIMEType, "image/") {
			return nil, fmt.Errorf("%w: openai provider only accepts image attachments", ErrUnavailable)
		}
		content = append(content, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data),
		}))
	}
	content = append(content, openai.TextContentPart(req.Prompt))
	return append(messages, openai.UserMessage(content)), nil
}

// stripCodeFence removes a ```json fence some models wrap JSON in
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
