package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"FeedDigest/internal/config"
	"FeedDigest/internal/ports"
)

const (
	defaultMaxToolRounds  = 4
	defaultRequestTimeout = 120 * time.Second
)

// ErrToolRoundsExceeded is returned when the model keeps calling tools past the configured budget.
var ErrToolRoundsExceeded = errors.New("tool call rounds exceeded")

// OpenAIClient implements ports.Generator against OpenAI-compatible chat completion APIs.
type OpenAIClient struct {
	client        *openai.Client
	model         string
	apiKey        string
	systemPrompt  string
	maxTokens     int
	maxToolRounds int
	logger        *slog.Logger
}

var _ ports.Generator = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client from configuration. Endpoint is the API
// base URL (for example https://api.openai.com/v1); a full
// /chat/completions URL is accepted too.
func NewOpenAIClient(cfg config.LLMConfig, log *slog.Logger) *OpenAIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	rounds := cfg.MaxToolRounds
	if rounds <= 0 {
		rounds = defaultMaxToolRounds
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := baseURL(cfg.Endpoint); base != "" {
		clientCfg.BaseURL = base
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIClient{
		client:        openai.NewClientWithConfig(clientCfg),
		model:         cfg.Model,
		apiKey:        cfg.APIKey,
		systemPrompt:  cfg.SystemPrompt,
		maxTokens:     cfg.MaxTokens,
		maxToolRounds: rounds,
		logger:        log,
	}
}

func baseURL(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	endpoint = strings.TrimSuffix(endpoint, "/chat/completions")
	return strings.TrimRight(endpoint, "/")
}

// Generate sends a single user prompt and returns the reply text.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.GenerateWithTools(ctx, prompt, nil)
}

// GenerateWithTools runs the chat loop, executing tool calls the model
// requests and feeding their results back until it answers with text.
func (c *OpenAIClient) GenerateWithTools(ctx context.Context, prompt string, tools []ports.Tool) (string, error) {
	if c.apiKey == "" || c.model == "" {
		return "", fmt.Errorf("openai client misconfigured")
	}

	byName := make(map[string]ports.Tool, len(tools))
	specs := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
		specs = append(specs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: safePrompt(c.systemPrompt)},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}

	for round := 0; round <= c.maxToolRounds; round++ {
		req := openai.ChatCompletionRequest{
			Model:     c.model,
			Messages:  messages,
			MaxTokens: c.maxTokens,
		}
		if len(specs) > 0 {
			req.Tools = specs
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", fmt.Errorf("openai chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("openai returned no choices")
		}

		msg := resp.Choices[0].Message
		c.debug("chat completion", "round", round, "finish_reason", resp.Choices[0].FinishReason,
			"prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)
		if len(msg.ToolCalls) == 0 {
			return strings.TrimSpace(msg.Content), nil
		}

		messages = append(messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   msg.Content,
			ToolCalls: msg.ToolCalls,
		})
		for _, call := range msg.ToolCalls {
			c.debug("tool call", "tool", call.Function.Name, "round", round)
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    invokeTool(ctx, byName, call.Function.Name, json.RawMessage(call.Function.Arguments)),
			})
		}
	}

	return "", ErrToolRoundsExceeded
}

// invokeTool never fails the conversation; errors go back to the model as text.
func invokeTool(ctx context.Context, tools map[string]ports.Tool, name string, args json.RawMessage) string {
	tool, ok := tools[name]
	if !ok || tool.Invoke == nil {
		return fmt.Sprintf(`{"error":"unknown tool %q"}`, name)
	}
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}
	out, err := tool.Invoke(ctx, args)
	if err != nil {
		raw, _ := json.Marshal(map[string]string{"error": err.Error()})
		return string(raw)
	}
	return out
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are a helpful assistant that triages news digests."
	}
	return prompt
}

func (c *OpenAIClient) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
