package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"FeedDigest/internal/config"
	"FeedDigest/internal/ports"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicClient implements ports.Generator with the Anthropic Messages API.
type AnthropicClient struct {
	client        anthropic.Client
	model         string
	systemPrompt  string
	maxTokens     int64
	maxToolRounds int
	logger        *slog.Logger
}

var _ ports.Generator = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client from configuration; Endpoint overrides the API base URL.
func NewAnthropicClient(cfg config.LLMConfig, log *slog.Logger) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	rounds := cfg.MaxToolRounds
	if rounds <= 0 {
		rounds = defaultMaxToolRounds
	}

	return &AnthropicClient{
		client:        anthropic.NewClient(opts...),
		model:         cfg.Model,
		systemPrompt:  cfg.SystemPrompt,
		maxTokens:     maxTokens,
		maxToolRounds: rounds,
		logger:        log,
	}
}

// Generate sends a single user prompt and returns the reply text.
func (c *AnthropicClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.GenerateWithTools(ctx, prompt, nil)
}

// GenerateWithTools loops over tool_use turns until the model stops asking for tools.
func (c *AnthropicClient) GenerateWithTools(ctx context.Context, prompt string, tools []ports.Tool) (string, error) {
	byName := make(map[string]ports.Tool, len(tools))
	specs := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
		specs = append(specs, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: inputSchema(t.Parameters),
		}})
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
	}

	for round := 0; round <= c.maxToolRounds; round++ {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: c.maxTokens,
			Messages:  messages,
			System:    []anthropic.TextBlockParam{{Text: safePrompt(c.systemPrompt)}},
		}
		if len(specs) > 0 {
			params.Tools = specs
		}

		msg, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("anthropic messages: %w", err)
		}

		var (
			text    strings.Builder
			results []anthropic.ContentBlockParamUnion
		)
		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				text.WriteString(block.Text)
			case "tool_use":
				c.debug("tool call", "tool", block.Name, "round", round)
				out := invokeTool(ctx, byName, block.Name, json.RawMessage(block.Input))
				results = append(results, anthropic.NewToolResultBlock(block.ID, out, false))
			}
		}

		if len(results) == 0 || msg.StopReason != anthropic.StopReasonToolUse {
			return strings.TrimSpace(text.String()), nil
		}

		messages = append(messages, msg.ToParam(), anthropic.NewUserMessage(results...))
	}

	return "", ErrToolRoundsExceeded
}

func inputSchema(params map[string]any) anthropic.ToolInputSchemaParam {
	schema := anthropic.ToolInputSchemaParam{}
	if params == nil {
		return schema
	}
	if props, ok := params["properties"]; ok {
		schema.Properties = props
	}
	if required, ok := params["required"].([]string); ok {
		schema.Required = required
	}
	return schema
}

func (c *AnthropicClient) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
