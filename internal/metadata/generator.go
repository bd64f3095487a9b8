// Package metadata generates document descriptions with a chat model.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
)

// DefaultMaxTokens is the maximum content length before truncation (in tokens).
const DefaultMaxTokens = 16000

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gpt-4o-mini"

// ErrEmptyResponse is returned when the model produces no choices.
var ErrEmptyResponse = errors.New("chat completion returned no choices")

// DocumentMetadata contains LLM-generated metadata for a document.
type DocumentMetadata struct {
	Summary  string   `json:"summary"`
	Entities []string `json:"entities"`
}

// Description renders the metadata as the free-text description stored on
// a document.
func (m *DocumentMetadata) Description() string {
	summary := strings.TrimSpace(m.Summary)
	if len(m.Entities) == 0 {
		return summary
	}
	return fmt.Sprintf("%s\nKey entities: %s", summary, strings.Join(m.Entities, ", "))
}

// Generator produces document metadata with an OpenAI chat model.
type Generator struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *slog.Logger
}

// NewGenerator creates a metadata generator with the given OpenAI client.
// An empty model selects DefaultModel; maxTokens <= 0 selects DefaultMaxTokens.
func NewGenerator(client *openai.Client, model string, maxTokens int, logger *slog.Logger) *Generator {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// GenerateMetadata analyzes document content and produces a summary and entity list.
func (g *Generator) GenerateMetadata(ctx context.Context, name, docType, content string) (*DocumentMetadata, error) {
	truncated := g.truncateContent(content)

	prompt := fmt.Sprintf(`Analyze this document and provide:
1. A concise summary (1-2 sentences) of what the document is and what it contains
2. A list of key identifiers, names, dates, or reference numbers mentioned

Document name: %s
Document type: %s

Document content:
%s

Respond in JSON format:
{"summary": "Brief description of the document", "entities": ["Entity1", "Entity2"]}`, name, docType, truncated)

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(g.model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	var metadata DocumentMetadata
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &metadata, nil
}

// Describe returns a document description for the orchestrator.
func (g *Generator) Describe(ctx context.Context, name, docType, content string) (string, error) {
	m, err := g.GenerateMetadata(ctx, name, docType, content)
	if err != nil {
		return "", err
	}
	return m.Description(), nil
}

// truncateContent truncates content to fit within token limits.
// Uses rough estimate of 4 characters per token.
func (g *Generator) truncateContent(content string) string {
	maxChars := g.maxTokens * 4

	runes := []rune(content)
	if len(runes) <= maxChars {
		return content
	}

	g.logger.Warn("truncating content",
		"from_chars", len(runes),
		"to_chars", maxChars,
		"estimated_tokens", g.maxTokens)

	return string(runes[:maxChars])
}
