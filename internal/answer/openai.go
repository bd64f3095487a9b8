package answer

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gpt-4o-mini"

// ErrEmptyAnswer is returned when the model produces no choices.
var ErrEmptyAnswer = errors.New("chat completion returned no choices")

const systemPrompt = `You answer questions about a user's personal documents using only the evidence provided.
If the evidence does not contain the answer, say so.

End every answer with exactly one classification tag on its own line:
[RESPONSE_TYPE: TEXT_ONLY] when a short text answer is enough,
[RESPONSE_TYPE: FULL_FILE] when the user asks to see, open, share or download the original document,
[RESPONSE_TYPE: MIXED] when the answer should include text and the original document.`

// OpenAI generates answers with an OpenAI chat model.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an answer generator. An empty model selects DefaultModel.
func NewOpenAI(client *openai.Client, model string) *OpenAI {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAI{client: client, model: model}
}

func (g *OpenAI) Generate(ctx context.Context, query, evidence string) (string, error) {
	user := fmt.Sprintf("Evidence:\n%s\n\nQuestion: %s", evidence, query)

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(user),
		},
		Model:       openai.ChatModel(g.model),
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyAnswer
	}
	return resp.Choices[0].Message.Content, nil
}
