package papergen

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ChatCompleter is the slice of the OpenAI client the pipeline stages need.
// *openai.Client satisfies it; tests substitute scripted fakes.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ContextMatch is one record returned by a context index query.
type ContextMatch struct {
	Text     string
	Score    float64
	Metadata map[string]interface{}
}

// ContextIndex is the similarity-search capability the retrieval stage
// consumes. Filters are exact-match metadata constraints.
type ContextIndex interface {
	Query(ctx context.Context, query string, filters map[string]string, topK int) ([]ContextMatch, error)
}

// stripCodeFence removes a wrapping markdown code fence, plus an optional
// "json" label on the opening fence, from an LLM response before it is
// parsed as JSON.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		parts := strings.SplitN(content, "```", 3)
		if len(parts) >= 2 {
			content = parts[1]
		}
		content = strings.TrimPrefix(content, "json")
	}
	return strings.TrimSpace(content)
}

// firstChoiceContent pulls the message text out of a chat completion
// response, tolerating empty choice lists.
func firstChoiceContent(resp openai.ChatCompletionResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}
