package chat

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/parleylabs/parley/internal/domain"
	"github.com/parleylabs/parley/internal/httpx"
)

// OpenAICompat talks to any endpoint implementing the OpenAI chat
// completions wire format (OpenRouter, Groq, vLLM, LM Studio, ...). It goes
// through the retrying executor rather than a vendor SDK so rate-limit
// backoff applies uniformly.
type OpenAICompat struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	model   string
}

// NewOpenAICompat builds a provider against baseURL, which should point at
// the API root (e.g. https://openrouter.ai/api/v1).
func NewOpenAICompat(rest *httpx.Client, baseURL, apiKey, model string) *OpenAICompat {
	return &OpenAICompat{
		http:    rest,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}
}

func (p *OpenAICompat) Name() string {
	return ProviderOpenAICompat
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

func (p *OpenAICompat) Complete(ctx context.Context, req Request) (*Reply, error) {
	msgs := make([]wireMessage, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, wireMessage{Role: "system", Content: req.System})
	}
	for _, turn := range req.History {
		role := turn.Role
		if role == domain.RoleBot {
			role = "assistant"
		}
		msgs = append(msgs, wireMessage{Role: role, Content: turn.Text})
	}
	msgs = append(msgs, wireMessage{Role: "user", Content: req.Prompt})

	header := http.Header{}
	if p.apiKey != "" {
		header.Set("Authorization", "Bearer "+p.apiKey)
	}

	var out completionResponse
	in := completionRequest{Model: p.model, Messages: msgs}
	if err := p.http.DoJSON(ctx, http.MethodPost, p.baseURL+"/chat/completions", header, in, &out); err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: response contained no choices")
	}

	return &Reply{
		Text:  out.Choices[0].Message.Content,
		Model: out.Model,
		Usage: Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
	}, nil
}

var _ Provider = (*OpenAICompat)(nil)
