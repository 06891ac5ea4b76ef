package chat

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/parleylabs/parley/internal/domain"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI completes through the official SDK, for deployments that want its
// typed params and auth handling instead of the generic REST path.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI builds an SDK-backed provider. baseURL is optional and overrides
// the default api.openai.com endpoint.
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{client: openai.NewClient(opts...), model: model}
}

func (p *OpenAI) Name() string {
	return ProviderOpenAI
}

func (p *OpenAI) Complete(ctx context.Context, req Request) (*Reply, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, turn := range req.History {
		if turn.Role == domain.RoleBot {
			msgs = append(msgs, openai.AssistantMessage(turn.Text))
		} else {
			msgs = append(msgs, openai.UserMessage(turn.Text))
		}
	}
	msgs = append(msgs, openai.UserMessage(req.Prompt))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: msgs,
	})
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: response contained no choices")
	}

	return &Reply{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

var _ Provider = (*OpenAI)(nil)
