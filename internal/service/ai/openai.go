package ai

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/maeumieum/counsel/backend/internal/config"
	"github.com/maeumieum/counsel/backend/internal/model/topic"
	"github.com/maeumieum/counsel/backend/internal/stream"
)

// OpenAIProvider streams replies from an OpenAI-compatible chat completions
// endpoint.
type OpenAIProvider struct {
	client  *go_openai.Client
	cfg     config.AIConfig
	prompts *PromptManager
	logger  zerolog.Logger
}

// NewOpenAIProvider builds the API client.
func NewOpenAIProvider(cfg config.AIConfig, logger zerolog.Logger) (*OpenAIProvider, error) {
	if !cfg.OpenAI.Enabled() {
		return nil, errors.New("missing OPENAI_API_KEY or OPENAI_BASE_URL")
	}

	clientConfig := go_openai.DefaultConfig(cfg.OpenAI.APIKey)
	if cfg.OpenAI.BaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAI.BaseURL
	}

	return &OpenAIProvider{
		client:  go_openai.NewClientWithConfig(clientConfig),
		cfg:     cfg,
		prompts: NewPromptManager(),
		logger:  logger,
	}, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return config.ProviderOpenAI }

// Close implements Provider.
func (p *OpenAIProvider) Close() error { return nil }

// NewSession implements Provider.
func (p *OpenAIProvider) NewSession(_ context.Context, t topic.Topic) (Session, error) {
	return &openaiSession{
		provider: p,
		system:   p.prompts.BuildSystemPrompt(t),
		history:  newHistory(p.cfg.HistoryLimit),
	}, nil
}

type openaiSession struct {
	provider *OpenAIProvider
	system   string
	history  *history
}

func (s *openaiSession) SendMessageStream(ctx context.Context, text string) (stream.Sequence, error) {
	cfg := s.provider.cfg
	req := go_openai.ChatCompletionRequest{
		Model:       cfg.OpenAI.Model,
		Messages:    s.messages(text),
		Temperature: float32(cfg.Temperature),
		TopP:        float32(cfg.TopP),
		MaxTokens:   cfg.MaxTokens,
		Stream:      true,
	}

	completion, err := s.provider.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "create chat completion stream")
	}

	seq := stream.FromRecv(func() (string, error) {
		response, err := completion.Recv()
		if err != nil {
			return "", err
		}
		if len(response.Choices) == 0 {
			return "", nil
		}
		return response.Choices[0].Delta.Content, nil
	}, func() error {
		completion.Close()
		return nil
	})
	return recordOnEnd(seq, s.history, text), nil
}

func (s *openaiSession) messages(text string) []go_openai.ChatCompletionMessage {
	items := s.history.snapshot()
	msgs := make([]go_openai.ChatCompletionMessage, 0, len(items)*2+2)
	msgs = append(msgs, go_openai.ChatCompletionMessage{
		Role:    go_openai.ChatMessageRoleSystem,
		Content: s.system,
	})
	for _, item := range items {
		msgs = append(msgs,
			go_openai.ChatCompletionMessage{Role: go_openai.ChatMessageRoleUser, Content: item.User},
			go_openai.ChatCompletionMessage{Role: go_openai.ChatMessageRoleAssistant, Content: item.Reply},
		)
	}
	return append(msgs, go_openai.ChatCompletionMessage{
		Role:    go_openai.ChatMessageRoleUser,
		Content: text,
	})
}
