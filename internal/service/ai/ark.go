package ai

import (
	"context"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/maeumieum/counsel/backend/internal/config"
	"github.com/maeumieum/counsel/backend/internal/model/topic"
	"github.com/maeumieum/counsel/backend/internal/stream"
)

// ArkProvider streams replies from Volcengine Ark through an eino chain.
type ArkProvider struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	prompts      *PromptManager
	historyLimit int
	logger       zerolog.Logger
}

// NewArkProvider compiles the template → chat model chain once for all sessions.
func NewArkProvider(ctx context.Context, cfg config.AIConfig, logger zerolog.Logger) (*ArkProvider, error) {
	if !cfg.Ark.Enabled() {
		return nil, errors.New("ark credentials or model missing: set ARK_MODEL with ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY")
	}

	temperature := float32(cfg.Temperature)
	arkCfg := &ark.ChatModelConfig{
		BaseURL:     cfg.Ark.BaseURL,
		Region:      cfg.Ark.Region,
		APIKey:      cfg.Ark.APIKey,
		AccessKey:   cfg.Ark.AccessKey,
		SecretKey:   cfg.Ark.SecretKey,
		Model:       cfg.Ark.Model,
		Temperature: &temperature,
	}
	if cfg.TopP > 0 {
		topP := float32(cfg.TopP)
		arkCfg.TopP = &topP
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		arkCfg.MaxTokens = &maxTokens
	}

	chatModel, err := ark.NewChatModel(ctx, arkCfg)
	if err != nil {
		return nil, errors.Wrap(err, "create ark chat model")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "compile chat chain")
	}

	return &ArkProvider{
		chain:        runnable,
		prompts:      NewPromptManager(),
		historyLimit: cfg.HistoryLimit,
		logger:       logger,
	}, nil
}

// Name implements Provider.
func (p *ArkProvider) Name() string { return config.ProviderArk }

// Close implements Provider.
func (p *ArkProvider) Close() error { return nil }

// NewSession implements Provider.
func (p *ArkProvider) NewSession(_ context.Context, t topic.Topic) (Session, error) {
	return &arkSession{
		chain:   p.chain,
		system:  p.prompts.BuildSystemPrompt(t),
		history: newHistory(p.historyLimit),
		logger:  p.logger,
	}, nil
}

type arkSession struct {
	chain   compose.Runnable[map[string]any, *schema.Message]
	system  string
	history *history
	logger  zerolog.Logger
}

func (s *arkSession) SendMessageStream(ctx context.Context, text string) (stream.Sequence, error) {
	input := map[string]any{
		"system":  s.system,
		"history": s.historyMessages(),
		"query":   text,
	}

	reader, err := s.chain.Stream(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, "stream chat chain")
	}

	seq := stream.FromRecv(func() (string, error) {
		chunk, err := reader.Recv()
		if err != nil {
			return "", err
		}
		if chunk == nil {
			return "", nil
		}
		return chunk.Content, nil
	}, func() error {
		reader.Close()
		return nil
	})
	return recordOnEnd(seq, s.history, text), nil
}

func (s *arkSession) historyMessages() []*schema.Message {
	items := s.history.snapshot()
	if len(items) == 0 {
		return nil
	}
	messages := make([]*schema.Message, 0, len(items)*2)
	for _, item := range items {
		messages = append(messages, schema.UserMessage(item.User))
		messages = append(messages, schema.AssistantMessage(item.Reply, nil))
	}
	return messages
}
