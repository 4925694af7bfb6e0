package ai

import (
	"context"
	"io"
	"math"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/maeumieum/counsel/backend/internal/config"
	"github.com/maeumieum/counsel/backend/internal/model/topic"
	"github.com/maeumieum/counsel/backend/internal/stream"
)

// GeminiProvider streams replies from the Gemini API.
type GeminiProvider struct {
	client  *genai.Client
	cfg     config.AIConfig
	prompts *PromptManager
	logger  zerolog.Logger
}

// NewGeminiProvider creates the shared API client.
func NewGeminiProvider(ctx context.Context, cfg config.AIConfig, logger zerolog.Logger) (*GeminiProvider, error) {
	if !cfg.Gemini.Enabled() {
		return nil, errors.New("missing GEMINI_API_KEY")
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.Gemini.APIKey)}
	if cfg.Gemini.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Gemini.Endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gemini client")
	}

	return &GeminiProvider{
		client:  client,
		cfg:     cfg,
		prompts: NewPromptManager(),
		logger:  logger,
	}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return config.ProviderGemini }

// Close releases the API client.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// NewSession configures a model with the topic's system instruction.
func (p *GeminiProvider) NewSession(_ context.Context, t topic.Topic) (Session, error) {
	model := p.client.GenerativeModel(p.cfg.Gemini.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(p.prompts.BuildSystemPrompt(t))},
	}
	model.SetTemperature(float32(p.cfg.Temperature))
	if p.cfg.TopK > 0 {
		model.SetTopK(clampInt32(p.cfg.TopK))
	}
	if p.cfg.TopP > 0 {
		model.SetTopP(float32(p.cfg.TopP))
	}
	if p.cfg.MaxTokens > 0 {
		model.SetMaxOutputTokens(clampInt32(p.cfg.MaxTokens))
	}

	return &geminiSession{
		model:   model,
		history: newHistory(p.cfg.HistoryLimit),
		logger:  p.logger,
	}, nil
}

type geminiSession struct {
	model   *genai.GenerativeModel
	history *history
	logger  zerolog.Logger
}

func (s *geminiSession) SendMessageStream(ctx context.Context, text string) (stream.Sequence, error) {
	cs := s.model.StartChat()
	cs.History = s.historyContents()

	iter := cs.SendMessageStream(ctx, genai.Text(text))
	chunks := 0
	seq := stream.FromRecv(func() (string, error) {
		resp, err := iter.Next()
		if err == iterator.Done {
			s.logger.Debug().Int("chunks_received", chunks).Msg("gemini stream completed")
			return "", io.EOF
		}
		if err != nil {
			return "", errors.Wrap(err, "gemini stream receive failed")
		}
		chunks++
		return responseText(resp), nil
	}, nil)
	return recordOnEnd(seq, s.history, text), nil
}

func (s *geminiSession) historyContents() []*genai.Content {
	items := s.history.snapshot()
	contents := make([]*genai.Content, 0, len(items)*2)
	for _, item := range items {
		contents = append(contents,
			&genai.Content{Role: "user", Parts: []genai.Part{genai.Text(item.User)}},
			&genai.Content{Role: "model", Parts: []genai.Part{genai.Text(item.Reply)}},
		)
	}
	return contents
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return b.String()
}

func clampInt32(v int) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < 0 {
		return 0
	}
	return int32(v)
}
