// Package llm builds the chat models and embedding client used by the
// router and the specialist agents, against any OpenAI-compatible endpoint.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openaimodel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Purpose selects per-agent model/temperature overrides.
type Purpose string

const (
	PurposeRouter     Purpose = "router"
	PurposeFAQ        Purpose = "faq"
	PurposeOrder      Purpose = "order"
	PurposeEscalation Purpose = "escalation"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.openai.com/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	EmbeddingModel     string        `envconfig:"EMBEDDING_MODEL" split_words:"true" default:"text-embedding-3-small"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	RouterModel           string  `envconfig:"ROUTER_MODEL" split_words:"true"`
	FAQModel              string  `envconfig:"FAQ_MODEL" split_words:"true"`
	OrderModel            string  `envconfig:"ORDER_MODEL" split_words:"true"`
	EscalationModel       string  `envconfig:"ESCALATION_MODEL" split_words:"true"`
	RouterTemperature     float32 `envconfig:"ROUTER_TEMPERATURE" split_words:"true" default:"-1"`
	FAQTemperature        float32 `envconfig:"FAQ_TEMPERATURE" split_words:"true" default:"-1"`
	OrderTemperature      float32 `envconfig:"ORDER_TEMPERATURE" split_words:"true" default:"-1"`
	EscalationTemperature float32 `envconfig:"ESCALATION_TEMPERATURE" split_words:"true" default:"-1"`

	MaxAttempts    int           `envconfig:"MAX_ATTEMPTS" split_words:"true" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"RETRY_BASE_DELAY" split_words:"true" default:"500ms"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("llm api key is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("default llm model is required")
	}
	return nil
}

// RetryPolicy builds the transient-failure retry policy from config.
func (c Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.RetryBaseDelay,
	}
}

func (c Config) modelFor(purpose Purpose) (string, float32) {
	name := strings.TrimSpace(c.Model)
	temp := c.Temperature

	override := func(model string, t float32) {
		if v := strings.TrimSpace(model); v != "" {
			name = v
		}
		if t >= 0 {
			temp = t
		}
	}

	switch purpose {
	case PurposeRouter:
		override(c.RouterModel, c.RouterTemperature)
	case PurposeFAQ:
		override(c.FAQModel, c.FAQTemperature)
	case PurposeOrder:
		override(c.OrderModel, c.OrderTemperature)
	case PurposeEscalation:
		override(c.EscalationModel, c.EscalationTemperature)
	}
	return name, temp
}

// NewChatModel creates the eino chat model for one agent purpose.
func (c Config) NewChatModel(ctx context.Context, purpose Purpose) (model.ToolCallingChatModel, error) {
	modelName, temperature := c.modelFor(purpose)
	maxTokens := c.MaxCompletionToken

	conf := &openaimodel.ChatModelConfig{
		BaseURL:     strings.TrimRight(c.BaseURL, "/"),
		APIKey:      strings.TrimSpace(c.APIKey),
		Model:       modelName,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		Timeout:     c.Timeout,
	}

	m, err := openaimodel.NewChatModel(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("llm: create chat model for %s: %w", purpose, err)
	}
	return m, nil
}

// EmbeddingClient wraps the OpenAI SDK embeddings endpoint.
type EmbeddingClient struct {
	client openaisdk.Client
	model  string
}

// NewEmbeddingClient builds the embedder used for knowledge retrieval.
func (c Config) NewEmbeddingClient() (*EmbeddingClient, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, fmt.Errorf("llm api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(c.APIKey)),
	}
	if trimmed := strings.TrimRight(c.BaseURL, "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if c.SiteURL != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", c.SiteURL))
	}
	if c.SiteName != "" {
		opts = append(opts, option.WithHeader("X-Title", c.SiteName))
	}

	return &EmbeddingClient{
		client: openaisdk.NewClient(opts...),
		model:  strings.TrimSpace(c.EmbeddingModel),
	}, nil
}

func (e *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfString: openaisdk.String(text),
		},
		Model: openaisdk.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("llm: embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("llm: embed: empty response")
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}
