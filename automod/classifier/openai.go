// Classification backend speaking the OpenAI chat-completions API (OpenAI itself, or any compatible host).
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/guildwarden/warden/automod/detect"
	"github.com/guildwarden/warden/util"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	DefaultModel = "gpt-4o-mini"
	// prompts are in Vietnamese and English; replies are a handful of short fields
	systemPrompt = "Bạn là hệ thống kiểm duyệt nội dung. Chỉ trả lời đúng định dạng được yêu cầu."
)

type OpenAIConfig struct {
	APIKey string
	// Base URL of an OpenAI-compatible API; empty means api.openai.com
	Host  string
	Model string
	// Requests per second across all workspaces; zero means unlimited
	RateLimit float64
	Logger    *slog.Logger
}

type OpenAIClassifier struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ detect.Classifier = (*OpenAIClassifier)(nil)

func NewOpenAIClassifier(cfg OpenAIConfig) (*OpenAIClassifier, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("classifier API key is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "classifier")

	occ := openai.DefaultConfig(cfg.APIKey)
	if cfg.Host != "" {
		occ.BaseURL = strings.TrimSuffix(cfg.Host, "/")
	}
	occ.HTTPClient = &userAgentDoer{inner: util.RobustHTTPClient(logger)}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}

	return &OpenAIClassifier{
		client:  openai.NewClientWithConfig(occ),
		model:   model,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Sends the rendered prompt and returns the raw text of the first choice. Waiting for the rate limiter counts against the context deadline.
func (c *OpenAIClassifier) Classify(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		classifierRequests.WithLabelValues("ratelimited").Inc()
		return "", fmt.Errorf("waiting for classifier rate limit: %w", err)
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		// a literal 0 is dropped by omitempty and the API default (1) applies
		Temperature: math.SmallestNonzeroFloat32,
	})
	classifierDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			classifierRequests.WithLabelValues(fmt.Sprint(apiErr.HTTPStatusCode)).Inc()
		} else {
			classifierRequests.WithLabelValues("error").Inc()
		}
		return "", fmt.Errorf("classifier request failed: %w", err)
	}
	classifierRequests.WithLabelValues("200").Inc()

	if len(resp.Choices) == 0 {
		return "", errors.New("classifier returned no choices")
	}
	c.logger.Debug("classifier response", "model", c.model, "finish_reason", resp.Choices[0].FinishReason, "tokens", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}
