package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/orchestrator"
	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/resilience"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config configures an OpenAI-compatible chat completions endpoint
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	ClassifierModel   string
	MaxTokens         int
	Timeout           time.Duration
	RetryMax          int
	RequestsPerSecond float64
	Language          string
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://api.openai.com/v1",
		Model:             "gpt-4o",
		ClassifierModel:   "gpt-4o-mini",
		MaxTokens:         8192,
		Timeout:           120 * time.Second,
		RetryMax:          2,
		RequestsPerSecond: 5,
		Language:          "English",
	}
}

// StatusError is a non-2xx response from the endpoint
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model endpoint returned %d: %s", e.StatusCode, e.Body)
}

// Client implements orchestrator.Model over chat completions
type Client struct {
	config  Config
	prompts *Prompts
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

var _ orchestrator.Model = (*Client)(nil)

// New creates a client. A nil prompts uses the embedded prompt file.
func New(config Config, prompts *Prompts) (*Client, error) {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.ClassifierModel == "" {
		config.ClassifierModel = config.Model
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Language == "" {
		config.Language = defaults.Language
	}
	if prompts == nil {
		p, err := DefaultPrompts()
		if err != nil {
			return nil, err
		}
		prompts = p
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = max(config.RetryMax, 0)
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := resty.New().
		SetBaseURL(strings.TrimRight(config.BaseURL, "/")).
		SetTimeout(config.Timeout).
		SetHeader("User-Agent", "ConceptCanvas/1.0").
		SetHeader("Content-Type", "application/json").
		SetTransport(retryClient.StandardClient().Transport)
	client.JSONMarshal = sonic.Marshal
	client.JSONUnmarshal = sonic.Unmarshal
	if config.APIKey != "" {
		client.SetAuthToken(config.APIKey)
	}

	limit := rate.Inf
	burst := 0
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
		burst = max(int(config.RequestsPerSecond), 1)
	}

	c := &Client{
		config:  config,
		prompts: prompts,
		resty:   client,
		limiter: rate.NewLimiter(limit, burst),
		logger:  zap.NewNop(),
	}
	c.breaker = c.newBreaker()
	return c, nil
}

func (c *Client) newBreaker() *resilience.Breaker {
	return resilience.New("llm", resilience.Settings{
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsExcluded: func(err error) bool {
			// the caller's problem, not the endpoint's
			var se *StatusError
			if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests {
				return true
			}
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			resilience.LogStateChanges(c.logger)(name, from, to)
		},
	})
}

// WithLogger adds logging
func (c *Client) WithLogger(logger *zap.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithMetrics adds metrics tracking
func (c *Client) WithMetrics(metrics *monitoring.Metrics) *Client {
	c.metrics = metrics
	return c
}

// BreakerState reports the endpoint circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// Classify picks the generation profile for query. Unrecognised answers are
// LIVELY.
func (c *Client) Classify(ctx context.Context, query string) (orchestrator.Profile, error) {
	content, err := c.complete(ctx, "classify", chatRequest{
		Model: c.config.ClassifierModel,
		Messages: []chatMessage{
			{Role: "system", Content: strings.TrimSpace(c.prompts.Classifier)},
			{Role: "user", Content: query},
		},
		Temperature: 0,
		MaxTokens:   16,
	})
	if err != nil {
		return orchestrator.ProfileLively, err
	}
	return orchestrator.ParseProfile(content), nil
}

// Generate asks for a new component, or an edit of req.CurrentCode
func (c *Client) Generate(ctx context.Context, req orchestrator.GenerateRequest) (*orchestrator.Completion, error) {
	profile := c.prompts.Profile(req.Profile)

	messages := []chatMessage{c.system(profile)}
	if strings.TrimSpace(req.CurrentCode) != "" {
		messages = append(messages, chatMessage{
			Role:    "system",
			Content: render(c.prompts.EditMode, "code", req.CurrentCode),
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	content, err := c.complete(ctx, "generate", c.jsonRequest(messages, profile))
	if err != nil {
		return nil, err
	}
	return parseCompletion(content)
}

// Fix asks for a corrected version of req.PreviousSource and returns the
// new source
func (c *Client) Fix(ctx context.Context, req orchestrator.FixRequest) (string, error) {
	profile := c.prompts.Profile(req.Profile)

	messages := []chatMessage{
		c.system(profile),
		{Role: "system", Content: render(c.prompts.FixMode, "code", req.PreviousSource)},
		{Role: "user", Content: req.Instructions},
	}

	content, err := c.complete(ctx, "fix", c.jsonRequest(messages, profile))
	if err != nil {
		return "", err
	}
	completion, err := parseCompletion(content)
	if err != nil {
		return "", err
	}
	return completion.Code, nil
}

func (c *Client) system(profile Profile) chatMessage {
	return chatMessage{
		Role:    "system",
		Content: render(profile.System, "language", c.config.Language),
	}
}

func (c *Client) jsonRequest(messages []chatMessage, profile Profile) chatRequest {
	return chatRequest{
		Model:          c.config.Model,
		Messages:       messages,
		Temperature:    profile.Temperature,
		MaxTokens:      c.config.MaxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
}

// complete sends one chat completion through the limiter and breaker and
// returns the first choice's content
func (c *Client) complete(ctx context.Context, operation string, req chatRequest) (string, error) {
	timer := monitoring.NewTimer(c.metrics, operation)

	if err := c.limiter.Wait(ctx); err != nil {
		timer.Stop("rate_limited")
		return "", fmt.Errorf("rate limit: %w", err)
	}

	var content string
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		var out chatResponse
		resp, err := c.resty.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&out).
			SetError(&out).
			Post("/chat/completions")
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("send %s request: %w", operation, err)
		}
		if resp.IsError() {
			msg := strings.TrimSpace(resp.String())
			if out.Error != nil && out.Error.Message != "" {
				msg = out.Error.Message
			}
			return &StatusError{StatusCode: resp.StatusCode(), Body: msg}
		}

		content, err = out.content()
		if err != nil {
			return err
		}
		if out.Usage != nil {
			c.logger.Debug("Model call completed",
				zap.String("operation", operation),
				zap.String("model", req.Model),
				zap.Int("prompt_tokens", out.Usage.PromptTokens),
				zap.Int("completion_tokens", out.Usage.CompletionTokens),
				zap.Duration("duration", resp.Time()))
		}
		return nil
	})

	switch {
	case err == nil:
		timer.Stop("success")
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		timer.Stop("circuit_open")
		return "", fmt.Errorf("model unavailable: %w", err)
	case ctx.Err() != nil:
		timer.Stop("canceled")
		return "", ctx.Err()
	default:
		timer.Stop("error")
		c.logger.Warn("Model call failed",
			zap.String("operation", operation),
			zap.Error(err))
		return "", err
	}
	return content, nil
}
