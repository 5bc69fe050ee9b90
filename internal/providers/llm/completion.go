package llm

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/orchestrator"
	"github.com/bytedance/sonic"
	"github.com/kaptinlin/jsonrepair"
	"github.com/microcosm-cc/bluemonday"
)

// ErrEmptyResponse is returned when the model answers with no content
var ErrEmptyResponse = errors.New("empty response from model")

var strictPolicy = bluemonday.StrictPolicy()

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
	Error   *apiError    `json:"error,omitempty"`
}

func (r *chatResponse) content() (string, error) {
	if r.Error != nil {
		return "", fmt.Errorf("model error: %s", r.Error.Message)
	}
	if len(r.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(r.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// parseCompletion decodes the {thought, explanation, code} object. Malformed
// JSON (truncated output, trailing commas, markdown fences) is repaired
// before giving up.
func parseCompletion(content string) (*orchestrator.Completion, error) {
	raw := unfence(content)

	var c orchestrator.Completion
	if err := sonic.UnmarshalString(raw, &c); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(raw)
		if rerr != nil {
			return nil, fmt.Errorf("decode completion: %w", err)
		}
		c = orchestrator.Completion{}
		if err := sonic.UnmarshalString(repaired, &c); err != nil {
			return nil, fmt.Errorf("decode repaired completion: %w", err)
		}
	}

	if strings.TrimSpace(c.Code) == "" {
		return nil, errors.New("completion has no code")
	}
	c.Explanation = sanitizeExplanation(c.Explanation)
	return &c, nil
}

// unfence strips a markdown fence around the whole JSON object
func unfence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// sanitizeExplanation drops markup; explanations are shown as text
func sanitizeExplanation(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}
