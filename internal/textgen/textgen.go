// Package textgen turns expose form inputs into marketing copy using an
// OpenAI compatible chat completion endpoint.
package textgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/maklermate/maklermate-api/internal/config"
	"github.com/maklermate/maklermate-api/internal/domain"
	"github.com/maklermate/maklermate-api/internal/retry"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const systemPrompt = "Du bist ein erfahrener Immobilienmakler in Deutschland und schreibst überzeugende, " +
	"rechtlich unbedenkliche Exposé-Texte. Erfinde keine Fakten, die nicht in den Angaben stehen."

var (
	// ErrNotConfigured is returned when no API key is set
	ErrNotConfigured = errors.New("text generation is not configured")

	// ErrEmptyCompletion is returned when the model answers without text
	ErrEmptyCompletion = errors.New("text generation returned no text")
)

// Generator produces text for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client is a Generator backed by the chat completions API
type Client struct {
	chat   chatClient
	model  string
	retry  retry.Options
	logger *zap.Logger
}

// NewClient creates a client for the configured endpoint
func NewClient(cfg *config.TextGenConfig, retryOpts retry.Options, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	retryOpts.Logger = logger
	return &Client{
		chat:   openai.NewClientWithConfig(oc),
		model:  model,
		retry:  retryOpts,
		logger: logger,
	}, nil
}

// Generate sends prompt to the model, retrying transient failures
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var text string
	start := time.Now()
	err := retry.Do(ctx, func(ctx context.Context) error {
		resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			Temperature: 0.7,
		})
		if err != nil {
			return statusError(err)
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return ErrEmptyCompletion
		}
		text = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	}, c.retry)
	if err != nil {
		c.logger.Warn("Text generation failed",
			zap.String("model", c.model),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return "", err
	}

	c.logger.Info("Generated expose text",
		zap.String("model", c.model),
		zap.Int("chars", len(text)),
		zap.Duration("duration", time.Since(start)))
	return text, nil
}

// statusError converts API failures into retry.StatusError so the default
// predicate can tell transient responses from permanent ones
func statusError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &retry.StatusError{Code: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &retry.StatusError{Code: reqErr.HTTPStatusCode, Body: body}
	}
	return err
}

var styleInstructions = map[domain.ExposeStyle]string{
	domain.ExposeStyleEmotional: "emotional und bildhaft, so dass sich Interessenten das Leben in der Immobilie vorstellen können",
	domain.ExposeStyleFactual:   "sachlich und informativ, mit klarer Struktur und ohne Übertreibungen",
	domain.ExposeStyleLuxury:    "exklusiv und hochwertig, mit Betonung von Ausstattung, Lage und Prestige",
}

// PromptFor builds the user prompt for an expose from the form inputs.
// Empty fields are skipped and keys are listed in a stable order.
func PromptFor(formData map[string]string, style domain.ExposeStyle) string {
	if !style.Valid() {
		style = domain.ExposeStyleEmotional
	}
	keys := make([]string, 0, len(formData))
	for k, v := range formData {
		if strings.TrimSpace(v) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Schreibe einen Exposé-Text für folgende Immobilie. Der Stil soll %s sein.\n\n", styleInstructions[style])
	sb.WriteString("Angaben:\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "- %s: %s\n", k, strings.TrimSpace(formData[k]))
	}
	sb.WriteString("\nGib nur den fertigen Text ohne Überschrift \"Exposé\" zurück.")
	return sb.String()
}
