// Package genai provides the generation client for SafeSpeak chat replies,
// backed by the OpenAI chat completions API.
//
// The client is constructed once with a topic-restricting system prompt; the
// behavioral policy is not re-specified per call.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/safehaven-ng/safespeak/internal/models"
)

// DefaultTimeout bounds a single generation call. A timeout is treated as a
// generation failure by callers.
const DefaultTimeout = 30 * time.Second

// ErrNoChoicesReturned indicates the API responded without any completion choices.
var ErrNoChoicesReturned = errors.New("no choices returned")

// defaultSystemPrompt restricts the assistant to the support context. It is
// used when no prompt file is configured. The resource block is built from the
// models emergency directory so the prompt and the fallback message agree.
var defaultSystemPrompt = fmt.Sprintf(`You are SafeSpeak, a compassionate assistant supporting survivors of domestic violence. Respond only to topics related to domestic violence, safety planning, emotional support, legal resources, and crisis intervention; politely redirect anything else back to support services. Be empathetic and non-judgmental, prioritize user safety and confidentiality, and never provide medical or legal advice beyond general information. Recognize emergency situations and point to crisis resources when appropriate.

Coded phrases that signal an emergency: "plan" (safety planning help), "ready" (prepared to leave), "rescue" (immediate help), "help now" (urgent assistance), "order issue" (coded request for help).

Emergency resources to mention when appropriate:
- %s: %s
- %s: %s
- %s: %s

You are a supportive companion, not a replacement for professional services.`,
	models.EmergencyServicesName, models.EmergencyServicesNumber,
	models.HotlineName, models.HotlineNumber,
	models.SupportLineName, models.SupportLineNumber)

// HistoryMessage is one turn of prior conversation handed to the API.
// Role is "user" or "assistant".
type HistoryMessage struct {
	Role string
	Text string
}

// ClientInterface defines the generation operations consumed by flows.
type ClientInterface interface {
	GenerateResponse(ctx context.Context, userMessage string, triggers []string, history []HistoryMessage) (string, error)
}

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// openaiChatService adapts the OpenAI SDK to the chatService interface.
type openaiChatService struct {
	client openai.Client
}

func (s openaiChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration for the generation client.
type Opts struct {
	APIKey           string
	Model            string
	Timeout          time.Duration
	SystemPromptFile string
}

// Option defines a configuration option for the generation client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat completion model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout overrides the per-call generation timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithSystemPromptFile loads the system prompt from a file instead of the
// built-in default.
func WithSystemPromptFile(path string) Option {
	return func(o *Opts) { o.SystemPromptFile = path }
}

// Client wraps the OpenAI chat completion service for generating replies.
type Client struct {
	chat         chatService
	model        string
	timeout      time.Duration
	systemPrompt string
}

// NewClient initializes a new generation client. The API key is taken from
// options or the OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	systemPrompt := defaultSystemPrompt
	if cfg.SystemPromptFile != "" {
		content, err := os.ReadFile(cfg.SystemPromptFile)
		if err != nil {
			slog.Error("genai.NewClient: failed to read system prompt file", "file", cfg.SystemPromptFile, "error", err)
			return nil, fmt.Errorf("failed to read system prompt file: %w", err)
		}
		systemPrompt = strings.TrimSpace(string(content))
		slog.Info("genai.NewClient: system prompt loaded from file", "file", cfg.SystemPromptFile, "length", len(systemPrompt))
	}

	cli := openai.NewClient(option.WithAPIKey(apiKey))
	slog.Debug("genai.NewClient: client created", "model", model, "timeout", timeout)
	return &Client{chat: openaiChatService{client: cli}, model: model, timeout: timeout, systemPrompt: systemPrompt}, nil
}

// GenerateResponse generates a reply to userMessage given bounded prior
// history. Detected trigger phrases are appended as a system annotation so the
// model produces an appropriate crisis response, matching the classifier's
// findings. Any error return is a generation failure the caller must recover
// from; no retry happens here.
func (c *Client) GenerateResponse(ctx context.Context, userMessage string, triggers []string, history []HistoryMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(c.systemPrompt))
	for _, h := range history {
		switch h.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(h.Text))
		default:
			messages = append(messages, openai.UserMessage(h.Text))
		}
	}

	outbound := userMessage
	if len(triggers) > 0 {
		outbound += fmt.Sprintf("\n\n[SYSTEM: Emergency trigger words detected: %s. Please provide appropriate crisis support response.]", strings.Join(triggers, ", "))
	}
	messages = append(messages, openai.UserMessage(outbound))

	resp, err := c.chat.Create(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		slog.Error("genai.GenerateResponse: completion failed", "error", err, "historyLen", len(history))
		return "", err
	}
	if len(resp.Choices) == 0 {
		slog.Error("genai.GenerateResponse: completion returned no choices")
		return "", ErrNoChoicesReturned
	}

	reply := resp.Choices[0].Message.Content
	slog.Debug("genai.GenerateResponse: reply generated", "replyLength", len(reply), "historyLen", len(history), "triggers", len(triggers))
	return reply, nil
}
