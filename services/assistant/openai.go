package assistant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	// DefaultTimeout bounds each individual API call; the run poll loop is bounded separately
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRetries applies only to transport-level failures inside the SDK
	DefaultMaxRetries = 2
	// DefaultModel is used for single-turn completions such as resume parsing
	DefaultModel = "gpt-4o-mini"
)

// Config holds configuration for the OpenAI client
type Config struct {
	APIKey      string
	AssistantID string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxRetries  int // 0 uses DefaultMaxRetries, negative disables retries
}

// Client implements Backend and Completer on top of the OpenAI API
type Client struct {
	client      openaigo.Client
	assistantID string
	model       string
}

// NewClient creates a new OpenAI-backed client
func NewClient(config Config) (*Client, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	switch {
	case config.MaxRetries == 0:
		config.MaxRetries = DefaultMaxRetries
	case config.MaxRetries < 0: // explicitly disabled
		config.MaxRetries = 0
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(config.APIKey)),
		option.WithMaxRetries(config.MaxRetries),
		option.WithRequestTimeout(config.Timeout),
	}
	if baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/"); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &Client{
		client:      openaigo.NewClient(opts...),
		assistantID: config.AssistantID,
		model:       config.Model,
	}, nil
}

// CreateThread starts a new conversation thread
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	thread, err := c.client.Beta.Threads.New(ctx, openaigo.BetaThreadNewParams{})
	if err != nil {
		return "", fmt.Errorf("failed to create thread: %w", err)
	}
	return thread.ID, nil
}

// AddUserMessage appends a user message, attaching files for file search
func (c *Client) AddUserMessage(ctx context.Context, threadID, content string, fileIDs []string) error {
	params := openaigo.BetaThreadMessageNewParams{
		Role: openaigo.BetaThreadMessageNewParamsRoleUser,
		Content: openaigo.BetaThreadMessageNewParamsContentUnion{
			OfString: openaigo.String(content),
		},
	}
	for _, id := range fileIDs {
		params.Attachments = append(params.Attachments, openaigo.BetaThreadMessageNewParamsAttachment{
			FileID: openaigo.String(id),
			Tools: []openaigo.BetaThreadMessageNewParamsAttachmentToolUnion{
				{OfFileSearch: &openaigo.BetaThreadMessageNewParamsAttachmentToolFileSearch{}},
			},
		})
	}

	if _, err := c.client.Beta.Threads.Messages.New(ctx, threadID, params); err != nil {
		return fmt.Errorf("failed to add message to thread %s: %w", threadID, err)
	}
	return nil
}

// CreateRun runs the configured assistant against the thread
func (c *Client) CreateRun(ctx context.Context, threadID string) (*Run, error) {
	if c.assistantID == "" {
		return nil, errors.New("openai assistant id is not configured")
	}

	run, err := c.client.Beta.Threads.Runs.New(ctx, threadID, openaigo.BetaThreadRunNewParams{
		AssistantID: c.assistantID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return toRun(run), nil
}

// GetRun fetches the current state of a run
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	run, err := c.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return toRun(run), nil
}

// SubmitToolOutputs acknowledges tool calls so the run can finish
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error {
	params := openaigo.BetaThreadRunSubmitToolOutputsParams{}
	for _, out := range outputs {
		params.ToolOutputs = append(params.ToolOutputs, openaigo.BetaThreadRunSubmitToolOutputsParamsToolOutput{
			ToolCallID: openaigo.String(out.ToolCallID),
			Output:     openaigo.String(out.Output),
		})
	}

	if _, err := c.client.Beta.Threads.Runs.SubmitToolOutputs(ctx, threadID, runID, params); err != nil {
		return fmt.Errorf("failed to submit tool outputs for run %s: %w", runID, err)
	}
	return nil
}

// LatestAssistantMessage returns the newest assistant text in the thread
func (c *Client) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	page, err := c.client.Beta.Threads.Messages.List(ctx, threadID, openaigo.BetaThreadMessageListParams{
		Limit: openaigo.Int(10),
		Order: openaigo.BetaThreadMessageListParamsOrderDesc,
	})
	if err != nil {
		return "", fmt.Errorf("failed to list messages: %w", err)
	}

	for _, msg := range page.Data {
		if msg.Role != openaigo.MessageRoleAssistant {
			continue
		}
		var b strings.Builder
		for _, part := range msg.Content {
			if part.Type != "text" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(part.Text.Value)
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			return text, nil
		}
	}

	return "", fmt.Errorf("no assistant message found in thread %s", threadID)
}

// UploadFile stores a file for assistant use and returns its id
func (c *Client) UploadFile(ctx context.Context, fileName, mimeType string, data []byte) (string, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	file, err := c.client.Files.New(ctx, openaigo.FileNewParams{
		File:    openaigo.File(bytes.NewReader(data), fileName, mimeType),
		Purpose: openaigo.FilePurposeAssistants,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file %s: %w", fileName, err)
	}
	return file.ID, nil
}

// Complete runs a single-turn chat completion
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openaigo.ChatCompletionNewParams{
		Model: openaigo.ChatModel(c.model),
		Messages: []openaigo.ChatCompletionMessageParamUnion{
			openaigo.SystemMessage(systemPrompt),
			openaigo.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned from chat completion")
	}
	return resp.Choices[0].Message.Content, nil
}

func toRun(run *openaigo.Run) *Run {
	out := &Run{
		ID:        run.ID,
		Status:    RunStatus(run.Status),
		LastError: run.LastError.Message,
	}
	for _, call := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return out
}
