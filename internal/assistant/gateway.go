package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/capitalize-ai/whatsapp-platform/internal/model"
	"github.com/capitalize-ai/whatsapp-platform/pkg/logger"
	"github.com/capitalize-ai/whatsapp-platform/pkg/metrics"
)

// Terminal converse statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
	StatusTimeout   = "timeout"
)

const purposeVision = openai.PurposeType("vision")

// API is the slice of the OpenAI client the gateway depends on.
type API interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error)
	CancelRun(ctx context.Context, threadID, runID string) (openai.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, request openai.SubmitToolOutputsRequest) (openai.Run, error)
	ListRuns(ctx context.Context, threadID string, pagination openai.Pagination) (openai.RunList, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string) (openai.MessagesList, error)
	CreateFileBytes(ctx context.Context, request openai.FileBytesRequest) (openai.File, error)
}

// ConverseRequest carries one user turn into an assistant thread. An empty
// ThreadID starts a new thread.
type ConverseRequest struct {
	ThreadID    string
	AssistantID string
	Parts       []model.ContentPart
}

// ConverseResult is the terminal outcome of one converse turn. Status is
// always set; ReplyText only when Status is completed.
type ConverseResult struct {
	ThreadID  string
	RunID     string
	Status    string
	ReplyText string
	ErrCode   string
	ErrMsg    string
}

// Gateway drives the assistant completion protocol: create or reuse a
// thread, append the user turn, start a run, poll to a terminal state
// within a bounded window, and dispatch any required tool calls.
type Gateway struct {
	api          API
	actions      *Registry
	logger       *logger.Logger
	pollInterval time.Duration
	runTimeout   time.Duration
}

// New creates a Gateway. The *openai.Client satisfies API.
func New(api API, actions *Registry, log *logger.Logger, pollInterval, runTimeout time.Duration) *Gateway {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if runTimeout <= 0 {
		runTimeout = 5 * time.Minute
	}
	return &Gateway{
		api:          api,
		actions:      actions,
		logger:       log,
		pollInterval: pollInterval,
		runTimeout:   runTimeout,
	}
}

// Converse runs one full assistant turn. A deadline elapsing is reported
// as Status timeout, not as an error; errors are reserved for protocol
// failures where no terminal status was reached.
func (g *Gateway) Converse(ctx context.Context, req ConverseRequest) (ConverseResult, error) {
	start := time.Now()

	threadID := req.ThreadID
	if threadID == "" {
		thread, err := g.api.CreateThread(ctx, openai.ThreadRequest{})
		if err != nil {
			return ConverseResult{}, fmt.Errorf("failed to create thread: %w", err)
		}
		threadID = thread.ID
	} else if err := g.resolveStaleRuns(ctx, threadID); err != nil {
		return ConverseResult{}, err
	}

	if _, err := g.api.CreateMessage(ctx, threadID, buildMessageRequest(req.Parts)); err != nil {
		return ConverseResult{ThreadID: threadID}, fmt.Errorf("failed to append message: %w", err)
	}

	runReq := openai.RunRequest{AssistantID: req.AssistantID}
	if g.actions != nil {
		// Registered actions override the assistant's configured tool set
		// so the run can only request actions this process can dispatch.
		if tools := g.actions.Tools(); len(tools) > 0 {
			runReq.Tools = tools
		}
	}
	run, err := g.api.CreateRun(ctx, threadID, runReq)
	if err != nil {
		return ConverseResult{ThreadID: threadID}, fmt.Errorf("failed to start run: %w", err)
	}

	result, err := g.pollRun(ctx, threadID, run.ID)
	metrics.RecordAssistantRun(result.Status, time.Since(start).Seconds())
	if err != nil {
		return result, err
	}

	if result.Status == StatusCompleted {
		reply, err := g.latestAssistantText(ctx, threadID)
		if err != nil {
			return result, err
		}
		result.ReplyText = reply
	}
	return result, nil
}

// UploadImage stores raw image bytes with the assistant provider and
// returns the file id to attach to a message.
func (g *Gateway) UploadImage(ctx context.Context, name string, data []byte) (string, error) {
	file, err := g.api.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    name,
		Bytes:   data,
		Purpose: purposeVision,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	return file.ID, nil
}

// resolveStaleRuns cancels any run still in flight on the thread. A new
// message cannot be appended while a run is active.
func (g *Gateway) resolveStaleRuns(ctx context.Context, threadID string) error {
	limit := 10
	runs, err := g.api.ListRuns(ctx, threadID, openai.Pagination{Limit: &limit})
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	for _, run := range runs.Runs {
		if isTerminal(run.Status) {
			continue
		}
		if _, err := g.api.CancelRun(ctx, threadID, run.ID); err != nil {
			g.logger.Warnw("failed to cancel stale run",
				"thread_id", threadID,
				"run_id", run.ID,
				"status", run.Status,
				"error", err,
			)
		}
	}
	return nil
}

func (g *Gateway) pollRun(ctx context.Context, threadID, runID string) (ConverseResult, error) {
	deadline := time.Now().Add(g.runTimeout)
	result := ConverseResult{ThreadID: threadID, RunID: runID}

	for {
		run, err := g.api.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return result, fmt.Errorf("failed to retrieve run: %w", err)
		}

		switch run.Status {
		case openai.RunStatusCompleted:
			result.Status = StatusCompleted
			return result, nil
		case openai.RunStatusFailed:
			result.Status = StatusFailed
			if run.LastError != nil {
				result.ErrCode = string(run.LastError.Code)
				result.ErrMsg = run.LastError.Message
			}
			return result, nil
		case openai.RunStatusExpired:
			result.Status = StatusExpired
			return result, nil
		case openai.RunStatusCancelled:
			result.Status = StatusCancelled
			return result, nil
		case openai.RunStatusRequiresAction:
			if err := g.submitToolOutputs(ctx, threadID, runID, run.RequiredAction); err != nil {
				return result, err
			}
			continue
		}

		if time.Now().After(deadline) {
			result.Status = StatusTimeout
			g.logger.Warnw("assistant run timed out", "thread_id", threadID, "run_id", runID)
			return result, nil
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(g.pollInterval):
		}
	}
}

func (g *Gateway) submitToolOutputs(ctx context.Context, threadID, runID string, required *openai.RunRequiredAction) error {
	if required == nil || required.SubmitToolOutputs == nil {
		return fmt.Errorf("run requires action but carries no tool calls")
	}

	outputs := make([]openai.ToolOutput, 0, len(required.SubmitToolOutputs.ToolCalls))
	for _, call := range required.SubmitToolOutputs.ToolCalls {
		var args map[string]any
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return fmt.Errorf("failed to parse arguments for %s: %w", call.Function.Name, err)
			}
		}

		var output string
		value, err := g.actions.Execute(ctx, call.Function.Name, args)
		if err != nil {
			g.logger.Errorw("action execution failed",
				"action", call.Function.Name,
				"run_id", runID,
				"error", err,
			)
			output = fmt.Sprintf(`{"error": %q}`, err.Error())
		} else {
			encoded, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("failed to encode output for %s: %w", call.Function.Name, err)
			}
			output = string(encoded)
		}

		outputs = append(outputs, openai.ToolOutput{
			ToolCallID: call.ID,
			Output:     output,
		})
	}

	if _, err := g.api.SubmitToolOutputs(ctx, threadID, runID, openai.SubmitToolOutputsRequest{ToolOutputs: outputs}); err != nil {
		return fmt.Errorf("failed to submit tool outputs: %w", err)
	}
	return nil
}

func (g *Gateway) latestAssistantText(ctx context.Context, threadID string) (string, error) {
	limit := 10
	order := "desc"
	list, err := g.api.ListMessage(ctx, threadID, &limit, &order, nil, nil)
	if err != nil {
		return "", fmt.Errorf("failed to list messages: %w", err)
	}

	for _, msg := range list.Messages {
		if msg.Role != "assistant" {
			continue
		}
		for _, part := range msg.Content {
			if part.Text != nil {
				return part.Text.Value, nil
			}
		}
	}
	return "", fmt.Errorf("run completed but no assistant reply found")
}

func buildMessageRequest(parts []model.ContentPart) openai.MessageRequest {
	req := openai.MessageRequest{Role: string(openai.ThreadMessageRoleUser)}
	text := ""
	for _, part := range parts {
		switch part.Type {
		case model.ContentText:
			if text != "" {
				text += "\n\n"
			}
			text += part.Text
		case model.ContentImageFile:
			req.FileIds = append(req.FileIds, part.FileID)
		}
	}
	req.Content = text
	return req
}

func isTerminal(status openai.RunStatus) bool {
	switch status {
	case openai.RunStatusCompleted, openai.RunStatusFailed, openai.RunStatusExpired, openai.RunStatusCancelled:
		return true
	}
	return false
}
