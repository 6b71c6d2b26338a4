package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/whatsapp-platform/internal/model"
	"github.com/capitalize-ai/whatsapp-platform/pkg/logger"
)

type fakeAPI struct {
	createdThreads  int
	messages        []openai.MessageRequest
	cancelledRuns   []string
	toolOutputs     []openai.SubmitToolOutputsRequest
	existingRuns    []openai.Run
	runStatuses     []openai.RunStatus
	requiredActions map[int]*openai.RunRequiredAction
	runRequests     []openai.RunRequest
	replyText       string
	lastError       *openai.RunLastError

	retrieves int
}

func (f *fakeAPI) CreateThread(ctx context.Context, req openai.ThreadRequest) (openai.Thread, error) {
	f.createdThreads++
	return openai.Thread{ID: "thread-new"}, nil
}

func (f *fakeAPI) CreateMessage(ctx context.Context, threadID string, req openai.MessageRequest) (openai.Message, error) {
	f.messages = append(f.messages, req)
	return openai.Message{ID: "msg-1"}, nil
}

func (f *fakeAPI) CreateRun(ctx context.Context, threadID string, req openai.RunRequest) (openai.Run, error) {
	f.runRequests = append(f.runRequests, req)
	return openai.Run{ID: "run-1", ThreadID: threadID, Status: openai.RunStatusQueued}, nil
}

func (f *fakeAPI) RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	idx := f.retrieves
	if idx >= len(f.runStatuses) {
		idx = len(f.runStatuses) - 1
	}
	f.retrieves++
	run := openai.Run{ID: runID, ThreadID: threadID, Status: f.runStatuses[idx], LastError: f.lastError}
	if action, ok := f.requiredActions[idx]; ok {
		run.RequiredAction = action
	}
	return run, nil
}

func (f *fakeAPI) CancelRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	f.cancelledRuns = append(f.cancelledRuns, runID)
	return openai.Run{ID: runID, Status: openai.RunStatusCancelled}, nil
}

func (f *fakeAPI) SubmitToolOutputs(ctx context.Context, threadID, runID string, req openai.SubmitToolOutputsRequest) (openai.Run, error) {
	f.toolOutputs = append(f.toolOutputs, req)
	return openai.Run{ID: runID, Status: openai.RunStatusInProgress}, nil
}

func (f *fakeAPI) ListRuns(ctx context.Context, threadID string, p openai.Pagination) (openai.RunList, error) {
	return openai.RunList{Runs: f.existingRuns}, nil
}

func (f *fakeAPI) ListMessage(ctx context.Context, threadID string, limit *int, order *string, after, before *string) (openai.MessagesList, error) {
	return openai.MessagesList{Messages: []openai.Message{
		{ID: "m-user", Role: "user", Content: []openai.MessageContent{{Type: "text", Text: &openai.MessageText{Value: "hello"}}}},
		{ID: "m-reply", Role: "assistant", Content: []openai.MessageContent{{Type: "text", Text: &openai.MessageText{Value: f.replyText}}}},
	}}, nil
}

func (f *fakeAPI) CreateFileBytes(ctx context.Context, req openai.FileBytesRequest) (openai.File, error) {
	return openai.File{ID: "file-" + req.Name, Purpose: string(req.Purpose)}, nil
}

func newTestGateway(api API, actions *Registry) *Gateway {
	if actions == nil {
		actions = NewRegistry(logger.NewNop())
	}
	return New(api, actions, logger.NewNop(), time.Millisecond, 50*time.Millisecond)
}

func TestConverseCreatesThreadAndReturnsReply(t *testing.T) {
	api := &fakeAPI{
		runStatuses: []openai.RunStatus{openai.RunStatusQueued, openai.RunStatusCompleted},
		replyText:   "hi there",
	}
	g := newTestGateway(api, nil)

	result, err := g.Converse(context.Background(), ConverseRequest{
		AssistantID: "asst-1",
		Parts:       []model.ContentPart{model.TextPart("hello")},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "thread-new", result.ThreadID)
	assert.Equal(t, "hi there", result.ReplyText)
	assert.Equal(t, 1, api.createdThreads)
	require.Len(t, api.messages, 1)
	assert.Equal(t, "hello", api.messages[0].Content)
}

func TestConverseAdvertisesRegisteredActions(t *testing.T) {
	actions := NewRegistry(logger.NewNop())
	require.NoError(t, actions.Register(Action{
		Name:        "lookup_order",
		Description: "Look up an order by id",
		Parameters:  []Parameter{{Name: "order_id", Type: "string", Required: true}},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, nil
		},
	}))

	api := &fakeAPI{
		runStatuses: []openai.RunStatus{openai.RunStatusCompleted},
		replyText:   "ok",
	}
	g := newTestGateway(api, actions)

	_, err := g.Converse(context.Background(), ConverseRequest{
		AssistantID: "asst-1",
		Parts:       []model.ContentPart{model.TextPart("hello")},
	})
	require.NoError(t, err)

	require.Len(t, api.runRequests, 1)
	require.Len(t, api.runRequests[0].Tools, 1)
	tool := api.runRequests[0].Tools[0]
	assert.Equal(t, openai.ToolTypeFunction, tool.Type)
	require.NotNil(t, tool.Function)
	assert.Equal(t, "lookup_order", tool.Function.Name)
}

func TestConverseEmptyRegistryKeepsAssistantTools(t *testing.T) {
	api := &fakeAPI{
		runStatuses: []openai.RunStatus{openai.RunStatusCompleted},
		replyText:   "ok",
	}
	g := newTestGateway(api, nil)

	_, err := g.Converse(context.Background(), ConverseRequest{
		AssistantID: "asst-1",
		Parts:       []model.ContentPart{model.TextPart("hello")},
	})
	require.NoError(t, err)

	// No registered actions means the run inherits the assistant's own
	// tool configuration rather than overriding it with an empty set.
	require.Len(t, api.runRequests, 1)
	assert.Nil(t, api.runRequests[0].Tools)
}

func TestConverseCancelsStaleRunsBeforeReuse(t *testing.T) {
	api := &fakeAPI{
		existingRuns: []openai.Run{
			{ID: "run-old", Status: openai.RunStatusInProgress},
			{ID: "run-done", Status: openai.RunStatusCompleted},
		},
		runStatuses: []openai.RunStatus{openai.RunStatusCompleted},
		replyText:   "ok",
	}
	g := newTestGateway(api, nil)

	result, err := g.Converse(context.Background(), ConverseRequest{
		ThreadID:    "thread-1",
		AssistantID: "asst-1",
		Parts:       []model.ContentPart{model.TextPart("again")},
	})
	require.NoError(t, err)
	assert.Equal(t, "thread-1", result.ThreadID)
	assert.Equal(t, 0, api.createdThreads)
	assert.Equal(t, []string{"run-old"}, api.cancelledRuns)
}

func TestConverseTimesOutWithoutError(t *testing.T) {
	api := &fakeAPI{
		runStatuses: []openai.RunStatus{openai.RunStatusInProgress},
	}
	g := newTestGateway(api, nil)

	result, err := g.Converse(context.Background(), ConverseRequest{
		ThreadID:    "thread-1",
		AssistantID: "asst-1",
		Parts:       []model.ContentPart{model.TextPart("slow")},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, result.Status)
	assert.Empty(t, result.ReplyText)
}

func TestConverseDispatchesRequiredActions(t *testing.T) {
	actions := NewRegistry(logger.NewNop())
	var gotArgs map[string]any
	require.NoError(t, actions.Register(Action{
		Name: "lookup_order",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			gotArgs = args
			return map[string]any{"status": "shipped"}, nil
		},
	}))

	api := &fakeAPI{
		runStatuses: []openai.RunStatus{openai.RunStatusRequiresAction, openai.RunStatusCompleted},
		requiredActions: map[int]*openai.RunRequiredAction{
			0: {
				Type: openai.RequiredActionTypeSubmitToolOutputs,
				SubmitToolOutputs: &openai.SubmitToolOutputs{
					ToolCalls: []openai.ToolCall{{
						ID:   "call-1",
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      "lookup_order",
							Arguments: `{"order_id": "42"}`,
						},
					}},
				},
			},
		},
		replyText: "your order shipped",
	}
	g := newTestGateway(api, actions)

	result, err := g.Converse(context.Background(), ConverseRequest{
		ThreadID:    "thread-1",
		AssistantID: "asst-1",
		Parts:       []model.ContentPart{model.TextPart("where is my order?")},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "your order shipped", result.ReplyText)
	assert.Equal(t, map[string]any{"order_id": "42"}, gotArgs)
	require.Len(t, api.toolOutputs, 1)
	require.Len(t, api.toolOutputs[0].ToolOutputs, 1)
	assert.Equal(t, "call-1", api.toolOutputs[0].ToolOutputs[0].ToolCallID)
	assert.JSONEq(t, `{"status": "shipped"}`, api.toolOutputs[0].ToolOutputs[0].Output.(string))
}

func TestConverseReportsFailedRunError(t *testing.T) {
	api := &fakeAPI{
		runStatuses: []openai.RunStatus{openai.RunStatusFailed},
		lastError:   &openai.RunLastError{Code: "rate_limit_exceeded", Message: "too many requests"},
	}
	g := newTestGateway(api, nil)

	result, err := g.Converse(context.Background(), ConverseRequest{
		ThreadID:    "thread-1",
		AssistantID: "asst-1",
		Parts:       []model.ContentPart{model.TextPart("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "rate_limit_exceeded", result.ErrCode)
	assert.Equal(t, "too many requests", result.ErrMsg)
}

func TestConverseAttachesImageFileIDs(t *testing.T) {
	api := &fakeAPI{
		runStatuses: []openai.RunStatus{openai.RunStatusCompleted},
		replyText:   "nice photo",
	}
	g := newTestGateway(api, nil)

	_, err := g.Converse(context.Background(), ConverseRequest{
		ThreadID:    "thread-1",
		AssistantID: "asst-1",
		Parts: []model.ContentPart{
			model.TextPart("look at this"),
			model.ImagePart("file-abc"),
		},
	})
	require.NoError(t, err)
	require.Len(t, api.messages, 1)
	assert.Equal(t, "look at this", api.messages[0].Content)
	assert.Equal(t, []string{"file-abc"}, api.messages[0].FileIds)
}

func TestUploadImage(t *testing.T) {
	api := &fakeAPI{}
	g := newTestGateway(api, nil)

	id, err := g.UploadImage(context.Background(), "photo.jpg", []byte{0xff, 0xd8})
	require.NoError(t, err)
	assert.Equal(t, "file-photo.jpg", id)
}
