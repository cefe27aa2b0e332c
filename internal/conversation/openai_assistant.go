package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/wolfman30/clinic-concierge/internal/tools"
)

// AssistantsAPI is the subset of *openai.Client used for threads and runs.
type AssistantsAPI interface {
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, request openai.SubmitToolOutputsRequest) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order, after, before, runID *string) (openai.MessagesList, error)
}

// OpenAIAssistant adapts the OpenAI Assistants API to AssistantClient.
type OpenAIAssistant struct {
	api         AssistantsAPI
	assistantID string
	tools       []openai.Tool
}

// NewOpenAIAssistant binds the client to one assistant. Every run carries the
// clinic tool catalog.
func NewOpenAIAssistant(api AssistantsAPI, assistantID string) *OpenAIAssistant {
	if api == nil {
		panic("conversation: openai client cannot be nil")
	}
	return &OpenAIAssistant{api: api, assistantID: assistantID, tools: tools.Catalog()}
}

var _ AssistantClient = (*OpenAIAssistant)(nil)

func (a *OpenAIAssistant) AppendMessage(ctx context.Context, threadID, role, content string) error {
	if strings.TrimSpace(threadID) == "" {
		return errors.New("conversation: thread id required")
	}
	if _, err := a.api.CreateMessage(ctx, threadID, openai.MessageRequest{Role: role, Content: content}); err != nil {
		return fmt.Errorf("conversation: append %s message: %w", role, err)
	}
	return nil
}

func (a *OpenAIAssistant) StartRun(ctx context.Context, spec RunSpec) (RunState, error) {
	run, err := a.api.CreateRun(ctx, spec.ThreadID, openai.RunRequest{
		AssistantID:            a.assistantID,
		AdditionalInstructions: spec.Instructions,
		Tools:                  a.tools,
	})
	if err != nil {
		return RunState{}, err
	}
	return toRunState(run), nil
}

func (a *OpenAIAssistant) GetRun(ctx context.Context, threadID, runID string) (RunState, error) {
	run, err := a.api.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return RunState{}, err
	}
	return toRunState(run), nil
}

func (a *OpenAIAssistant) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error {
	req := openai.SubmitToolOutputsRequest{ToolOutputs: make([]openai.ToolOutput, 0, len(outputs))}
	for _, o := range outputs {
		req.ToolOutputs = append(req.ToolOutputs, openai.ToolOutput{ToolCallID: o.CallID, Output: o.Output})
	}
	_, err := a.api.SubmitToolOutputs(ctx, threadID, runID, req)
	return err
}

// LatestAssistantMessage returns the text of the newest assistant message on
// the thread.
func (a *OpenAIAssistant) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	limit := 10
	order := "desc"
	list, err := a.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", err
	}
	for _, msg := range list.Messages {
		if msg.Role != RoleAssistant {
			continue
		}
		var parts []string
		for _, c := range msg.Content {
			if c.Text != nil && strings.TrimSpace(c.Text.Value) != "" {
				parts = append(parts, c.Text.Value)
			}
		}
		return strings.Join(parts, "\n"), nil
	}
	return "", errors.New("conversation: no assistant message on thread")
}

func toRunState(run openai.Run) RunState {
	state := RunState{ID: run.ID, Status: RunStatus(run.Status)}
	if run.RequiredAction == nil || run.RequiredAction.SubmitToolOutputs == nil {
		return state
	}
	for _, tc := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
		state.ToolCalls = append(state.ToolCalls, tools.Call{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return state
}
