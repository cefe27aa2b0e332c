package conversation

import (
	"context"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/tools"
)

type fakeAssistantsAPI struct {
	messages  []openai.MessageRequest
	runReq    openai.RunRequest
	run       openai.Run
	submitted openai.SubmitToolOutputsRequest
	list      openai.MessagesList
	order     string
}

func (f *fakeAssistantsAPI) CreateMessage(_ context.Context, _ string, req openai.MessageRequest) (openai.Message, error) {
	f.messages = append(f.messages, req)
	return openai.Message{}, nil
}

func (f *fakeAssistantsAPI) CreateRun(_ context.Context, _ string, req openai.RunRequest) (openai.Run, error) {
	f.runReq = req
	return f.run, nil
}

func (f *fakeAssistantsAPI) RetrieveRun(context.Context, string, string) (openai.Run, error) {
	return f.run, nil
}

func (f *fakeAssistantsAPI) SubmitToolOutputs(_ context.Context, _, _ string, req openai.SubmitToolOutputsRequest) (openai.Run, error) {
	f.submitted = req
	return f.run, nil
}

func (f *fakeAssistantsAPI) ListMessage(_ context.Context, _ string, _ *int, order, _, _, _ *string) (openai.MessagesList, error) {
	if order != nil {
		f.order = *order
	}
	return f.list, nil
}

func textMessage(role, text string) openai.Message {
	return openai.Message{Role: role, Content: []openai.MessageContent{{Type: "text", Text: &openai.MessageText{Value: text}}}}
}

func TestOpenAIAssistantStartRunCarriesCatalog(t *testing.T) {
	api := &fakeAssistantsAPI{run: openai.Run{ID: "run-1", Status: openai.RunStatusQueued}}
	a := NewOpenAIAssistant(api, "asst_123")

	state, err := a.StartRun(context.Background(), RunSpec{ThreadID: "th", Instructions: "hoje é segunda"})
	require.NoError(t, err)
	assert.Equal(t, RunState{ID: "run-1", Status: RunQueued}, state)
	assert.Equal(t, "asst_123", api.runReq.AssistantID)
	assert.Equal(t, "hoje é segunda", api.runReq.AdditionalInstructions)
	assert.Len(t, api.runReq.Tools, len(tools.Catalog()))
}

func TestOpenAIAssistantMapsToolCalls(t *testing.T) {
	api := &fakeAssistantsAPI{run: openai.Run{
		ID:     "run-1",
		Status: openai.RunStatusRequiresAction,
		RequiredAction: &openai.RunRequiredAction{
			Type: openai.RequiredActionTypeSubmitToolOutputs,
			SubmitToolOutputs: &openai.SubmitToolOutputs{ToolCalls: []openai.ToolCall{{
				ID:       "call-9",
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: tools.FuncCreateEvent, Arguments: `{"startDateTime":"2025-01-22T14:00:00"}`},
			}}},
		},
	}}
	a := NewOpenAIAssistant(api, "asst")

	state, err := a.GetRun(context.Background(), "th", "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunRequiresAction, state.Status)
	require.Len(t, state.ToolCalls, 1)
	assert.Equal(t, tools.Call{ID: "call-9", Name: tools.FuncCreateEvent, Arguments: `{"startDateTime":"2025-01-22T14:00:00"}`}, state.ToolCalls[0])

	require.NoError(t, a.SubmitToolOutputs(context.Background(), "th", "run-1", []ToolOutput{{CallID: "call-9", Output: "ok"}}))
	assert.Equal(t, []openai.ToolOutput{{ToolCallID: "call-9", Output: "ok"}}, api.submitted.ToolOutputs)
}

func TestOpenAIAssistantLatestAssistantMessage(t *testing.T) {
	api := &fakeAssistantsAPI{list: openai.MessagesList{Messages: []openai.Message{
		textMessage(RoleUser, "oi"),
		textMessage(RoleAssistant, "Olá! Como posso ajudar?"),
		textMessage(RoleAssistant, "mensagem antiga"),
	}}}
	a := NewOpenAIAssistant(api, "asst")

	got, err := a.LatestAssistantMessage(context.Background(), "th")
	require.NoError(t, err)
	assert.Equal(t, "Olá! Como posso ajudar?", got)
	assert.Equal(t, "desc", api.order)

	api.list = openai.MessagesList{Messages: []openai.Message{textMessage(RoleUser, "oi")}}
	_, err = a.LatestAssistantMessage(context.Background(), "th")
	assert.Error(t, err)
}

func TestOpenAIAssistantAppendMessage(t *testing.T) {
	api := &fakeAssistantsAPI{}
	a := NewOpenAIAssistant(api, "asst")

	require.NoError(t, a.AppendMessage(context.Background(), "th", RoleUser, "oi"))
	assert.Equal(t, []openai.MessageRequest{{Role: RoleUser, Content: "oi"}}, api.messages)
	assert.Error(t, a.AppendMessage(context.Background(), " ", RoleUser, "oi"))
}

func TestFreeFormInstructions(t *testing.T) {
	profile := testProfile()
	now := time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC)

	got := FreeFormInstructions(now, profile)
	assert.Contains(t, got, "é a Dra Marina Zaneti.")
	assert.Contains(t, got, "Essa é a data de hoje: 2025-01-08, e hoje é quarta-feira.")
	assert.Contains(t, got, clinic.BusinessHoursText())
}

func TestSplitReply(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  []string
	}{
		{"single", "Olá, tudo bem", []string{"Olá, tudo bem"}},
		{"two questions", "Tudo bem? Qual horário prefere?", []string{"Tudo bem?", "Qual horário prefere?"}},
		{"mark without space", "Quer?sim", []string{"Quer?sim"}},
		{"newline split", "Posso ajudar?\n\nTemos vagas.", []string{"Posso ajudar?", "Temos vagas."}},
		{"empty", "   ", nil},
		{
			"folds overflow",
			"Um? Dois? Três? Quatro? Cinco? Seis",
			[]string{"Um?", "Dois?", "Três?", "Quatro? Cinco? Seis"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SplitReply(tc.reply))
		})
	}
}
