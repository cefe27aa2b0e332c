package conversation

import (
	"context"
	"io"
	"sync"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/tools"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, "error")
}

func testProfiles() clinic.Profiles {
	return clinic.NewProfiles(&config.Config{
		Marilia: config.ProviderFields{APIKey: "key-1"},
		Marina:  config.ProviderFields{APIKey: "key-2"},
	})
}

func testProfile() clinic.Profile {
	p, _ := testProfiles().Get(clinic.ProviderMarina)
	return p
}

type appendedMessage struct {
	threadID string
	role     string
	content  string
}

// fakeAssistant replays scripted run states. Each StartRun consumes one
// script: the first state is returned by StartRun and the rest by GetRun.
// Once a script is exhausted GetRun keeps returning its last state.
type fakeAssistant struct {
	mu        sync.Mutex
	appended  []appendedMessage
	scripts   [][]RunState
	current   []RunState
	last      RunState
	specs     []RunSpec
	submitted [][]ToolOutput
	reply     string
	appendErr error
	startErr  error
}

func (f *fakeAssistant) AppendMessage(_ context.Context, threadID, role, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, appendedMessage{threadID: threadID, role: role, content: content})
	return nil
}

func (f *fakeAssistant) StartRun(_ context.Context, spec RunSpec) (RunState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return RunState{}, f.startErr
	}
	f.specs = append(f.specs, spec)
	script := []RunState{{ID: "run-default", Status: RunCompleted}}
	if len(f.scripts) > 0 {
		script, f.scripts = f.scripts[0], f.scripts[1:]
	}
	f.last = script[0]
	f.current = script[1:]
	return script[0], nil
}

func (f *fakeAssistant) GetRun(_ context.Context, _, _ string) (RunState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.current) > 0 {
		f.last, f.current = f.current[0], f.current[1:]
	}
	return f.last, nil
}

func (f *fakeAssistant) SubmitToolOutputs(_ context.Context, _, _ string, outputs []ToolOutput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, outputs)
	return nil
}

func (f *fakeAssistant) LatestAssistantMessage(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reply, nil
}

func (f *fakeAssistant) messages() []appendedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]appendedMessage(nil), f.appended...)
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []tools.Call
	invs  []tools.Invocation
}

func (f *fakeDispatcher) Dispatch(_ context.Context, call tools.Call, inv tools.Invocation) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	f.invs = append(f.invs, inv)
	return "ok:" + call.Name
}

type fakeAnswerer struct {
	answer   string
	err      error
	requests []ShortAnswerRequest
}

func (f *fakeAnswerer) ShortAnswer(_ context.Context, req ShortAnswerRequest) (string, error) {
	f.requests = append(f.requests, req)
	return f.answer, f.err
}
