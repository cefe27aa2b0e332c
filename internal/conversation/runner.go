package conversation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/observability/metrics"
	"github.com/wolfman30/clinic-concierge/internal/tools"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

var runTracer = otel.Tracer("clinic.internal.conversation.runner")

// RunStatus mirrors the assistant runtime's run lifecycle.
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCancelling     RunStatus = "cancelling"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunCancelled      RunStatus = "cancelled"
	RunExpired        RunStatus = "expired"
)

func (s RunStatus) failed() bool {
	return s == RunFailed || s == RunCancelled || s == RunExpired
}

// Message roles used when appending to a thread.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// RunState is a snapshot of a run. ToolCalls is populated while the run
// requires action.
type RunState struct {
	ID        string
	Status    RunStatus
	ToolCalls []tools.Call
}

// RunSpec starts a run on a thread.
type RunSpec struct {
	ThreadID     string
	Instructions string
}

// ToolOutput pairs a tool call id with its string result.
type ToolOutput struct {
	CallID string
	Output string
}

// AssistantClient is the assistant runtime as the pipeline sees it.
type AssistantClient interface {
	AppendMessage(ctx context.Context, threadID, role, content string) error
	StartRun(ctx context.Context, spec RunSpec) (RunState, error)
	GetRun(ctx context.Context, threadID, runID string) (RunState, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error
	LatestAssistantMessage(ctx context.Context, threadID string) (string, error)
}

// ToolDispatcher executes tool calls for a run.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, call tools.Call, inv tools.Invocation) string
}

// RunRequest describes one assistant run.
type RunRequest struct {
	ThreadID     string
	UserID       string
	Instructions string
	Profile      clinic.Profile
}

// RunDriverConfig configures a RunDriver.
type RunDriverConfig struct {
	Client       AssistantClient
	Dispatcher   ToolDispatcher
	PollInterval time.Duration
	MaxPolls     int
	Metrics      *metrics.ConversationMetrics
	Logger       *logging.Logger
}

// RunDriver starts a run and polls it to a terminal status, servicing tool
// calls along the way.
type RunDriver struct {
	client       AssistantClient
	dispatcher   ToolDispatcher
	pollInterval time.Duration
	maxPolls     int
	metrics      *metrics.ConversationMetrics
	logger       *logging.Logger
}

func NewRunDriver(cfg RunDriverConfig) *RunDriver {
	if cfg.Client == nil {
		panic("conversation: assistant client cannot be nil")
	}
	if cfg.Dispatcher == nil {
		panic("conversation: tool dispatcher cannot be nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 120
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &RunDriver{
		client:       cfg.Client,
		dispatcher:   cfg.Dispatcher,
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.Component("run_driver"),
	}
}

var citationPattern = regexp.MustCompile(`【.*?】`)

// StripCitations removes file-search citation markers from assistant text.
func StripCitations(text string) string {
	return strings.TrimSpace(citationPattern.ReplaceAllString(text, ""))
}

// Run executes one run and returns the newest assistant message. Failed,
// cancelled and expired runs return *RunError; exceeding the poll budget or
// the context deadline returns ErrRunTimeout.
func (d *RunDriver) Run(ctx context.Context, req RunRequest) (string, error) {
	ctx, span := runTracer.Start(ctx, "conversation.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.thread_id", req.ThreadID),
		attribute.String("clinic.provider", req.Profile.Key.String()),
	)

	started := time.Now()
	state, err := d.client.StartRun(ctx, RunSpec{ThreadID: req.ThreadID, Instructions: req.Instructions})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("conversation: start run: %w", err)
	}
	d.logger.Info("run started", "run_id", state.ID, "user_id", req.UserID, "status", state.Status)

	inv := tools.Invocation{UserID: req.UserID, Profile: req.Profile}
	dispatched := make(map[string]struct{})
	for polls := 0; ; polls++ {
		switch {
		case state.Status == RunCompleted:
			d.metrics.ObserveRun(string(RunCompleted), time.Since(started).Seconds())
			text, err := d.client.LatestAssistantMessage(ctx, req.ThreadID)
			if err != nil {
				span.RecordError(err)
				return "", fmt.Errorf("conversation: read reply: %w", err)
			}
			return StripCitations(text), nil
		case state.Status.failed():
			d.metrics.ObserveRun(string(state.Status), time.Since(started).Seconds())
			runErr := &RunError{RunID: state.ID, Status: state.Status}
			span.RecordError(runErr)
			d.logger.Warn("run ended without completing", "run_id", state.ID, "status", state.Status)
			return "", runErr
		case state.Status == RunRequiresAction:
			if err := d.serviceToolCalls(ctx, req.ThreadID, state, inv, dispatched); err != nil {
				span.RecordError(err)
				return "", err
			}
		}

		if polls >= d.maxPolls {
			d.metrics.ObserveRun("timeout", time.Since(started).Seconds())
			return "", fmt.Errorf("%w: run %s still %s after %d polls", ErrRunTimeout, state.ID, state.Status, polls)
		}
		if err := d.wait(ctx); err != nil {
			d.metrics.ObserveRun("timeout", time.Since(started).Seconds())
			return "", fmt.Errorf("%w: %v", ErrRunTimeout, err)
		}
		state, err = d.client.GetRun(ctx, req.ThreadID, state.ID)
		if err != nil {
			span.RecordError(err)
			return "", fmt.Errorf("conversation: poll run: %w", err)
		}
	}
}

// serviceToolCalls dispatches every call not yet seen in this run and submits
// the outputs as one batch.
func (d *RunDriver) serviceToolCalls(ctx context.Context, threadID string, state RunState, inv tools.Invocation, dispatched map[string]struct{}) error {
	outputs := make([]ToolOutput, 0, len(state.ToolCalls))
	for _, call := range state.ToolCalls {
		if _, seen := dispatched[call.ID]; seen {
			continue
		}
		dispatched[call.ID] = struct{}{}
		d.logger.Info("dispatching tool call", "run_id", state.ID, "tool", call.Name, "call_id", call.ID)
		outputs = append(outputs, ToolOutput{CallID: call.ID, Output: d.dispatcher.Dispatch(ctx, call, inv)})
	}
	if len(outputs) == 0 {
		return nil
	}
	if err := d.client.SubmitToolOutputs(ctx, threadID, state.ID, outputs); err != nil {
		return fmt.Errorf("conversation: submit tool outputs: %w", err)
	}
	return nil
}

func (d *RunDriver) wait(ctx context.Context) error {
	timer := time.NewTimer(d.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
