package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/manychat"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

var processorTracer = otel.Tracer("clinic.internal.conversation.processor")

// FallbackReply is delivered when a free-form run fails or times out.
const FallbackReply = "Desculpe, tive um problema para responder agora. Pode me enviar sua mensagem novamente em instantes?"

// ReplySender delivers reply parts to the patient.
type ReplySender interface {
	DeliverReply(ctx context.Context, profile clinic.Profile, subscriberID string, parts []string) error
}

// SubscriberLookup fetches the patient's ManyChat profile.
type SubscriberLookup interface {
	Subscriber(ctx context.Context, profile clinic.Profile, subscriberID string) (*manychat.Subscriber, error)
}

// LeadRecorder stores first-contact leads.
type LeadRecorder interface {
	AppendLead(ctx context.Context, subscriberID, name, phone string) error
}

// ProcessorConfig wires a Processor. Subscribers and Leads are optional.
type ProcessorConfig struct {
	Assistant   AssistantClient
	Steps       StepStore
	Script      *ScriptMachine
	Driver      *RunDriver
	Replies     ReplySender
	Subscribers SubscriberLookup
	Leads       LeadRecorder
	Location    *time.Location
	Logger      *logging.Logger
}

// Processor handles one coalesced batch: thread bookkeeping, the onboarding
// script and free-form assistant runs.
type Processor struct {
	assistant   AssistantClient
	steps       StepStore
	script      *ScriptMachine
	driver      *RunDriver
	replies     ReplySender
	subscribers SubscriberLookup
	leads       LeadRecorder
	loc         *time.Location
	logger      *logging.Logger
	now         func() time.Time
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	switch {
	case cfg.Assistant == nil:
		panic("conversation: assistant client cannot be nil")
	case cfg.Steps == nil:
		panic("conversation: step store cannot be nil")
	case cfg.Script == nil:
		panic("conversation: script machine cannot be nil")
	case cfg.Driver == nil:
		panic("conversation: run driver cannot be nil")
	case cfg.Replies == nil:
		panic("conversation: reply sender cannot be nil")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Processor{
		assistant:   cfg.Assistant,
		steps:       cfg.Steps,
		script:      cfg.Script,
		driver:      cfg.Driver,
		replies:     cfg.Replies,
		subscribers: cfg.Subscribers,
		leads:       cfg.Leads,
		loc:         cfg.Location,
		logger:      cfg.Logger.Component("processor"),
		now:         time.Now,
	}
}

// Process is the debouncer's flush target.
func (p *Processor) Process(ctx context.Context, b Batch) error {
	ctx, span := processorTracer.Start(ctx, "conversation.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.user_id", b.UserID),
		attribute.Int("clinic.fragments", len(b.Fragments)),
	)

	profile := b.Session.Profile
	threadID := b.Session.ThreadID
	if err := p.assistant.AppendMessage(ctx, threadID, RoleUser, b.Message); err != nil {
		span.RecordError(err)
		return err
	}

	step, created, err := p.steps.GetStep(ctx, b.UserID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: read step: %w", err)
	}
	span.SetAttributes(attribute.Int("clinic.step", step))

	if created {
		return p.firstContact(ctx, b)
	}

	if step <= FinalStep {
		out, err := p.script.Handle(ctx, Turn{
			UserID:   b.UserID,
			ThreadID: threadID,
			Message:  b.Message,
			Step:     step,
			Profile:  profile,
		})
		if err != nil {
			span.RecordError(err)
			return err
		}
		p.record(ctx, threadID, out.Reply)
		if !out.Concluded {
			return p.deliver(ctx, b, []string{out.Reply})
		}
		p.logger.Info("script concluded", "user_id", b.UserID)
	}

	return p.freeForm(ctx, b)
}

func (p *Processor) firstContact(ctx context.Context, b Batch) error {
	first, _ := StepAt(FirstStep)
	p.logger.Info("first contact", "user_id", b.UserID, "provider", b.Session.Profile.Key.String())
	p.record(ctx, b.Session.ThreadID, first.Prompt)
	err := p.deliver(ctx, b, []string{first.Prompt})
	p.captureLead(ctx, b)
	return err
}

func (p *Processor) freeForm(ctx context.Context, b Batch) error {
	text, err := p.driver.Run(ctx, RunRequest{
		ThreadID:     b.Session.ThreadID,
		UserID:       b.UserID,
		Instructions: FreeFormInstructions(p.now().In(p.loc), b.Session.Profile),
		Profile:      b.Session.Profile,
	})
	if err != nil {
		p.logger.Error("free-form run failed; sending fallback", "user_id", b.UserID, "error", err)
		return p.deliver(ctx, b, []string{FallbackReply})
	}
	if strings.TrimSpace(text) == "" {
		p.logger.Warn("assistant returned empty reply; sending fallback", "user_id", b.UserID)
		return p.deliver(ctx, b, []string{FallbackReply})
	}
	return p.deliver(ctx, b, SplitReply(text))
}

// record appends a scripted reply to the thread so the assistant sees it.
func (p *Processor) record(ctx context.Context, threadID, reply string) {
	if strings.TrimSpace(reply) == "" {
		return
	}
	if err := p.assistant.AppendMessage(ctx, threadID, RoleAssistant, reply); err != nil {
		p.logger.Warn("failed to record reply on thread", "thread_id", threadID, "error", err)
	}
}

func (p *Processor) deliver(ctx context.Context, b Batch, parts []string) error {
	if err := p.replies.DeliverReply(ctx, b.Session.Profile, b.UserID, parts); err != nil {
		return fmt.Errorf("conversation: deliver reply: %w", err)
	}
	return nil
}

// captureLead writes the subscriber to the leads sheet. Failures are logged.
func (p *Processor) captureLead(ctx context.Context, b Batch) {
	if p.leads == nil {
		return
	}
	name, phone := b.Session.SubscriberName, ""
	if p.subscribers != nil {
		sub, err := p.subscribers.Subscriber(ctx, b.Session.Profile, b.UserID)
		if err != nil {
			p.logger.Warn("subscriber lookup failed", "user_id", b.UserID, "error", err)
		} else if sub != nil {
			if sub.Name != "" {
				name = sub.Name
			}
			phone = sub.WhatsAppPhone
		}
	}
	if err := p.leads.AppendLead(ctx, b.UserID, name, phone); err != nil {
		p.logger.Warn("lead capture failed", "user_id", b.UserID, "error", err)
	}
}
