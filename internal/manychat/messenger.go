package manychat

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// MaxReplyParts is the number of reply custom fields per account.
const MaxReplyParts = 4

// Flows names the ManyChat flow namespaces the concierge triggers.
type Flows struct {
	Reply          string
	ProcedureImage string
	Assignment     string
}

// Messenger acts on a subscriber through the account of a provider profile.
type Messenger struct {
	client *Client
	flows  Flows
	logger *logging.Logger
}

// NewMessenger wires the client to the configured flows.
func NewMessenger(client *Client, flows Flows, logger *logging.Logger) *Messenger {
	if client == nil {
		panic("manychat: client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Messenger{client: client, flows: flows, logger: logger.Component("manychat_messenger")}
}

// Flows returns the configured flow namespaces.
func (m *Messenger) Flows() Flows { return m.flows }

// DeliverReply writes each non-empty part into the profile's reply fields in
// order and then triggers the reply flow. Field write failures are logged and
// do not stop delivery of the remaining parts. Parts beyond the fourth are
// ignored; callers fold overflow into the last part.
func (m *Messenger) DeliverReply(ctx context.Context, profile clinic.Profile, subscriberID string, parts []string) error {
	written := 0
	for i, part := range parts {
		if i >= MaxReplyParts {
			break
		}
		if strings.TrimSpace(part) == "" {
			continue
		}
		written++
		fieldID := profile.ReplyFieldIDs[i]
		if fieldID == "" {
			m.logger.Warn("reply field not configured", "provider", profile.Key.String(), "part", i+1)
			continue
		}
		if err := m.client.SetCustomField(ctx, profile.APIKey, subscriberID, fieldID, part); err != nil {
			m.logger.Error("failed to write reply part", "user_id", subscriberID, "part", i+1, "error", err)
		}
	}
	if written == 0 {
		m.logger.Debug("no reply parts to deliver", "user_id", subscriberID)
		return nil
	}
	if err := m.client.SendFlow(ctx, profile.APIKey, subscriberID, m.flows.Reply); err != nil {
		return fmt.Errorf("manychat: trigger reply flow: %w", err)
	}
	return nil
}

// SetField writes one custom field on the profile's account.
func (m *Messenger) SetField(ctx context.Context, profile clinic.Profile, subscriberID, fieldID string, value any) error {
	return m.client.SetCustomField(ctx, profile.APIKey, subscriberID, fieldID, value)
}

// TriggerFlow starts a flow on the profile's account.
func (m *Messenger) TriggerFlow(ctx context.Context, profile clinic.Profile, subscriberID, flowNS string) error {
	return m.client.SendFlow(ctx, profile.APIKey, subscriberID, flowNS)
}

// Subscriber fetches the subscriber profile from the profile's account.
func (m *Messenger) Subscriber(ctx context.Context, profile clinic.Profile, subscriberID string) (*Subscriber, error) {
	return m.client.GetSubscriberInfo(ctx, profile.APIKey, subscriberID)
}
