package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/media"
	"github.com/wolfman30/clinic-concierge/internal/observability/metrics"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

const (
	msgAccepted       = "Sua mensagem foi recebida e está sendo processada."
	msgInvalidSource  = "Fonte ManyChat inválida."
	msgInvalidPayload = "Payload inválido."
	msgInternalError  = "Erro ao processar a mensagem"
)

// SubscriberID is a ManyChat id that may arrive as a JSON number or string.
type SubscriberID string

func (s *SubscriberID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = SubscriberID(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = SubscriberID(n.String())
	return nil
}

// InboundMessage is the body ManyChat posts for every patient message.
type InboundMessage struct {
	Name      string       `json:"Nome"`
	UserID    SubscriberID `json:"ManychatID"`
	ThreadID  string       `json:"ThreadID"`
	Question  string       `json:"Pergunta"`
	MediaURL  string       `json:"PerguntaMidia"`
	Interface string       `json:"inter"`
	Source    string       `json:"manyChatSource"`
}

// MediaResolver turns an attachment URL into text.
type MediaResolver interface {
	Resolve(ctx context.Context, userID, mediaURL string) (string, error)
}

// Enqueuer accepts message fragments for coalescing.
type Enqueuer interface {
	Enqueue(userID, fragment string, session Session) error
}

// WebhookConfig wires a WebhookHandler. Media and Metrics are optional.
type WebhookConfig struct {
	Profiles clinic.Profiles
	Media    MediaResolver
	Queue    Enqueuer
	Metrics  *metrics.ConversationMetrics
	Logger   *logging.Logger
}

// WebhookHandler receives ManyChat messages and enqueues them for the
// debounced pipeline. It replies before any assistant work happens.
type WebhookHandler struct {
	profiles clinic.Profiles
	media    MediaResolver
	queue    Enqueuer
	metrics  *metrics.ConversationMetrics
	logger   *logging.Logger
}

func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Queue == nil {
		panic("conversation: webhook queue cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WebhookHandler{
		profiles: cfg.Profiles,
		media:    cfg.Media,
		queue:    cfg.Queue,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.Component("webhook"),
	}
}

// Routes mounts the legacy path and its alias.
func (h *WebhookHandler) Routes(r chi.Router) {
	r.Post("/Julia", h.Handle)
	r.Post("/webhooks/manychat", h.Handle)
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	kind := media.KindNone
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("webhook panic", "panic", rec)
			h.metrics.ObserveInbound(kind.String(), "error")
			writeText(w, http.StatusInternalServerError, msgInternalError)
		}
	}()

	var msg InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		h.logger.Warn("invalid webhook payload", "error", err)
		h.metrics.ObserveInbound(kind.String(), "bad_request")
		writeText(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}
	kind = media.Classify(msg.MediaURL)

	profile, err := h.profiles.ForSource(msg.Source)
	if err != nil {
		h.logger.Warn("unknown manychat source", "source", msg.Source)
		h.metrics.ObserveInbound(kind.String(), "bad_request")
		writeText(w, http.StatusBadRequest, msgInvalidSource)
		return
	}

	userID := string(msg.UserID)
	if userID == "" {
		h.logger.Warn("webhook payload missing subscriber id", "provider", profile.Key.String())
		h.metrics.ObserveInbound(kind.String(), "bad_request")
		writeText(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}
	h.logger.Info("message received",
		"user_id", userID,
		"provider", profile.Key.String(),
		"media_kind", kind.String(),
		"inter", msg.Interface,
	)

	transcript := h.resolveMedia(r.Context(), userID, msg.MediaURL, kind)
	combined := strings.TrimSpace(msg.Question + "\n" + transcript)
	if combined == "" {
		h.logger.Info("nothing to enqueue", "user_id", userID, "media_kind", kind.String())
		h.metrics.ObserveInbound(kind.String(), "empty")
		writeText(w, http.StatusOK, msgAccepted)
		return
	}

	err = h.queue.Enqueue(userID, combined, Session{
		ThreadID:       strings.TrimSpace(msg.ThreadID),
		SubscriberName: strings.TrimSpace(msg.Name),
		Profile:        profile,
	})
	if err != nil {
		h.logger.Error("failed to enqueue message", "user_id", userID, "error", err)
		h.metrics.ObserveInbound(kind.String(), "error")
		writeText(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	h.metrics.ObserveInbound(kind.String(), "accepted")
	writeText(w, http.StatusOK, msgAccepted)
}

func (h *WebhookHandler) resolveMedia(ctx context.Context, userID, mediaURL string, kind media.Kind) string {
	switch {
	case kind == media.KindNone:
		return ""
	case kind == media.KindImage:
		h.logger.Info("image attachment received", "user_id", userID)
		return ""
	case h.media == nil:
		h.logger.Warn("media resolver not configured", "user_id", userID, "media_kind", kind.String())
		return ""
	}
	text, err := h.media.Resolve(ctx, userID, mediaURL)
	switch {
	case errors.Is(err, media.ErrUnsupported):
		h.logger.Info("unsupported media ignored", "user_id", userID, "url", mediaURL)
	case err != nil:
		h.logger.Error("media processing failed", "user_id", userID, "media_kind", kind.String(), "error", err)
	}
	return text
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
