package conversation

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-concierge/internal/bookings"
	httpmiddleware "github.com/wolfman30/clinic-concierge/internal/http/middleware"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// BookingLister reads the bookings ledger.
type BookingLister interface {
	ListForSubscriber(ctx context.Context, subscriberID string, limit int) ([]bookings.Booking, error)
}

// AdminHandler exposes script progress and bookings to operators. Mount it
// behind the admin JWT middleware.
type AdminHandler struct {
	steps    StepStore
	bookings BookingLister
	logger   *logging.Logger
}

// NewAdminHandler builds the handler. bookings may be nil when no database is
// configured.
func NewAdminHandler(steps StepStore, bookings BookingLister, logger *logging.Logger) *AdminHandler {
	if steps == nil {
		panic("conversation: step store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{steps: steps, bookings: bookings, logger: logger.Component("admin")}
}

func (h *AdminHandler) Routes(r chi.Router) {
	r.Get("/admin/steps", h.ListSteps)
	r.Get("/admin/steps/{userID}", h.GetStep)
	r.Post("/admin/steps/{userID}/reset", h.ResetStep)
	r.Get("/admin/bookings/{subscriberID}", h.ListBookings)
}

type stepEntry struct {
	UserID    string `json:"user_id"`
	Step      int    `json:"step"`
	Concluded bool   `json:"concluded"`
}

func newStepEntry(userID string, step int) stepEntry {
	return stepEntry{UserID: userID, Step: step, Concluded: step > FinalStep}
}

// ListSteps handles GET /admin/steps.
func (h *AdminHandler) ListSteps(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.steps.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("step snapshot failed", "error", err)
		http.Error(w, "failed to list steps", http.StatusInternalServerError)
		return
	}
	entries := make([]stepEntry, 0, len(snapshot))
	for id, step := range snapshot {
		entries = append(entries, newStepEntry(id, step))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	writeJSON(w, http.StatusOK, map[string]any{"steps": entries, "total": len(entries)})
}

// GetStep handles GET /admin/steps/{userID}. It never creates a record.
func (h *AdminHandler) GetStep(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	step, ok, err := h.steps.Lookup(r.Context(), userID)
	if err != nil {
		h.logger.Error("step lookup failed", "user_id", userID, "error", err)
		http.Error(w, "failed to read step", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newStepEntry(userID, step))
}

// ResetStep handles POST /admin/steps/{userID}/reset.
func (h *AdminHandler) ResetStep(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if err := h.steps.SetStep(r.Context(), userID, FirstStep); err != nil {
		h.logger.Error("step reset failed", "user_id", userID, "error", err)
		http.Error(w, "failed to reset step", http.StatusInternalServerError)
		return
	}
	operator, _ := httpmiddleware.AdminSubject(r.Context())
	h.logger.Info("script reset", "user_id", userID, "operator", operator)
	writeJSON(w, http.StatusOK, newStepEntry(userID, FirstStep))
}

type bookingView struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	Provider    string    `json:"provider"`
	PatientName string    `json:"patient_name"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Procedure   string    `json:"procedure"`
	Modality    string    `json:"modality"`
	StartsAt    time.Time `json:"starts_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListBookings handles GET /admin/bookings/{subscriberID}?limit=N.
func (h *AdminHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	if h.bookings == nil {
		http.Error(w, "bookings ledger not configured", http.StatusServiceUnavailable)
		return
	}
	subscriberID := strings.TrimSpace(chi.URLParam(r, "subscriberID"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := h.bookings.ListForSubscriber(r.Context(), subscriberID, limit)
	if err != nil {
		h.logger.Error("booking list failed", "subscriber_id", subscriberID, "error", err)
		http.Error(w, "failed to list bookings", http.StatusInternalServerError)
		return
	}
	out := make([]bookingView, 0, len(list))
	for _, b := range list {
		out = append(out, bookingView{
			ID:          b.ID.String(),
			EventID:     b.EventID,
			Provider:    b.Provider,
			PatientName: b.PatientName,
			Email:       b.Email,
			Phone:       b.Phone,
			Procedure:   b.Procedure,
			Modality:    b.Modality,
			StartsAt:    b.StartsAt,
			CreatedAt:   b.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": out})
}
