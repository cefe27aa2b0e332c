package calendar

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

const stateCookie = "google_oauth_state"

// Handler serves the Google consent flow the clinic runs once to grant
// calendar and spreadsheet access.
type Handler struct {
	oauth  *OAuth
	logger *logging.Logger
}

// NewHandler creates the consent flow handler.
func NewHandler(oauth *OAuth, logger *logging.Logger) *Handler {
	if oauth == nil {
		panic("calendar: oauth cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{oauth: oauth, logger: logger.Component("google_consent")}
}

// Routes mounts GET /google and GET /redirect.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/google", h.Start)
	r.Get("/redirect", h.Callback)
}

// Start redirects the operator to Google's consent screen.
// GET /google
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

// Callback stores the token Google returns.
// GET /redirect
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		http.Error(w, "Estado OAuth inválido", http.StatusBadRequest)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Código de autorização ausente", http.StatusBadRequest)
		return
	}
	if err := h.oauth.Exchange(r.Context(), code); err != nil {
		h.logger.Error("failed to exchange google code", "error", err)
		http.Error(w, "Erro ao obter o token", http.StatusBadGateway)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})
	h.logger.Info("google token stored")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Autorização concluída."))
}
