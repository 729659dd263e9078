// Package web serves the role-gated dashboard surface. It owns session
// handling and role gates; ticket semantics live in the engine and the
// repository, and balances come from the backend via UserClient.
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wastetrace/wastetrace/internal/dashboard"
	"github.com/wastetrace/wastetrace/internal/domain"
	"github.com/wastetrace/wastetrace/internal/engine"
	"github.com/wastetrace/wastetrace/internal/identity"
	"github.com/wastetrace/wastetrace/internal/repository"
)

// sessionCookie carries the session token between requests. A bearer
// Authorization header works too and wins when both are present.
const sessionCookie = "wastetrace_session"

// Server is the dashboard HTTP server.
type Server struct {
	sessions *identity.Store
	repo     *repository.Repository
	engine   *engine.Engine
	users    *UserClient
	now      func() time.Time
}

// NewServer wires the dashboard server.
func NewServer(sessions *identity.Store, repo *repository.Repository, eng *engine.Engine, users *UserClient) *Server {
	return &Server{
		sessions: sessions,
		repo:     repo,
		engine:   eng,
		users:    users,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Get("/unauthorized", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusForbidden, "this account's role cannot open that dashboard")
	})

	r.Get("/citizen", s.requireRole(domain.RoleCitizen, s.handleCitizenDashboard))
	r.Post("/citizen/submit", s.requireRole(domain.RoleCitizen, s.handleSubmit))
	r.Post("/citizen/redeem", s.requireRole(domain.RoleCitizen, s.handleRedeem))

	r.Get("/collector", s.requireRole(domain.RoleCollector, s.handleCollectorDashboard))
	r.Post("/collector/collect", s.requireRole(domain.RoleCollector, s.handleCollect))
	r.Post("/collector/progress", s.requireRole(domain.RoleCollector, s.handleDailyProgress))

	r.Get("/municipality", s.requireRole(domain.RoleMunicipality, s.handleMunicipalityDashboard))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "no such page")
	})

	return r
}

// ─── Sessions ───────────────────────────────────────────────────────────────

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess, err := s.sessions.Login(req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		s.sessions.Logout(token)
	}
	http.SetCookie(w, &http.Cookie{
		Name:   sessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

// sessionToken extracts the token from the bearer header or the cookie.
func sessionToken(r *http.Request) string {
	const prefix = "Bearer "
	if auth := r.Header.Get("Authorization"); len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// roleHandler is a handler that runs with a resolved session.
type roleHandler func(w http.ResponseWriter, r *http.Request, token string, user *domain.User)

// requireRole gates a route: no session redirects to /login, the wrong
// role redirects to /unauthorized.
func (s *Server) requireRole(role domain.Role, next roleHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		user, ok := s.sessions.Current(token)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		if user.Role != role {
			http.Redirect(w, r, "/unauthorized", http.StatusFound)
			return
		}
		next(w, r, token, user)
	}
}

// ─── Citizen ────────────────────────────────────────────────────────────────

func (s *Server) handleCitizenDashboard(w http.ResponseWriter, r *http.Request, token string, user *domain.User) {
	// Best-effort refresh; a failed fetch renders the last good cache.
	_ = s.repo.FetchAll(r.Context())
	if fresh, err := s.users.Fetch(r.Context(), user.ID); err == nil {
		s.sessions.ApplyBalance(token, fresh.EcoPoints)
		user.EcoPoints = fresh.EcoPoints
	}
	writeJSON(w, http.StatusOK, dashboard.Citizen(*user, s.repo.Tickets()))
}

type submitResponse struct {
	Ticket   domain.WasteTicket `json:"ticket"`
	Category string             `json:"category"`
	Display  string             `json:"display"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, token string, user *domain.User) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "expected a multipart form with an image")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	result, err := s.engine.SubmitWaste(r.Context(), user, header.Filename, file, r.FormValue("imageUrl"))
	switch {
	case errors.Is(err, domain.ErrNoWasteDetected):
		writeError(w, http.StatusUnprocessableEntity, "no waste detected in the photo")
		return
	case errors.Is(err, domain.ErrCreateRejected):
		writeError(w, http.StatusBadGateway, "the backend rejected the ticket")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{
		Ticket:   result.Ticket,
		Category: result.Category,
		Display:  result.Counts.Format(),
	})
}

type redeemRequest struct {
	VoucherID string `json:"voucherId"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request, token string, user *domain.User) {
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.users.Redeem(r.Context(), user.ID, req.VoucherID)
	switch {
	case errors.Is(err, domain.ErrInsufficientPoints):
		writeError(w, http.StatusConflict, "not enough eco points")
		return
	case errors.Is(err, domain.ErrUnknownVoucher):
		writeError(w, http.StatusBadRequest, "unknown voucher")
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	// Only the confirmed balance is applied locally.
	s.sessions.ApplyBalance(token, result.Balance)
	writeJSON(w, http.StatusOK, result)
}

// ─── Collector ──────────────────────────────────────────────────────────────

func (s *Server) handleCollectorDashboard(w http.ResponseWriter, r *http.Request, token string, user *domain.User) {
	_ = s.repo.FetchAll(r.Context())
	writeJSON(w, http.StatusOK, dashboard.Collector(*user, s.repo.Tickets(), s.now()))
}

type collectRequest struct {
	WasteID       string `json:"wasteId"`
	ProofImageURL string `json:"proofImageUrl"`
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request, token string, user *domain.User) {
	var req collectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// Refresh so a scan right after submission can find the ticket.
	_ = s.repo.FetchAll(r.Context())
	if err := s.engine.CollectWaste(r.Context(), user, req.WasteID, req.ProofImageURL); err != nil {
		writeTransitionError(w, err)
		return
	}
	ticket, err := s.repo.FindByWasteID(req.WasteID)
	if err != nil {
		// Collected fine but the reconcile no longer shows it; report
		// the accepted transition without the ticket body.
		writeJSON(w, http.StatusOK, map[string]string{"status": "collected"})
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

type progressRequest struct {
	ProofImageURL string `json:"proofImageUrl"`
}

func (s *Server) handleDailyProgress(w http.ResponseWriter, r *http.Request, token string, user *domain.User) {
	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	_ = s.repo.FetchAll(r.Context())
	done, err := s.engine.CompleteDailyProgress(r.Context(), user, req.ProofImageURL)
	if err != nil {
		if errors.Is(err, domain.ErrProofRequired) {
			writeError(w, http.StatusBadRequest, "proof photo is required")
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"recycled": done,
			"error":    map[string]any{"message": err.Error(), "type": "error"},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"recycled": done})
}

func writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTicketNotFound):
		writeError(w, http.StatusNotFound, "waste not found")
	case errors.Is(err, domain.ErrTicketClaimed):
		writeError(w, http.StatusConflict, "this waste was already collected")
	case errors.Is(err, domain.ErrProofRequired):
		writeError(w, http.StatusBadRequest, "proof photo is required")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrRoleNotAllowed):
		writeError(w, http.StatusForbidden, "role may not perform this transition")
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// ─── Municipality ───────────────────────────────────────────────────────────

func (s *Server) handleMunicipalityDashboard(w http.ResponseWriter, r *http.Request, token string, user *domain.User) {
	_ = s.repo.FetchAll(r.Context())
	writeJSON(w, http.StatusOK, dashboard.Municipality(s.repo.Tickets()))
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}
