// Package api provides the HTTP backend for WasteTrace. It is the system
// of record for tickets and balances: every lifecycle transition is
// validated here regardless of what the submitting client believed, and
// eco points are credited and spent only through these handlers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wastetrace/wastetrace/internal/domain"
	"github.com/wastetrace/wastetrace/internal/infra/metrics"
	"github.com/wastetrace/wastetrace/internal/infra/sqlite"
)

// Server is the WasteTrace backend API server.
type Server struct {
	store          *sqlite.Store
	metrics        *metrics.Metrics
	metricsEnabled bool
	now            func() time.Time
}

// NewServer creates a backend server over the given store.
func NewServer(store *sqlite.Store, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.New()
	}
	return &Server{store: store, metrics: m, now: func() time.Time { return time.Now().UTC() }}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/tickets", s.handleListTickets)
	r.Post("/tickets", s.handleCreateTicket)
	r.Put("/tickets/{wasteID}/status", s.handleUpdateStatus)

	r.Get("/users/{id}", s.handleGetUser)
	r.Post("/users/{id}/redeem", s.handleRedeem)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	return r
}

// ─── Ticket Handlers ────────────────────────────────────────────────────────

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := s.store.ListTickets()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list tickets")
		return
	}
	if tickets == nil {
		tickets = []domain.WasteTicket{}
	}
	s.metrics.TicketFetches.Inc()
	for _, status := range []domain.TicketStatus{domain.StatusPending, domain.StatusCollected, domain.StatusRecycled} {
		n := 0
		for _, t := range tickets {
			if t.Status == status {
				n++
			}
		}
		s.metrics.TicketsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
	writeJSON(w, http.StatusOK, tickets)
}

type createTicketRequest struct {
	CitizenID      string           `json:"citizenId"`
	Classification string           `json:"classification"`
	ImageURL       string           `json:"imageUrl"`
	Location       *domain.Location `json:"location"`
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req createTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CitizenID == "" {
		writeError(w, http.StatusBadRequest, "citizenId is required")
		return
	}

	created := s.now()
	ticket := domain.WasteTicket{
		ID:             uuid.New().String(),
		WasteID:        domain.NewWasteCode(),
		CitizenID:      req.CitizenID,
		Classification: req.Classification,
		Status:         domain.StatusPending,
		ImageURL:       req.ImageURL,
		Location:       req.Location,
		Timestamps:     domain.Timestamps{Created: created},
		CreatedAt:      created,
	}
	// The tracking code doubles as the QR payload collectors scan.
	ticket.QRCode = ticket.WasteID

	if err := s.store.InsertTicket(ticket); err != nil {
		writeError(w, http.StatusInternalServerError, "could not store ticket")
		return
	}
	s.metrics.TicketsCreated.Inc()
	writeJSON(w, http.StatusCreated, ticket)
}

type updateStatusRequest struct {
	Status        domain.TicketStatus `json:"status"`
	CollectorID   string              `json:"collectorId"`
	ProofImageURL string              `json:"proofImageUrl"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	wasteID := chi.URLParam(r, "wasteID")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ticket, err := s.store.GetTicket(wasteID)
	if err != nil {
		s.metrics.TransitionRejects.WithLabelValues("not_found").Inc()
		writeError(w, http.StatusNotFound, "waste not found")
		return
	}

	if err := domain.ValidateTransition(&ticket, req.Status, s.actorRole(req.CollectorID), req.CollectorID, req.ProofImageURL); err != nil {
		s.rejectTransition(w, err)
		return
	}

	// The commit re-checks the status it validated against, so a handler
	// that raced on a stale read loses with a conflict instead of
	// overwriting the winner's claim.
	from := ticket.Status
	domain.ApplyTransition(&ticket, req.Status, req.CollectorID, req.ProofImageURL, s.now())
	switch err := s.store.CommitTransition(ticket, from); {
	case errors.Is(err, domain.ErrTicketClaimed):
		s.rejectTransition(w, err)
		return
	case errors.Is(err, domain.ErrTicketNotFound):
		s.metrics.TransitionRejects.WithLabelValues("not_found").Inc()
		writeError(w, http.StatusNotFound, "waste not found")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "could not store transition")
		return
	}

	if req.Status == domain.StatusRecycled {
		s.metrics.EcoPointsAwarded.Add(domain.EcoPointsPerRecycle)
	}
	s.metrics.Transitions.WithLabelValues(string(req.Status)).Inc()
	writeJSON(w, http.StatusOK, ticket)
}

// actorRole resolves the role of the actor attempting a transition. A
// collector id not yet present in the store (demo identities live on the
// client) is treated as a collector; the lifecycle rules still apply.
func (s *Server) actorRole(collectorID string) domain.Role {
	if collectorID == "" {
		return ""
	}
	if u, err := s.store.GetUser(collectorID); err == nil {
		return u.Role
	}
	return domain.RoleCollector
}

// rejectTransition maps a lifecycle validation error to its HTTP status.
func (s *Server) rejectTransition(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTicketClaimed):
		s.metrics.TransitionRejects.WithLabelValues("claimed").Inc()
		writeError(w, http.StatusConflict, "ticket already claimed by another collector")
	case errors.Is(err, domain.ErrInvalidTransition):
		s.metrics.TransitionRejects.WithLabelValues("invalid_transition").Inc()
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrProofRequired):
		s.metrics.TransitionRejects.WithLabelValues("proof_required").Inc()
		writeError(w, http.StatusBadRequest, "proof photo is required")
	case errors.Is(err, domain.ErrRoleNotAllowed):
		s.metrics.TransitionRejects.WithLabelValues("role").Inc()
		writeError(w, http.StatusForbidden, "role may not perform this transition")
	default:
		s.metrics.TransitionRejects.WithLabelValues("other").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// ─── User Handlers ──────────────────────────────────────────────────────────

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type redeemRequest struct {
	VoucherID string `json:"voucherId"`
}

type redeemResponse struct {
	Voucher domain.Voucher `json:"voucher"`
	Balance int            `json:"balance"`
}

// handleRedeem performs a server-confirmed voucher redemption. The
// deduction is conditional in the store, so two racing redemptions can
// never overdraw the balance; the response carries the authoritative
// remainder for the client to apply.
func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	voucher, ok := domain.VoucherByID(req.VoucherID)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown voucher")
		return
	}

	balance, err := s.store.SpendEcoPoints(chi.URLParam(r, "id"), voucher.Cost)
	if errors.Is(err, domain.ErrInsufficientPoints) {
		writeError(w, http.StatusConflict, "insufficient eco points")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not redeem voucher")
		return
	}
	s.metrics.EcoPointsRedeemed.Add(float64(voucher.Cost))
	writeJSON(w, http.StatusOK, redeemResponse{Voucher: voucher, Balance: balance})
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

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
