// Package repository holds the client-side cache of waste tickets and the
// operations that mutate ticket state via the backend.
//
// Synchronization contract: the backend is the sole owner of authoritative
// ticket state. The cache is populated only by FetchAll, and every mutation
// is followed by an unconditional FetchAll ("mutate-then-reconcile") —
// the client never trusts its own optimistic projection of a transition.
// Because multiple actors may mutate the same ticket concurrently, a full
// re-fetch avoids divergence at the cost of an extra round-trip.
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/wastetrace/wastetrace/internal/domain"
)

// Repository is the ticket cache plus its backend client. All methods are
// safe for concurrent use; the cache is written only by FetchAll, Create,
// and the reconcile step inside UpdateStatus.
type Repository struct {
	baseURL string
	client  *http.Client

	mu      sync.RWMutex
	tickets []domain.WasteTicket
	current *domain.WasteTicket
}

// New creates a repository against the backend base URL.
func New(baseURL string, client *http.Client) *Repository {
	if client == nil {
		client = http.DefaultClient
	}
	return &Repository{baseURL: baseURL, client: client}
}

// ─── Synchronization ────────────────────────────────────────────────────────

// FetchAll replaces the entire local cache with the backend's current
// ticket set. It is the only population path — there is no incremental
// merge — and is safe to call repeatedly. Every ticket is normalized at
// this boundary so downstream code sees one consistent schema.
func (r *Repository) FetchAll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/tickets", nil)
	if err != nil {
		return fmt.Errorf("build fetch request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch tickets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch tickets: backend returned %d", resp.StatusCode)
	}

	var tickets []domain.WasteTicket
	if err := json.NewDecoder(resp.Body).Decode(&tickets); err != nil {
		return fmt.Errorf("decode tickets: %w", err)
	}
	for i := range tickets {
		tickets[i].Normalize()
	}

	r.mu.Lock()
	r.tickets = tickets
	r.mu.Unlock()
	return nil
}

// ─── Mutations ──────────────────────────────────────────────────────────────

// createRequest is the POST /tickets body.
type createRequest struct {
	CitizenID      string           `json:"citizenId"`
	Classification string           `json:"classification"`
	ImageURL       string           `json:"imageUrl,omitempty"`
	Location       *domain.Location `json:"location,omitempty"`
}

// Create submits a new ticket. On success the returned ticket is
// prepended to the cache and becomes the current ticket; a backend
// rejection is reported as ErrCreateRejected and the cache is untouched.
func (r *Repository) Create(ctx context.Context, citizenID, imageURL, classification string, loc *domain.Location) (domain.WasteTicket, error) {
	body, err := json.Marshal(createRequest{
		CitizenID:      citizenID,
		Classification: classification,
		ImageURL:       imageURL,
		Location:       loc,
	})
	if err != nil {
		return domain.WasteTicket{}, fmt.Errorf("encode ticket: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/tickets", bytes.NewReader(body))
	if err != nil {
		return domain.WasteTicket{}, fmt.Errorf("build create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return domain.WasteTicket{}, fmt.Errorf("%w: %v", domain.ErrCreateRejected, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return domain.WasteTicket{}, fmt.Errorf("%w: backend returned %d", domain.ErrCreateRejected, resp.StatusCode)
	}

	var ticket domain.WasteTicket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		return domain.WasteTicket{}, fmt.Errorf("%w: %v", domain.ErrCreateRejected, err)
	}
	ticket.Normalize()

	r.mu.Lock()
	r.tickets = append([]domain.WasteTicket{ticket}, r.tickets...)
	r.current = &ticket
	r.mu.Unlock()
	return ticket, nil
}

// statusRequest is the PUT /tickets/{wasteId}/status body.
type statusRequest struct {
	Status        domain.TicketStatus `json:"status"`
	CollectorID   string              `json:"collectorId,omitempty"`
	ProofImageURL string              `json:"proofImageUrl,omitempty"`
}

// UpdateStatus requests a lifecycle transition and then reconciles the
// cache with a full re-fetch regardless of the immediate response. A
// rejected transition leaves the cache at its pre-attempt value until
// the forced re-fetch confirms the authoritative state.
func (r *Repository) UpdateStatus(ctx context.Context, wasteID string, status domain.TicketStatus, collectorID, proofURL string) error {
	body, err := json.Marshal(statusRequest{
		Status:        status,
		CollectorID:   collectorID,
		ProofImageURL: proofURL,
	})
	if err != nil {
		return fmt.Errorf("encode status update: %w", err)
	}

	url := fmt.Sprintf("%s/tickets/%s/status", r.baseURL, wasteID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, doErr := r.client.Do(req)
	var updateErr error
	if doErr != nil {
		updateErr = fmt.Errorf("could not update status: %w", doErr)
	} else {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK:
			// acknowledged; body is not trusted, the re-fetch is
		case http.StatusNotFound:
			updateErr = domain.ErrTicketNotFound
		case http.StatusConflict:
			updateErr = domain.ErrInvalidTransition
		default:
			updateErr = fmt.Errorf("could not update status: backend returned %d", resp.StatusCode)
		}
	}

	// Always reconcile, even after a rejection, so the cache converges on
	// whatever the backend now holds.
	if fetchErr := r.FetchAll(ctx); fetchErr != nil && updateErr == nil {
		updateErr = fetchErr
	}
	return updateErr
}

// ─── Cache Queries (no network) ─────────────────────────────────────────────

// FindByWasteID looks a ticket up by its tracking code. A miss returns
// ErrTicketNotFound and never mutates the cache.
func (r *Repository) FindByWasteID(code string) (domain.WasteTicket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tickets {
		if t.WasteID == code {
			return t, nil
		}
	}
	return domain.WasteTicket{}, domain.ErrTicketNotFound
}

// FindByCitizen returns the citizen's tickets, newest first.
func (r *Repository) FindByCitizen(citizenID string) []domain.WasteTicket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.WasteTicket
	for _, t := range r.tickets {
		if t.CitizenID == citizenID {
			out = append(out, t)
		}
	}
	domain.SortTicketsByCreated(out)
	return out
}

// Tickets returns a copy of the whole cache.
func (r *Repository) Tickets() []domain.WasteTicket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.WasteTicket, len(r.tickets))
	copy(out, r.tickets)
	return out
}

// CurrentTicket returns the most recently created ticket of this session,
// refreshed from the cache so reconciled state wins over the local copy.
func (r *Repository) CurrentTicket() (domain.WasteTicket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return domain.WasteTicket{}, false
	}
	for _, t := range r.tickets {
		if t.WasteID == r.current.WasteID {
			return t, true
		}
	}
	return domain.WasteTicket{}, false
}
