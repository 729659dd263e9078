// Package engine implements the ticket lifecycle operations behind the
// role dashboards: submit waste, collect waste, mark recycled. It
// validates actor, role, and preconditions before any request leaves the
// device, then delegates the mutation to the repository, which reconciles
// against the backend afterwards.
package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/wastetrace/wastetrace/internal/classify"
	"github.com/wastetrace/wastetrace/internal/domain"
	"github.com/wastetrace/wastetrace/internal/location"
	"github.com/wastetrace/wastetrace/internal/repository"
)

// Classifier is the slice of the classification client the engine needs.
type Classifier interface {
	Classify(ctx context.Context, filename string, image io.Reader) (classify.Result, error)
}

// Locator provides the session's resolved area, if any.
type Locator interface {
	Current() (location.Area, bool)
}

// Engine wires the validation rules to their collaborators.
type Engine struct {
	repo       *repository.Repository
	classifier Classifier
	locator    Locator
}

// New creates a lifecycle engine.
func New(repo *repository.Repository, classifier Classifier, locator Locator) *Engine {
	return &Engine{repo: repo, classifier: classifier, locator: locator}
}

// ─── Citizen: submit waste ──────────────────────────────────────────────────

// SubmitResult reports a successful submission.
type SubmitResult struct {
	Ticket   domain.WasteTicket
	Category string
	Counts   domain.Classification
}

// SubmitWaste runs the citizen submission flow: classify the photo,
// refuse when nothing was detected, resolve the area best-effort, and
// create the ticket. A "no waste detected" verdict adds nothing to the
// repository.
func (e *Engine) SubmitWaste(ctx context.Context, actor *domain.User, filename string, image io.Reader, imageURL string) (SubmitResult, error) {
	if actor == nil {
		return SubmitResult{}, domain.ErrNoSession
	}
	if actor.Role != domain.RoleCitizen {
		return SubmitResult{}, domain.ErrRoleNotAllowed
	}
	if image == nil {
		return SubmitResult{}, fmt.Errorf("%w: missing image payload", domain.ErrCreateRejected)
	}

	verdict, err := e.classifier.Classify(ctx, filename, image)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("classification failed: %w", err)
	}
	if !verdict.Detected || verdict.Counts.Total() == 0 {
		return SubmitResult{}, domain.ErrNoWasteDetected
	}

	loc := e.currentLocation()

	ticket, err := e.repo.Create(ctx, actor.ID, imageURL, verdict.Counts.Encode(), loc)
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{Ticket: ticket, Category: verdict.Category, Counts: verdict.Counts}, nil
}

// currentLocation builds the ticket location from the provider, falling
// back to the sentinel address when no area has been resolved.
func (e *Engine) currentLocation() *domain.Location {
	if e.locator == nil {
		return &domain.Location{Address: location.FallbackAddress}
	}
	area, ok := e.locator.Current()
	if !ok {
		return &domain.Location{Address: location.FallbackAddress}
	}
	return &domain.Location{Lat: area.Lat, Lng: area.Lng, Address: area.Name}
}

// ─── Collector: lookup and collect ──────────────────────────────────────────

// LookupWaste finds a ticket by its tracking code (QR scan or manual
// entry). A miss is the distinct "waste not found" condition, separate
// from any invalid-transition report.
func (e *Engine) LookupWaste(code string) (domain.WasteTicket, error) {
	return e.repo.FindByWasteID(code)
}

// CollectWaste moves a pending ticket to collected on behalf of the
// collector, with the proof photo as required input.
func (e *Engine) CollectWaste(ctx context.Context, actor *domain.User, wasteID, proofURL string) error {
	return e.transition(ctx, actor, wasteID, domain.StatusCollected, proofURL)
}

// RecycleWaste moves a collected ticket to recycled. The original client
// only exposed recycling through the daily-progress batch; the protocol
// allows it per-ticket, so the engine does too.
func (e *Engine) RecycleWaste(ctx context.Context, actor *domain.User, wasteID, proofURL string) error {
	return e.transition(ctx, actor, wasteID, domain.StatusRecycled, proofURL)
}

func (e *Engine) transition(ctx context.Context, actor *domain.User, wasteID string, target domain.TicketStatus, proofURL string) error {
	if actor == nil {
		return domain.ErrNoSession
	}
	ticket, err := e.repo.FindByWasteID(wasteID)
	if err != nil {
		return err
	}
	if err := domain.ValidateTransition(&ticket, target, actor.Role, actor.ID, proofURL); err != nil {
		return err
	}
	return e.repo.UpdateStatus(ctx, wasteID, target, actor.ID, proofURL)
}

// ─── Collector: daily progress ──────────────────────────────────────────────

// CompleteDailyProgress batch-recycles the collector's own collected
// tickets. Zero eligible tickets is a successful no-op: it returns 0 and
// sends nothing. A mid-batch failure stops and reports how many tickets
// were recycled before it; the forced re-fetch inside each UpdateStatus
// keeps the cache honest either way.
func (e *Engine) CompleteDailyProgress(ctx context.Context, actor *domain.User, proofURL string) (int, error) {
	if actor == nil {
		return 0, domain.ErrNoSession
	}
	if actor.Role != domain.RoleCollector {
		return 0, domain.ErrRoleNotAllowed
	}
	if proofURL == "" {
		return 0, domain.ErrProofRequired
	}

	var eligible []string
	for _, t := range e.repo.Tickets() {
		if t.Status == domain.StatusCollected && t.CollectorID == actor.ID {
			eligible = append(eligible, t.WasteID)
		}
	}

	done := 0
	for _, wasteID := range eligible {
		if err := e.repo.UpdateStatus(ctx, wasteID, domain.StatusRecycled, actor.ID, proofURL); err != nil {
			return done, fmt.Errorf("recycle %s: %w", wasteID, err)
		}
		done++
	}
	return done, nil
}
