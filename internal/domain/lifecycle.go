package domain

import (
	"fmt"
	"time"
)

// ─── Lifecycle State Machine ────────────────────────────────────────────────
// A waste ticket moves strictly pending → collected → recycled. Transitions
// are monotone and one-directional: no stage may be skipped, nothing moves
// backward, and recycled is terminal. The backend enforces these rules as
// the source of truth; the client applies the same checks pre-request so
// doomed calls never leave the device.

// EcoPointsPerRecycle is the flat reward credited to the owning citizen
// when a ticket reaches recycled.
const EcoPointsPerRecycle = 15

// nextStatus is the single legal successor of each lifecycle state.
var nextStatus = map[TicketStatus]TicketStatus{
	StatusPending:   StatusCollected,
	StatusCollected: StatusRecycled,
}

// transitionRole names the role permitted to trigger the transition INTO
// each state. Creation (into pending) belongs to citizens; both collection
// and recycling belong to collectors.
var transitionRole = map[TicketStatus]Role{
	StatusCollected: RoleCollector,
	StatusRecycled:  RoleCollector,
}

// CanTransition reports whether from → to is a legal lifecycle step.
func CanTransition(from, to TicketStatus) bool {
	return nextStatus[from] == to
}

// ValidateTransition checks that the actor may move the ticket to target
// and that all required inputs are present. It returns a sentinel error
// describing the first violated rule, or nil when the transition may be
// attempted against the backend.
func ValidateTransition(t *WasteTicket, target TicketStatus, actorRole Role, collectorID, proofURL string) error {
	if t == nil {
		return ErrTicketNotFound
	}
	if !target.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}
	if transitionRole[target] != actorRole {
		return ErrRoleNotAllowed
	}
	if collectorID == "" {
		return fmt.Errorf("%w: collector id required", ErrInvalidTransition)
	}
	if proofURL == "" {
		return ErrProofRequired
	}
	if !CanTransition(t.Status, target) {
		// Distinguish the claimed-by-someone-else case from a plain
		// out-of-order attempt: a second collector trying to collect a
		// non-pending ticket lost the race.
		if target == StatusCollected && t.Status != StatusPending {
			return ErrTicketClaimed
		}
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, t.Status, target)
	}
	// The collector who collected the ticket is the one who recycles it.
	if target == StatusRecycled && t.CollectorID != "" && t.CollectorID != collectorID {
		return ErrTicketClaimed
	}
	return nil
}

// ApplyTransition mutates the ticket for a validated transition: it
// advances the status, stamps the matching timestamp exactly once,
// records the collector and proof photo, and awards eco points on
// reaching recycled. Callers must run ValidateTransition first.
func ApplyTransition(t *WasteTicket, target TicketStatus, collectorID, proofURL string, now time.Time) {
	t.Status = target
	if t.CollectorID == "" {
		t.CollectorID = collectorID
	}
	if proofURL != "" {
		t.ProofImageURL = proofURL
	}
	switch target {
	case StatusCollected:
		if t.Timestamps.Collected == nil {
			ts := now
			t.Timestamps.Collected = &ts
		}
	case StatusRecycled:
		if t.Timestamps.Recycled == nil {
			ts := now
			t.Timestamps.Recycled = &ts
		}
		if t.EcoPointsAwarded == 0 {
			t.EcoPointsAwarded = EcoPointsPerRecycle
		}
	}
}

// CheckInvariants verifies the ticket's cross-field lifecycle invariants.
// It is used by tests and by the backend store as a write-time guard.
func CheckInvariants(t *WasteTicket) error {
	if t.WasteID == "" {
		return fmt.Errorf("ticket %s: missing waste code", t.ID)
	}
	collectedSet := t.Timestamps.Collected != nil
	recycledSet := t.Timestamps.Recycled != nil
	switch t.Status {
	case StatusPending:
		if collectedSet || recycledSet || t.CollectorID != "" {
			return fmt.Errorf("ticket %s: pending ticket carries collection state", t.WasteID)
		}
	case StatusCollected:
		if !collectedSet || recycledSet {
			return fmt.Errorf("ticket %s: collected ticket has inconsistent timestamps", t.WasteID)
		}
		if t.CollectorID == "" {
			return fmt.Errorf("ticket %s: collected ticket has no collector", t.WasteID)
		}
	case StatusRecycled:
		if !collectedSet || !recycledSet {
			return fmt.Errorf("ticket %s: recycled ticket has inconsistent timestamps", t.WasteID)
		}
		if t.CollectorID == "" {
			return fmt.Errorf("ticket %s: recycled ticket has no collector", t.WasteID)
		}
	default:
		return fmt.Errorf("ticket %s: unknown status %q", t.WasteID, t.Status)
	}
	if t.EcoPointsAwarded > 0 && t.Status != StatusRecycled {
		return fmt.Errorf("ticket %s: eco points awarded before recycled", t.WasteID)
	}
	return nil
}
