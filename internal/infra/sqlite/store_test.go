package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/wastetrace/wastetrace/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "wastetrace.db"))
	if err != nil {
		t.Fatalf("Open() err = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTicket(wasteID string) domain.WasteTicket {
	return domain.WasteTicket{
		ID:             "rec-" + wasteID,
		WasteID:        wasteID,
		CitizenID:      "citizen-1",
		Classification: `{"plastic":2}`,
		Status:         domain.StatusPending,
		ImageURL:       "img.jpg",
		Location:       &domain.Location{Lat: 18.52, Lng: 73.85, Address: "Sector 5"},
		Timestamps:     domain.Timestamps{Created: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)},
	}
}

// recycleTicket drives a fresh ticket through the full lifecycle so the
// user-table side effects land.
func recycleTicket(t *testing.T, s *Store, wasteID, collectorID string) {
	t.Helper()
	ticket := sampleTicket(wasteID)
	if err := s.InsertTicket(ticket); err != nil {
		t.Fatal(err)
	}
	t0 := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	domain.ApplyTransition(&ticket, domain.StatusCollected, collectorID, "p1.jpg", t0)
	if err := s.CommitTransition(ticket, domain.StatusPending); err != nil {
		t.Fatal(err)
	}
	domain.ApplyTransition(&ticket, domain.StatusRecycled, collectorID, "p2.jpg", t0.Add(time.Hour))
	if err := s.CommitTransition(ticket, domain.StatusCollected); err != nil {
		t.Fatal(err)
	}
}

// ─── Ticket Tests ───────────────────────────────────────────────────────────

func TestInsertAndGetTicket(t *testing.T) {
	s := openTestStore(t)
	want := sampleTicket("WT7X9M2A")

	if err := s.InsertTicket(want); err != nil {
		t.Fatalf("InsertTicket() err = %v", err)
	}

	got, err := s.GetTicket("WT7X9M2A")
	if err != nil {
		t.Fatalf("GetTicket() err = %v", err)
	}
	if got.CitizenID != want.CitizenID || got.Status != domain.StatusPending {
		t.Errorf("got = %+v", got)
	}
	if got.Location == nil || got.Location.Address != "Sector 5" {
		t.Errorf("Location = %+v, want Sector 5", got.Location)
	}
	if !got.Timestamps.Created.Equal(want.Timestamps.Created) {
		t.Errorf("Created = %v, want %v", got.Timestamps.Created, want.Timestamps.Created)
	}
}

func TestGetTicket_NotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetTicket("WTNOPE00"); !errors.Is(err, domain.ErrTicketNotFound) {
		t.Fatalf("GetTicket() err = %v, want ErrTicketNotFound", err)
	}
}

func TestInsertTicket_DuplicateWasteID(t *testing.T) {
	s := openTestStore(t)
	first := sampleTicket("WTDUP001")
	second := sampleTicket("WTDUP001")
	second.ID = "rec-other"

	if err := s.InsertTicket(first); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertTicket(second); err == nil {
		t.Fatal("duplicate waste_id accepted")
	}
}

func TestCommitTransition_FullLifecycle(t *testing.T) {
	s := openTestStore(t)
	ticket := sampleTicket("WT7X9M2A")
	if err := s.InsertTicket(ticket); err != nil {
		t.Fatal(err)
	}

	t0 := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	domain.ApplyTransition(&ticket, domain.StatusCollected, "collector-1", "p1.jpg", t0)
	if err := s.CommitTransition(ticket, domain.StatusPending); err != nil {
		t.Fatalf("CommitTransition(collected) err = %v", err)
	}

	domain.ApplyTransition(&ticket, domain.StatusRecycled, "collector-1", "p2.jpg", t0.Add(time.Hour))
	if err := s.CommitTransition(ticket, domain.StatusCollected); err != nil {
		t.Fatalf("CommitTransition(recycled) err = %v", err)
	}

	got, err := s.GetTicket("WT7X9M2A")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusRecycled {
		t.Errorf("Status = %q, want recycled", got.Status)
	}
	if got.Timestamps.Collected == nil || got.Timestamps.Recycled == nil {
		t.Error("lifecycle timestamps missing after round-trip")
	}
	if got.EcoPointsAwarded != domain.EcoPointsPerRecycle {
		t.Errorf("EcoPointsAwarded = %d, want %d", got.EcoPointsAwarded, domain.EcoPointsPerRecycle)
	}
	if err := domain.CheckInvariants(&got); err != nil {
		t.Errorf("CheckInvariants() = %v", err)
	}
}

func TestCommitTransition_RefusesStaleClaim(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertUser(domain.User{ID: "collector-2", Email: "rival@demo", Name: "Rival", Role: domain.RoleCollector}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertTicket(sampleTicket("WT7X9M2A")); err != nil {
		t.Fatal(err)
	}

	// Two collectors read the same pending ticket before either writes.
	first, err := s.GetTicket("WT7X9M2A")
	if err != nil {
		t.Fatal(err)
	}
	second := first

	t0 := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	domain.ApplyTransition(&first, domain.StatusCollected, "collector-1", "p1.jpg", t0)
	if err := s.CommitTransition(first, domain.StatusPending); err != nil {
		t.Fatalf("first claim err = %v", err)
	}

	// The second write checks a pre-transition status that no longer holds.
	domain.ApplyTransition(&second, domain.StatusCollected, "collector-2", "p2.jpg", t0.Add(time.Minute))
	if err := s.CommitTransition(second, domain.StatusPending); !errors.Is(err, domain.ErrTicketClaimed) {
		t.Fatalf("second claim err = %v, want ErrTicketClaimed", err)
	}

	got, err := s.GetTicket("WT7X9M2A")
	if err != nil {
		t.Fatal(err)
	}
	if got.CollectorID != "collector-1" {
		t.Errorf("CollectorID = %q, want first claimant kept", got.CollectorID)
	}
	// The loser's side effects must not land either.
	rival, err := s.GetUser("collector-2")
	if err != nil {
		t.Fatal(err)
	}
	if rival.TotalWasteCollected != 0 {
		t.Errorf("losing collector's counter = %d, want 0", rival.TotalWasteCollected)
	}
}

func TestCommitTransition_UnknownTicket(t *testing.T) {
	s := openTestStore(t)
	ticket := sampleTicket("WTGHOST0")
	domain.ApplyTransition(&ticket, domain.StatusCollected, "collector-1", "p.jpg", time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))

	if err := s.CommitTransition(ticket, domain.StatusPending); !errors.Is(err, domain.ErrTicketNotFound) {
		t.Fatalf("CommitTransition() err = %v, want ErrTicketNotFound", err)
	}
}

func TestCommitTransition_RejectsInvariantViolation(t *testing.T) {
	s := openTestStore(t)
	ticket := sampleTicket("WT7X9M2A")
	if err := s.InsertTicket(ticket); err != nil {
		t.Fatal(err)
	}

	// Points before recycled violates the write guard.
	ticket.EcoPointsAwarded = 15
	if err := s.CommitTransition(ticket, domain.StatusPending); err == nil {
		t.Fatal("CommitTransition accepted an invariant violation")
	}
}

func TestListTickets_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	older := sampleTicket("WTOLD001")
	newer := sampleTicket("WTNEW001")
	newer.ID = "rec-newer"
	newer.Timestamps.Created = older.Timestamps.Created.Add(time.Hour)

	if err := s.InsertTicket(older); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertTicket(newer); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListTickets()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].WasteID != "WTNEW001" {
		t.Errorf("order = %v", []string{got[0].WasteID, got[1].WasteID})
	}
}

// ─── User Tests ─────────────────────────────────────────────────────────────

func TestEcoPointsAccounting(t *testing.T) {
	s := openTestStore(t)
	user := domain.User{ID: "citizen-1", Email: "citizen@demo", Name: "Sarvesh", Role: domain.RoleCitizen, EcoPoints: 100}
	if err := s.UpsertUser(user); err != nil {
		t.Fatal(err)
	}

	// Recycling credits the flat reward in the same commit as the ticket.
	recycleTicket(t, s, "WT7X9M2A", "collector-1")
	u, err := s.GetUser("citizen-1")
	if err != nil {
		t.Fatal(err)
	}
	if u.EcoPoints != 115 {
		t.Errorf("balance after recycle = %d, want 115", u.EcoPoints)
	}

	balance, err := s.SpendEcoPoints("citizen-1", 100)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 15 {
		t.Errorf("balance after spend = %d, want 15", balance)
	}

	if _, err := s.SpendEcoPoints("citizen-1", 100); !errors.Is(err, domain.ErrInsufficientPoints) {
		t.Fatalf("overspend err = %v, want ErrInsufficientPoints", err)
	}
	u, err = s.GetUser("citizen-1")
	if err != nil {
		t.Fatal(err)
	}
	if u.EcoPoints != 15 {
		t.Errorf("balance after failed spend = %d, want untouched 15", u.EcoPoints)
	}
}

func TestUpsertUser_KeepsCounters(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertUser(domain.User{ID: "collector-1", Email: "collector@demo", Name: "Laukika", Role: domain.RoleCollector}); err != nil {
		t.Fatal(err)
	}
	recycleTicket(t, s, "WTCOUNT1", "collector-1")

	// Re-upserting the profile must not reset the counter.
	if err := s.UpsertUser(domain.User{ID: "collector-1", Email: "collector@demo", Name: "Laukika S", Role: domain.RoleCollector}); err != nil {
		t.Fatal(err)
	}
	u, err := s.GetUser("collector-1")
	if err != nil {
		t.Fatal(err)
	}
	if u.TotalWasteCollected != 1 {
		t.Errorf("TotalWasteCollected = %d, want 1", u.TotalWasteCollected)
	}
	if u.Name != "Laukika S" {
		t.Errorf("Name = %q, want refreshed", u.Name)
	}
}
