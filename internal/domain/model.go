// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of the application — it depends on nothing.
package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ─── Actors ─────────────────────────────────────────────────────────────────

// Role identifies which dashboard and which ticket operations an actor
// is allowed to use.
type Role string

const (
	RoleCitizen      Role = "citizen"
	RoleCollector    Role = "collector"
	RoleMunicipality Role = "municipality"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCitizen, RoleCollector, RoleMunicipality:
		return true
	}
	return false
}

// User is an authenticated actor. EcoPoints is meaningful for citizens,
// TotalWasteCollected for collectors; both are zero otherwise.
type User struct {
	ID                  string `json:"id"`
	Email               string `json:"email"`
	Name                string `json:"name"`
	Role                Role   `json:"role"`
	EcoPoints           int    `json:"ecoPoints,omitempty"`
	TotalWasteCollected int    `json:"totalWasteCollected,omitempty"`
}

// ─── Tickets ────────────────────────────────────────────────────────────────

// TicketStatus is the lifecycle state of a waste ticket.
type TicketStatus string

const (
	StatusPending   TicketStatus = "pending"
	StatusCollected TicketStatus = "collected"
	StatusRecycled  TicketStatus = "recycled"
)

// Valid reports whether s is a known lifecycle state.
func (s TicketStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCollected, StatusRecycled:
		return true
	}
	return false
}

// Location is an optional geographic annotation on a ticket.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

// Timestamps records when each lifecycle transition happened. Created is
// always set; Collected and Recycled are set exactly once, when the
// corresponding transition occurs.
type Timestamps struct {
	Created   time.Time  `json:"created"`
	Collected *time.Time `json:"collected,omitempty"`
	Recycled  *time.Time `json:"recycled,omitempty"`
}

// WasteTicket is the tracked record of one citizen-submitted waste item.
// The backend owns the authoritative copy; every client-side instance is
// provisional until reconciled by a full re-fetch.
type WasteTicket struct {
	ID               string       `json:"id"`
	WasteID          string       `json:"wasteId"`
	CitizenID        string       `json:"citizenId"`
	Classification   string       `json:"classification,omitempty"`
	Status           TicketStatus `json:"status"`
	ImageURL         string       `json:"imageUrl,omitempty"`
	QRCode           string       `json:"qrCode,omitempty"`
	ProofImageURL    string       `json:"proofImageUrl,omitempty"`
	Location         *Location    `json:"location,omitempty"`
	Timestamps       Timestamps   `json:"timestamps"`
	CollectorID      string       `json:"collectorId,omitempty"`
	EcoPointsAwarded int          `json:"ecoPointsAwarded"`

	// CreatedAt mirrors Timestamps.Created for records that predate the
	// timestamps block. Normalize promotes it.
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Normalize migrates legacy field shapes into the current schema so that
// downstream code sees one consistent shape. It is called once at the
// repository boundary, on every fetched ticket.
func (t *WasteTicket) Normalize() {
	if t.Timestamps.Created.IsZero() && !t.CreatedAt.IsZero() {
		t.Timestamps.Created = t.CreatedAt
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = t.Timestamps.Created
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
}

// NewWasteCode returns a fresh human-readable tracking code: "WT" plus
// six uppercase hex characters from a random UUID, e.g. WT7A9F02.
func NewWasteCode() string {
	return "WT" + strings.ToUpper(uuid.New().String()[:6])
}

// SortTicketsByCreated orders tickets newest-first by creation time.
// A missing timestamp sorts as oldest rather than breaking the view.
func SortTicketsByCreated(tickets []WasteTicket) {
	sort.SliceStable(tickets, func(i, j int) bool {
		return tickets[i].Timestamps.Created.After(tickets[j].Timestamps.Created)
	})
}

// ─── Classification ─────────────────────────────────────────────────────────

// Categories is the fixed set of waste bins the classifier reports on.
var Categories = []string{"cardboard", "glass", "metal", "paper", "plastic", "trash"}

// Classification maps a waste category to a detected item count.
type Classification map[string]int

// ParseClassification decodes a stored classification value. The field
// is an opaque serialized mapping, but legacy tickets carry a plain
// display string ("Plastic Waste"); parsing failure returns ok=false and
// callers fall back to showing the raw value.
func ParseClassification(raw string) (Classification, bool) {
	if raw == "" {
		return nil, false
	}
	var c Classification
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, false
	}
	return c, true
}

// Encode serializes the classification for storage on a ticket.
func (c Classification) Encode() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return string(data)
}

// Total returns the number of detected items across all categories.
func (c Classification) Total() int {
	var total int
	for _, n := range c {
		total += n
	}
	return total
}

// Dominant returns the category with the highest count, or "" when
// nothing was detected. Ties break alphabetically for determinism.
func (c Classification) Dominant() string {
	best := ""
	bestCount := 0
	for _, cat := range sortedKeys(c) {
		if c[cat] > bestCount {
			best, bestCount = cat, c[cat]
		}
	}
	return best
}

// Format renders the classification for display: zero-count categories
// are filtered out and names capitalized, e.g. "Plastic: 2, Glass: 1".
func (c Classification) Format() string {
	var parts []string
	for _, cat := range orderedByCount(c) {
		if c[cat] > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", capitalize(cat), c[cat]))
		}
	}
	if len(parts) == 0 {
		return "No Waste"
	}
	return strings.Join(parts, ", ")
}

// FormatClassification renders a stored classification value for display,
// degrading to the raw string when it is not a valid mapping.
func FormatClassification(raw string) string {
	if raw == "" {
		return "NA"
	}
	c, ok := ParseClassification(raw)
	if !ok {
		return raw
	}
	return c.Format()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func sortedKeys(c Classification) []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// orderedByCount returns category names sorted by count descending,
// alphabetical within equal counts, so Format output is stable.
func orderedByCount(c Classification) []string {
	keys := sortedKeys(c)
	sort.SliceStable(keys, func(i, j int) bool {
		return c[keys[i]] > c[keys[j]]
	})
	return keys
}
