// Package dashboard computes the view models behind the three role
// dashboards. Everything here is a pure function over the ticket cache
// and the session user: no network, no mutation, so a render can never
// change ticket state.
package dashboard

import (
	"math"
	"time"

	"github.com/wastetrace/wastetrace/internal/domain"
)

// DailyTarget is the fixed number of pickups a collector is measured
// against per day.
const DailyTarget = 15

// StatusCounts tallies tickets per lifecycle state.
type StatusCounts struct {
	Pending   int `json:"pending"`
	Collected int `json:"collected"`
	Recycled  int `json:"recycled"`
}

// Total returns the ticket count across all states.
func (c StatusCounts) Total() int { return c.Pending + c.Collected + c.Recycled }

func countStatuses(tickets []domain.WasteTicket) StatusCounts {
	var c StatusCounts
	for _, t := range tickets {
		switch t.Status {
		case domain.StatusPending:
			c.Pending++
		case domain.StatusCollected:
			c.Collected++
		case domain.StatusRecycled:
			c.Recycled++
		}
	}
	return c
}

// ─── Citizen ────────────────────────────────────────────────────────────────

// Badge is an achievement shown on the citizen dashboard.
type Badge struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Unlocked bool   `json:"unlocked"`
}

// VoucherOffer pairs a catalogue voucher with whether the citizen's
// balance covers it.
type VoucherOffer struct {
	domain.Voucher
	Available bool `json:"available"`
}

// CitizenView is the citizen dashboard model.
type CitizenView struct {
	Tickets   []domain.WasteTicket `json:"tickets"`
	Counts    StatusCounts         `json:"counts"`
	EcoPoints int                  `json:"ecoPoints"`
	Badges    []Badge              `json:"badges"`
	Vouchers  []VoucherOffer       `json:"vouchers"`
}

// Citizen builds the citizen dashboard from the citizen's own tickets,
// newest first.
func Citizen(user domain.User, tickets []domain.WasteTicket) CitizenView {
	own := filter(tickets, func(t domain.WasteTicket) bool { return t.CitizenID == user.ID })
	domain.SortTicketsByCreated(own)
	counts := countStatuses(own)

	badges := []Badge{
		{ID: "green-hero", Name: "Green Hero", Unlocked: counts.Recycled >= 10},
		{ID: "recycling-champion", Name: "Recycling Champion", Unlocked: counts.Recycled >= 5},
		{ID: "eco-warrior", Name: "Eco Warrior", Unlocked: user.EcoPoints >= 100},
	}

	var offers []VoucherOffer
	for _, v := range domain.Vouchers() {
		offers = append(offers, VoucherOffer{Voucher: v, Available: user.EcoPoints >= v.Cost})
	}

	return CitizenView{
		Tickets:   own,
		Counts:    counts,
		EcoPoints: user.EcoPoints,
		Badges:    badges,
		Vouchers:  offers,
	}
}

// ─── Collector ──────────────────────────────────────────────────────────────

// CollectorView is the collector dashboard model.
type CollectorView struct {
	Pending         []domain.WasteTicket `json:"pending"`
	Collected       []domain.WasteTicket `json:"collected"`
	CompletedToday  int                  `json:"completedToday"`
	DailyTarget     int                  `json:"dailyTarget"`
	ProgressPercent int                  `json:"progressPercent"`
}

// Collector builds the collector dashboard: every pending ticket is up
// for grabs, collected shows only the collector's own claims, and the
// daily progress counts pickups whose collection stamp falls on now's
// date.
func Collector(user domain.User, tickets []domain.WasteTicket, now time.Time) CollectorView {
	pending := filter(tickets, func(t domain.WasteTicket) bool { return t.Status == domain.StatusPending })
	collected := filter(tickets, func(t domain.WasteTicket) bool {
		return t.Status == domain.StatusCollected && t.CollectorID == user.ID
	})
	domain.SortTicketsByCreated(pending)
	domain.SortTicketsByCreated(collected)

	today := 0
	y, m, d := now.Date()
	for _, t := range tickets {
		if t.CollectorID != user.ID || t.Timestamps.Collected == nil {
			continue
		}
		cy, cm, cd := t.Timestamps.Collected.In(now.Location()).Date()
		if cy == y && cm == m && cd == d {
			today++
		}
	}

	percent := today * 100 / DailyTarget
	if percent > 100 {
		percent = 100
	}

	return CollectorView{
		Pending:         pending,
		Collected:       collected,
		CompletedToday:  today,
		DailyTarget:     DailyTarget,
		ProgressPercent: percent,
	}
}

// ─── Municipality ───────────────────────────────────────────────────────────

// AreaRow aggregates tickets for one reported address.
type AreaRow struct {
	Area   string       `json:"area"`
	Counts StatusCounts `json:"counts"`
}

// CollectorRow is one collector's activity line in the monitoring table.
type CollectorRow struct {
	CollectorID string `json:"collectorId"`
	Collected   int    `json:"collected"`
	Recycled    int    `json:"recycled"`
}

// MunicipalityView is the municipality dashboard model.
type MunicipalityView struct {
	Counts        StatusCounts   `json:"counts"`
	RecyclingRate int            `json:"recyclingRate"`
	Areas         []AreaRow      `json:"areas"`
	Collectors    []CollectorRow `json:"collectors"`
}

// Municipality builds the city-wide monitoring view over all tickets.
func Municipality(tickets []domain.WasteTicket) MunicipalityView {
	counts := countStatuses(tickets)

	total := counts.Total()
	if total < 1 {
		total = 1
	}
	rate := int(math.Round(float64(counts.Recycled) / float64(total) * 100))

	byArea := map[string][]domain.WasteTicket{}
	var areaOrder []string
	byCollector := map[string]*CollectorRow{}
	var collectorOrder []string
	for _, t := range tickets {
		area := "Unknown location"
		if t.Location != nil && t.Location.Address != "" {
			area = t.Location.Address
		}
		if _, seen := byArea[area]; !seen {
			areaOrder = append(areaOrder, area)
		}
		byArea[area] = append(byArea[area], t)

		if t.CollectorID != "" {
			row, seen := byCollector[t.CollectorID]
			if !seen {
				row = &CollectorRow{CollectorID: t.CollectorID}
				byCollector[t.CollectorID] = row
				collectorOrder = append(collectorOrder, t.CollectorID)
			}
			switch t.Status {
			case domain.StatusCollected:
				row.Collected++
			case domain.StatusRecycled:
				row.Collected++
				row.Recycled++
			}
		}
	}

	var areas []AreaRow
	for _, name := range areaOrder {
		areas = append(areas, AreaRow{Area: name, Counts: countStatuses(byArea[name])})
	}
	var collectors []CollectorRow
	for _, id := range collectorOrder {
		collectors = append(collectors, *byCollector[id])
	}

	return MunicipalityView{
		Counts:        counts,
		RecyclingRate: rate,
		Areas:         areas,
		Collectors:    collectors,
	}
}

func filter(tickets []domain.WasteTicket, keep func(domain.WasteTicket) bool) []domain.WasteTicket {
	var out []domain.WasteTicket
	for _, t := range tickets {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
