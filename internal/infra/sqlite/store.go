// Package sqlite persists tickets and users for the reference backend.
// The backend is the system of record: every ticket row it holds must
// satisfy the lifecycle invariants, and the store refuses writes that
// would violate them.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wastetrace/wastetrace/internal/domain"
)

// Store wraps the backing database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema migrations. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema migration statements. Each string is a
// single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS waste_tickets (
			id                 TEXT PRIMARY KEY,
			waste_id           TEXT NOT NULL UNIQUE,
			citizen_id         TEXT NOT NULL,
			classification     TEXT NOT NULL DEFAULT '',
			status             TEXT NOT NULL DEFAULT 'pending',
			image_url          TEXT NOT NULL DEFAULT '',
			qr_code            TEXT NOT NULL DEFAULT '',
			proof_image_url    TEXT NOT NULL DEFAULT '',
			loc_lat            REAL,
			loc_lng            REAL,
			loc_address        TEXT,
			created_at         TEXT NOT NULL,
			collected_at       TEXT,
			recycled_at        TEXT,
			collector_id       TEXT NOT NULL DEFAULT '',
			eco_points_awarded INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_citizen ON waste_tickets(citizen_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_status ON waste_tickets(status)`,

		`CREATE TABLE IF NOT EXISTS users (
			id                    TEXT PRIMARY KEY,
			email                 TEXT NOT NULL UNIQUE,
			name                  TEXT NOT NULL,
			role                  TEXT NOT NULL,
			eco_points            INTEGER NOT NULL DEFAULT 0,
			total_waste_collected INTEGER NOT NULL DEFAULT 0
		)`,
	}
}

func (s *Store) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// ─── Ticket Operations ──────────────────────────────────────────────────────

// InsertTicket stores a new ticket.
func (s *Store) InsertTicket(t domain.WasteTicket) error {
	if err := domain.CheckInvariants(&t); err != nil {
		return err
	}
	var lat, lng any
	var addr any
	if t.Location != nil {
		lat, lng, addr = t.Location.Lat, t.Location.Lng, t.Location.Address
	}
	_, err := s.db.Exec(`
		INSERT INTO waste_tickets
			(id, waste_id, citizen_id, classification, status, image_url, qr_code,
			 proof_image_url, loc_lat, loc_lng, loc_address, created_at,
			 collected_at, recycled_at, collector_id, eco_points_awarded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.WasteID, t.CitizenID, t.Classification, string(t.Status),
		t.ImageURL, t.QRCode, t.ProofImageURL, lat, lng, addr,
		t.Timestamps.Created.Format(time.RFC3339Nano),
		nullTime(t.Timestamps.Collected), nullTime(t.Timestamps.Recycled),
		t.CollectorID, t.EcoPointsAwarded)
	return err
}

// CommitTransition writes a validated lifecycle transition and its side
// effects in one transaction. The UPDATE is a compare-and-swap on the
// pre-transition status: a handler that validated against a stale read
// matches zero rows and loses the race with ErrTicketClaimed, so a
// claimed ticket's collector_id can never be overwritten. The collector
// counter bump and the eco-point credit commit with the ticket row or
// not at all.
func (s *Store) CommitTransition(t domain.WasteTicket, from domain.TicketStatus) error {
	if err := domain.CheckInvariants(&t); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE waste_tickets SET
			status             = ?,
			proof_image_url    = ?,
			collected_at       = ?,
			recycled_at        = ?,
			collector_id       = ?,
			eco_points_awarded = ?
		WHERE waste_id = ? AND status = ?
	`, string(t.Status), t.ProofImageURL,
		nullTime(t.Timestamps.Collected), nullTime(t.Timestamps.Recycled),
		t.CollectorID, t.EcoPointsAwarded, t.WasteID, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM waste_tickets WHERE waste_id = ?`, t.WasteID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return domain.ErrTicketNotFound
		}
		// The row moved on since the caller read it; another writer won.
		return domain.ErrTicketClaimed
	}

	switch t.Status {
	case domain.StatusCollected:
		if _, err := tx.Exec(`
			UPDATE users SET total_waste_collected = total_waste_collected + 1 WHERE id = ?
		`, t.CollectorID); err != nil {
			return err
		}
	case domain.StatusRecycled:
		if _, err := tx.Exec(`
			UPDATE users SET eco_points = eco_points + ? WHERE id = ?
		`, domain.EcoPointsPerRecycle, t.CitizenID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetTicket retrieves a ticket by its tracking code.
func (s *Store) GetTicket(wasteID string) (domain.WasteTicket, error) {
	row := s.db.QueryRow(ticketSelect+` WHERE waste_id = ?`, wasteID)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WasteTicket{}, domain.ErrTicketNotFound
	}
	return t, err
}

// ListTickets returns every ticket, newest first.
func (s *Store) ListTickets() ([]domain.WasteTicket, error) {
	rows, err := s.db.Query(ticketSelect + ` ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.WasteTicket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

const ticketSelect = `
	SELECT id, waste_id, citizen_id, classification, status, image_url, qr_code,
	       proof_image_url, loc_lat, loc_lng, loc_address, created_at,
	       collected_at, recycled_at, collector_id, eco_points_awarded
	FROM waste_tickets`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (domain.WasteTicket, error) {
	var (
		t                  domain.WasteTicket
		status             string
		lat, lng           sql.NullFloat64
		addr               sql.NullString
		created            string
		collected, recycled sql.NullString
	)
	err := row.Scan(&t.ID, &t.WasteID, &t.CitizenID, &t.Classification, &status,
		&t.ImageURL, &t.QRCode, &t.ProofImageURL, &lat, &lng, &addr, &created,
		&collected, &recycled, &t.CollectorID, &t.EcoPointsAwarded)
	if err != nil {
		return domain.WasteTicket{}, err
	}
	t.Status = domain.TicketStatus(status)
	if addr.Valid {
		t.Location = &domain.Location{Lat: lat.Float64, Lng: lng.Float64, Address: addr.String}
	}
	t.Timestamps.Created, _ = time.Parse(time.RFC3339Nano, created)
	t.Timestamps.Collected = parseNullTime(collected)
	t.Timestamps.Recycled = parseNullTime(recycled)
	t.CreatedAt = t.Timestamps.Created
	return t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// ─── User Operations ────────────────────────────────────────────────────────

// UpsertUser inserts or refreshes a user profile. Counters are only
// seeded on first insert; later writes keep the stored balances.
func (s *Store) UpsertUser(u domain.User) error {
	_, err := s.db.Exec(`
		INSERT INTO users (id, email, name, role, eco_points, total_waste_collected)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			name  = excluded.name,
			role  = excluded.role
	`, u.ID, u.Email, u.Name, string(u.Role), u.EcoPoints, u.TotalWasteCollected)
	return err
}

// GetUser retrieves a user profile.
func (s *Store) GetUser(id string) (domain.User, error) {
	var (
		u    domain.User
		role string
	)
	err := s.db.QueryRow(`
		SELECT id, email, name, role, eco_points, total_waste_collected
		FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Email, &u.Name, &role, &u.EcoPoints, &u.TotalWasteCollected)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	u.Role = domain.Role(role)
	return u, nil
}

// SpendEcoPoints deducts cost from the balance only if it covers the
// cost, returning the new authoritative balance. Insufficient funds
// return ErrInsufficientPoints and change nothing.
func (s *Store) SpendEcoPoints(id string, cost int) (int, error) {
	res, err := s.db.Exec(`
		UPDATE users SET eco_points = eco_points - ?
		WHERE id = ? AND eco_points >= ?
	`, cost, id, cost)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, domain.ErrInsufficientPoints
	}
	u, err := s.GetUser(id)
	if err != nil {
		return 0, err
	}
	return u.EcoPoints, nil
}
