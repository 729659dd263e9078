// Package identity holds the authenticated actor for each session and
// gates which ticket operations are permitted. Sessions are persisted to
// disk so they survive a process restart, but the role-specific counters
// they carry (eco points) are not authoritative — the backend is.
package identity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/wastetrace/wastetrace/internal/domain"
)

// demoUsers is the static credential table. A real deployment replaces
// this with an auth backend; the login contract stays the same.
var demoUsers = map[string]domain.User{
	"citizen@demo": {
		ID:        "citizen-1",
		Email:     "citizen@demo",
		Name:      "Sarvesh Sapkal",
		Role:      domain.RoleCitizen,
		EcoPoints: 120,
	},
	"collector@demo": {
		ID:                  "collector-1",
		Email:               "collector@demo",
		Name:                "Laukika Shinde",
		Role:                domain.RoleCollector,
		TotalWasteCollected: 45,
	},
	"municipal@demo": {
		ID:    "municipal-1",
		Email: "municipal@demo",
		Name:  "Shalvi Maheshwari",
		Role:  domain.RoleMunicipality,
	},
}

const demoPassword = "password123"

// Session is an authenticated login. The token is the client's handle.
type Session struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

// Store manages sessions. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	path     string // persistence file; empty disables persistence
}

// NewStore creates a session store persisting to the given file.
// An empty path keeps sessions in memory only.
func NewStore(path string) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		path:     path,
	}
	s.load()
	return s
}

// Login authenticates the credentials and opens a session. A failed
// login returns ErrInvalidCredentials and mutates nothing.
func (s *Store) Login(email, password string) (Session, error) {
	user, ok := demoUsers[email]
	if !ok || password != demoPassword {
		return Session{}, domain.ErrInvalidCredentials
	}

	sess := Session{Token: uuid.New().String(), User: user}

	s.mu.Lock()
	s.sessions[sess.Token] = &sess
	s.persistLocked()
	s.mu.Unlock()
	return sess, nil
}

// Logout closes the session unconditionally; unknown tokens are a no-op.
func (s *Store) Logout(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.persistLocked()
	s.mu.Unlock()
}

// Current returns the actor for a session token.
func (s *Store) Current(token string) (*domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[token]
	if !ok {
		return nil, false
	}
	user := sess.User
	return &user, true
}

// ProfileUpdate is a partial actor update. Nil fields are left untouched.
type ProfileUpdate struct {
	Name                *string
	EcoPoints           *int
	TotalWasteCollected *int
}

// UpdateLocalProfile merges a partial update into the session's actor.
// It never calls the backend: the only sanctioned use is applying a
// balance the backend already confirmed (see ApplyBalance). Unknown
// tokens are a no-op.
func (s *Store) UpdateLocalProfile(token string, update ProfileUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return
	}
	if update.Name != nil {
		sess.User.Name = *update.Name
	}
	if update.EcoPoints != nil {
		sess.User.EcoPoints = *update.EcoPoints
	}
	if update.TotalWasteCollected != nil {
		sess.User.TotalWasteCollected = *update.TotalWasteCollected
	}
	s.persistLocked()
}

// ApplyBalance records the authoritative eco-point balance returned by
// the backend after a redemption or re-derivation. Local code never
// computes a balance on its own.
func (s *Store) ApplyBalance(token string, points int) {
	s.UpdateLocalProfile(token, ProfileUpdate{EcoPoints: &points})
}

// ─── Persistence ────────────────────────────────────────────────────────────

func (s *Store) load() {
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var sessions map[string]*Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return
	}
	// A file holding JSON null unmarshals to a nil map; keep the empty
	// one so later logins have somewhere to write.
	if sessions == nil {
		return
	}
	s.sessions = sessions
}

// persistLocked writes the session table; callers hold s.mu.
func (s *Store) persistLocked() {
	if s.path == "" {
		return
	}
	data, err := json.MarshalIndent(s.sessions, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return
	}
	_ = os.WriteFile(s.path, data, 0600)
}
