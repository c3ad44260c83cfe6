// Package store provides storage backends for PostPipe.
//
// It persists workflow sessions and the review channel's receipts and responses in
// memory, SQLite or PostgreSQL.
package store

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/BTreeMap/PostPipe/internal/models"
)

// Store defines the persistence operations used by the workflow and review channel.
type Store interface {
	// SaveSession inserts or replaces a session.
	SaveSession(s models.Session) error
	// GetSession returns the session with the given ID, or nil if it does not exist.
	GetSession(id string) (*models.Session, error)
	// DeleteSession removes a session. Deleting a missing session is not an error.
	DeleteSession(id string) error
	// ListSessions returns all sessions, most recently updated first.
	ListSessions() ([]models.Session, error)

	AddReceipt(r models.Receipt) error
	GetReceipts() ([]models.Receipt, error)
	AddResponse(r models.Response) error
	GetResponses() ([]models.Response, error)

	Close() error
}

// Opts holds configuration for store backends.
type Opts struct {
	DSN string // data source name: a file path for SQLite, a URL or key/value string for Postgres
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the data source name.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns the database/sql driver name for a DSN: "postgres" for
// Postgres URLs and key/value strings, "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(strings.ToLower(dsn))
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(d, "host=") || strings.Contains(d, "dbname=") || strings.Contains(d, "user=") {
		return "postgres"
	}
	return "sqlite3"
}

// New opens the store selected by the DSN. An empty DSN selects the in-memory store.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("store.New: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	switch DetectDSNType(cfg.DSN) {
	case "postgres":
		slog.Info("store.New: using Postgres store")
		return NewPostgresStore(opts...)
	default:
		slog.Info("store.New: using SQLite store", "path", cfg.DSN)
		return NewSQLiteStore(opts...)
	}
}

// InMemoryStore keeps everything in process memory. It is safe for concurrent use.
type InMemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]models.Session
	receipts  []models.Receipt
	responses []models.Response
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]models.Session)}
}

func (s *InMemoryStore) SaveSession(sess models.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	sess.State = append([]byte(nil), sess.State...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *InMemoryStore) GetSession(id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	sess.State = append([]byte(nil), sess.State...)
	return &sess, nil
}

func (s *InMemoryStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *InMemoryStore) ListSessions() ([]models.Session, error) {
	s.mu.RLock()
	out := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sess.State = append([]byte(nil), sess.State...)
		out = append(out, sess)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *InMemoryStore) AddReceipt(r models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

func (s *InMemoryStore) GetReceipts() ([]models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Receipt(nil), s.receipts...), nil
}

func (s *InMemoryStore) AddResponse(r models.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
	return nil
}

func (s *InMemoryStore) GetResponses() ([]models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Response(nil), s.responses...), nil
}

func (s *InMemoryStore) Close() error { return nil }
