// Package sqlite implements counsel.ContextStore and counsel.Cache using
// pure-Go SQLite. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nevindra/counsel"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithContextTTL sets how long saved contexts live (default:
// counsel.DefaultContextTTL). Each Save resets the clock.
func WithContextTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.ttl = ttl }
}

// Store implements counsel.ContextStore and counsel.Cache backed by a local
// SQLite file. Expiry is an absolute Unix timestamp per row; expired rows are
// invisible to reads and purged lazily on write.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time
}

var _ counsel.ContextStore = (*Store)(nil)
var _ counsel.Cache = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{
		db:     db,
		logger: nopLogger,
		ttl:    counsel.DefaultContextTTL,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables.
func (s *Store) Init(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS contexts (
			session_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS kb_cache (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	s.logger.Debug("sqlite: init complete")
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Load implements counsel.ContextStore. Missing and expired sessions both
// return (nil, nil).
func (s *Store) Load(ctx context.Context, sessionID string) (*counsel.ConversationContext, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM contexts WHERE session_id = ? AND expires_at > ?`,
		sessionID, s.now().Unix(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load context %s: %w", sessionID, err)
	}
	var cc counsel.ConversationContext
	if err := json.Unmarshal([]byte(payload), &cc); err != nil {
		return nil, fmt.Errorf("decode context %s: %w", sessionID, err)
	}
	return &cc, nil
}

// Save implements counsel.ContextStore, replacing any previous value and
// resetting the expiry. Expired rows of other sessions are purged on the way.
func (s *Store) Save(ctx context.Context, cc *counsel.ConversationContext) error {
	payload, err := json.Marshal(cc)
	if err != nil {
		return fmt.Errorf("encode context %s: %w", cc.SessionID, err)
	}
	now := s.now().Unix()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM contexts WHERE expires_at <= ?`, now); err != nil {
		s.logger.Warn("sqlite: purge contexts", "error", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contexts (session_id, payload, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`,
		cc.SessionID, string(payload), s.now().Add(s.ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("save context %s: %w", cc.SessionID, err)
	}
	return nil
}

// Clear implements counsel.ContextStore. An expired row counts as absent.
func (s *Store) Clear(ctx context.Context, sessionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM contexts WHERE session_id = ? AND expires_at > ?`,
		sessionID, s.now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("clear context %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("clear context %s: %w", sessionID, err)
	}
	return n > 0, nil
}

// Get implements counsel.Cache.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kb_cache WHERE key = ? AND expires_at > ?`,
		key, s.now().Unix(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements counsel.Cache. A non-positive ttl means
// counsel.DefaultKnowledgeTTL.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = counsel.DefaultKnowledgeTTL
	}
	now := s.now().Unix()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kb_cache WHERE expires_at <= ?`, now); err != nil {
		s.logger.Warn("sqlite: purge cache", "error", err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kb_cache (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, s.now().Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}
