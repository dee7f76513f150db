// Package postgres implements counsel.ContextStore and counsel.Cache using
// PostgreSQL.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor injection.
// The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/counsel"
)

// Option configures a PostgreSQL Store.
type Option func(*Store)

// WithContextTTL sets how long saved contexts live (default:
// counsel.DefaultContextTTL). Each Save resets the clock.
func WithContextTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// Store implements counsel.ContextStore and counsel.Cache backed by
// PostgreSQL. Expiry is a timestamptz per row; expired rows are invisible to
// reads and purged lazily on write.
type Store struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

var _ counsel.ContextStore = (*Store)(nil)
var _ counsel.Cache = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool: pool,
		ttl:  counsel.DefaultContextTTL,
		now:  time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates all required tables.
func (s *Store) Init(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS contexts (
			session_id TEXT PRIMARY KEY,
			payload JSONB NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS kb_cache (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, ddl := range tables {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// Load implements counsel.ContextStore. Missing and expired sessions both
// return (nil, nil).
func (s *Store) Load(ctx context.Context, sessionID string) (*counsel.ConversationContext, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM contexts WHERE session_id = $1 AND expires_at > $2`,
		sessionID, s.now(),
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load context %s: %w", sessionID, err)
	}
	var cc counsel.ConversationContext
	if err := json.Unmarshal(payload, &cc); err != nil {
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
	if _, err := s.pool.Exec(ctx, `DELETE FROM contexts WHERE expires_at <= $1`, s.now()); err != nil {
		return fmt.Errorf("purge contexts: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO contexts (session_id, payload, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO UPDATE SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at`,
		cc.SessionID, payload, s.now().Add(s.ttl),
	)
	if err != nil {
		return fmt.Errorf("save context %s: %w", cc.SessionID, err)
	}
	return nil
}

// Clear implements counsel.ContextStore. An expired row counts as absent.
func (s *Store) Clear(ctx context.Context, sessionID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM contexts WHERE session_id = $1 AND expires_at > $2`,
		sessionID, s.now(),
	)
	if err != nil {
		return false, fmt.Errorf("clear context %s: %w", sessionID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get implements counsel.Cache.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM kb_cache WHERE key = $1 AND expires_at > $2`,
		key, s.now(),
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
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
	if _, err := s.pool.Exec(ctx, `DELETE FROM kb_cache WHERE expires_at <= $1`, s.now()); err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kb_cache (key, value, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, s.now().Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}
