package zalo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresCredentialStore keeps the credential triple in a single row of
// zalo_credentials. Every write is one statement, so the triple is replaced
// atomically.
type PostgresCredentialStore struct {
	db rowQuerier
}

func NewPostgresCredentialStore(pool *pgxpool.Pool) *PostgresCredentialStore {
	if pool == nil {
		panic("zalo: pgx pool required")
	}
	return &PostgresCredentialStore{db: pool}
}

func newPostgresCredentialStoreWithExec(exec rowQuerier) *PostgresCredentialStore {
	if exec == nil {
		panic("zalo: exec required")
	}
	return &PostgresCredentialStore{db: exec}
}

// Load returns the stored credentials, or the zero value when none exist.
func (s *PostgresCredentialStore) Load(ctx context.Context) (Credentials, error) {
	query := `SELECT access_token, refresh_token, expires_at FROM zalo_credentials WHERE id = 1`
	var (
		creds     Credentials
		expiresAt *time.Time
	)
	if err := s.db.QueryRow(ctx, query).Scan(&creds.AccessToken, &creds.RefreshToken, &expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credentials{}, nil
		}
		return Credentials{}, fmt.Errorf("zalo: load credentials: %w", err)
	}
	if expiresAt != nil {
		creds.ExpiresAt = expiresAt.UTC()
	}
	return creds, nil
}

// Save upserts the credential row.
func (s *PostgresCredentialStore) Save(ctx context.Context, creds Credentials) error {
	query := `
		INSERT INTO zalo_credentials (id, access_token, refresh_token, expires_at, updated_at)
		VALUES (1, $1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`
	if _, err := s.db.Exec(ctx, query, creds.AccessToken, creds.RefreshToken, nullableTime(creds.ExpiresAt)); err != nil {
		return fmt.Errorf("zalo: save credentials: %w", err)
	}
	return nil
}

// Seed inserts creds unless a row already exists.
func (s *PostgresCredentialStore) Seed(ctx context.Context, creds Credentials) (bool, error) {
	query := `
		INSERT INTO zalo_credentials (id, access_token, refresh_token, expires_at, updated_at)
		VALUES (1, $1, $2, $3, NOW())
		ON CONFLICT DO NOTHING
	`
	ct, err := s.db.Exec(ctx, query, creds.AccessToken, creds.RefreshToken, nullableTime(creds.ExpiresAt))
	if err != nil {
		return false, fmt.Errorf("zalo: seed credentials: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
