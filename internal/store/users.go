package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/crypto"
)

// User is a watchlist user known to the system. PlexToken is the
// user's watchlist read token; users without one are skipped by sync.
type User struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email,omitempty"`
	PlexToken        string    `json:"-"`
	RequiresApproval bool      `json:"requiresApproval"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

const userColumns = "id, name, email, plex_token, requires_approval, created_at, updated_at"

// UserStore persists users.
type UserStore struct {
	db      *sql.DB
	logger  zerolog.Logger
	secrets *crypto.SecretStore
}

// NewUserStore creates a user store.
func NewUserStore(db *sql.DB, logger zerolog.Logger) *UserStore {
	return &UserStore{
		db:     db,
		logger: logger.With().Str("component", "user-store").Logger(),
	}
}

// EncryptTokens enables at-rest encryption of watchlist tokens.
// Plaintext tokens written before encryption was enabled still read
// back, and are re-encrypted the next time they are set.
func (s *UserStore) EncryptTokens(secrets *crypto.SecretStore) {
	s.secrets = secrets
}

// Get returns one user by id.
func (s *UserStore) Get(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id)
	user, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	if err := s.reveal(user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetByName returns one user by name.
func (s *UserStore) GetByName(ctx context.Context, name string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE name = ?", name)
	user, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	if err := s.reveal(user); err != nil {
		return nil, err
	}
	return user, nil
}

// List returns all users.
func (s *UserStore) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		if err := s.reveal(user); err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// Upsert creates a user by name or returns the existing one. Used by
// watchlist sync when a new watchlist owner appears.
func (s *UserStore) Upsert(ctx context.Context, name, email string) (*User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (name, email) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET
			email = excluded.email,
			updated_at = CURRENT_TIMESTAMP`,
		name, nullIfEmpty(email))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return s.GetByName(ctx, name)
}

// WithTokens returns the users eligible for watchlist sync.
func (s *UserStore) WithTokens(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE plex_token IS NOT NULL AND plex_token != '' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		if err := s.reveal(user); err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// SetPlexToken stores or clears a user's watchlist token.
func (s *UserStore) SetPlexToken(ctx context.Context, id int64, token string) error {
	if s.secrets != nil && token != "" {
		sealed, err := s.secrets.Encrypt(token)
		if err != nil {
			return fmt.Errorf("failed to encrypt token: %w", err)
		}
		token = sealed
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET plex_token = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		nullIfEmpty(token), id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRequiresApproval flips the blanket approval flag.
func (s *UserStore) SetRequiresApproval(ctx context.Context, id int64, requires bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET requires_approval = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		boolToInt(requires), id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RequiresApproval implements the routing gate's user flag lookup.
func (s *UserStore) RequiresApproval(ctx context.Context, userID int64) (bool, error) {
	var requires int64
	err := s.db.QueryRowContext(ctx,
		"SELECT requires_approval FROM users WHERE id = ?", userID).Scan(&requires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Unknown users carry no blanket flag.
			return false, nil
		}
		return false, err
	}
	return requires == 1, nil
}

// reveal decrypts stored secrets on a scanned user.
func (s *UserStore) reveal(user *User) error {
	if s.secrets == nil || user.PlexToken == "" {
		return nil
	}
	token, err := s.secrets.Decrypt(user.PlexToken)
	if err != nil {
		return fmt.Errorf("failed to decrypt token for user %d: %w", user.ID, err)
	}
	user.PlexToken = token
	return nil
}

func scanUser(row rowScanner) (*User, error) {
	var (
		user             User
		email, token     sql.NullString
		requiresApproval int64
	)
	err := row.Scan(&user.ID, &user.Name, &email, &token, &requiresApproval, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if email.Valid {
		user.Email = email.String
	}
	if token.Valid {
		user.PlexToken = token.String
	}
	user.RequiresApproval = requiresApproval == 1
	return &user, nil
}
