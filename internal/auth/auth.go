// Package auth provides single-admin password authentication, JWT
// sessions, and API key management.
package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoPasswordSet      = errors.New("no password has been set")
	ErrPasswordRequired   = errors.New("password is required")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
	ErrInvalidAPIKey      = errors.New("invalid API key")
)

// TokenExpiry is the lifetime of admin session tokens.
const TokenExpiry = 24 * time.Hour

// Service handles authentication operations.
type Service struct {
	db        *sql.DB
	jwtSecret []byte
}

// Claims represents JWT claims.
type Claims struct {
	jwt.RegisteredClaims
}

// APIKey is a named long-lived credential for automation clients.
type APIKey struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewService creates a new auth service.
func NewService(db *sql.DB, jwtSecret string) (*Service, error) {
	secret := []byte(jwtSecret)

	// Generate random secret if not provided
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
	}

	return &Service{
		db:        db,
		jwtSecret: secret,
	}, nil
}

// SetPassword sets or updates the admin password.
func (s *Service) SetPassword(ctx context.Context, password string) error {
	if password == "" {
		return ErrPasswordRequired
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO auth (id, password_hash, updated_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			password_hash = excluded.password_hash,
			updated_at = CURRENT_TIMESTAMP
	`, string(hash))
	if err != nil {
		return fmt.Errorf("failed to save password: %w", err)
	}
	return nil
}

// ValidatePassword checks if the provided password is correct.
func (s *Service) ValidatePassword(ctx context.Context, password string) error {
	var hash string
	err := s.db.QueryRowContext(ctx, "SELECT password_hash FROM auth WHERE id = 1").Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoPasswordSet
		}
		return fmt.Errorf("failed to get password: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// IsPasswordSet returns true if a password has been configured.
func (s *Service) IsPasswordSet(ctx context.Context) bool {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM auth WHERE id = 1").Scan(&count)
	return err == nil && count > 0
}

// GenerateToken creates a new admin session token.
func (s *Service) GenerateToken() (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "helmarr",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken validates a session token and returns its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// CreateAPIKey generates and stores a new named API key.
func (s *Service) CreateAPIKey(ctx context.Context, name string) (*APIKey, error) {
	if name == "" {
		return nil, errors.New("API key name is required")
	}

	key, err := generateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}

	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO api_keys (id, name, key) VALUES (?, ?, ?)", id, name, key); err != nil {
		return nil, fmt.Errorf("failed to save API key: %w", err)
	}

	return &APIKey{ID: id, Name: name, Key: key, CreatedAt: time.Now().UTC()}, nil
}

// ValidateAPIKey checks a presented key against the stored keys.
func (s *Service) ValidateAPIKey(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidAPIKey
	}
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_keys WHERE key = ?", key).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check API key: %w", err)
	}
	if count == 0 {
		return ErrInvalidAPIKey
	}
	return nil
}

// ListAPIKeys returns all keys with their secrets redacted.
func (s *Service) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM api_keys ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// DeleteAPIKey removes an API key.
func (s *Service) DeleteAPIKey(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM api_keys WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}
	return nil
}

func generateAPIKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}
