package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/n0es/Transit/internal/db"
	"github.com/n0es/Transit/internal/models"
)

// Result classifies a session validation.
type Result string

const (
	ResultValid          Result = "VALID"
	ResultInvalidSession Result = "INVALID_SESSION"
	ResultSessionExpired Result = "SESSION_EXPIRED"
)

// DefaultTokenTTL is how long an issued session stays valid.
const DefaultTokenTTL = time.Hour

var ErrTokenGeneration = errors.New("failed to generate token")

// Service issues and validates session tokens binding a vehicle identity
// to a connection. Tokens are signed JWTs and are also persisted as
// session records; validation requires both the signature and the record.
type Service struct {
	jwtSecret []byte
	tokenTTL  time.Duration
	sessions  db.SessionStore
}

// NewService creates a session authority. An empty secret falls back to
// the JWT_SECRET environment variable.
func NewService(secret string, ttl time.Duration, sessions db.SessionStore) *Service {
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	if secret == "" {
		secret = "default-secret-key-change-in-production"
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{
		jwtSecret: []byte(secret),
		tokenTTL:  ttl,
		sessions:  sessions,
	}
}

// HashPassword hashes a password using bcrypt.
func (s *Service) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPassword checks if a password matches a hash.
func (s *Service) CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CreateSession issues a fresh token for the vehicle and persists the
// binding. Earlier sessions for the same vehicle stay valid; re-login
// deliberately does not revoke them.
func (s *Service) CreateSession(ctx context.Context, vehicleID string) (string, error) {
	now := time.Now()
	expiresAt := now.Add(s.tokenTTL)

	jti := make([]byte, 16)
	if _, err := rand.Read(jti); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}

	claims := jwt.MapClaims{
		"vehicle_id": vehicleID,
		"jti":        hex.EncodeToString(jti),
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}

	session := models.Session{
		Token:     token,
		VehicleID: vehicleID,
		ExpiresAt: expiresAt,
	}
	if err := s.sessions.InsertSession(ctx, session); err != nil {
		return "", fmt.Errorf("failed to persist session: %w", err)
	}
	return token, nil
}

// Validate checks a token against the claimed vehicle id. No side effects.
// Store failures are returned as errors; every protocol-level outcome is a
// Result.
func (s *Service) Validate(ctx context.Context, token, vehicleID string) (Result, error) {
	// A token that does not carry our signature is unknown regardless of
	// what the store says.
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return ResultInvalidSession, nil
	}

	session, err := s.sessions.FindSession(ctx, token)
	if err == db.ErrNotFound {
		return ResultInvalidSession, nil
	}
	if err != nil {
		return ResultInvalidSession, fmt.Errorf("session lookup failed: %w", err)
	}
	if session.VehicleID != vehicleID {
		return ResultInvalidSession, nil
	}
	if !time.Now().Before(session.ExpiresAt) {
		return ResultSessionExpired, nil
	}
	return ResultValid, nil
}
