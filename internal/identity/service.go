package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/covox/voicedash/pkg/database"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when authentication fails. The caller
// cannot distinguish a missing user from a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidToken is returned when a bearer token fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Service manages identity records and issues access tokens.
type Service struct {
	db        *database.Database
	jwtSecret []byte
	tokenTTL  time.Duration
	logger    *zap.Logger
}

// NewService creates an identity service.
func NewService(db *database.Database, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		db:        db,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		logger:    logger,
	}
}

// CreateUser creates an identity record with a bcrypt-hashed password and
// returns the generated user id.
func (s *Service) CreateUser(ctx context.Context, email, password string) (uuid.UUID, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hash password: %w", err)
	}

	var id uuid.UUID
	err = s.db.Pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id
	`, email, string(hash)).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("identity created", zap.String("user_id", id.String()))
	return id, nil
}

// DeleteUser removes an identity record. Saga compensator.
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// Authenticate verifies an email/password pair and returns a signed access
// token for the user.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, uuid.UUID, error) {
	var id uuid.UUID
	var hash string
	err := s.db.Pool.QueryRow(ctx, `
		SELECT id, password_hash FROM users WHERE email = $1
	`, email).Scan(&id, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", uuid.Nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("lookup user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", uuid.Nil, ErrInvalidCredentials
	}

	token, err := s.IssueToken(id)
	if err != nil {
		return "", uuid.Nil, err
	}
	return token, id, nil
}

// IssueToken signs an access token for a user id.
func (s *Service) IssueToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a bearer token and returns the user id it was
// issued for.
func (s *Service) VerifyToken(tokenStr string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return uuid.Nil, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}
