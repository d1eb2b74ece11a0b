package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/xtrntr/ledgerview/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidAccount = errors.New("account must be a 0x-prefixed 20 byte hex address")
	ErrInvalidToken   = errors.New("invalid token")
)

var accountPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// UserStore persists registered users
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string, account models.Address) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// AuthService handles user authentication
type AuthService struct {
	Users  UserStore
	Secret []byte
	TTL    time.Duration
}

// NewAuthService creates a new auth service
func NewAuthService(users UserStore, secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{Users: users, Secret: []byte(secret), TTL: ttl}
}

// Register creates a new user with hashed password bound to account
func (s *AuthService) Register(ctx context.Context, username, password string, account models.Address) (*models.User, error) {
	// Validate input
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}
	if len(username) > 50 {
		return nil, fmt.Errorf("username too long (max 50 characters)")
	}
	if len(password) > 72 {
		return nil, fmt.Errorf("password too long (max 72 characters)")
	}
	if !accountPattern.MatchString(string(account)) {
		return nil, ErrInvalidAccount
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user, err := s.Users.CreateUser(ctx, username, string(hashedPassword), account)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and generates a JWT carrying the account
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.Users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"account":  string(user.Account),
		"exp":      time.Now().Add(s.TTL).Unix(),
	})

	tokenString, err := token.SignedString(s.Secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// GetAccountFromToken extracts the ledger account from a JWT
func (s *AuthService) GetAccountFromToken(tokenString string) (models.Address, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	account, ok := claims["account"].(string)
	if !ok || account == "" {
		return "", ErrInvalidToken
	}
	return models.Address(account), nil
}
