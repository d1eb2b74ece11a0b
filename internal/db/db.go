package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/xtrntr/ledgerview/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// Migrate applies the schema; every statement is idempotent
func (db *DB) Migrate(ctx context.Context, schema string) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// CreateUser inserts a new user bound to a ledger account
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string, account models.Address) (*models.User, error) {
	user := &models.User{}
	var addr string
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO users (username, password_hash, account) VALUES ($1, $2, $3) RETURNING id, username, password_hash, account",
		username, passwordHash, strings.ToLower(string(account))).Scan(&user.ID, &user.Username, &user.PasswordHash, &addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	user.Account = models.Address(addr)
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	var addr string
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, account FROM users WHERE username = $1",
		username).Scan(&user.ID, &user.Username, &user.PasswordHash, &addr)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.Account = models.Address(addr)
	return user, nil
}
