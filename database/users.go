package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/samber/lo"

	"campusmart/models"
)

const userColumns = "id, username, email, password, avatar, created_at"

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	user := &models.User{}
	var createdAt int64
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.Password, &user.Avatar, &createdAt); err != nil {
		return nil, notFound(err)
	}
	user.CreatedAt = fromUnix(createdAt)
	return user, nil
}

// CreateUser inserts a new user. Password must already be hashed.
func (s *Store) CreateUser(ctx context.Context, username, email, password string) (*models.User, error) {
	user := &models.User{
		ID:        newID(),
		Username:  username,
		Email:     email,
		Password:  password,
		CreatedAt: fromUnix(toUnix(s.now())),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, username, email, password, avatar, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		user.ID, user.Username, user.Email, user.Password, user.Avatar, toUnix(user.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by their ID
func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

// GetUserByUsername retrieves a user by their username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username))
}

// GetUserByEmail retrieves a user by their email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email))
}

// GetUsersByIDs returns the users found among ids, keyed by id
func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	users := make(map[string]*models.User, len(ids))
	for _, batch := range lo.Chunk(ids, maxBatchSize) {
		if err := s.loadUsers(ctx, batch, users); err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (s *Store) loadUsers(ctx context.Context, ids []string, into map[string]*models.User) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id IN ("+placeholders(len(ids))+")", toArgs(ids)...)
	if err != nil {
		return fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return err
		}
		into[user.ID] = user
	}
	return rows.Err()
}

// userExists is used inside transactions before creating rows that reference users
func userExists(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE id = ?", id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
