package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type User struct {
	UserID       int64
	UserULID     string
	Username     string
	PasswordHash string
	Role         string
	IsDisabled   bool
	CreatedAt    time.Time
}

type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByID(ctx context.Context, userID int64) (*User, error)
	Create(ctx context.Context, u *User) error
	SetDisabled(ctx context.Context, userID int64, disabled bool) (int64, error)
	List(ctx context.Context) ([]User, error)
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) UserStore {
	return &Store{db: db}
}

const userCols = `user_id, user_ulid, username, password_hash, role, is_disabled, created_at`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var disabled int
	err := row.Scan(&u.UserID, &u.UserULID, &u.Username, &u.PasswordHash, &u.Role, &disabled, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.IsDisabled = disabled != 0
	return &u, nil
}

func (s *Store) GetByUsername(ctx context.Context, username string) (*User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE username = ? LIMIT 1`
	return scanUser(s.db.QueryRowContext(ctx, q, username))
}

func (s *Store) GetByID(ctx context.Context, userID int64) (*User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE user_id = ? LIMIT 1`
	return scanUser(s.db.QueryRowContext(ctx, q, userID))
}

func (s *Store) Create(ctx context.Context, u *User) error {
	const q = `
INSERT INTO users (user_ulid, username, password_hash, role, is_disabled, created_at)
VALUES (?, ?, ?, ?, 0, NOW(6))`
	res, err := s.db.ExecContext(ctx, q, u.UserULID, u.Username, u.PasswordHash, u.Role)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	u.UserID = id
	return nil
}

func (s *Store) SetDisabled(ctx context.Context, userID int64, disabled bool) (int64, error) {
	const q = `UPDATE users SET is_disabled = ? WHERE user_id = ?`
	res, err := s.db.ExecContext(ctx, q, disabled, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) List(ctx context.Context) ([]User, error) {
	const q = `SELECT ` + userCols + ` FROM users ORDER BY user_id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		var disabled int
		if err := rows.Scan(&u.UserID, &u.UserULID, &u.Username, &u.PasswordHash, &u.Role, &disabled, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.IsDisabled = disabled != 0
		out = append(out, u)
	}
	return out, rows.Err()
}
