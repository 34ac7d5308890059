package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	ulid "github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
)

// ロールは4種類。approve/reject は keeper/admin、transfer 起票は delivery 以上。
const (
	RoleAdmin    = "admin"
	RoleKeeper   = "keeper"
	RoleDelivery = "delivery"
	RoleEmployee = "employee"
)

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
	ErrAuthFailed    = errors.New("authentication failed")
)

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleKeeper, RoleDelivery, RoleEmployee:
		return true
	}
	return false
}

type Service struct {
	store  UserStore
	secret []byte
}

func NewService(db *sql.DB, secret []byte) *Service {
	return &Service{store: NewStore(db), secret: secret}
}

type AuthService interface {
	Login(ctx context.Context, username, password string) (string, error)
	Register(ctx context.Context, username, password, role string) (*User, error)
	SetDisabled(ctx context.Context, userID int64, disabled bool) error
	List(ctx context.Context) ([]User, error)
}

func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	u, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if u == nil || u.IsDisabled {
		return "", ErrAuthFailed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", ErrAuthFailed
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  u.UserULID,
		"uid":  u.UserID,
		"role": u.Role,
		"exp":  time.Now().Add(24 * time.Hour).Unix(),
	})
	return token.SignedString(s.secret)
}

func (s *Service) Register(ctx context.Context, username, password, role string) (*User, error) {
	exists, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists != nil {
		return nil, ErrAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &User{
		UserULID:     newULID(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) SetDisabled(ctx context.Context, userID int64, disabled bool) error {
	n, err := s.store.SetDisabled(ctx, userID, disabled)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.store.List(ctx)
}

func newULID() string {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
