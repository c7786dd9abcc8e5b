package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Role は登録主体の種別。文字列比較を散らさないため型で持つ。
type Role string

const (
	RoleDonor     Role = "donor"
	RoleHospital  Role = "hospital"
	RoleBloodBank Role = "bloodbank"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleDonor, RoleHospital, RoleBloodBank:
		return Role(s), true
	}
	return "", false
}

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
	ErrAuthFailed    = errors.New("authentication failed")
)

type Service struct {
	store    AccountStore
	secret   []byte
	tokenTTL time.Duration
}

func NewService(db *sql.DB, secret string, tokenTTL time.Duration) *Service {
	return &Service{
		store:    NewStore(db),
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

func (s *Service) Secret() []byte { return s.secret }

func (s *Service) Login(ctx context.Context, id, password string) (string, error) {
	acct, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if acct == nil || acct.IsDisabled {
		return "", ErrAuthFailed
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return "", ErrAuthFailed
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  acct.AccountID,
		"role": string(acct.Role),
		"exp":  time.Now().Add(s.tokenTTL).Unix(),
	})

	return token.SignedString(s.secret)
}

func (s *Service) Register(ctx context.Context, id, password, displayName string, role Role) error {
	exists, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if exists != nil {
		return ErrAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return s.store.Create(ctx, &Account{
		AccountID:    id,
		PasswordHash: string(hash),
		Role:         role,
		DisplayName:  displayName,
	})
}

func (s *Service) Disable(ctx context.Context, id string) error {
	n, err := s.store.Disable(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
