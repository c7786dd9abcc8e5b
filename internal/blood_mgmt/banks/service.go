package banks

import (
	"context"
	"crypto/rand"
	"database/sql"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"lifeline-backend/internal/platform/apperr"
)

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

type Service struct {
	store *Store
	clock Clock
	id    IDGen
}

func NewService(conn *sql.DB) *Service {
	return &Service{store: NewStore(conn), clock: realClock{}, id: ulidGen{}}
}

// Exists satisfies the bank-directory interface the request/transfer services consume.
func (s *Service) Exists(ctx context.Context, bankID int64) (bool, error) {
	return s.store.Exists(ctx, bankID)
}

func (s *Service) Create(ctx context.Context, req CreateBankRequest) (*BankResponse, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.ErrInvalid("name is required")
	}
	if strings.TrimSpace(req.City) == "" {
		return nil, apperr.ErrInvalid("city is required")
	}

	b := &BloodBank{
		BankULID: s.id.NewULID(s.clock.Now()),
		Name:     req.Name,
		City:     req.City,
	}
	if req.Address != nil && *req.Address != "" {
		b.Address = sql.NullString{String: *req.Address, Valid: true}
	}
	if req.Phone != nil && *req.Phone != "" {
		b.Phone = sql.NullString{String: *req.Phone, Valid: true}
	}

	if err := s.store.Insert(ctx, b); err != nil {
		return nil, err
	}
	resp := buildBankResponse(b)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*BankResponse, error) {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := buildBankResponse(b)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, city string, limit, offset int) ([]BankResponse, error) {
	list, err := s.store.List(ctx, city, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]BankResponse, 0, len(list))
	for i := range list {
		out = append(out, buildBankResponse(&list[i]))
	}
	return out, nil
}

func buildBankResponse(b *BloodBank) BankResponse {
	resp := BankResponse{
		BankID:    b.BankID,
		BankULID:  b.BankULID,
		Name:      b.Name,
		City:      b.City,
		CreatedAt: b.CreatedAt,
	}
	if b.Address.Valid {
		val := b.Address.String
		resp.Address = &val
	}
	if b.Phone.Valid {
		val := b.Phone.String
		resp.Phone = &val
	}
	return resp
}
