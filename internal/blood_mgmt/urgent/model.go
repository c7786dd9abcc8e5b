package urgent

import (
	"database/sql"
	"time"
)

// Status は緊急募集の状態。OPEN → {FULFILLED, CLOSED}。
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusFulfilled Status = "FULFILLED"
	StatusClosed    Status = "CLOSED"
)

// UrgentNeed は urgent_needs テーブルの1行を表す。銀行が掲示し、
// ドナーの直接献血で履行される。履行は台帳への新規行追加であり、
// 予約エンジンは通らない。
type UrgentNeed struct {
	NeedID      int64
	NeedULID    string
	BloodBankID int64
	BloodType   string
	UnitsNeeded int
	Message     sql.NullString
	Status      Status
	PostedAt    time.Time
	FulfilledAt sql.NullTime
	DonorID     sql.NullString
}
