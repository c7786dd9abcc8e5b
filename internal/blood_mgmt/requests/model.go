package requests

import (
	"database/sql"
	"time"
)

// Status は銀行間リクエストの状態。
//
//	PENDING --approve--> APPROVED --fulfill--> FULFILLED
//	PENDING --reject-->  REJECTED
//	APPROVED --reject--> REJECTED （予約解放）
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusFulfilled Status = "FULFILLED"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusApproved, StatusRejected, StatusFulfilled:
		return Status(s), true
	}
	return "", false
}

// BloodBankRequest は blood_bank_requests テーブルの1行を表す。
// FromBankID が要求側、ToBankID が供給側。予約済みユニットは
// blood_request_units（1保持ユニット = 1行）に持つ。
type BloodBankRequest struct {
	RequestID      int64
	RequestULID    string
	FromBankID     int64
	ToBankID       int64
	BloodType      string
	UnitsRequested int
	Message        sql.NullString
	Status         Status
	RequestDate    time.Time
	FulfilledDate  sql.NullTime
}
