package transfers

import (
	"database/sql"
	"time"
)

// Status は直接移送の状態。COMPLETED / CANCELLED は終端で、以降の変更は拒否する。
//
//	PENDING --> IN_TRANSIT （供給側で予約）
//	IN_TRANSIT --> COMPLETED （予約ユニットを宛先へ移送）
//	IN_TRANSIT --> CANCELLED （予約解放）
//	PENDING --> CANCELLED （予約なし、純粋なステータス更新）
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusInTransit Status = "IN_TRANSIT"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusInTransit, StatusCompleted, StatusCancelled:
		return Status(s), true
	}
	return "", false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// BloodBankTransfer は blood_bank_transfers テーブルの1行を表す。
// 移送中に予約したユニットは blood_transfer_units に持つ。
type BloodBankTransfer struct {
	TransferID       int64
	TransferULID     string
	FromBankID       int64
	ToBankID         int64
	BloodType        string
	UnitsTransferred int
	Status           Status
	TransferDate     time.Time
	CompletedDate    sql.NullTime
}
