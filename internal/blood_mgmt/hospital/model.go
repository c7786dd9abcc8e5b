package hospital

import (
	"database/sql"
	"time"
)

// Status は病院リクエストの状態。ブロードキャスト配下では
// 1件のFULFILLEDが残りのPENDINGをCANCELLEDへ落とす。
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusFulfilled Status = "FULFILLED"
	StatusCancelled Status = "CANCELLED"
)

// HospitalBloodRequest は hospital_blood_requests テーブルの1行を表す。
// 同じ必要性を複数の銀行へ同報した場合、各行が broadcast_group_ulid を共有する。
type HospitalBloodRequest struct {
	RequestID          int64
	RequestULID        string
	HospitalID         string
	BloodBankID        int64
	BloodType          string
	UnitsRequested     int
	Message            sql.NullString
	Status             Status
	BroadcastGroupULID sql.NullString
	RequestDate        time.Time
	FulfilledDate      sql.NullTime
}
