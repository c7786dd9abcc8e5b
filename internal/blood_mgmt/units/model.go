package units

import (
	"database/sql"
	"time"
)

// Status は blood_units.status の取りうる値。
// AVAILABLE → RESERVED → {AVAILABLE(解放), USED(消費)} のみ許す。
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusReserved  Status = "RESERVED"
	StatusUsed      Status = "USED"
)

// BloodUnit は blood_units テーブルの1行（在庫1単位）を表す。
type BloodUnit struct {
	UnitID        int64
	UnitULID      string
	BloodBankID   int64
	BloodType     string
	Units         int
	CollectedDate time.Time
	ExpiryDate    time.Time
	Status        Status
	DonorID       sql.NullString
	CreatedAt     time.Time
}

var bloodTypes = map[string]struct{}{
	"A+": {}, "A-": {},
	"B+": {}, "B-": {},
	"AB+": {}, "AB-": {},
	"O+": {}, "O-": {},
}

func ValidBloodType(s string) bool {
	_, ok := bloodTypes[s]
	return ok
}

func UnitIDs(list []BloodUnit) []int64 {
	ids := make([]int64, 0, len(list))
	for _, u := range list {
		ids = append(ids, u.UnitID)
	}
	return ids
}
