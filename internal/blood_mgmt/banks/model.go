package banks

import (
	"database/sql"
	"time"
)

// BloodBank は blood_banks テーブルの1行を表す。
type BloodBank struct {
	BankID    int64
	BankULID  string
	Name      string
	City      string
	Address   sql.NullString
	Phone     sql.NullString
	CreatedAt time.Time
}
