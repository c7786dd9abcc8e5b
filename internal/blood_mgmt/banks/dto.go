package banks

import "time"

type CreateBankRequest struct {
	Name    string  `json:"name" binding:"required"`
	City    string  `json:"city" binding:"required"`
	Address *string `json:"address,omitempty"`
	Phone   *string `json:"phone,omitempty"`
}

type BankResponse struct {
	BankID    int64     `json:"bank_id"`
	BankULID  string    `json:"bank_ulid"`
	Name      string    `json:"name"`
	City      string    `json:"city"`
	Address   *string   `json:"address,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
