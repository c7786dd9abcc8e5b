package transfers

import "time"

// 直接移送作成
type CreateTransferRequest struct {
	FromBankID       int64  `json:"from_bloodbank_id" binding:"required"`
	ToBankID         int64  `json:"to_bloodbank_id" binding:"required"`
	BloodType        string `json:"blood_type" binding:"required"`
	UnitsTransferred int    `json:"units_transferred" binding:"required"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type TransferResponse struct {
	TransferID       int64      `json:"transfer_id"`
	TransferULID     string     `json:"transfer_ulid"`
	FromBankID       int64      `json:"from_bloodbank_id"`
	ToBankID         int64      `json:"to_bloodbank_id"`
	BloodType        string     `json:"blood_type"`
	UnitsTransferred int        `json:"units_transferred"`
	Status           string     `json:"status"`
	TransferDate     time.Time  `json:"transfer_date"`
	CompletedDate    *time.Time `json:"completed_date,omitempty"`
}

func buildTransferResponse(t *BloodBankTransfer) TransferResponse {
	resp := TransferResponse{
		TransferID:       t.TransferID,
		TransferULID:     t.TransferULID,
		FromBankID:       t.FromBankID,
		ToBankID:         t.ToBankID,
		BloodType:        t.BloodType,
		UnitsTransferred: t.UnitsTransferred,
		Status:           string(t.Status),
		TransferDate:     t.TransferDate,
	}
	if t.CompletedDate.Valid {
		val := t.CompletedDate.Time
		resp.CompletedDate = &val
	}
	return resp
}
