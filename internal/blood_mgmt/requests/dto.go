package requests

import "time"

// 銀行間リクエスト作成
type CreateRequest struct {
	FromBankID     int64   `json:"from_bloodbank_id" binding:"required"`
	ToBankID       int64   `json:"to_bloodbank_id" binding:"required"`
	BloodType      string  `json:"blood_type" binding:"required"`
	UnitsRequested int     `json:"units_requested" binding:"required"`
	Message        *string `json:"message,omitempty"`
}

// ステータス更新
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type RequestResponse struct {
	RequestID      int64      `json:"request_id"`
	RequestULID    string     `json:"request_ulid"`
	FromBankID     int64      `json:"from_bloodbank_id"`
	ToBankID       int64      `json:"to_bloodbank_id"`
	BloodType      string     `json:"blood_type"`
	UnitsRequested int        `json:"units_requested"`
	Message        *string    `json:"message,omitempty"`
	Status         string     `json:"status"`
	ReservedUnits  []int64    `json:"reserved_unit_ids,omitempty"`
	RequestDate    time.Time  `json:"request_date"`
	FulfilledDate  *time.Time `json:"fulfilled_date,omitempty"`
}

func buildRequestResponse(r *BloodBankRequest, reservedUnitIDs []int64) RequestResponse {
	resp := RequestResponse{
		RequestID:      r.RequestID,
		RequestULID:    r.RequestULID,
		FromBankID:     r.FromBankID,
		ToBankID:       r.ToBankID,
		BloodType:      r.BloodType,
		UnitsRequested: r.UnitsRequested,
		Status:         string(r.Status),
		ReservedUnits:  reservedUnitIDs,
		RequestDate:    r.RequestDate,
	}
	if r.Message.Valid {
		val := r.Message.String
		resp.Message = &val
	}
	if r.FulfilledDate.Valid {
		val := r.FulfilledDate.Time
		resp.FulfilledDate = &val
	}
	return resp
}
