package urgent

import "time"

type CreateNeedRequest struct {
	BloodBankID int64   `json:"bloodbank_id" binding:"required"`
	BloodType   string  `json:"blood_type" binding:"required"`
	UnitsNeeded int     `json:"units_needed" binding:"required"`
	Message     *string `json:"message,omitempty"`
}

// 直接献血による履行。units 省略時は1単位。
type FulfillNeedRequest struct {
	DonorID    string `json:"donor_id" binding:"required"`
	Units      int    `json:"units,omitempty"`
	ExpiryDate string `json:"expiry_date" binding:"required"` // "2006-01-02"
}

type NeedResponse struct {
	NeedID      int64      `json:"need_id"`
	NeedULID    string     `json:"need_ulid"`
	BloodBankID int64      `json:"bloodbank_id"`
	BloodType   string     `json:"blood_type"`
	UnitsNeeded int        `json:"units_needed"`
	Message     *string    `json:"message,omitempty"`
	Status      string     `json:"status"`
	PostedAt    time.Time  `json:"posted_at"`
	FulfilledAt *time.Time `json:"fulfilled_at,omitempty"`
	DonorID     *string    `json:"donor_id,omitempty"`
}

type FulfillNeedResponse struct {
	Need           NeedResponse `json:"need"`
	CreatedUnitIDs []int64      `json:"created_unit_ids"`
}

func buildNeedResponse(n *UrgentNeed) NeedResponse {
	resp := NeedResponse{
		NeedID:      n.NeedID,
		NeedULID:    n.NeedULID,
		BloodBankID: n.BloodBankID,
		BloodType:   n.BloodType,
		UnitsNeeded: n.UnitsNeeded,
		Status:      string(n.Status),
		PostedAt:    n.PostedAt,
	}
	if n.Message.Valid {
		val := n.Message.String
		resp.Message = &val
	}
	if n.FulfilledAt.Valid {
		val := n.FulfilledAt.Time
		resp.FulfilledAt = &val
	}
	if n.DonorID.Valid {
		val := n.DonorID.String
		resp.DonorID = &val
	}
	return resp
}
