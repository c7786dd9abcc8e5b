package hospital

import "time"

// 病院からのリクエスト作成。bloodbank_ids が複数ならブロードキャスト。
type CreateHospitalRequest struct {
	HospitalID     string  `json:"hospital_id" binding:"required"`
	BloodBankIDs   []int64 `json:"bloodbank_ids" binding:"required"`
	BloodType      string  `json:"blood_type" binding:"required"`
	UnitsRequested int     `json:"units_requested" binding:"required"`
	Message        *string `json:"message,omitempty"`
}

type HospitalRequestResponse struct {
	RequestID      int64      `json:"request_id"`
	RequestULID    string     `json:"request_ulid"`
	HospitalID     string     `json:"hospital_id"`
	BloodBankID    int64      `json:"bloodbank_id"`
	BloodType      string     `json:"blood_type"`
	UnitsRequested int        `json:"units_requested"`
	Message        *string    `json:"message,omitempty"`
	Status         string     `json:"status"`
	BroadcastGroup *string    `json:"broadcast_group_ulid,omitempty"`
	ConsumedUnits  []int64    `json:"consumed_unit_ids,omitempty"`
	RequestDate    time.Time  `json:"request_date"`
	FulfilledDate  *time.Time `json:"fulfilled_date,omitempty"`
}

type FulfillResponse struct {
	Request           HospitalRequestResponse `json:"request"`
	ConsumedUnitIDs   []int64                 `json:"consumed_unit_ids"`
	CancelledSiblings int64                   `json:"cancelled_siblings"`
}

func buildHospitalRequestResponse(r *HospitalBloodRequest, consumedUnitIDs []int64) HospitalRequestResponse {
	resp := HospitalRequestResponse{
		RequestID:      r.RequestID,
		RequestULID:    r.RequestULID,
		HospitalID:     r.HospitalID,
		BloodBankID:    r.BloodBankID,
		BloodType:      r.BloodType,
		UnitsRequested: r.UnitsRequested,
		Status:         string(r.Status),
		ConsumedUnits:  consumedUnitIDs,
		RequestDate:    r.RequestDate,
	}
	if r.Message.Valid {
		val := r.Message.String
		resp.Message = &val
	}
	if r.BroadcastGroupULID.Valid {
		val := r.BroadcastGroupULID.String
		resp.BroadcastGroup = &val
	}
	if r.FulfilledDate.Valid {
		val := r.FulfilledDate.Time
		resp.FulfilledDate = &val
	}
	return resp
}
