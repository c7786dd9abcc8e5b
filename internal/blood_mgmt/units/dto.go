package units

import "time"

// 献血受付リクエスト
type RecordDonationRequest struct {
	BloodBankID   int64   `json:"bloodbank_id" binding:"required"`
	BloodType     string  `json:"blood_type" binding:"required"`
	Units         int     `json:"units" binding:"required"`
	CollectedDate string  `json:"collected_date" binding:"required"` // "2006-01-02"
	ExpiryDate    string  `json:"expiry_date" binding:"required"`    // "2006-01-02"
	DonorID       *string `json:"donor_id,omitempty"`
}

type UnitResponse struct {
	UnitID        int64     `json:"unit_id"`
	UnitULID      string    `json:"unit_ulid"`
	BloodBankID   int64     `json:"bloodbank_id"`
	BloodType     string    `json:"blood_type"`
	Units         int       `json:"units"`
	CollectedDate time.Time `json:"collected_date"`
	ExpiryDate    time.Time `json:"expiry_date"`
	Status        string    `json:"status"`
	DonorID       *string   `json:"donor_id,omitempty"`
}

type InventoryResponse struct {
	BloodBankID int64          `json:"bloodbank_id"`
	Inventory   []InventoryRow `json:"inventory"`
}

func buildUnitResponse(u BloodUnit) UnitResponse {
	resp := UnitResponse{
		UnitID:        u.UnitID,
		UnitULID:      u.UnitULID,
		BloodBankID:   u.BloodBankID,
		BloodType:     u.BloodType,
		Units:         u.Units,
		CollectedDate: u.CollectedDate,
		ExpiryDate:    u.ExpiryDate,
		Status:        string(u.Status),
	}
	if u.DonorID.Valid {
		val := u.DonorID.String
		resp.DonorID = &val
	}
	return resp
}
