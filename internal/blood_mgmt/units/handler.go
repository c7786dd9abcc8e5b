package units

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lifeline-backend/internal/platform/apperr"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// 献血の受付（在庫1単位 = 1行で登録）
	r.POST("/donations", h.RecordDonation)

	// 在庫表示
	r.GET("/blood-inventory/:bank_id", h.Inventory)
	r.GET("/blood-units", h.ListUnits)
}

// RecordDonation godoc
// @Summary  Record a donation: creates AVAILABLE blood unit rows
// @Router   /donations [post]
func (h *Handler) RecordDonation(c *gin.Context) {
	var req RecordDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.ErrInvalid("invalid json or missing required fields")))
		return
	}

	res, err := h.svc.RecordDonation(c.Request.Context(), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Inventory godoc
// @Summary  Available units per blood type at one bank
// @Router   /blood-inventory/{bank_id} [get]
func (h *Handler) Inventory(c *gin.Context) {
	bankID, err := strconv.ParseInt(c.Param("bank_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.ErrInvalid("bank_id must be numeric")))
		return
	}

	res, err := h.svc.Inventory(c.Request.Context(), bankID)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListUnits(c *gin.Context) {
	f := UnitFilter{
		Limit:  parseIntDefault(c.Query("limit"), 100),
		Offset: parseIntDefault(c.Query("offset"), 0),
	}
	if v := c.Query("bank_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.BloodBankID = &id
		}
	}
	if v := c.Query("blood_type"); v != "" {
		f.BloodType = &v
	}
	if v := c.Query("status"); v != "" {
		st := Status(v)
		f.Status = &st
	}

	res, err := h.svc.ListUnits(c.Request.Context(), f)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
