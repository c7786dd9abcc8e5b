package transfers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lifeline-backend/internal/platform/apperr"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/bloodbank-transfers", h.Create)
	r.GET("/bloodbank-transfers", h.List)
	r.GET("/bloodbank-transfers/:transfer_id", h.Get)
	r.PUT("/bloodbank-transfers/:transfer_id", h.UpdateStatus)
}

// Create godoc
// @Summary  Create a direct bank-to-bank transfer (PENDING, stock pre-checked)
// @Router   /bloodbank-transfers [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.ErrInvalid("invalid json or missing required fields")))
		return
	}

	res, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.Header("Location", "/bloodbank-transfers/"+strconv.FormatInt(res.TransferID, 10))
	c.JSON(http.StatusCreated, res)
}

// UpdateStatus godoc
// @Summary  Drive the transfer state machine (IN_TRANSIT / COMPLETED / CANCELLED)
// @Router   /bloodbank-transfers/{transfer_id} [put]
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("transfer_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.ErrInvalid("transfer_id must be numeric")))
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.ErrInvalid("invalid json")))
		return
	}

	res, err := h.svc.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("transfer_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.ErrInvalid("transfer_id must be numeric")))
		return
	}

	res, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c *gin.Context) {
	f := Filter{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
	}
	if v := c.Query("from_bank_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.FromBankID = &id
		}
	}
	if v := c.Query("to_bank_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.ToBankID = &id
		}
	}
	if v := c.Query("status"); v != "" {
		if st, ok := ParseStatus(v); ok {
			f.Status = &st
		}
	}

	res, err := h.svc.List(c.Request.Context(), f)
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
