package urgent

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lifeline-backend/internal/platform/apperr"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/urgent-needs", h.Create)
	r.GET("/urgent-needs", h.List)
	r.POST("/urgent-needs/:need_id/fulfill", h.Fulfill)
	r.POST("/urgent-needs/:need_id/close", h.Close)
}

// Create godoc
// @Summary  Post an urgent need for a blood type at a bank
// @Router   /urgent-needs [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateNeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.ErrInvalid("invalid json or missing required fields")))
		return
	}

	res, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Fulfill godoc
// @Summary  Fulfill an urgent need with a direct donation
// @Router   /urgent-needs/{need_id}/fulfill [post]
func (h *Handler) Fulfill(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("need_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.ErrInvalid("need_id must be numeric")))
		return
	}

	var req FulfillNeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.ErrInvalid("invalid json or missing required fields")))
		return
	}

	res, err := h.svc.Fulfill(c.Request.Context(), id, req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Close(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("need_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.ErrInvalid("need_id must be numeric")))
		return
	}

	res, err := h.svc.Close(c.Request.Context(), id)
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
	if v := c.Query("bank_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.BloodBankID = &id
		}
	}
	if v := c.Query("status"); v != "" {
		st := Status(v)
		f.Status = &st
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
