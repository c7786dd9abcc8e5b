package hospital

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lifeline-backend/internal/platform/apperr"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/blood-requests/hospital", h.Create)
	r.GET("/blood-requests/hospital", h.List)
	r.GET("/blood-requests/hospital/:request_id", h.Get)
	r.POST("/blood-requests/fulfill/:request_id", h.Fulfill)
}

// Create godoc
// @Summary  Create a hospital blood request, optionally broadcast to several banks
// @Router   /blood-requests/hospital [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateHospitalRequest
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
// @Summary  Consume stock for a hospital request and cancel broadcast siblings
// @Router   /blood-requests/fulfill/{request_id} [post]
func (h *Handler) Fulfill(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("request_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.ErrInvalid("request_id must be numeric")))
		return
	}

	res, err := h.svc.Fulfill(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Body(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("request_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.ErrInvalid("request_id must be numeric")))
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
	if v := c.Query("hospital_id"); v != "" {
		f.HospitalID = &v
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
