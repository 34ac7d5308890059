package items

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ieventory-backend/internal/inventory/ledger"
	"ieventory-backend/internal/platform/apperr"
	"ieventory-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	keeper := auth.RequireRole(auth.RoleKeeper, auth.RoleAdmin)

	// items
	r.POST("/items", keeper, h.Create)
	r.GET("/items", h.List)
	r.GET("/items/:item_ulid", h.Get)
	r.PUT("/items/:item_ulid", keeper, h.Update)
	r.PUT("/items/:item_ulid/status", keeper, h.SetStatus)
	r.POST("/items/:item_ulid/adjust", keeper, h.AdjustStock)
	r.POST("/items/:item_ulid/retire", keeper, h.Retire)
	r.DELETE("/items/:item_ulid", auth.RequireRole(auth.RoleAdmin), h.Delete)

	// stores
	r.POST("/stores", keeper, h.CreateStore)
	r.GET("/stores", h.ListStores)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(apperr.CodeInvalidArgument, "invalid json"))
		return
	}

	actorID, _ := auth.ActorFrom(c)
	res, err := h.svc.Create(c.Request.Context(), actorID, req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.Header("Location", "/items/"+res.ItemULID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Get(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), c.Param("item_ulid"))
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c *gin.Context) {
	f := ItemFilter{}
	if v := c.Query("store_ulid"); v != "" {
		f.StoreULID = &v
	}
	if v := c.Query("status"); v != "" {
		st := ledger.Status(v)
		f.Status = &st
	}
	if v := c.Query("name"); v != "" {
		f.Name = &v
	}
	if v := c.Query("low_stock"); v == "true" || v == "1" {
		f.LowStock = true
	}
	p := Page{
		Limit:  atoiDef(c.Query("limit"), 50),
		Offset: atoiDef(c.Query("offset"), 0),
		Order:  strings.ToLower(c.DefaultQuery("order", "desc")),
	}

	res, err := h.svc.List(c.Request.Context(), f, p)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Update(c *gin.Context) {
	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(apperr.CodeInvalidArgument, "invalid json"))
		return
	}

	actorID, _ := auth.ActorFrom(c)
	res, err := h.svc.Update(c.Request.Context(), actorID, c.Param("item_ulid"), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) SetStatus(c *gin.Context) {
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(apperr.CodeInvalidArgument, "status is required"))
		return
	}

	actorID, _ := auth.ActorFrom(c)
	res, err := h.svc.SetStatus(c.Request.Context(), actorID, c.Param("item_ulid"), req.Status)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) AdjustStock(c *gin.Context) {
	var req AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(apperr.CodeInvalidArgument, "delta is required"))
		return
	}

	actorID, _ := auth.ActorFrom(c)
	res, err := h.svc.AdjustStock(c.Request.Context(), actorID, c.Param("item_ulid"), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Retire(c *gin.Context) {
	actorID, _ := auth.ActorFrom(c)
	res, err := h.svc.Retire(c.Request.Context(), actorID, c.Param("item_ulid"))
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Delete(c *gin.Context) {
	actorID, _ := auth.ActorFrom(c)
	if err := h.svc.Delete(c.Request.Context(), actorID, c.Param("item_ulid")); err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (h *Handler) CreateStore(c *gin.Context) {
	var req CreateStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(apperr.CodeInvalidArgument, "invalid json"))
		return
	}

	actorID, _ := auth.ActorFrom(c)
	res, err := h.svc.CreateStore(c.Request.Context(), actorID, req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.Header("Location", "/stores/"+res.StoreULID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListStores(c *gin.Context) {
	res, err := h.svc.ListStores(c.Request.Context())
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------- helpers ----------

func atoiDef(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

type errorDTO struct {
	Error struct {
		Code    apperr.Code `json:"code"`
		Message string      `json:"message"`
	} `json:"error"`
}

func apiErr(code apperr.Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func apiErrFrom(err error) errorDTO {
	if api, ok := err.(*apperr.APIError); ok {
		return apiErr(api.Code, api.Message)
	}
	return apiErr(apperr.CodeInternal, err.Error())
}
