package transactions

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ieventory-backend/internal/platform/apperr"
	"ieventory-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// 起票
	r.POST("/transactions/borrow", h.CreateBorrow)
	r.POST("/transactions/transfer",
		auth.RequireRole(auth.RoleDelivery, auth.RoleKeeper, auth.RoleAdmin), h.CreateTransfer)

	// 承認ゲート（keeper/admin）
	r.POST("/transactions/:transaction_ulid/approve",
		auth.RequireRole(auth.RoleKeeper, auth.RoleAdmin), h.Approve)
	r.POST("/transactions/:transaction_ulid/reject",
		auth.RequireRole(auth.RoleKeeper, auth.RoleAdmin), h.Reject)

	// 返却（借りた本人 or keeper/admin、本人判定はサービス側）
	r.POST("/transactions/:transaction_ulid/return", h.Return)

	// 参照
	r.GET("/transactions", h.List)
	r.GET("/transactions/:transaction_ulid", h.Get)
}

func actorFrom(c *gin.Context) Actor {
	id, role := auth.ActorFrom(c)
	return Actor{UserID: id, Role: role}
}

func (h *Handler) CreateBorrow(c *gin.Context) {
	var req CreateBorrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(apperr.CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	res, err := h.svc.CreateBorrow(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), errorFromErr(err))
		return
	}

	c.Header("Location", "/transactions/"+res.TransactionULID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) CreateTransfer(c *gin.Context) {
	var req CreateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(apperr.CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	res, err := h.svc.CreateTransfer(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), errorFromErr(err))
		return
	}

	c.Header("Location", "/transactions/"+res.TransactionULID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Approve(c *gin.Context) {
	res, err := h.svc.Approve(c.Request.Context(), actorFrom(c), c.Param("transaction_ulid"))
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Reject(c *gin.Context) {
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(apperr.CodeInvalidArgument, "reason is required"))
		return
	}

	res, err := h.svc.Reject(c.Request.Context(), actorFrom(c), c.Param("transaction_ulid"), req.Reason)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Return(c *gin.Context) {
	var req ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(apperr.CodeInvalidArgument, "condition is required"))
		return
	}

	res, err := h.svc.Return(c.Request.Context(), actorFrom(c), c.Param("transaction_ulid"), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Get(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), actorFrom(c), c.Param("transaction_ulid"))
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c *gin.Context) {
	f := Filter{}
	if v := c.Query("status"); v != "" {
		st := Status(v)
		f.Status = &st
	}
	if v := c.Query("type"); v != "" {
		t := Type(v)
		f.Type = &t
	}
	if v := c.Query("user_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.UserID = &id
		}
	}
	if v := c.Query("item_ulid"); v != "" {
		f.ItemULID = &v
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.From = &t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.To = &t
		}
	}
	if v := c.Query("overdue"); v == "true" || v == "1" {
		f.Overdue = true
	}
	p := Page{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "desc"),
	}

	res, err := h.svc.List(c.Request.Context(), actorFrom(c), f, p)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------- helpers ----------

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

type errorDTO struct {
	Error struct {
		Code    apperr.Code `json:"code"`
		Message string      `json:"message"`
	} `json:"error"`
}

func errorBody(code apperr.Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func errorFromErr(err error) errorDTO {
	var msg string
	code := apperr.CodeOf(err)
	if api, ok := err.(*apperr.APIError); ok {
		msg = api.Message
	} else {
		msg = err.Error()
	}
	return errorBody(code, msg)
}
