package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ieventory-backend/internal/platform/apperr"
	"ieventory-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

// 監査ログ閲覧は keeper/admin のみ。
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/audit-logs", auth.RequireRole(auth.RoleAdmin, auth.RoleKeeper), h.List)
	r.GET("/audit-logs/:audit_id", auth.RequireRole(auth.RoleAdmin, auth.RoleKeeper), h.Get)
}

type EntryResponse struct {
	AuditID     int64     `json:"audit_id"`
	UserID      *int64    `json:"user_id,omitempty"`
	TargetTable string    `json:"target_table"`
	TargetID    int64     `json:"target_id"`
	ActionType  string    `json:"action_type"`
	OldValue    *string   `json:"old_value,omitempty"`
	NewValue    *string   `json:"new_value,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toEntryResponse(e *Entry) EntryResponse {
	resp := EntryResponse{
		AuditID:     e.AuditID,
		TargetTable: e.TargetTable,
		TargetID:    e.TargetID,
		ActionType:  e.ActionType,
		CreatedAt:   e.CreatedAt,
	}
	if e.UserID.Valid {
		v := e.UserID.Int64
		resp.UserID = &v
	}
	if e.OldValue.Valid {
		v := e.OldValue.String
		resp.OldValue = &v
	}
	if e.NewValue.Valid {
		v := e.NewValue.String
		resp.NewValue = &v
	}
	return resp
}

type listResponse struct {
	Items []EntryResponse `json:"items"`
	Total int64           `json:"total"`
}

func (h *Handler) List(c *gin.Context) {
	f := Filter{}
	if v := c.Query("target_table"); v != "" {
		f.TargetTable = &v
	}
	if v := c.Query("target_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.TargetID = &id
		}
	}
	if v := c.Query("user_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.UserID = &id
		}
	}
	if v := c.Query("action_type"); v != "" {
		f.ActionType = &v
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
	p := Page{
		Limit:  atoiDef(c.Query("limit"), 50),
		Offset: atoiDef(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "desc"),
	}

	entries, total, err := h.svc.List(c.Request.Context(), f, p)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	items := make([]EntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, toEntryResponse(&entries[i]))
	}
	c.JSON(http.StatusOK, listResponse{Items: items, Total: total})
}

func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("audit_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid audit_id"})
		return
	}

	e, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toEntryResponse(e))
}

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
