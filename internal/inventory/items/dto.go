package items

import (
	"time"

	"ieventory-backend/internal/inventory/ledger"
)

type CreateItemRequest struct {
	Name          string  `json:"name" binding:"required"`
	Description   *string `json:"description,omitempty"`
	StoreULID     string  `json:"store_ulid" binding:"required"`
	Quantity      int     `json:"quantity"`
	MinStockLevel int     `json:"min_stock_level"`
	MaxStockLevel int     `json:"max_stock_level"`
}

type UpdateItemRequest struct {
	Name          *string `json:"name,omitempty"`
	Description   *string `json:"description,omitempty"`
	MinStockLevel *int    `json:"min_stock_level,omitempty"`
	MaxStockLevel *int    `json:"max_stock_level,omitempty"`
}

type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// 入出庫調整（検品・補充など、貸出以外の在庫増減）
type AdjustStockRequest struct {
	Delta int     `json:"delta" binding:"required"`
	Note  *string `json:"note,omitempty"`
}

type ItemResponse struct {
	ItemULID      string        `json:"item_ulid"`
	Name          string        `json:"name"`
	Description   *string       `json:"description,omitempty"`
	StoreULID     string        `json:"store_ulid"`
	Quantity      int           `json:"quantity"`
	MinStockLevel int           `json:"min_stock_level"`
	MaxStockLevel int           `json:"max_stock_level"`
	Status        ledger.Status `json:"status"`
	LowStock      bool          `json:"low_stock"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type ItemListResponse struct {
	Items []ItemResponse `json:"items"`
	Total int64          `json:"total"`
}

type CreateStoreRequest struct {
	Name     string  `json:"name" binding:"required"`
	Location *string `json:"location,omitempty"`
}

type StoreResponse struct {
	StoreULID string    `json:"store_ulid"`
	Name      string    `json:"name"`
	Location  *string   `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// itemRow は一覧取得時に store_ulid を JOIN で載せたもの
type itemRow struct {
	Item
	StoreULID string
}

func buildItemResponse(r *itemRow) ItemResponse {
	resp := ItemResponse{
		ItemULID:      r.ItemULID,
		Name:          r.Name,
		StoreULID:     r.StoreULID,
		Quantity:      r.Quantity,
		MinStockLevel: r.MinStock,
		MaxStockLevel: r.MaxStock,
		Status:        r.Status,
		LowStock:      isLowStock(r.Quantity, r.MinStock),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.Description.Valid {
		v := r.Description.String
		resp.Description = &v
	}
	return resp
}

func buildStoreResponse(s *StoreLocation) StoreResponse {
	resp := StoreResponse{
		StoreULID: s.StoreULID,
		Name:      s.Name,
		CreatedAt: s.CreatedAt,
	}
	if s.Location.Valid {
		v := s.Location.String
		resp.Location = &v
	}
	return resp
}
