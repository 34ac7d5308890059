package items

import (
	"database/sql"
	"time"

	"ieventory-backend/internal/inventory/ledger"
)

// Item は items テーブルの1行を表す
type Item struct {
	ItemID      int64
	ItemULID    string
	Name        string
	Description sql.NullString
	StoreID     int64
	Quantity    int
	MinStock    int
	MaxStock    int
	Status      ledger.Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StoreLocation は stores テーブルの1行（店舗・保管場所）
type StoreLocation struct {
	StoreID   int64
	StoreULID string
	Name      string
	Location  sql.NullString
	CreatedAt time.Time
}

// アイテム一覧の検索条件
type ItemFilter struct {
	StoreULID *string
	Status    *ledger.Status
	Name      *string // 部分一致
	LowStock  bool    // quantity < min_stock_level のみ
}

type Page struct {
	Limit  int
	Offset int
	Order  string
}
