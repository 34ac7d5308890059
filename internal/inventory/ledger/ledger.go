package ledger

import (
	"fmt"

	"ieventory-backend/internal/platform/apperr"
)

// Status は items.status の値。
// 数量とステータスは必ず同じロック内で一緒に更新する。
type Status string

const (
	StatusAvailable   Status = "available"
	StatusReserved    Status = "reserved"
	StatusMaintenance Status = "maintenance"
	StatusDamaged     Status = "damaged"
	StatusRetired     Status = "retired"
)

func ValidStatus(s Status) bool {
	switch s {
	case StatusAvailable, StatusReserved, StatusMaintenance, StatusDamaged, StatusRetired:
		return true
	}
	return false
}

// Mutation は1回の在庫増減の前後値。監査ログに載せる。
type Mutation struct {
	ItemID      int64  `json:"item_id"`
	ItemULID    string `json:"item_ulid"`
	OldQuantity int    `json:"old_quantity"`
	NewQuantity int    `json:"new_quantity"`
	OldStatus   Status `json:"old_status"`
	NewStatus   Status `json:"new_status"`
}

// Reserve は在庫から n 個引き当てた後の数量とステータスを返す。
// 在庫以上は引けない。残り0になったら reserved に落とす。
func Reserve(quantity int, status Status, n int) (int, Status, error) {
	if n <= 0 {
		return 0, "", apperr.ErrInvalid("quantity must be > 0")
	}
	if n > quantity {
		return 0, "", apperr.ErrInsufficientStock("insufficient stock")
	}

	newQty := quantity - n
	newStatus := status
	if newQty == 0 && status == StatusAvailable {
		newStatus = StatusReserved
	}
	return newQty, newStatus, nil
}

// canMergeInto: 既存行への在庫合流は通常状態（available / 在庫0由来の
// reserved）に限る。maintenance/damaged/retired の行を黙って available に
// 戻してしまわないためのガード。
func canMergeInto(s Status) error {
	switch s {
	case StatusAvailable, StatusReserved:
		return nil
	}
	return apperr.ErrItemUnavailable(fmt.Sprintf("destination item is %s", s))
}

// Release は n 個を在庫に戻した後の数量とステータスを返す。
// 返却パスは常に available へ戻す（返却中に独立して damaged 等に
// 変更されていないことを前提にした簡略化）。
func Release(quantity int, n int) (int, Status, error) {
	if n <= 0 {
		return 0, "", apperr.ErrInvalid("quantity must be > 0")
	}
	return quantity + n, StatusAvailable, nil
}
