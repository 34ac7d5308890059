package audit

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Entry は audit_logs テーブルの1行。追記のみで更新・削除はしない
// （保持期限切れの一括削除だけが例外）。
type Entry struct {
	AuditID     int64
	UserID      sql.NullInt64 // NULL はシステム操作（自動却下など）
	TargetTable string
	TargetID    int64
	ActionType  string
	OldValue    sql.NullString // JSONスナップショット
	NewValue    sql.NullString
	CreatedAt   time.Time
}

// 操作種別
const (
	ActionCreate        = "create"
	ActionUpdate        = "update"
	ActionDelete        = "delete"
	ActionStatusChange  = "status_change"
	ActionBorrowRequest = "borrow_request"
	ActionApprove       = "approve"
	ActionReject        = "reject"
	ActionReturn        = "return"
	ActionTransfer      = "transfer"
	ActionRetire        = "retire"
	ActionStockReserve  = "stock_reserve"
	ActionStockRelease  = "stock_release"
)

// 検索条件
type Filter struct {
	TargetTable *string
	TargetID    *int64
	UserID      *int64
	ActionType  *string
	From        *time.Time
	To          *time.Time
}

type Page struct {
	Limit  int
	Offset int
	Order  string
}

// Snapshot は任意の値をJSON化して old_value/new_value 用に詰める。
// nil を渡すと NULL になる。
func Snapshot(v any) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func NullUserID(id int64) sql.NullInt64 {
	if id <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}
