package transactions

import (
	"database/sql"
	"fmt"
	"time"

	"ieventory-backend/internal/inventory/ledger"
	"ieventory-backend/internal/platform/apperr"
	"ieventory-backend/internal/platform/auth"
)

type Type string

const (
	TypeBorrow   Type = "borrow"
	TypeTransfer Type = "transfer"
	// 返却は borrow トランザクション側の returned_* カラムで完結する。
	// 旧データ取り込み用に値としては残している。
	TypeReturn Type = "return"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// Terminal: rejected / completed からは遷移しない
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusRejected
	case StatusApproved:
		return next == StatusCompleted
	}
	return false
}

// Transaction は transactions テーブルの1行
type Transaction struct {
	TransactionID   int64
	TransactionULID string
	Type            Type
	Status          Status
	ItemID          int64
	ItemULID        string // items との JOIN で埋める
	UserID          int64
	Quantity        int
	DueDate         sql.NullTime
	Reason          sql.NullString
	FromStoreID     sql.NullInt64
	ToStoreID       sql.NullInt64
	ApprovedBy      sql.NullInt64
	ApprovedAt      sql.NullTime
	RejectionReason sql.NullString
	ReturnCondition sql.NullString
	ReturnNotes     sql.NullString
	ReturnedAt      sql.NullTime
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ItemRef は取引側から見た在庫行のスナップショット
type ItemRef struct {
	ItemID   int64
	ItemULID string
	Name     string
	StoreID  int64
	Quantity int
	Status   ledger.Status
}

// Actor は認証済みの操作者
type Actor struct {
	UserID int64
	Role   string
}

// 返却時の状態
const (
	ConditionGood    = "good"
	ConditionDamaged = "damaged"
	ConditionLost    = "lost"
)

func validCondition(c string) bool {
	switch c {
	case ConditionGood, ConditionDamaged, ConditionLost:
		return true
	}
	return false
}

// returnRestocks: 紛失はもう存在しないので棚在庫に戻さない。
// 破損は現物が返ってくるので戻す（状態変更は items 側で別途行う）。
func returnRestocks(condition string) bool {
	return condition != ConditionLost
}

// ===== 遷移ルール =====
// SQLストアはロック下で、テスト用のインメモリストアも同じ関数で判定する。

// checkBorrowable: 借り出しリクエストの前提条件（在庫はまだ引かない）
func checkBorrowable(item *ItemRef, quantity int) error {
	if item.Status != ledger.StatusAvailable {
		return apperr.ErrItemUnavailable(fmt.Sprintf("item is %s", item.Status))
	}
	if quantity > item.Quantity {
		return apperr.ErrInsufficientStock("requested quantity exceeds stock")
	}
	return nil
}

// checkApprovable: pending のみ承認・却下できる
func checkApprovable(t *Transaction) error {
	if t.Status != StatusPending {
		return apperr.ErrInvalidState(fmt.Sprintf("transaction is %s, not pending", t.Status))
	}
	return nil
}

// checkReturnable: approved の borrow だけが返却できる
func checkReturnable(t *Transaction) error {
	if t.Type != TypeBorrow {
		return apperr.ErrInvalidState("only borrow transactions can be returned")
	}
	if t.Status != StatusApproved {
		return apperr.ErrInvalidState(fmt.Sprintf("transaction is %s, not approved", t.Status))
	}
	return nil
}

// checkReturnActor: 返却は借りた本人か keeper/admin
func checkReturnActor(t *Transaction, actor Actor) error {
	if t.UserID == actor.UserID {
		return nil
	}
	if actor.Role == auth.RoleKeeper || actor.Role == auth.RoleAdmin {
		return nil
	}
	return apperr.ErrUnauthorized("not the borrower")
}

func canApprove(role string) bool {
	return role == auth.RoleKeeper || role == auth.RoleAdmin
}

func canRequestTransfer(role string) bool {
	return role == auth.RoleDelivery || role == auth.RoleKeeper || role == auth.RoleAdmin
}

// 検索条件
type Filter struct {
	Status   *Status
	Type     *Type
	UserID   *int64
	ItemULID *string
	From     *time.Time
	To       *time.Time
	Overdue  bool // 期日超過の未返却のみ（読み取り専用レポート）
}

type Page struct {
	Limit  int
	Offset int
	Order  string
}
