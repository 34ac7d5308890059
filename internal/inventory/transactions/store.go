package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ieventory-backend/internal/audit"
	"ieventory-backend/internal/inventory/ledger"
	"ieventory-backend/internal/platform/apperr"
	"ieventory-backend/internal/platform/db"
)

type SQLStore struct {
	db *sql.DB
	id IDGen
}

func NewSQLStore(database *sql.DB, id IDGen) *SQLStore {
	return &SQLStore{db: database, id: id}
}

// 監査ログに載せる遷移スナップショット
type txnSnapshot struct {
	Status       Status        `json:"status"`
	ItemQuantity *int          `json:"item_quantity,omitempty"`
	ItemStatus   ledger.Status `json:"item_status,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Condition    string        `json:"condition,omitempty"`
	Transfer     any           `json:"transfer,omitempty"`
}

func snapWithItem(status Status, qty int, is ledger.Status) txnSnapshot {
	return txnSnapshot{Status: status, ItemQuantity: &qty, ItemStatus: is}
}

const txnCols = `t.transaction_id, t.transaction_ulid, t.type, t.status, t.item_id, COALESCE(i.item_ulid, ''),
	t.user_id, t.quantity, t.due_date, t.reason, t.from_store_id, t.to_store_id,
	t.approved_by, t.approved_at, t.rejection_reason, t.return_condition, t.return_notes, t.returned_at,
	t.created_at, t.updated_at`

func scanTxn(sc interface{ Scan(...any) error }) (*Transaction, error) {
	var t Transaction
	err := sc.Scan(
		&t.TransactionID, &t.TransactionULID, &t.Type, &t.Status, &t.ItemID, &t.ItemULID,
		&t.UserID, &t.Quantity, &t.DueDate, &t.Reason, &t.FromStoreID, &t.ToStoreID,
		&t.ApprovedBy, &t.ApprovedAt, &t.RejectionReason, &t.ReturnCondition, &t.ReturnNotes, &t.ReturnedAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ---- 参照系 ----

func (s *SQLStore) ResolveItem(ctx context.Context, itemULID string) (*ItemRef, error) {
	const q = `SELECT item_id, item_ulid, name, store_id, quantity, status FROM items WHERE item_ulid = ?`
	var r ItemRef
	err := s.db.QueryRowContext(ctx, q, itemULID).Scan(&r.ItemID, &r.ItemULID, &r.Name, &r.StoreID, &r.Quantity, &r.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound("item not found")
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLStore) ResolveStore(ctx context.Context, storeULID string) (int64, error) {
	const q = `SELECT store_id FROM stores WHERE store_ulid = ?`
	var id int64
	err := s.db.QueryRowContext(ctx, q, storeULID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.ErrNotFound("store not found")
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQLStore) GetByULID(ctx context.Context, txnULID string) (*Transaction, error) {
	// item_id は外部キーではないので、削除済みアイテムの履歴も LEFT JOIN で拾う
	q := `SELECT ` + txnCols + ` FROM transactions t LEFT JOIN items i ON i.item_id = t.item_id WHERE t.transaction_ulid = ?`
	t, err := scanTxn(s.db.QueryRowContext(ctx, q, txnULID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound("transaction not found")
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *SQLStore) List(ctx context.Context, f Filter, p Page) ([]Transaction, int64, error) {
	where, args := buildTxnWhere(f)

	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	q := fmt.Sprintf(`SELECT %s FROM transactions t LEFT JOIN items i ON i.item_id = t.item_id %s ORDER BY t.created_at %s LIMIT ? OFFSET ?`,
		txnCols, where, order)
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	cntWhere, cntArgs := buildTxnWhere(f)
	var total int64
	cntQ := `SELECT COUNT(*) FROM transactions t LEFT JOIN items i ON i.item_id = t.item_id ` + cntWhere
	if err := s.db.QueryRowContext(ctx, cntQ, cntArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func buildTxnWhere(f Filter) (string, []any) {
	sb := strings.Builder{}
	sb.WriteString(`WHERE 1=1`)
	args := []any{}

	if f.Status != nil {
		sb.WriteString(` AND t.status = ?`)
		args = append(args, string(*f.Status))
	}
	if f.Type != nil {
		sb.WriteString(` AND t.type = ?`)
		args = append(args, string(*f.Type))
	}
	if f.UserID != nil {
		sb.WriteString(` AND t.user_id = ?`)
		args = append(args, *f.UserID)
	}
	if f.ItemULID != nil {
		sb.WriteString(` AND i.item_ulid = ?`)
		args = append(args, *f.ItemULID)
	}
	if f.From != nil {
		sb.WriteString(` AND t.created_at >= ?`)
		args = append(args, *f.From)
	}
	if f.To != nil {
		sb.WriteString(` AND t.created_at < ?`)
		args = append(args, *f.To)
	}
	if f.Overdue {
		sb.WriteString(` AND t.status = 'approved' AND t.due_date IS NOT NULL AND t.due_date < CURDATE()`)
	}
	return sb.String(), args
}

// ---- 更新系（1操作 = 1トランザクション） ----

// lockByULID は取引行を FOR UPDATE で取得する。
func lockByULID(ctx context.Context, tx db.DBTX, txnULID string) (*Transaction, error) {
	q := `SELECT ` + txnCols + ` FROM transactions t LEFT JOIN items i ON i.item_id = t.item_id
	WHERE t.transaction_ulid = ? FOR UPDATE`
	t, err := scanTxn(tx.QueryRowContext(ctx, q, txnULID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound("transaction not found")
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// checkNoOpenTx: 同一 (item, user) の未完了取引は1件まで
func checkNoOpenTx(ctx context.Context, tx db.DBTX, itemID, userID int64) error {
	const q = `SELECT COUNT(*) FROM transactions WHERE item_id = ? AND user_id = ? AND status IN ('pending', 'approved')`
	var n int
	if err := tx.QueryRowContext(ctx, q, itemID, userID).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return apperr.ErrDuplicateRequest("open transaction already exists for this item and user")
	}
	return nil
}

// ExecCreate は item 行ロック下で前提条件を再判定してから INSERT する。
// 在庫はまだ引かない。
func (s *SQLStore) ExecCreate(ctx context.Context, t *Transaction) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		row, err := ledger.LockRowTx(ctx, tx, t.ItemID)
		if err != nil {
			return err
		}
		ref := &ItemRef{
			ItemID: row.ItemID, ItemULID: row.ItemULID, Name: row.Name,
			StoreID: row.StoreID, Quantity: row.Quantity, Status: row.Status,
		}
		if err := checkBorrowable(ref, t.Quantity); err != nil {
			return err
		}
		if err := checkNoOpenTx(ctx, tx, t.ItemID, t.UserID); err != nil {
			return err
		}

		const q = `
		INSERT INTO transactions
		(transaction_ulid, type, status, item_id, user_id, quantity, due_date, reason, from_store_id, to_store_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		res, err := tx.ExecContext(ctx, q,
			t.TransactionULID, string(t.Type), string(t.Status), t.ItemID, t.UserID, t.Quantity,
			t.DueDate, t.Reason, t.FromStoreID, t.ToStoreID, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return err
		}
		id, _ := res.LastInsertId()
		t.TransactionID = id

		action := audit.ActionBorrowRequest
		if t.Type == TypeTransfer {
			action = audit.ActionTransfer
		}
		return audit.InsertTx(ctx, tx, &audit.Entry{
			UserID:      audit.NullUserID(t.UserID),
			TargetTable: "transactions",
			TargetID:    t.TransactionID,
			ActionType:  action,
			NewValue:    audit.Snapshot(txnSnapshot{Status: t.Status}),
			CreatedAt:   t.CreatedAt,
		})
	})
}

// ExecApprove は承認時に在庫を引き当てる。リクエスト時ではなく
// ここで再判定するので、同じ item を取り合う承認は先勝ちになる。
func (s *SQLStore) ExecApprove(ctx context.Context, txnULID string, approverID int64, now time.Time) (*Transaction, error) {
	var out *Transaction
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		t, err := lockByULID(ctx, tx, txnULID)
		if err != nil {
			return err
		}
		if err := checkApprovable(t); err != nil {
			return err
		}

		switch t.Type {
		case TypeBorrow:
			mut, err := ledger.ReserveTx(ctx, tx, t.ItemID, t.Quantity)
			if err != nil {
				return err
			}

			const q = `UPDATE transactions SET status = ?, approved_by = ?, approved_at = ?, updated_at = ? WHERE transaction_id = ?`
			if _, err := tx.ExecContext(ctx, q, string(StatusApproved), approverID, now, now, t.TransactionID); err != nil {
				return err
			}

			oldSnap := snapWithItem(StatusPending, mut.OldQuantity, mut.OldStatus)
			newSnap := snapWithItem(StatusApproved, mut.NewQuantity, mut.NewStatus)
			if err := audit.InsertTx(ctx, tx, &audit.Entry{
				UserID:      audit.NullUserID(approverID),
				TargetTable: "transactions",
				TargetID:    t.TransactionID,
				ActionType:  audit.ActionApprove,
				OldValue:    audit.Snapshot(oldSnap),
				NewValue:    audit.Snapshot(newSnap),
				CreatedAt:   now,
			}); err != nil {
				return err
			}

			t.Status = StatusApproved

		case TypeTransfer:
			if !t.ToStoreID.Valid {
				return apperr.ErrInternal("transfer without destination store")
			}
			tr, err := ledger.TransferTx(ctx, tx, t.ItemID, t.ToStoreID.Int64, t.Quantity,
				func() string { return s.id.NewULID(now) })
			if err != nil {
				return err
			}

			// 移動は承認と同時に実行されるので completed まで進める
			const q = `UPDATE transactions SET status = ?, approved_by = ?, approved_at = ?, updated_at = ? WHERE transaction_id = ?`
			if _, err := tx.ExecContext(ctx, q, string(StatusCompleted), approverID, now, now, t.TransactionID); err != nil {
				return err
			}

			if err := audit.InsertTx(ctx, tx, &audit.Entry{
				UserID:      audit.NullUserID(approverID),
				TargetTable: "transactions",
				TargetID:    t.TransactionID,
				ActionType:  audit.ActionTransfer,
				OldValue:    audit.Snapshot(txnSnapshot{Status: StatusPending}),
				NewValue:    audit.Snapshot(txnSnapshot{Status: StatusCompleted, Transfer: tr}),
				CreatedAt:   now,
			}); err != nil {
				return err
			}

			t.Status = StatusCompleted

		default:
			return apperr.ErrInvalidState("unsupported transaction type")
		}

		t.ApprovedBy = sql.NullInt64{Int64: approverID, Valid: true}
		t.ApprovedAt = sql.NullTime{Time: now, Valid: true}
		t.UpdatedAt = now
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExecReject は pending を rejected にする。在庫には触らない。
func (s *SQLStore) ExecReject(ctx context.Context, txnULID string, approverID int64, reason string, now time.Time) (*Transaction, error) {
	var out *Transaction
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		t, err := lockByULID(ctx, tx, txnULID)
		if err != nil {
			return err
		}
		if err := checkApprovable(t); err != nil {
			return err
		}

		const q = `UPDATE transactions SET status = ?, approved_by = ?, approved_at = ?, rejection_reason = ?, updated_at = ? WHERE transaction_id = ?`
		if _, err := tx.ExecContext(ctx, q, string(StatusRejected), approverID, now, reason, now, t.TransactionID); err != nil {
			return err
		}

		if err := audit.InsertTx(ctx, tx, &audit.Entry{
			UserID:      audit.NullUserID(approverID),
			TargetTable: "transactions",
			TargetID:    t.TransactionID,
			ActionType:  audit.ActionReject,
			OldValue:    audit.Snapshot(txnSnapshot{Status: StatusPending}),
			NewValue:    audit.Snapshot(txnSnapshot{Status: StatusRejected, Reason: reason}),
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		t.Status = StatusRejected
		t.ApprovedBy = sql.NullInt64{Int64: approverID, Valid: true}
		t.ApprovedAt = sql.NullTime{Time: now, Valid: true}
		t.RejectionReason = sql.NullString{String: reason, Valid: true}
		t.UpdatedAt = now
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExecReturn は approved の borrow を completed にし、在庫を戻す。
// 紛失（lost）の場合は現物が無いので在庫は戻さない。
func (s *SQLStore) ExecReturn(ctx context.Context, txnULID string, actor Actor, condition, notes string, now time.Time) (*Transaction, error) {
	var out *Transaction
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		t, err := lockByULID(ctx, tx, txnULID)
		if err != nil {
			return err
		}
		if err := checkReturnable(t); err != nil {
			return err
		}
		if err := checkReturnActor(t, actor); err != nil {
			return err
		}

		var mut *ledger.Mutation
		if returnRestocks(condition) {
			mut, err = ledger.ReleaseTx(ctx, tx, t.ItemID, t.Quantity)
			if err != nil {
				return err
			}
		} else {
			// 紛失分は在庫に戻さない。監査用に現状を記録するだけ。
			row, err := ledger.LockRowTx(ctx, tx, t.ItemID)
			if err != nil {
				return err
			}
			mut = &ledger.Mutation{
				ItemID: row.ItemID, ItemULID: row.ItemULID,
				OldQuantity: row.Quantity, NewQuantity: row.Quantity,
				OldStatus: row.Status, NewStatus: row.Status,
			}
		}

		const q = `UPDATE transactions SET status = ?, return_condition = ?, return_notes = ?, returned_at = ?, updated_at = ? WHERE transaction_id = ?`
		var notesArg any
		if notes != "" {
			notesArg = notes
		}
		if _, err := tx.ExecContext(ctx, q, string(StatusCompleted), condition, notesArg, now, now, t.TransactionID); err != nil {
			return err
		}

		oldSnap := snapWithItem(StatusApproved, mut.OldQuantity, mut.OldStatus)
		newSnap := snapWithItem(StatusCompleted, mut.NewQuantity, mut.NewStatus)
		newSnap.Condition = condition
		if err := audit.InsertTx(ctx, tx, &audit.Entry{
			UserID:      audit.NullUserID(actor.UserID),
			TargetTable: "transactions",
			TargetID:    t.TransactionID,
			ActionType:  audit.ActionReturn,
			OldValue:    audit.Snapshot(oldSnap),
			NewValue:    audit.Snapshot(newSnap),
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		t.Status = StatusCompleted
		t.ReturnCondition = sql.NullString{String: condition, Valid: true}
		if notes != "" {
			t.ReturnNotes = sql.NullString{String: notes, Valid: true}
		}
		t.ReturnedAt = sql.NullTime{Time: now, Valid: true}
		t.UpdatedAt = now
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RejectPendingForItemTx は item の pending 取引を一括で却下する。
// アイテムの廃棄時に items 側のトランザクション内から呼ばれる。
// 却下1件ごとに監査ログを残す。actorID<=0 はシステム操作扱い。
func RejectPendingForItemTx(ctx context.Context, tx db.DBTX, itemID, actorID int64, reason string, now time.Time) (int64, error) {
	const sel = `SELECT transaction_id FROM transactions WHERE item_id = ? AND status = 'pending' FOR UPDATE`
	rows, err := tx.QueryContext(ctx, sel, itemID)
	if err != nil {
		return 0, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	const upd = `UPDATE transactions SET status = 'rejected', rejection_reason = ?, updated_at = ? WHERE transaction_id = ?`
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, upd, reason, now, id); err != nil {
			return 0, err
		}
		if err := audit.InsertTx(ctx, tx, &audit.Entry{
			UserID:      audit.NullUserID(actorID),
			TargetTable: "transactions",
			TargetID:    id,
			ActionType:  audit.ActionReject,
			OldValue:    audit.Snapshot(txnSnapshot{Status: StatusPending}),
			NewValue:    audit.Snapshot(txnSnapshot{Status: StatusRejected, Reason: reason}),
			CreatedAt:   now,
		}); err != nil {
			return 0, err
		}
	}
	return int64(len(ids)), nil
}

// CountOpenForItem は item を参照する未完了取引の数を返す。
// アイテム削除可否の判定に使う。
func CountOpenForItem(ctx context.Context, tx db.DBTX, itemID int64) (int, error) {
	const q = `SELECT COUNT(*) FROM transactions WHERE item_id = ? AND status IN ('pending', 'approved')`
	var n int
	if err := tx.QueryRowContext(ctx, q, itemID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
