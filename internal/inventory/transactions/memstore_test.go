package transactions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ieventory-backend/internal/audit"
	"ieventory-backend/internal/inventory/ledger"
	"ieventory-backend/internal/platform/apperr"
)

// memStore は Store のインメモリ実装。判定ロジックは SQL 実装と同じ
// 関数（checkBorrowable など）と ledger の純粋関数を通す。
type memStore struct {
	items  map[string]*ItemRef // item_ulid -> row
	byID   map[int64]*ItemRef
	stores map[string]int64 // store_ulid -> store_id
	txns   map[string]*Transaction
	seq    int64
	audits []audit.Entry
	nextID int
}

func newMemStore() *memStore {
	return &memStore{
		items:  map[string]*ItemRef{},
		byID:   map[int64]*ItemRef{},
		stores: map[string]int64{},
		txns:   map[string]*Transaction{},
	}
}

func (m *memStore) addItem(r ItemRef) {
	cp := r
	m.items[r.ItemULID] = &cp
	m.byID[r.ItemID] = &cp
}

func (m *memStore) addStore(ulid string, id int64) { m.stores[ulid] = id }

func (m *memStore) auditCount(action string) int {
	n := 0
	for _, e := range m.audits {
		if e.ActionType == action {
			n++
		}
	}
	return n
}

func (m *memStore) ResolveItem(_ context.Context, itemULID string) (*ItemRef, error) {
	r, ok := m.items[itemULID]
	if !ok {
		return nil, apperr.ErrNotFound("item not found")
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) ResolveStore(_ context.Context, storeULID string) (int64, error) {
	id, ok := m.stores[storeULID]
	if !ok {
		return 0, apperr.ErrNotFound("store not found")
	}
	return id, nil
}

func (m *memStore) GetByULID(_ context.Context, txnULID string) (*Transaction, error) {
	t, ok := m.txns[txnULID]
	if !ok {
		return nil, apperr.ErrNotFound("transaction not found")
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) List(_ context.Context, f Filter, _ Page) ([]Transaction, int64, error) {
	var out []Transaction
	for _, t := range m.txns {
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		if f.Type != nil && t.Type != *f.Type {
			continue
		}
		if f.UserID != nil && t.UserID != *f.UserID {
			continue
		}
		if f.ItemULID != nil && t.ItemULID != *f.ItemULID {
			continue
		}
		out = append(out, *t)
	}
	return out, int64(len(out)), nil
}

func (m *memStore) hasOpenTx(itemID, userID int64) bool {
	for _, t := range m.txns {
		if t.ItemID == itemID && t.UserID == userID && !t.Status.Terminal() {
			return true
		}
	}
	return false
}

func (m *memStore) ExecCreate(_ context.Context, t *Transaction) error {
	item, ok := m.byID[t.ItemID]
	if !ok {
		return apperr.ErrNotFound("item not found")
	}
	if err := checkBorrowable(item, t.Quantity); err != nil {
		return err
	}
	if m.hasOpenTx(t.ItemID, t.UserID) {
		return apperr.ErrDuplicateRequest("open transaction already exists for this item and user")
	}

	m.seq++
	t.TransactionID = m.seq
	cp := *t
	m.txns[t.TransactionULID] = &cp

	action := audit.ActionBorrowRequest
	if t.Type == TypeTransfer {
		action = audit.ActionTransfer
	}
	m.audits = append(m.audits, audit.Entry{
		UserID:      audit.NullUserID(t.UserID),
		TargetTable: "transactions",
		TargetID:    t.TransactionID,
		ActionType:  action,
		NewValue:    audit.Snapshot(txnSnapshot{Status: t.Status}),
		CreatedAt:   t.CreatedAt,
	})
	return nil
}

func (m *memStore) ExecApprove(_ context.Context, txnULID string, approverID int64, now time.Time) (*Transaction, error) {
	t, ok := m.txns[txnULID]
	if !ok {
		return nil, apperr.ErrNotFound("transaction not found")
	}
	if err := checkApprovable(t); err != nil {
		return nil, err
	}
	item := m.byID[t.ItemID]

	switch t.Type {
	case TypeBorrow:
		qty, st, err := ledger.Reserve(item.Quantity, item.Status, t.Quantity)
		if err != nil {
			return nil, err
		}
		old := snapWithItem(StatusPending, item.Quantity, item.Status)
		item.Quantity, item.Status = qty, st
		t.Status = StatusApproved

		m.audits = append(m.audits, audit.Entry{
			UserID:      audit.NullUserID(approverID),
			TargetTable: "transactions",
			TargetID:    t.TransactionID,
			ActionType:  audit.ActionApprove,
			OldValue:    audit.Snapshot(old),
			NewValue:    audit.Snapshot(snapWithItem(StatusApproved, qty, st)),
			CreatedAt:   now,
		})

	case TypeTransfer:
		if item.StoreID == t.ToStoreID.Int64 {
			return nil, apperr.ErrInvalid("destination store equals source store")
		}
		if t.Quantity == item.Quantity {
			// 全量移動は行ごと付け替える
			item.StoreID = t.ToStoreID.Int64
		} else {
			qty, st, err := ledger.Reserve(item.Quantity, item.Status, t.Quantity)
			if err != nil {
				return nil, err
			}
			item.Quantity, item.Status = qty, st
			m.nextID++
			m.addItem(ItemRef{
				ItemID:   1000 + int64(m.nextID),
				ItemULID: fmt.Sprintf("ITEM-DST-%02d", m.nextID),
				Name:     item.Name,
				StoreID:  t.ToStoreID.Int64,
				Quantity: t.Quantity,
				Status:   ledger.StatusAvailable,
			})
		}
		t.Status = StatusCompleted

		m.audits = append(m.audits, audit.Entry{
			UserID:      audit.NullUserID(approverID),
			TargetTable: "transactions",
			TargetID:    t.TransactionID,
			ActionType:  audit.ActionTransfer,
			OldValue:    audit.Snapshot(txnSnapshot{Status: StatusPending}),
			NewValue:    audit.Snapshot(txnSnapshot{Status: StatusCompleted}),
			CreatedAt:   now,
		})

	default:
		return nil, apperr.ErrInvalidState("unsupported transaction type")
	}

	t.ApprovedBy = sql.NullInt64{Int64: approverID, Valid: true}
	t.ApprovedAt = sql.NullTime{Time: now, Valid: true}
	t.UpdatedAt = now
	cp := *t
	return &cp, nil
}

func (m *memStore) ExecReject(_ context.Context, txnULID string, approverID int64, reason string, now time.Time) (*Transaction, error) {
	t, ok := m.txns[txnULID]
	if !ok {
		return nil, apperr.ErrNotFound("transaction not found")
	}
	if err := checkApprovable(t); err != nil {
		return nil, err
	}

	t.Status = StatusRejected
	t.ApprovedBy = sql.NullInt64{Int64: approverID, Valid: true}
	t.ApprovedAt = sql.NullTime{Time: now, Valid: true}
	t.RejectionReason = sql.NullString{String: reason, Valid: true}
	t.UpdatedAt = now

	m.audits = append(m.audits, audit.Entry{
		UserID:      audit.NullUserID(approverID),
		TargetTable: "transactions",
		TargetID:    t.TransactionID,
		ActionType:  audit.ActionReject,
		OldValue:    audit.Snapshot(txnSnapshot{Status: StatusPending}),
		NewValue:    audit.Snapshot(txnSnapshot{Status: StatusRejected, Reason: reason}),
		CreatedAt:   now,
	})
	cp := *t
	return &cp, nil
}

func (m *memStore) ExecReturn(_ context.Context, txnULID string, actor Actor, condition, notes string, now time.Time) (*Transaction, error) {
	t, ok := m.txns[txnULID]
	if !ok {
		return nil, apperr.ErrNotFound("transaction not found")
	}
	if err := checkReturnable(t); err != nil {
		return nil, err
	}
	if err := checkReturnActor(t, actor); err != nil {
		return nil, err
	}

	item := m.byID[t.ItemID]
	old := snapWithItem(StatusApproved, item.Quantity, item.Status)
	if returnRestocks(condition) {
		qty, st, err := ledger.Release(item.Quantity, t.Quantity)
		if err != nil {
			return nil, err
		}
		item.Quantity, item.Status = qty, st
	}

	t.Status = StatusCompleted
	t.ReturnCondition = sql.NullString{String: condition, Valid: true}
	if notes != "" {
		t.ReturnNotes = sql.NullString{String: notes, Valid: true}
	}
	t.ReturnedAt = sql.NullTime{Time: now, Valid: true}
	t.UpdatedAt = now

	newSnap := snapWithItem(StatusCompleted, item.Quantity, item.Status)
	newSnap.Condition = condition
	m.audits = append(m.audits, audit.Entry{
		UserID:      audit.NullUserID(actor.UserID),
		TargetTable: "transactions",
		TargetID:    t.TransactionID,
		ActionType:  audit.ActionReturn,
		OldValue:    audit.Snapshot(old),
		NewValue:    audit.Snapshot(newSnap),
		CreatedAt:   now,
	})
	cp := *t
	return &cp, nil
}
