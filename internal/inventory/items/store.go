package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	mysql "github.com/go-sql-driver/mysql"

	"ieventory-backend/internal/audit"
	"ieventory-backend/internal/inventory/ledger"
	"ieventory-backend/internal/inventory/transactions"
	"ieventory-backend/internal/platform/apperr"
	"ieventory-backend/internal/platform/db"
)

type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) *Store { return &Store{db: database} }

// 監査ログに載せるアイテムのスナップショット
type itemSnapshot struct {
	Name     string        `json:"name"`
	StoreID  int64         `json:"store_id"`
	Quantity int           `json:"quantity"`
	MinStock int           `json:"min_stock_level"`
	MaxStock int           `json:"max_stock_level"`
	Status   ledger.Status `json:"status"`
	Note     string        `json:"note,omitempty"`
}

func snapshotOf(i *Item) itemSnapshot {
	return itemSnapshot{
		Name:     i.Name,
		StoreID:  i.StoreID,
		Quantity: i.Quantity,
		MinStock: i.MinStock,
		MaxStock: i.MaxStock,
		Status:   i.Status,
	}
}

const itemCols = `i.item_id, i.item_ulid, i.name, i.description, i.store_id, i.quantity,
	i.min_stock_level, i.max_stock_level, i.status, i.created_at, i.updated_at, s.store_ulid`

func scanItemRow(sc interface{ Scan(...any) error }) (*itemRow, error) {
	var r itemRow
	err := sc.Scan(
		&r.ItemID, &r.ItemULID, &r.Name, &r.Description, &r.StoreID, &r.Quantity,
		&r.MinStock, &r.MaxStock, &r.Status, &r.CreatedAt, &r.UpdatedAt, &r.StoreULID,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ---- 参照系 ----

func (s *Store) GetByULID(ctx context.Context, itemULID string) (*itemRow, error) {
	q := `SELECT ` + itemCols + ` FROM items i JOIN stores s ON s.store_id = i.store_id WHERE i.item_ulid = ?`
	r, err := scanItemRow(s.db.QueryRowContext(ctx, q, itemULID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound("item not found")
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) List(ctx context.Context, f ItemFilter, p Page) ([]itemRow, int64, error) {
	where, args := buildItemWhere(f)

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

	q := fmt.Sprintf(`SELECT %s FROM items i JOIN stores s ON s.store_id = i.store_id %s ORDER BY i.item_id %s LIMIT ? OFFSET ?`,
		itemCols, where, order)
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []itemRow
	for rows.Next() {
		r, err := scanItemRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	cntWhere, cntArgs := buildItemWhere(f)
	var total int64
	cntQ := `SELECT COUNT(*) FROM items i JOIN stores s ON s.store_id = i.store_id ` + cntWhere
	if err := s.db.QueryRowContext(ctx, cntQ, cntArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func buildItemWhere(f ItemFilter) (string, []any) {
	sb := strings.Builder{}
	sb.WriteString(`WHERE 1=1`)
	args := []any{}

	if f.StoreULID != nil {
		sb.WriteString(` AND s.store_ulid = ?`)
		args = append(args, *f.StoreULID)
	}
	if f.Status != nil {
		sb.WriteString(` AND i.status = ?`)
		args = append(args, string(*f.Status))
	}
	if f.Name != nil {
		sb.WriteString(` AND i.name LIKE ?`)
		args = append(args, "%"+*f.Name+"%")
	}
	if f.LowStock {
		sb.WriteString(` AND i.min_stock_level > 0 AND i.quantity < i.min_stock_level`)
	}
	return sb.String(), args
}

func (s *Store) rowByIDTx(ctx context.Context, tx db.DBTX, itemID int64) (*itemRow, error) {
	q := `SELECT ` + itemCols + ` FROM items i JOIN stores s ON s.store_id = i.store_id WHERE i.item_id = ?`
	r, err := scanItemRow(tx.QueryRowContext(ctx, q, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound("item not found")
	}
	return r, err
}

// resolveIDTx: item_ulid -> item_id
func resolveIDTx(ctx context.Context, tx db.DBTX, itemULID string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT item_id FROM items WHERE item_ulid = ?`, itemULID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.ErrNotFound("item not found")
	}
	return id, err
}

// ---- 更新系 ----

func (s *Store) ExecCreate(ctx context.Context, actorID int64, storeULID string, item *Item) (*itemRow, error) {
	var out *itemRow
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		var storeID int64
		err := tx.QueryRowContext(ctx, `SELECT store_id FROM stores WHERE store_ulid = ?`, storeULID).Scan(&storeID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrNotFound("store not found")
		}
		if err != nil {
			return err
		}
		item.StoreID = storeID

		const q = `
		INSERT INTO items (item_ulid, name, description, store_id, quantity, min_stock_level, max_stock_level, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		res, err := tx.ExecContext(ctx, q,
			item.ItemULID, item.Name, item.Description, item.StoreID, item.Quantity,
			item.MinStock, item.MaxStock, string(item.Status), item.CreatedAt, item.UpdatedAt)
		if err != nil {
			var me *mysql.MySQLError
			if errors.As(err, &me) {
				switch me.Number {
				case 1062: // duplicate key (item_ulid または同一店舗の同名アイテム)
					return apperr.ErrConflict("item already exists in this store")
				case 1452: // foreign key constraint fails
					return apperr.ErrInvalid("invalid store")
				}
			}
			return err
		}
		id, _ := res.LastInsertId()
		item.ItemID = id

		if err := audit.InsertTx(ctx, tx, &audit.Entry{
			UserID:      audit.NullUserID(actorID),
			TargetTable: "items",
			TargetID:    item.ItemID,
			ActionType:  audit.ActionCreate,
			NewValue:    audit.Snapshot(snapshotOf(item)),
			CreatedAt:   item.CreatedAt,
		}); err != nil {
			return err
		}

		out, err = s.rowByIDTx(ctx, tx, item.ItemID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ExecUpdate(ctx context.Context, actorID int64, itemULID string, req UpdateItemRequest, now time.Time) (*itemRow, error) {
	var out *itemRow
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		id, err := resolveIDTx(ctx, tx, itemULID)
		if err != nil {
			return err
		}
		row, err := ledger.LockRowTx(ctx, tx, id)
		if err != nil {
			return err
		}

		old := itemSnapshot{
			Name: row.Name, StoreID: row.StoreID, Quantity: row.Quantity,
			MinStock: row.MinStock, MaxStock: row.MaxStock, Status: row.Status,
		}

		name := row.Name
		if req.Name != nil {
			name = *req.Name
		}
		desc := row.Description
		if req.Description != nil {
			if *req.Description == "" {
				desc = sql.NullString{}
			} else {
				desc = sql.NullString{String: *req.Description, Valid: true}
			}
		}
		minStock := row.MinStock
		if req.MinStockLevel != nil {
			minStock = *req.MinStockLevel
		}
		maxStock := row.MaxStock
		if req.MaxStockLevel != nil {
			maxStock = *req.MaxStockLevel
		}
		if err := validateStockLevels(minStock, maxStock); err != nil {
			return err
		}

		const q = `UPDATE items SET name = ?, description = ?, min_stock_level = ?, max_stock_level = ?, updated_at = ? WHERE item_id = ?`
		if _, err := tx.ExecContext(ctx, q, name, desc, minStock, maxStock, now, id); err != nil {
			var me *mysql.MySQLError
			if errors.As(err, &me) && me.Number == 1062 {
				return apperr.ErrConflict("item already exists in this store")
			}
			return err
		}

		nw := old
		nw.Name = name
		nw.MinStock = minStock
		nw.MaxStock = maxStock
		if err := audit.InsertTx(ctx, tx, &audit.Entry{
			UserID:      audit.NullUserID(actorID),
			TargetTable: "items",
			TargetID:    id,
			ActionType:  audit.ActionUpdate,
			OldValue:    audit.Snapshot(old),
			NewValue:    audit.Snapshot(nw),
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		out, err = s.rowByIDTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ExecSetStatus(ctx context.Context, actorID int64, itemULID string, next ledger.Status, now time.Time) (*itemRow, error) {
	var out *itemRow
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		id, err := resolveIDTx(ctx, tx, itemULID)
		if err != nil {
			return err
		}
		row, err := ledger.LockRowTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := canManualStatus(row.Status, row.Quantity, next); err != nil {
			return err
		}

		const q = `UPDATE items SET status = ?, updated_at = ? WHERE item_id = ?`
		if _, err := tx.ExecContext(ctx, q, string(next), now, id); err != nil {
			return err
		}

		old := itemSnapshot{Name: row.Name, StoreID: row.StoreID, Quantity: row.Quantity, MinStock: row.MinStock, MaxStock: row.MaxStock, Status: row.Status}
		nw := old
		nw.Status = next
		if err := audit.InsertTx(ctx, tx, &audit.Entry{
			UserID:      audit.NullUserID(actorID),
			TargetTable: "items",
			TargetID:    id,
			ActionType:  audit.ActionStatusChange,
			OldValue:    audit.Snapshot(old),
			NewValue:    audit.Snapshot(nw),
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		out, err = s.rowByIDTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ExecAdjust(ctx context.Context, actorID int64, itemULID string, delta int, note string, now time.Time) (*itemRow, error) {
	var out *itemRow
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		id, err := resolveIDTx(ctx, tx, itemULID)
		if err != nil {
			return err
		}
		row, err := ledger.LockRowTx(ctx, tx, id)
		if err != nil {
			return err
		}

		newQty, newStatus, err := adjustApply(row.Quantity, row.Status, delta)
		if err != nil {
			return err
		}

		const q = `UPDATE items SET quantity = ?, status = ?, updated_at = ? WHERE item_id = ?`
		if _, err := tx.ExecContext(ctx, q, newQty, string(newStatus), now, id); err != nil {
			return err
		}

		action := audit.ActionStockRelease
		if delta < 0 {
			action = audit.ActionStockReserve
		}
		old := itemSnapshot{Name: row.Name, StoreID: row.StoreID, Quantity: row.Quantity, MinStock: row.MinStock, MaxStock: row.MaxStock, Status: row.Status}
		nw := old
		nw.Quantity = newQty
		nw.Status = newStatus
		nw.Note = note
		if err := audit.InsertTx(ctx, tx, &audit.Entry{
			UserID:      audit.NullUserID(actorID),
			TargetTable: "items",
			TargetID:    id,
			ActionType:  action,
			OldValue:    audit.Snapshot(old),
			NewValue:    audit.Snapshot(nw),
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		out, err = s.rowByIDTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ExecRetire(ctx context.Context, actorID int64, itemULID string, now time.Time) (*itemRow, error) {
	var out *itemRow
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		id, err := resolveIDTx(ctx, tx, itemULID)
		if err != nil {
			return err
		}
		row, err := ledger.LockRowTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if row.Status == ledger.StatusRetired {
			return apperr.ErrInvalidState("item is already retired")
		}

		const q = `UPDATE items SET status = ?, updated_at = ? WHERE item_id = ?`
		if _, err := tx.ExecContext(ctx, q, string(ledger.StatusRetired), now, id); err != nil {
			return err
		}

		// 承認待ちの取引は廃棄と同時に自動却下する
		if _, err := transactions.RejectPendingForItemTx(ctx, tx, id, actorID, "item retired", now); err != nil {
			return err
		}

		old := itemSnapshot{Name: row.Name, StoreID: row.StoreID, Quantity: row.Quantity, MinStock: row.MinStock, MaxStock: row.MaxStock, Status: row.Status}
		nw := old
		nw.Status = ledger.StatusRetired
		if err := audit.InsertTx(ctx, tx, &audit.Entry{
			UserID:      audit.NullUserID(actorID),
			TargetTable: "items",
			TargetID:    id,
			ActionType:  audit.ActionRetire,
			OldValue:    audit.Snapshot(old),
			NewValue:    audit.Snapshot(nw),
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		out, err = s.rowByIDTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ExecDelete(ctx context.Context, actorID int64, itemULID string, now time.Time) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		id, err := resolveIDTx(ctx, tx, itemULID)
		if err != nil {
			return err
		}
		row, err := ledger.LockRowTx(ctx, tx, id)
		if err != nil {
			return err
		}

		open, err := transactions.CountOpenForItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := checkDeletable(open); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE item_id = ?`, id); err != nil {
			return err
		}

		old := itemSnapshot{Name: row.Name, StoreID: row.StoreID, Quantity: row.Quantity, MinStock: row.MinStock, MaxStock: row.MaxStock, Status: row.Status}
		return audit.InsertTx(ctx, tx, &audit.Entry{
			UserID:      audit.NullUserID(actorID),
			TargetTable: "items",
			TargetID:    id,
			ActionType:  audit.ActionDelete,
			OldValue:    audit.Snapshot(old),
			CreatedAt:   now,
		})
	})
}

// ---- 店舗 ----

func (s *Store) ExecCreateStore(ctx context.Context, actorID int64, loc *StoreLocation) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const q = `INSERT INTO stores (store_ulid, name, location, created_at) VALUES (?, ?, ?, ?)`
		res, err := tx.ExecContext(ctx, q, loc.StoreULID, loc.Name, loc.Location, loc.CreatedAt)
		if err != nil {
			return err
		}
		id, _ := res.LastInsertId()
		loc.StoreID = id

		return audit.InsertTx(ctx, tx, &audit.Entry{
			UserID:      audit.NullUserID(actorID),
			TargetTable: "stores",
			TargetID:    loc.StoreID,
			ActionType:  audit.ActionCreate,
			NewValue:    audit.Snapshot(loc.Name),
			CreatedAt:   loc.CreatedAt,
		})
	})
}

func (s *Store) ListStores(ctx context.Context) ([]StoreLocation, error) {
	const q = `SELECT store_id, store_ulid, name, location, created_at FROM stores ORDER BY store_id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoreLocation
	for rows.Next() {
		var l StoreLocation
		if err := rows.Scan(&l.StoreID, &l.StoreULID, &l.Name, &l.Location, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
