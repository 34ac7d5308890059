package ledger

import (
	"context"
	"database/sql"
	"errors"

	"ieventory-backend/internal/platform/apperr"
	"ieventory-backend/internal/platform/db"
)

// Row は items テーブルのロック対象カラム。
type Row struct {
	ItemID      int64
	ItemULID    string
	Name        string
	StoreID     int64
	Quantity    int
	MinStock    int
	MaxStock    int
	Status      Status
	Description sql.NullString
}

// LockRowTx は item 行を FOR UPDATE で取得する。
// 同一 item への在庫操作はこのロックで直列化される。
func LockRowTx(ctx context.Context, tx db.DBTX, itemID int64) (*Row, error) {
	const q = `
	SELECT item_id, item_ulid, name, store_id, quantity, min_stock_level, max_stock_level, status, description
	FROM items WHERE item_id = ? FOR UPDATE`
	var r Row
	err := tx.QueryRowContext(ctx, q, itemID).Scan(
		&r.ItemID, &r.ItemULID, &r.Name, &r.StoreID, &r.Quantity, &r.MinStock, &r.MaxStock, &r.Status, &r.Description,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound("item not found")
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func writeRowTx(ctx context.Context, tx db.DBTX, itemID int64, quantity int, status Status) error {
	const q = `UPDATE items SET quantity = ?, status = ?, updated_at = NOW(6) WHERE item_id = ?`
	res, err := tx.ExecContext(ctx, q, quantity, string(status), itemID)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff != 1 {
		return apperr.ErrInternal("failed to update items.quantity")
	}
	return nil
}

// ReserveTx は在庫を n 個引き当てる。戻り値は監査ログ用の前後値。
func ReserveTx(ctx context.Context, tx db.DBTX, itemID int64, n int) (*Mutation, error) {
	r, err := LockRowTx(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}

	newQty, newStatus, err := Reserve(r.Quantity, r.Status, n)
	if err != nil {
		return nil, err
	}
	if err := writeRowTx(ctx, tx, r.ItemID, newQty, newStatus); err != nil {
		return nil, err
	}

	return &Mutation{
		ItemID:      r.ItemID,
		ItemULID:    r.ItemULID,
		OldQuantity: r.Quantity,
		NewQuantity: newQty,
		OldStatus:   r.Status,
		NewStatus:   newStatus,
	}, nil
}

// ReleaseTx は在庫に n 個戻す。
func ReleaseTx(ctx context.Context, tx db.DBTX, itemID int64, n int) (*Mutation, error) {
	r, err := LockRowTx(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}

	newQty, newStatus, err := Release(r.Quantity, n)
	if err != nil {
		return nil, err
	}
	if err := writeRowTx(ctx, tx, r.ItemID, newQty, newStatus); err != nil {
		return nil, err
	}

	return &Mutation{
		ItemID:      r.ItemID,
		ItemULID:    r.ItemULID,
		OldQuantity: r.Quantity,
		NewQuantity: newQty,
		OldStatus:   r.Status,
		NewStatus:   newStatus,
	}, nil
}

// Transfer は店舗間移動1回分の結果。
type Transfer struct {
	ItemID      int64      `json:"item_id"`
	FromStoreID int64      `json:"from_store_id"`
	ToStoreID   int64      `json:"to_store_id"`
	Quantity    int        `json:"quantity"`
	Relocated   bool       `json:"relocated"` // 全量移動で行ごと店舗を付け替えた
	Source      *Mutation  `json:"source,omitempty"`
	Dest        *Mutation  `json:"dest,omitempty"`
	DestItemID  int64      `json:"dest_item_id,omitempty"`
}

// TransferTx は移動元で引き当て、移動先の同名アイテム行に戻す。
// 移動先に行が無く全量移動なら store_id の付け替えだけで済ませる。
// 両方成功した場合のみ行の所属が変わる（同一Txなのでロールバックで担保）。
func TransferTx(ctx context.Context, tx db.DBTX, itemID, toStoreID int64, n int, newULID func() string) (*Transfer, error) {
	src, err := LockRowTx(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	if src.StoreID == toStoreID {
		return nil, apperr.ErrInvalid("destination store equals source store")
	}
	if src.Status == StatusRetired {
		return nil, apperr.ErrItemUnavailable("item is retired")
	}
	if n <= 0 {
		return nil, apperr.ErrInvalid("quantity must be > 0")
	}
	if n > src.Quantity {
		return nil, apperr.ErrInsufficientStock("insufficient stock")
	}

	out := &Transfer{
		ItemID:      src.ItemID,
		FromStoreID: src.StoreID,
		ToStoreID:   toStoreID,
		Quantity:    n,
	}

	// 移動先の同名アイテム行を探してロック。(store_id, name) は一意なので
	// 高々1件に定まる
	const destQ = `
	SELECT item_id, item_ulid, name, store_id, quantity, min_stock_level, max_stock_level, status, description
	FROM items WHERE name = ? AND store_id = ? FOR UPDATE`
	var dest Row
	err = tx.QueryRowContext(ctx, destQ, src.Name, toStoreID).Scan(
		&dest.ItemID, &dest.ItemULID, &dest.Name, &dest.StoreID, &dest.Quantity,
		&dest.MinStock, &dest.MaxStock, &dest.Status, &dest.Description,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if n == src.Quantity {
			// 全量移動: 行ごと店舗を付け替える
			const q = `UPDATE items SET store_id = ?, updated_at = NOW(6) WHERE item_id = ?`
			if _, err := tx.ExecContext(ctx, q, toStoreID, src.ItemID); err != nil {
				return nil, err
			}
			out.Relocated = true
			out.DestItemID = src.ItemID
			return out, nil
		}

		// 部分移動: 移動先に新しい行を作る
		newQty, newStatus, err := Reserve(src.Quantity, src.Status, n)
		if err != nil {
			return nil, err
		}
		if err := writeRowTx(ctx, tx, src.ItemID, newQty, newStatus); err != nil {
			return nil, err
		}
		out.Source = &Mutation{
			ItemID: src.ItemID, ItemULID: src.ItemULID,
			OldQuantity: src.Quantity, NewQuantity: newQty,
			OldStatus: src.Status, NewStatus: newStatus,
		}

		destULID := newULID()
		const insQ = `
		INSERT INTO items (item_ulid, name, description, store_id, quantity, min_stock_level, max_stock_level, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		res, err := tx.ExecContext(ctx, insQ,
			destULID, src.Name, src.Description, toStoreID, n, src.MinStock, src.MaxStock, string(StatusAvailable))
		if err != nil {
			return nil, err
		}
		destID, _ := res.LastInsertId()
		out.DestItemID = destID
		out.Dest = &Mutation{
			ItemID: destID, ItemULID: destULID,
			OldQuantity: 0, NewQuantity: n,
			OldStatus: StatusAvailable, NewStatus: StatusAvailable,
		}
		return out, nil

	case err != nil:
		return nil, err
	}

	// 移動先に既存行あり: 引き当て＋戻しの2本立て
	if err := canMergeInto(dest.Status); err != nil {
		return nil, err
	}
	newQty, newStatus, err := Reserve(src.Quantity, src.Status, n)
	if err != nil {
		return nil, err
	}
	if err := writeRowTx(ctx, tx, src.ItemID, newQty, newStatus); err != nil {
		return nil, err
	}
	out.Source = &Mutation{
		ItemID: src.ItemID, ItemULID: src.ItemULID,
		OldQuantity: src.Quantity, NewQuantity: newQty,
		OldStatus: src.Status, NewStatus: newStatus,
	}

	destQty, destStatus, err := Release(dest.Quantity, n)
	if err != nil {
		return nil, err
	}
	if err := writeRowTx(ctx, tx, dest.ItemID, destQty, destStatus); err != nil {
		return nil, err
	}
	out.DestItemID = dest.ItemID
	out.Dest = &Mutation{
		ItemID: dest.ItemID, ItemULID: dest.ItemULID,
		OldQuantity: dest.Quantity, NewQuantity: destQty,
		OldStatus: dest.Status, NewStatus: destStatus,
	}
	return out, nil
}
