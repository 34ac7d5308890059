package items

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"ieventory-backend/internal/inventory/ledger"
	"ieventory-backend/internal/platform/apperr"
)

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

type Service struct {
	store *Store
	clock Clock
	id    IDGen
}

func NewService(db *sql.DB) *Service {
	return &Service{
		store: NewStore(db),
		clock: realClock{},
		id:    ulidGen{},
	}
}

// ===== 純粋な判定ルール =====

func isLowStock(quantity, minStock int) bool {
	return minStock > 0 && quantity < minStock
}

// validateStockLevels: min/max は助言的な閾値。max=0 は上限なし。
func validateStockLevels(min, max int) error {
	if min < 0 || max < 0 {
		return apperr.ErrInvalid("stock levels must be >= 0")
	}
	if max > 0 && max < min {
		return apperr.ErrInvalid("max_stock_level must be >= min_stock_level")
	}
	return nil
}

// initialStatus: quantity==0 の行を available にはしない
func initialStatus(quantity int) ledger.Status {
	if quantity > 0 {
		return ledger.StatusAvailable
	}
	return ledger.StatusReserved
}

// canManualStatus: 手動で設定できるステータス遷移の判定。
// reserved は在庫0の派生状態なので手動設定できない。retired は
// 専用の Retire 経由のみ。
func canManualStatus(current ledger.Status, quantity int, next ledger.Status) error {
	if !ledger.ValidStatus(next) {
		return apperr.ErrInvalid(fmt.Sprintf("unknown status %q", next))
	}
	if next == ledger.StatusReserved || next == ledger.StatusRetired {
		return apperr.ErrInvalid(fmt.Sprintf("status %s cannot be set directly", next))
	}
	if current == ledger.StatusRetired {
		return apperr.ErrInvalidState("retired items cannot change status")
	}
	if next == ledger.StatusAvailable && quantity == 0 {
		return apperr.ErrInvalidState("cannot mark available with zero quantity")
	}
	if next == current {
		return apperr.ErrInvalidState(fmt.Sprintf("item is already %s", next))
	}
	return nil
}

// checkDeletable: 未完了（pending/approved）の取引が参照している間は
// 削除できない。終端（rejected/completed）の履歴は削除を妨げない。
// 取引行は item_id に外部キーを張っていないので、履歴ごと残したまま
// アイテム行だけを消せる。
func checkDeletable(open int) error {
	if open > 0 {
		return apperr.ErrConflict("open transactions reference this item")
	}
	return nil
}

// adjustApply: 補充・棚卸し調整の増減ルール。減らす方向は ledger の
// 引き当てと同じ扱い。増やす方向は reserved（在庫0の派生状態）だけを
// available に戻し、maintenance/damaged はそのまま維持する。
func adjustApply(quantity int, status ledger.Status, delta int) (int, ledger.Status, error) {
	if status == ledger.StatusRetired {
		return 0, "", apperr.ErrInvalidState("retired items cannot be adjusted")
	}
	if delta < 0 {
		return ledger.Reserve(quantity, status, -delta)
	}
	newStatus := status
	if status == ledger.StatusReserved {
		newStatus = ledger.StatusAvailable
	}
	return quantity + delta, newStatus, nil
}

// ===== アイテム =====

func (s *Service) Create(ctx context.Context, actorID int64, req CreateItemRequest) (*ItemResponse, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.ErrInvalid("name is required")
	}
	if req.Quantity < 0 {
		return nil, apperr.ErrInvalid("quantity must be >= 0")
	}
	if err := validateStockLevels(req.MinStockLevel, req.MaxStockLevel); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	item := &Item{
		ItemULID:  s.id.NewULID(now),
		Name:      req.Name,
		StoreID:   0, // ストアULIDから解決
		Quantity:  req.Quantity,
		MinStock:  req.MinStockLevel,
		MaxStock:  req.MaxStockLevel,
		Status:    initialStatus(req.Quantity),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Description != nil && *req.Description != "" {
		item.Description = sql.NullString{String: *req.Description, Valid: true}
	}

	row, err := s.store.ExecCreate(ctx, actorID, req.StoreULID, item)
	if err != nil {
		return nil, err
	}
	resp := buildItemResponse(row)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, itemULID string) (*ItemResponse, error) {
	row, err := s.store.GetByULID(ctx, itemULID)
	if err != nil {
		return nil, err
	}
	resp := buildItemResponse(row)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, f ItemFilter, p Page) (*ItemListResponse, error) {
	rows, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return nil, err
	}
	out := make([]ItemResponse, 0, len(rows))
	for i := range rows {
		out = append(out, buildItemResponse(&rows[i]))
	}
	return &ItemListResponse{Items: out, Total: total}, nil
}

func (s *Service) Update(ctx context.Context, actorID int64, itemULID string, req UpdateItemRequest) (*ItemResponse, error) {
	if req.Name == nil && req.Description == nil && req.MinStockLevel == nil && req.MaxStockLevel == nil {
		return nil, apperr.ErrInvalid("no fields to update")
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, apperr.ErrInvalid("name must not be empty")
	}

	row, err := s.store.ExecUpdate(ctx, actorID, itemULID, req, s.clock.Now())
	if err != nil {
		return nil, err
	}
	resp := buildItemResponse(row)
	return &resp, nil
}

// SetStatus は maintenance/damaged/available の手動切り替え。
func (s *Service) SetStatus(ctx context.Context, actorID int64, itemULID string, status string) (*ItemResponse, error) {
	row, err := s.store.ExecSetStatus(ctx, actorID, itemULID, ledger.Status(status), s.clock.Now())
	if err != nil {
		return nil, err
	}
	resp := buildItemResponse(row)
	return &resp, nil
}

// AdjustStock は貸出以外の在庫増減（補充・棚卸し調整）。
// 増減は ledger のルールで行うので quantity>=0 とステータス同期が保たれる。
func (s *Service) AdjustStock(ctx context.Context, actorID int64, itemULID string, req AdjustStockRequest) (*ItemResponse, error) {
	if req.Delta == 0 {
		return nil, apperr.ErrInvalid("delta must not be 0")
	}

	note := ""
	if req.Note != nil {
		note = *req.Note
	}
	row, err := s.store.ExecAdjust(ctx, actorID, itemULID, req.Delta, note, s.clock.Now())
	if err != nil {
		return nil, err
	}
	resp := buildItemResponse(row)
	return &resp, nil
}

// Retire はアイテムを廃棄扱いにする。pending の取引は自動で却下する
// （承認前に廃棄された場合の方針として自動却下を採用）。
func (s *Service) Retire(ctx context.Context, actorID int64, itemULID string) (*ItemResponse, error) {
	row, err := s.store.ExecRetire(ctx, actorID, itemULID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	resp := buildItemResponse(row)
	return &resp, nil
}

// Delete は未完了の取引が残っている間は削除できない。
func (s *Service) Delete(ctx context.Context, actorID int64, itemULID string) error {
	return s.store.ExecDelete(ctx, actorID, itemULID, s.clock.Now())
}

// ===== 店舗 =====

func (s *Service) CreateStore(ctx context.Context, actorID int64, req CreateStoreRequest) (*StoreResponse, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.ErrInvalid("name is required")
	}

	now := s.clock.Now()
	loc := &StoreLocation{
		StoreULID: s.id.NewULID(now),
		Name:      req.Name,
		CreatedAt: now,
	}
	if req.Location != nil && *req.Location != "" {
		loc.Location = sql.NullString{String: *req.Location, Valid: true}
	}

	if err := s.store.ExecCreateStore(ctx, actorID, loc); err != nil {
		return nil, err
	}
	resp := buildStoreResponse(loc)
	return &resp, nil
}

func (s *Service) ListStores(ctx context.Context) ([]StoreResponse, error) {
	locs, err := s.store.ListStores(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]StoreResponse, 0, len(locs))
	for i := range locs {
		out = append(out, buildStoreResponse(&locs[i]))
	}
	return out, nil
}
