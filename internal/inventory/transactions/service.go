package transactions

import (
	"context"
	"crypto/rand"
	"database/sql"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"ieventory-backend/internal/platform/apperr"
	"ieventory-backend/internal/platform/auth"
)

// -------------- Clock & ID --------------

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// -------------- Store --------------

// Store は取引の永続化層。SQL実装のほかテスト用のインメモリ実装がある。
// Exec系は状態遷移＋在庫更新＋監査ログを1つの原子単位として実行する。
type Store interface {
	ResolveItem(ctx context.Context, itemULID string) (*ItemRef, error)
	ResolveStore(ctx context.Context, storeULID string) (int64, error)
	GetByULID(ctx context.Context, txnULID string) (*Transaction, error)
	List(ctx context.Context, f Filter, p Page) ([]Transaction, int64, error)

	ExecCreate(ctx context.Context, t *Transaction) error
	ExecApprove(ctx context.Context, txnULID string, approverID int64, now time.Time) (*Transaction, error)
	ExecReject(ctx context.Context, txnULID string, approverID int64, reason string, now time.Time) (*Transaction, error)
	ExecReturn(ctx context.Context, txnULID string, actor Actor, condition, notes string, now time.Time) (*Transaction, error)
}

// -------------- Service --------------

type Service struct {
	store Store
	clock Clock
	id    IDGen
}

func NewService(db *sql.DB) *Service {
	id := ulidGen{}
	return &Service{
		store: NewSQLStore(db, id),
		clock: realClock{},
		id:    id,
	}
}

// CreateBorrow は借り出しリクエストを pending で起票する。
// この時点では在庫を引かない（引き当ては承認時）。そのため複数の
// pending が在庫合計を超えることはあり得て、承認の先勝ちで決まる。
func (s *Service) CreateBorrow(ctx context.Context, actor Actor, req CreateBorrowRequest) (*TransactionResponse, error) {
	if req.Quantity <= 0 {
		return nil, apperr.ErrInvalid("quantity must be > 0")
	}
	if strings.TrimSpace(req.ItemULID) == "" {
		return nil, apperr.ErrInvalid("item_ulid is required")
	}
	if actor.UserID <= 0 {
		return nil, apperr.ErrUnauthorized("missing actor")
	}

	var due sql.NullTime
	if req.DueDate != nil && *req.DueDate != "" {
		parsed, err := time.Parse("2006-01-02", *req.DueDate)
		if err != nil {
			return nil, apperr.ErrInvalid("invalid due_date format, expected YYYY-MM-DD")
		}
		due = sql.NullTime{Time: parsed, Valid: true}
	}

	item, err := s.store.ResolveItem(ctx, req.ItemULID)
	if err != nil {
		return nil, err
	}
	// 先にチェックして分かりやすいエラーを返す。正当性はストア側が
	// ロック下で再判定する。
	if err := checkBorrowable(item, req.Quantity); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	t := &Transaction{
		TransactionULID: s.id.NewULID(now),
		Type:            TypeBorrow,
		Status:          StatusPending,
		ItemID:          item.ItemID,
		ItemULID:        item.ItemULID,
		UserID:          actor.UserID,
		Quantity:        req.Quantity,
		DueDate:         due,
		Reason:          toNullString(req.Reason),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.ExecCreate(ctx, t); err != nil {
		return nil, err
	}

	resp := buildResponse(t)
	return &resp, nil
}

// CreateTransfer は店舗間移動を pending で起票する。実移動は承認時。
func (s *Service) CreateTransfer(ctx context.Context, actor Actor, req CreateTransferRequest) (*TransactionResponse, error) {
	if !canRequestTransfer(actor.Role) {
		return nil, apperr.ErrUnauthorized("role cannot request transfers")
	}
	if req.Quantity <= 0 {
		return nil, apperr.ErrInvalid("quantity must be > 0")
	}
	if strings.TrimSpace(req.ItemULID) == "" || strings.TrimSpace(req.ToStoreULID) == "" {
		return nil, apperr.ErrInvalid("item_ulid and to_store_ulid are required")
	}

	item, err := s.store.ResolveItem(ctx, req.ItemULID)
	if err != nil {
		return nil, err
	}
	toStoreID, err := s.store.ResolveStore(ctx, req.ToStoreULID)
	if err != nil {
		return nil, err
	}
	if toStoreID == item.StoreID {
		return nil, apperr.ErrInvalid("destination store equals source store")
	}
	if err := checkBorrowable(item, req.Quantity); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	t := &Transaction{
		TransactionULID: s.id.NewULID(now),
		Type:            TypeTransfer,
		Status:          StatusPending,
		ItemID:          item.ItemID,
		ItemULID:        item.ItemULID,
		UserID:          actor.UserID,
		Quantity:        req.Quantity,
		Reason:          toNullString(req.Reason),
		FromStoreID:     sql.NullInt64{Int64: item.StoreID, Valid: true},
		ToStoreID:       sql.NullInt64{Int64: toStoreID, Valid: true},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.ExecCreate(ctx, t); err != nil {
		return nil, err
	}

	resp := buildResponse(t)
	return &resp, nil
}

// Approve は pending を approved にし、同一Txで在庫を引き当てる。
// 同一 item の承認は行ロックで直列化されるので、先に処理された方が勝つ。
// transfer の場合は移動を実行してそのまま completed まで進める。
func (s *Service) Approve(ctx context.Context, actor Actor, txnULID string) (*TransactionResponse, error) {
	if !canApprove(actor.Role) {
		return nil, apperr.ErrUnauthorized("role cannot approve")
	}

	t, err := s.store.ExecApprove(ctx, txnULID, actor.UserID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	resp := buildResponse(t)
	return &resp, nil
}

// Reject は pending を rejected にする。在庫には触らない（何も引き当てていない）。
func (s *Service) Reject(ctx context.Context, actor Actor, txnULID, reason string) (*TransactionResponse, error) {
	if !canApprove(actor.Role) {
		return nil, apperr.ErrUnauthorized("role cannot reject")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.ErrInvalid("reason is required")
	}

	t, err := s.store.ExecReject(ctx, txnULID, actor.UserID, reason, s.clock.Now())
	if err != nil {
		return nil, err
	}
	resp := buildResponse(t)
	return &resp, nil
}

// Return は approved の borrow を completed にし、同一Txで在庫を戻す。
func (s *Service) Return(ctx context.Context, actor Actor, txnULID string, req ReturnRequest) (*TransactionResponse, error) {
	if !validCondition(req.Condition) {
		return nil, apperr.ErrInvalid("condition must be good, damaged or lost")
	}

	notes := ""
	if req.Notes != nil {
		notes = *req.Notes
	}

	t, err := s.store.ExecReturn(ctx, txnULID, actor, req.Condition, notes, s.clock.Now())
	if err != nil {
		return nil, err
	}
	resp := buildResponse(t)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, actor Actor, txnULID string) (*TransactionResponse, error) {
	t, err := s.store.GetByULID(ctx, txnULID)
	if err != nil {
		return nil, err
	}
	// 一般従業員は自分の取引のみ閲覧可
	if actor.Role == auth.RoleEmployee && t.UserID != actor.UserID {
		return nil, apperr.ErrUnauthorized("cannot view other users' transactions")
	}
	resp := buildResponse(t)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, actor Actor, f Filter, p Page) (*ListResponse, error) {
	if actor.Role == auth.RoleEmployee {
		f.UserID = &actor.UserID
	}

	items, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return nil, err
	}

	out := make([]TransactionResponse, 0, len(items))
	for i := range items {
		out = append(out, buildResponse(&items[i]))
	}
	return &ListResponse{Items: out, Total: total}, nil
}

func toNullString(p *string) sql.NullString {
	if p == nil || *p == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
