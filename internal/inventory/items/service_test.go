package items

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ieventory-backend/internal/inventory/ledger"
	"ieventory-backend/internal/platform/apperr"
)

func TestIsLowStock(t *testing.T) {
	assert.True(t, isLowStock(2, 3))
	assert.False(t, isLowStock(3, 3))
	assert.False(t, isLowStock(5, 3))
	// min=0 は閾値なし
	assert.False(t, isLowStock(0, 0))
}

func TestValidateStockLevels(t *testing.T) {
	tests := []struct {
		name    string
		min     int
		max     int
		wantErr bool
	}{
		{name: "both zero", min: 0, max: 0},
		{name: "min only", min: 3, max: 0}, // max=0 は上限なし
		{name: "min below max", min: 2, max: 10},
		{name: "equal", min: 5, max: 5},
		{name: "max below min", min: 5, max: 3, wantErr: true},
		{name: "negative min", min: -1, max: 0, wantErr: true},
		{name: "negative max", min: 0, max: -1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateStockLevels(tt.min, tt.max)
			if tt.wantErr {
				assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, ledger.StatusAvailable, initialStatus(5))
	assert.Equal(t, ledger.StatusAvailable, initialStatus(1))
	assert.Equal(t, ledger.StatusReserved, initialStatus(0))
}

func TestCanManualStatus(t *testing.T) {
	tests := []struct {
		name     string
		current  ledger.Status
		quantity int
		next     ledger.Status
		wantCode apperr.Code
	}{
		{name: "to maintenance", current: ledger.StatusAvailable, quantity: 3, next: ledger.StatusMaintenance},
		{name: "to damaged", current: ledger.StatusAvailable, quantity: 3, next: ledger.StatusDamaged},
		{name: "back to available", current: ledger.StatusMaintenance, quantity: 3, next: ledger.StatusAvailable},
		{name: "unknown status", current: ledger.StatusAvailable, quantity: 3, next: "loaned", wantCode: apperr.CodeInvalidArgument},
		{name: "reserved not settable", current: ledger.StatusAvailable, quantity: 3, next: ledger.StatusReserved, wantCode: apperr.CodeInvalidArgument},
		{name: "retired not settable", current: ledger.StatusAvailable, quantity: 3, next: ledger.StatusRetired, wantCode: apperr.CodeInvalidArgument},
		{name: "retired is frozen", current: ledger.StatusRetired, quantity: 0, next: ledger.StatusMaintenance, wantCode: apperr.CodeInvalidState},
		{name: "available needs stock", current: ledger.StatusMaintenance, quantity: 0, next: ledger.StatusAvailable, wantCode: apperr.CodeInvalidState},
		{name: "no-op", current: ledger.StatusMaintenance, quantity: 3, next: ledger.StatusMaintenance, wantCode: apperr.CodeInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := canManualStatus(tt.current, tt.quantity, tt.next)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantCode, apperr.CodeOf(err))
		})
	}
}

// 未完了の取引がある間だけ削除をブロックする。完了・却下済みの
// 貸出履歴があっても削除は通る（履歴側は外部キーを持たない）。
func TestCheckDeletable(t *testing.T) {
	assert.NoError(t, checkDeletable(0))

	err := checkDeletable(1)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
	err = checkDeletable(3)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
}

func TestAdjustApply(t *testing.T) {
	tests := []struct {
		name       string
		quantity   int
		status     ledger.Status
		delta      int
		wantQty    int
		wantStatus ledger.Status
		wantCode   apperr.Code
	}{
		{name: "restock", quantity: 3, status: ledger.StatusAvailable, delta: 2, wantQty: 5, wantStatus: ledger.StatusAvailable},
		{name: "restock revives reserved", quantity: 0, status: ledger.StatusReserved, delta: 4, wantQty: 4, wantStatus: ledger.StatusAvailable},
		{name: "restock keeps maintenance", quantity: 1, status: ledger.StatusMaintenance, delta: 2, wantQty: 3, wantStatus: ledger.StatusMaintenance},
		{name: "shrink", quantity: 5, status: ledger.StatusAvailable, delta: -2, wantQty: 3, wantStatus: ledger.StatusAvailable},
		{name: "shrink to zero reserves", quantity: 2, status: ledger.StatusAvailable, delta: -2, wantQty: 0, wantStatus: ledger.StatusReserved},
		{name: "shrink below zero", quantity: 2, status: ledger.StatusAvailable, delta: -3, wantCode: apperr.CodeInsufficientStock},
		{name: "retired frozen", quantity: 2, status: ledger.StatusRetired, delta: 1, wantCode: apperr.CodeInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qty, st, err := adjustApply(tt.quantity, tt.status, tt.delta)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, apperr.CodeOf(err))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantQty, qty)
			assert.Equal(t, tt.wantStatus, st)
		})
	}
}
