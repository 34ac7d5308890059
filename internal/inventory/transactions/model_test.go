package transactions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ieventory-backend/internal/inventory/ledger"
	"ieventory-backend/internal/platform/apperr"
	"ieventory-backend/internal/platform/auth"
)

func TestStatusTransitions(t *testing.T) {
	all := []Status{StatusPending, StatusApproved, StatusRejected, StatusCompleted}

	allowed := map[Status]map[Status]bool{
		StatusPending:  {StatusApproved: true, StatusRejected: true},
		StatusApproved: {StatusCompleted: true},
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[from][to]
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusApproved.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.True(t, StatusCompleted.Terminal())

	// 終端状態からはどこにも遷移できない
	for _, from := range []Status{StatusRejected, StatusCompleted} {
		for _, to := range []Status{StatusPending, StatusApproved, StatusRejected, StatusCompleted} {
			assert.False(t, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestCheckBorrowable(t *testing.T) {
	tests := []struct {
		name     string
		status   ledger.Status
		quantity int
		n        int
		wantCode apperr.Code
	}{
		{name: "ok", status: ledger.StatusAvailable, quantity: 5, n: 3},
		{name: "exact", status: ledger.StatusAvailable, quantity: 3, n: 3},
		{name: "insufficient", status: ledger.StatusAvailable, quantity: 2, n: 3, wantCode: apperr.CodeInsufficientStock},
		{name: "maintenance", status: ledger.StatusMaintenance, quantity: 5, n: 1, wantCode: apperr.CodeItemUnavailable},
		{name: "damaged", status: ledger.StatusDamaged, quantity: 5, n: 1, wantCode: apperr.CodeItemUnavailable},
		{name: "retired", status: ledger.StatusRetired, quantity: 5, n: 1, wantCode: apperr.CodeItemUnavailable},
		{name: "reserved", status: ledger.StatusReserved, quantity: 0, n: 1, wantCode: apperr.CodeItemUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &ItemRef{Quantity: tt.quantity, Status: tt.status}
			err := checkBorrowable(item, tt.n)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantCode, apperr.CodeOf(err))
		})
	}
}

func TestCheckApprovable(t *testing.T) {
	assert.NoError(t, checkApprovable(&Transaction{Status: StatusPending}))
	for _, s := range []Status{StatusApproved, StatusRejected, StatusCompleted} {
		err := checkApprovable(&Transaction{Status: s})
		assert.Equal(t, apperr.CodeInvalidState, apperr.CodeOf(err), "status %s", s)
	}
}

func TestCheckReturnable(t *testing.T) {
	assert.NoError(t, checkReturnable(&Transaction{Type: TypeBorrow, Status: StatusApproved}))

	err := checkReturnable(&Transaction{Type: TypeTransfer, Status: StatusApproved})
	assert.Equal(t, apperr.CodeInvalidState, apperr.CodeOf(err))

	for _, s := range []Status{StatusPending, StatusRejected, StatusCompleted} {
		err := checkReturnable(&Transaction{Type: TypeBorrow, Status: s})
		assert.Equal(t, apperr.CodeInvalidState, apperr.CodeOf(err), "status %s", s)
	}
}

func TestCheckReturnActor(t *testing.T) {
	txn := &Transaction{UserID: 10}

	assert.NoError(t, checkReturnActor(txn, Actor{UserID: 10, Role: auth.RoleEmployee}))
	assert.NoError(t, checkReturnActor(txn, Actor{UserID: 99, Role: auth.RoleKeeper}))
	assert.NoError(t, checkReturnActor(txn, Actor{UserID: 99, Role: auth.RoleAdmin}))

	err := checkReturnActor(txn, Actor{UserID: 99, Role: auth.RoleEmployee})
	assert.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err))
	err = checkReturnActor(txn, Actor{UserID: 99, Role: auth.RoleDelivery})
	assert.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err))
}

func TestRoleGates(t *testing.T) {
	assert.True(t, canApprove(auth.RoleAdmin))
	assert.True(t, canApprove(auth.RoleKeeper))
	assert.False(t, canApprove(auth.RoleDelivery))
	assert.False(t, canApprove(auth.RoleEmployee))

	assert.True(t, canRequestTransfer(auth.RoleAdmin))
	assert.True(t, canRequestTransfer(auth.RoleKeeper))
	assert.True(t, canRequestTransfer(auth.RoleDelivery))
	assert.False(t, canRequestTransfer(auth.RoleEmployee))
}

func TestValidCondition(t *testing.T) {
	assert.True(t, validCondition(ConditionGood))
	assert.True(t, validCondition(ConditionDamaged))
	assert.True(t, validCondition(ConditionLost))
	assert.False(t, validCondition("broken"))
	assert.False(t, validCondition(""))
}

func TestReturnRestocks(t *testing.T) {
	assert.True(t, returnRestocks(ConditionGood))
	assert.True(t, returnRestocks(ConditionDamaged))
	// 紛失は現物が無いので棚に戻らない
	assert.False(t, returnRestocks(ConditionLost))
}
