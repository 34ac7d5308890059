package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ieventory-backend/internal/platform/apperr"
)

func TestReserve(t *testing.T) {
	tests := []struct {
		name       string
		quantity   int
		status     Status
		n          int
		wantQty    int
		wantStatus Status
		wantCode   apperr.Code
	}{
		{name: "normal", quantity: 5, status: StatusAvailable, n: 3, wantQty: 2, wantStatus: StatusAvailable},
		{name: "to zero sets reserved", quantity: 1, status: StatusAvailable, n: 1, wantQty: 0, wantStatus: StatusReserved},
		{name: "exact stock", quantity: 4, status: StatusAvailable, n: 4, wantQty: 0, wantStatus: StatusReserved},
		{name: "insufficient", quantity: 2, status: StatusAvailable, n: 3, wantCode: apperr.CodeInsufficientStock},
		{name: "zero stock insufficient", quantity: 0, status: StatusReserved, n: 1, wantCode: apperr.CodeInsufficientStock},
		{name: "zero n invalid", quantity: 5, status: StatusAvailable, n: 0, wantCode: apperr.CodeInvalidArgument},
		{name: "negative n invalid", quantity: 5, status: StatusAvailable, n: -1, wantCode: apperr.CodeInvalidArgument},
		{name: "maintenance keeps status", quantity: 3, status: StatusMaintenance, n: 3, wantQty: 0, wantStatus: StatusMaintenance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qty, st, err := Reserve(tt.quantity, tt.status, tt.n)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, apperr.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantQty, qty)
			assert.Equal(t, tt.wantStatus, st)
			assert.GreaterOrEqual(t, qty, 0)
		})
	}
}

func TestRelease(t *testing.T) {
	qty, st, err := Release(0, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, qty)
	assert.Equal(t, StatusAvailable, st)

	// 返却パスは常に available に戻す
	qty, st, err = Release(2, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, qty)
	assert.Equal(t, StatusAvailable, st)

	_, _, err = Release(1, 0)
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
}

// 引き当てて同量戻すと元の数量とステータスに戻る
func TestReserveReleaseRoundTrip(t *testing.T) {
	for _, start := range []int{1, 2, 5, 10} {
		for n := 1; n <= start; n++ {
			qty, _, err := Reserve(start, StatusAvailable, n)
			require.NoError(t, err)

			qty, st, err := Release(qty, n)
			require.NoError(t, err)
			assert.Equal(t, start, qty)
			assert.Equal(t, StatusAvailable, st)
		}
	}
}

// 合流先にできるのは通常状態の行だけ。maintenance/damaged/retired の行が
// 移動で勝手に available へ戻ることはない。
func TestCanMergeInto(t *testing.T) {
	assert.NoError(t, canMergeInto(StatusAvailable))
	assert.NoError(t, canMergeInto(StatusReserved))

	for _, s := range []Status{StatusMaintenance, StatusDamaged, StatusRetired} {
		err := canMergeInto(s)
		assert.Equal(t, apperr.CodeItemUnavailable, apperr.CodeOf(err), "status %s", s)
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []Status{StatusAvailable, StatusReserved, StatusMaintenance, StatusDamaged, StatusRetired} {
		assert.True(t, ValidStatus(s))
	}
	assert.False(t, ValidStatus("loaned"))
	assert.False(t, ValidStatus(""))
}
