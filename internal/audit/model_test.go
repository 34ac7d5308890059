package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot(t *testing.T) {
	got := Snapshot(map[string]any{"status": "approved", "quantity": 2})
	assert.True(t, got.Valid)
	assert.JSONEq(t, `{"status":"approved","quantity":2}`, got.String)

	assert.False(t, Snapshot(nil).Valid)

	// JSON化できない値は NULL に落とす
	assert.False(t, Snapshot(func() {}).Valid)
}

func TestNullUserID(t *testing.T) {
	got := NullUserID(7)
	assert.True(t, got.Valid)
	assert.Equal(t, int64(7), got.Int64)

	// システム操作（自動却下など）は NULL
	assert.False(t, NullUserID(0).Valid)
	assert.False(t, NullUserID(-1).Valid)
}
