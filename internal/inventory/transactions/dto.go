package transactions

import "time"

// 借り出しリクエスト（borrower は JWT の操作者）
type CreateBorrowRequest struct {
	ItemULID string  `json:"item_ulid" binding:"required"`
	Quantity int     `json:"quantity" binding:"required"`
	// "2006-01-02" 形式の文字列を想定（DATE）
	DueDate *string `json:"due_date,omitempty"`
	Reason  *string `json:"reason,omitempty"`
}

// 店舗間移動リクエスト（delivery / keeper / admin）
type CreateTransferRequest struct {
	ItemULID    string `json:"item_ulid" binding:"required"`
	ToStoreULID string `json:"to_store_ulid" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required"`
	Reason      *string `json:"reason,omitempty"`
}

type RejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type ReturnRequest struct {
	Condition string  `json:"condition" binding:"required"` // good / damaged / lost
	Notes     *string `json:"notes,omitempty"`
}

type TransactionResponse struct {
	TransactionULID string     `json:"transaction_ulid"`
	Type            Type       `json:"type"`
	Status          Status     `json:"status"`
	ItemULID        string     `json:"item_ulid"`
	UserID          int64      `json:"user_id"`
	Quantity        int        `json:"quantity"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	Reason          *string    `json:"reason,omitempty"`
	FromStoreID     *int64     `json:"from_store_id,omitempty"`
	ToStoreID       *int64     `json:"to_store_id,omitempty"`
	ApprovedBy      *int64     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	ReturnCondition *string    `json:"return_condition,omitempty"`
	ReturnNotes     *string    `json:"return_notes,omitempty"`
	ReturnedAt      *time.Time `json:"returned_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type ListResponse struct {
	Items []TransactionResponse `json:"items"`
	Total int64                 `json:"total"`
}

func buildResponse(t *Transaction) TransactionResponse {
	resp := TransactionResponse{
		TransactionULID: t.TransactionULID,
		Type:            t.Type,
		Status:          t.Status,
		ItemULID:        t.ItemULID,
		UserID:          t.UserID,
		Quantity:        t.Quantity,
		CreatedAt:       t.CreatedAt,
	}
	if t.DueDate.Valid {
		v := t.DueDate.Time
		resp.DueDate = &v
	}
	if t.Reason.Valid {
		v := t.Reason.String
		resp.Reason = &v
	}
	if t.FromStoreID.Valid {
		v := t.FromStoreID.Int64
		resp.FromStoreID = &v
	}
	if t.ToStoreID.Valid {
		v := t.ToStoreID.Int64
		resp.ToStoreID = &v
	}
	if t.ApprovedBy.Valid {
		v := t.ApprovedBy.Int64
		resp.ApprovedBy = &v
	}
	if t.ApprovedAt.Valid {
		v := t.ApprovedAt.Time
		resp.ApprovedAt = &v
	}
	if t.RejectionReason.Valid {
		v := t.RejectionReason.String
		resp.RejectionReason = &v
	}
	if t.ReturnCondition.Valid {
		v := t.ReturnCondition.String
		resp.ReturnCondition = &v
	}
	if t.ReturnNotes.Valid {
		v := t.ReturnNotes.String
		resp.ReturnNotes = &v
	}
	if t.ReturnedAt.Valid {
		v := t.ReturnedAt.Time
		resp.ReturnedAt = &v
	}
	return resp
}
