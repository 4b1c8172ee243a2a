package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TakeProfit is one take-profit batch of a call. Batches are evaluated in ID order.
type TakeProfit struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	CallID      uint64          `gorm:"not null;index" json:"call_id"`
	Amount      decimal.Decimal `gorm:"type:varchar(40);not null" json:"amount"`
	TargetPrice decimal.Decimal `gorm:"type:varchar(40);not null" json:"target_price"`
	Result      decimal.Decimal `gorm:"type:varchar(40);not null" json:"result"`
	TriggeredAt *time.Time      `json:"triggered_at,omitempty"`

	saved snapshot
}

// TableName overrides the gorm table name.
func (TakeProfit) TableName() string {
	return "take_profits"
}

// Key returns the primary key.
func (t *TakeProfit) Key() uint64 {
	return t.ID
}

// Triggered reports whether the batch has been realized.
func (t *TakeProfit) Triggered() bool {
	return t.TriggeredAt != nil
}

// Columns maps every persisted column to its driver value.
func (t *TakeProfit) Columns() map[string]any {
	return map[string]any{
		"call_id":      t.CallID,
		"amount":       Fixed(t.Amount),
		"target_price": Fixed(t.TargetPrice),
		"result":       Fixed(t.Result),
		"triggered_at": cloneTime(t.TriggeredAt),
	}
}

// Changes returns the columns modified since the last load or save.
func (t *TakeProfit) Changes() map[string]any {
	return t.saved.changes(t.Columns())
}

// MarkClean records the current column values as persisted.
func (t *TakeProfit) MarkClean() {
	t.saved = t.Columns()
}
