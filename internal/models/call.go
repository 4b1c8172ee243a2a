package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CallStatus is the lifecycle state of a call, stored as an enumerated column.
type CallStatus string

const (
	StatusAcquiring CallStatus = "acquiring"
	StatusActive    CallStatus = "active"
	StatusClosed    CallStatus = "closed"
)

// Valid reports whether s is one of the known statuses.
func (s CallStatus) Valid() bool {
	switch s {
	case StatusAcquiring, StatusActive, StatusClosed:
		return true
	}
	return false
}

// Name returns the upper-case display name, e.g. "ACTIVE".
func (s CallStatus) Name() string {
	switch s {
	case StatusAcquiring:
		return "ACQUIRING"
	case StatusActive:
		return "ACTIVE"
	case StatusClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// Value implements driver.Valuer.
func (s CallStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid call status %q", string(s))
	}
	return string(s), nil
}

// Scan implements sql.Scanner.
func (s *CallStatus) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into CallStatus", src)
	}
	status := CallStatus(raw)
	if !status.Valid() {
		return fmt.Errorf("invalid call status %q", raw)
	}
	*s = status
	return nil
}

// Call is one tracked position as stored in the crypto_calls table.
// Monetary columns are text so sqlite keeps the exact decimal.
type Call struct {
	ID                  uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Pair                string          `gorm:"size:30;not null;index" json:"pair"`
	Exchange            string          `gorm:"size:30;not null" json:"exchange"`
	EntryPrice          decimal.Decimal `gorm:"type:varchar(40);not null" json:"entry_price"`
	StopLoss            decimal.Decimal `gorm:"type:varchar(40);not null" json:"stop_loss"`
	Investment          decimal.Decimal `gorm:"type:varchar(40);not null" json:"investment"`
	Amount              decimal.Decimal `gorm:"type:varchar(40);not null" json:"amount"`
	Result              decimal.Decimal `gorm:"type:varchar(40);not null" json:"result"`
	Status              CallStatus      `gorm:"size:10;not null;default:'acquiring';index" json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
	ActivatedAt         *time.Time      `json:"activated_at,omitempty"`
	StopLossTriggeredAt *time.Time      `json:"stop_loss_triggered_at,omitempty"`
	ClosedAt            *time.Time      `json:"closed_at,omitempty"`

	saved snapshot
}

// TableName overrides the gorm table name.
func (Call) TableName() string {
	return "crypto_calls"
}

// Key returns the primary key.
func (c *Call) Key() uint64 {
	return c.ID
}

// Columns maps every persisted column to its driver value.
func (c *Call) Columns() map[string]any {
	return map[string]any{
		"pair":                   c.Pair,
		"exchange":               c.Exchange,
		"entry_price":            Fixed(c.EntryPrice),
		"stop_loss":              Fixed(c.StopLoss),
		"investment":             Fixed(c.Investment),
		"amount":                 Fixed(c.Amount),
		"result":                 Fixed(c.Result),
		"status":                 c.Status,
		"created_at":             c.CreatedAt,
		"activated_at":           cloneTime(c.ActivatedAt),
		"stop_loss_triggered_at": cloneTime(c.StopLossTriggeredAt),
		"closed_at":              cloneTime(c.ClosedAt),
	}
}

// Changes returns the columns modified since the last load or save.
func (c *Call) Changes() map[string]any {
	return c.saved.changes(c.Columns())
}

// MarkClean records the current column values as persisted.
func (c *Call) MarkClean() {
	c.saved = c.Columns()
}
