package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every monetary column is stored with.
const Scale = 10

// Fixed renders a decimal the way monetary columns store it.
func Fixed(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}

// snapshot holds the column values of a record as of its last load or save.
type snapshot map[string]any

// changes returns the columns of current that differ from the snapshot.
// A nil snapshot means the record was never loaded, so every column counts.
func (s snapshot) changes(current map[string]any) map[string]any {
	changed := make(map[string]any)
	for col, value := range current {
		if s == nil {
			changed[col] = value
			continue
		}
		if !sameColumnValue(s[col], value) {
			changed[col] = value
		}
	}
	return changed
}

// sameColumnValue compares the driver-level values produced by Columns.
func sameColumnValue(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case uint64:
		bv, ok := b.(uint64)
		return ok && av == bv
	case CallStatus:
		bv, ok := b.(CallStatus)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case *time.Time:
		bv, ok := b.(*time.Time)
		if !ok {
			return false
		}
		if av == nil || bv == nil {
			return av == nil && bv == nil
		}
		return av.Equal(*bv)
	case nil:
		return b == nil
	}
	return false
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
