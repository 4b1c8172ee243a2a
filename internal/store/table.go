package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no record matches the requested key.
var ErrNotFound = errors.New("record not found")

// Record is a persisted entity with an explicit column mapping.
type Record interface {
	TableName() string
	Key() uint64
	Columns() map[string]any
	Changes() map[string]any
	MarkClean()
}

// Filter selects records by column equality. Keys must be column names of the record.
type Filter map[string]any

// Table provides the CRUD contract for one record type.
type Table[T any, P interface {
	*T
	Record
}] struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewTable creates a table accessor for the record type T.
func NewTable[T any, P interface {
	*T
	Record
}](db *gorm.DB, logger *zap.Logger) *Table[T, P] {
	return &Table[T, P]{db: db, logger: logger}
}

func (t *Table[T, P]) name() string {
	var zero T
	return P(&zero).TableName()
}

// Insert creates the record; the database assigns its ID.
func (t *Table[T, P]) Insert(ctx context.Context, rec P) error {
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insert(tx, rec)
	})
	if err != nil {
		return err
	}
	rec.MarkClean()
	return nil
}

// GetByID loads the record with the given ID, or returns ErrNotFound.
func (t *Table[T, P]) GetByID(ctx context.Context, id uint64) (P, error) {
	var rec T
	err := t.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s %d: %w", t.name(), id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %d: %w", t.name(), id, err)
	}
	p := P(&rec)
	p.MarkClean()
	return p, nil
}

// GetBySelect returns every record whose columns equal the filter values, in ID order.
func (t *Table[T, P]) GetBySelect(ctx context.Context, filter Filter) ([]P, error) {
	return t.find(ctx, filter, "=")
}

// GetByExclude returns every record whose columns all differ from the filter values, in ID order.
func (t *Table[T, P]) GetByExclude(ctx context.Context, filter Filter) ([]P, error) {
	return t.find(ctx, filter, "<>")
}

func (t *Table[T, P]) find(ctx context.Context, filter Filter, op string) ([]P, error) {
	var zero T
	known := P(&zero).Columns()

	// Sorted so the generated SQL is stable.
	cols := make([]string, 0, len(filter))
	for col := range filter {
		if _, ok := known[col]; !ok && col != "id" {
			return nil, fmt.Errorf("unknown column %q for %s", col, t.name())
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	q := t.db.WithContext(ctx)
	for _, col := range cols {
		q = q.Where(fmt.Sprintf("%s %s ?", col, op), filter[col])
	}

	var rows []T
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.name(), err)
	}

	out := make([]P, 0, len(rows))
	for i := range rows {
		p := P(&rows[i])
		p.MarkClean()
		out = append(out, p)
	}
	return out, nil
}

// Save writes the columns changed since the record was loaded or last saved.
func (t *Table[T, P]) Save(ctx context.Context, rec P) error {
	if err := save(t.db.WithContext(ctx), rec, t.logger); err != nil {
		return err
	}
	rec.MarkClean()
	return nil
}

// insert creates the row to obtain its ID, then rewrites every column from the
// record's column map so stored values match what save writes. Run it inside a
// transaction.
func insert(db *gorm.DB, rec Record) error {
	if err := db.Create(rec).Error; err != nil {
		return fmt.Errorf("failed to insert into %s: %w", rec.TableName(), err)
	}
	if err := db.Table(rec.TableName()).Where("id = ?", rec.Key()).Updates(rec.Columns()).Error; err != nil {
		return fmt.Errorf("failed to write columns of %s %d: %w", rec.TableName(), rec.Key(), err)
	}
	return nil
}

// save does not mark the record clean so callers can defer that until commit.
func save(db *gorm.DB, rec Record, logger *zap.Logger) error {
	changes := rec.Changes()
	if len(changes) == 0 {
		logger.Debug("No changes detected, skipping update",
			zap.String("table", rec.TableName()), zap.Uint64("id", rec.Key()))
		return nil
	}
	if rec.Key() == 0 {
		return fmt.Errorf("cannot save %s without an id", rec.TableName())
	}

	res := db.Table(rec.TableName()).Where("id = ?", rec.Key()).Updates(changes)
	if res.Error != nil {
		return fmt.Errorf("failed to update %s %d: %w", rec.TableName(), rec.Key(), res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s %d: %w", rec.TableName(), rec.Key(), ErrNotFound)
	}
	return nil
}
