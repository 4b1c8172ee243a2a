package store

import (
	"context"
	"fmt"

	"crypto-call-bot-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CallStore persists calls together with their take-profit batches.
type CallStore struct {
	db          *gorm.DB
	logger      *zap.Logger
	calls       *Table[models.Call, *models.Call]
	takeProfits *Table[models.TakeProfit, *models.TakeProfit]
}

// NewCallStore creates a CallStore on top of an opened database.
func NewCallStore(db *gorm.DB, logger *zap.Logger) *CallStore {
	logger = logger.Named("store")
	return &CallStore{
		db:          db,
		logger:      logger,
		calls:       NewTable[models.Call](db, logger),
		takeProfits: NewTable[models.TakeProfit](db, logger),
	}
}

// InsertCall creates the call and its batches in one transaction and assigns their IDs.
func (s *CallStore) InsertCall(ctx context.Context, call *models.Call, takeProfits []*models.TakeProfit) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := insert(tx, call); err != nil {
			return err
		}
		for _, tp := range takeProfits {
			tp.CallID = call.ID
			if err := insert(tx, tp); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	call.MarkClean()
	for _, tp := range takeProfits {
		tp.MarkClean()
	}
	return nil
}

// GetCall loads a call by ID. It returns ErrNotFound when it does not exist.
func (s *CallStore) GetCall(ctx context.Context, id uint64) (*models.Call, error) {
	return s.calls.GetByID(ctx, id)
}

// TakeProfits returns the batches of a call in evaluation order.
func (s *CallStore) TakeProfits(ctx context.Context, callID uint64) ([]*models.TakeProfit, error) {
	return s.takeProfits.GetBySelect(ctx, Filter{"call_id": callID})
}

// OpenCalls returns every call that is not closed.
func (s *CallStore) OpenCalls(ctx context.Context) ([]*models.Call, error) {
	return s.calls.GetByExclude(ctx, Filter{"status": models.StatusClosed})
}

// ClosedCalls returns every closed call.
func (s *CallStore) ClosedCalls(ctx context.Context) ([]*models.Call, error) {
	return s.calls.GetBySelect(ctx, Filter{"status": models.StatusClosed})
}

// ListCalls returns every call, newest first.
func (s *CallStore) ListCalls(ctx context.Context) ([]*models.Call, error) {
	var calls []*models.Call
	if err := s.db.WithContext(ctx).Order("created_at desc").Find(&calls).Error; err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	for _, c := range calls {
		c.MarkClean()
	}
	return calls, nil
}

// SaveCall writes the changed columns of the call and its batches in one transaction.
// Nothing is marked clean when the transaction fails, so a later save retries.
func (s *CallStore) SaveCall(ctx context.Context, call *models.Call, takeProfits []*models.TakeProfit) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := save(tx, call, s.logger); err != nil {
			return err
		}
		for _, tp := range takeProfits {
			if err := save(tx, tp, s.logger); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	call.MarkClean()
	for _, tp := range takeProfits {
		tp.MarkClean()
	}
	return nil
}
