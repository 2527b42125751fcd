package history

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Ledger is the append-only store of event changes. Append takes the
// caller's transaction so the ledger entry commits or rolls back together
// with the live-record mutation it describes.
type Ledger interface {
	Append(tx *gorm.DB, eventID, userID uint64, kind ChangeKind, payload Payload) (*EventChange, error)
	List(ctx context.Context, eventID uint64) ([]EventChange, error)
	Get(ctx context.Context, eventID, version uint64) (*EventChange, error)
}

type LedgerImpl struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) Ledger {
	return &LedgerImpl{db: db}
}

// Append assigns the next version by bumping the event's change_seq counter
// with UPDATE ... RETURNING. The row lock taken by the update serializes
// concurrent appends to the same event, so versions stay exactly 1..N.
func (l *LedgerImpl) Append(tx *gorm.DB, eventID, userID uint64, kind ChangeKind, payload Payload) (*EventChange, error) {
	var version uint64
	if err := tx.Raw(`
		UPDATE events
		SET change_seq = change_seq + 1
		WHERE id = ?
		RETURNING change_seq
	`, eventID).Scan(&version).Error; err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, fmt.Errorf("event %d not found", eventID)
	}

	change := &EventChange{
		EventID:   eventID,
		UserID:    userID,
		Version:   version,
		Kind:      kind,
		Changes:   payload,
		ChangedAt: time.Now().UTC(),
	}
	if err := tx.Create(change).Error; err != nil {
		return nil, err
	}

	return change, nil
}

func (l *LedgerImpl) List(ctx context.Context, eventID uint64) ([]EventChange, error) {
	var changes []EventChange
	err := l.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("version ASC").
		Find(&changes).Error
	return changes, err
}

func (l *LedgerImpl) Get(ctx context.Context, eventID, version uint64) (*EventChange, error) {
	var change EventChange
	err := l.db.WithContext(ctx).
		Where("event_id = ? AND version = ?", eventID, version).
		First(&change).Error
	if err != nil {
		return nil, err
	}
	return &change, nil
}
