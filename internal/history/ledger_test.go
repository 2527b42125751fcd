package history

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// minimal stand-in for the live events table the version counter lives on
type eventRow struct {
	ID        uint64 `gorm:"primaryKey"`
	Title     string
	ChangeSeq uint64
}

func (eventRow) TableName() string { return "events" }

func newLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	// one connection, so every statement sees the same in-memory database
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&eventRow{}, &EventChange{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func appendInTx(t *testing.T, db *gorm.DB, ledger Ledger, eventID, userID uint64, kind ChangeKind, payload Payload) (*EventChange, error) {
	t.Helper()
	var change *EventChange
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		change, err = ledger.Append(tx, eventID, userID, kind, payload)
		return err
	})
	return change, err
}

func TestAppend_VersionsAreExactlyOneToN(t *testing.T) {
	db := newLedgerDB(t)
	assert.NoError(t, db.Create(&eventRow{ID: 1, Title: "Standup"}).Error)
	ledger := NewLedger(db)

	titles := []string{"Standup", "Daily Standup", "Planning"}
	for i, title := range titles {
		payload := Payload{Fields: map[string]FieldDelta{"title": {New: title}}}
		change, err := appendInTx(t, db, ledger, 1, 7, KindUpdate, payload)
		assert.NoError(t, err)
		assert.Equal(t, uint64(i+1), change.Version)
	}

	changes, err := ledger.List(context.Background(), 1)
	assert.NoError(t, err)
	assert.Len(t, changes, 3)
	for i, change := range changes {
		assert.Equal(t, uint64(i+1), change.Version)
	}

	var row eventRow
	assert.NoError(t, db.First(&row, 1).Error)
	assert.Equal(t, uint64(3), row.ChangeSeq)
}

func TestAppend_IndependentEventsKeepSeparateCounters(t *testing.T) {
	db := newLedgerDB(t)
	assert.NoError(t, db.Create(&eventRow{ID: 1, Title: "Standup"}).Error)
	assert.NoError(t, db.Create(&eventRow{ID: 2, Title: "Planning"}).Error)
	ledger := NewLedger(db)

	first, err := appendInTx(t, db, ledger, 1, 7, KindCreate, Payload{})
	assert.NoError(t, err)
	second, err := appendInTx(t, db, ledger, 2, 7, KindCreate, Payload{})
	assert.NoError(t, err)

	assert.Equal(t, uint64(1), first.Version)
	assert.Equal(t, uint64(1), second.Version)
}

func TestAppend_UnknownEventRejected(t *testing.T) {
	db := newLedgerDB(t)
	ledger := NewLedger(db)

	_, err := appendInTx(t, db, ledger, 99, 7, KindUpdate, Payload{})
	assert.Error(t, err)

	var count int64
	assert.NoError(t, db.Model(&EventChange{}).Count(&count).Error)
	assert.Zero(t, count)
}

// A failed transaction takes both the counter bump and the ledger row with
// it, so the next append still produces a gapless sequence.
func TestAppend_RolledBackTransactionLeavesNoTrace(t *testing.T) {
	db := newLedgerDB(t)
	assert.NoError(t, db.Create(&eventRow{ID: 1, Title: "Standup"}).Error)
	ledger := NewLedger(db)

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := ledger.Append(tx, 1, 7, KindUpdate, Payload{}); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.Error(t, err)

	changes, err := ledger.List(context.Background(), 1)
	assert.NoError(t, err)
	assert.Empty(t, changes)

	var row eventRow
	assert.NoError(t, db.First(&row, 1).Error)
	assert.Zero(t, row.ChangeSeq)

	change, err := appendInTx(t, db, ledger, 1, 7, KindUpdate, Payload{})
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), change.Version)
}

func TestGet_RoundTripsPayload(t *testing.T) {
	db := newLedgerDB(t)
	assert.NoError(t, db.Create(&eventRow{ID: 1, Title: "Standup"}).Error)
	ledger := NewLedger(db)

	payload := Payload{Fields: map[string]FieldDelta{
		"title": {Old: "Standup", New: "Daily Standup"},
	}}
	_, err := appendInTx(t, db, ledger, 1, 7, KindUpdate, payload)
	assert.NoError(t, err)

	change, err := ledger.Get(context.Background(), 1, 1)
	assert.NoError(t, err)
	assert.Equal(t, KindUpdate, change.Kind)
	v, ok := change.Changes.RecordedValue("title")
	assert.True(t, ok)
	assert.Equal(t, "Daily Standup", v)

	_, err = ledger.Get(context.Background(), 1, 9)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
