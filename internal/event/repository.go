package event

import (
	"context"
	"event-scheduler/internal/errors"
	"event-scheduler/internal/history"
	"event-scheduler/internal/role"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type EventRepository interface {
	Create(ctx context.Context, userID uint64, ev *Event) error
	CreateBatch(ctx context.Context, userID uint64, events []*Event) error
	Update(ctx context.Context, eventID, userID uint64, changes map[string]any) (*Event, error)
	Delete(ctx context.Context, eventID, userID uint64) error
	ListForUser(ctx context.Context, userID uint64, page, pageSize int, start, end *time.Time) ([]Event, EventsMeta, error)
	FindForUser(ctx context.Context, eventID, userID uint64) (*Event, error)
	FindByID(ctx context.Context, eventID uint64) (*Event, error)
	CountConflicts(ctx context.Context, userID uint64, start, end time.Time) (int64, error)
	ResolveRole(ctx context.Context, eventID, userID uint64) (role.Role, bool, error)
	Permissions(ctx context.Context, eventID uint64) ([]EventPermission, error)
	GetPermission(ctx context.Context, eventID, userID uint64) (*EventPermission, error)
	UpsertPermission(ctx context.Context, eventID, targetID uint64, newRole role.Role, grantedBy uint64) (*EventPermission, error)
	RemovePermission(ctx context.Context, eventID, targetID uint64, removedBy uint64) error
	ApplyRollback(ctx context.Context, eventID, userID uint64, target *history.EventChange) (*history.EventChange, error)
}

type EventRepositoryImpl struct {
	db     *gorm.DB
	ledger history.Ledger
}

// NewRepository creates a new event repository
func NewRepository(db *gorm.DB, ledger history.Ledger) EventRepository {
	return &EventRepositoryImpl{db: db, ledger: ledger}
}

// Create inserts the event, grants the creator owner permission and appends
// the create ledger entry, all in one transaction.
func (r *EventRepositoryImpl) Create(ctx context.Context, userID uint64, ev *Event) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.createInTx(tx, userID, ev)
	})
}

func (r *EventRepositoryImpl) createInTx(tx *gorm.DB, userID uint64, ev *Event) error {
	now := time.Now().UTC()
	ev.CreatedBy = userID
	ev.CreatedAt = now
	ev.UpdatedAt = now

	if err := tx.Create(ev).Error; err != nil {
		return err
	}

	permission := EventPermission{
		EventID:   ev.ID,
		UserID:    userID,
		Role:      role.Owner.String(),
		GrantedAt: now,
	}
	if err := tx.Create(&permission).Error; err != nil {
		return err
	}

	diff := history.ComputeDiff(map[string]any{}, ev.fullSnapshot())
	_, err := r.ledger.Append(tx, ev.ID, userID, history.KindCreate, history.Payload{Fields: diff})
	return err
}

// CreateBatch creates all events in a single transaction with the conflict
// check applied per item, so one conflicting item aborts the whole batch.
func (r *EventRepositoryImpl) CreateBatch(ctx context.Context, userID uint64, events []*Event) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, ev := range events {
			conflicts, err := countConflicts(tx, userID, ev.StartTime, ev.EndTime)
			if err != nil {
				return err
			}
			if conflicts > 0 {
				return errors.Conflict(
					fmt.Sprintf("Event %d conflicts with existing events", i),
					nil,
				)
			}
			if err := r.createInTx(tx, userID, ev); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update snapshots the full current state, applies only the submitted
// fields and appends the update diff. Untouched fields never appear in the
// diff even when they differ elsewhere.
func (r *EventRepositoryImpl) Update(ctx context.Context, eventID, userID uint64, changes map[string]any) (*Event, error) {
	var ev Event
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ev, eventID).Error; err != nil {
			return err
		}

		oldSnapshot := ev.fullSnapshot()

		ev.apply(changes)
		ev.UpdatedAt = time.Now().UTC()
		if err := persistEvent(tx, &ev).Error; err != nil {
			return err
		}

		diff := history.ComputeDiff(oldSnapshot, changes)
		_, err := r.ledger.Append(tx, eventID, userID, history.KindUpdate, history.Payload{Fields: diff})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// persistEvent writes the mutated struct back without touching change_seq.
// The struct carries the counter as read at the start of the transaction;
// writing it back would regress bumps committed by concurrent transactions
// in the meantime. The counter has exactly one writer, Ledger.Append.
func persistEvent(tx *gorm.DB, ev *Event) *gorm.DB {
	return tx.Omit("change_seq").Save(ev)
}

// Delete writes the tombstone ledger entry before removing the permissions
// and the event row. Order matters: once the row is gone the snapshot is
// unrecoverable from the live table.
func (r *EventRepositoryImpl) Delete(ctx context.Context, eventID, userID uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ev Event
		if err := tx.First(&ev, eventID).Error; err != nil {
			return err
		}

		payload := history.Payload{Snapshot: ev.deleteSnapshot()}
		if _, err := r.ledger.Append(tx, eventID, userID, history.KindDelete, payload); err != nil {
			return err
		}

		if err := tx.Where("event_id = ?", eventID).Delete(&EventPermission{}).Error; err != nil {
			return err
		}

		return tx.Delete(&Event{}, eventID).Error
	})
}

type EventsMeta struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	TotalPage   int   `json:"total_page"`
}

func permissionJoin(db *gorm.DB, userID uint64) *gorm.DB {
	return db.Model(&Event{}).
		Joins("JOIN event_permissions ON event_permissions.event_id = events.id").
		Where("event_permissions.user_id = ?", userID)
}

func (r *EventRepositoryImpl) ListForUser(ctx context.Context, userID uint64, page, pageSize int, start, end *time.Time) ([]Event, EventsMeta, error) {
	var events []Event
	var totalRecords int64

	query := permissionJoin(r.db.WithContext(ctx), userID)
	if start != nil {
		query = query.Where("events.start_time >= ?", *start)
	}
	if end != nil {
		query = query.Where("events.end_time <= ?", *end)
	}

	if err := query.Count(&totalRecords).Error; err != nil {
		return events, EventsMeta{}, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("events.start_time ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&events).Error

	totalPages := int((totalRecords + int64(pageSize) - 1) / int64(pageSize))

	return events, EventsMeta{
		Total:       totalRecords,
		PerPage:     pageSize,
		TotalPage:   totalPages,
		CurrentPage: page,
	}, err
}

func (r *EventRepositoryImpl) FindForUser(ctx context.Context, eventID, userID uint64) (*Event, error) {
	var ev Event
	err := permissionJoin(r.db.WithContext(ctx), userID).
		Where("events.id = ?", eventID).
		First(&ev).Error
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *EventRepositoryImpl) FindByID(ctx context.Context, eventID uint64) (*Event, error) {
	var ev Event
	err := r.db.WithContext(ctx).First(&ev, eventID).Error
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func countConflicts(db *gorm.DB, userID uint64, start, end time.Time) (int64, error) {
	var count int64
	// half-open interval intersection
	err := permissionJoin(db, userID).
		Where("events.start_time < ? AND events.end_time > ?", end, start).
		Count(&count).Error
	return count, err
}

func (r *EventRepositoryImpl) CountConflicts(ctx context.Context, userID uint64, start, end time.Time) (int64, error) {
	return countConflicts(r.db.WithContext(ctx), userID, start, end)
}

func (r *EventRepositoryImpl) ResolveRole(ctx context.Context, eventID, userID uint64) (role.Role, bool, error) {
	var stored string
	err := r.db.WithContext(ctx).Model(&EventPermission{}).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Select("role").
		Scan(&stored).Error
	if err != nil {
		return role.Viewer, false, err
	}
	if stored == "" {
		return role.Viewer, false, nil
	}

	resolved, err := role.Parse(stored)
	if err != nil {
		return role.Viewer, false, err
	}
	return resolved, true, nil
}

func (r *EventRepositoryImpl) Permissions(ctx context.Context, eventID uint64) ([]EventPermission, error) {
	var permissions []EventPermission
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Find(&permissions).Error
	return permissions, err
}

func (r *EventRepositoryImpl) GetPermission(ctx context.Context, eventID, userID uint64) (*EventPermission, error) {
	var permission EventPermission
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		First(&permission).Error
	if err != nil {
		return nil, err
	}
	return &permission, nil
}

// UpsertPermission grants or changes the target's role and records a
// permission_change ledger entry when the role actually changed.
func (r *EventRepositoryImpl) UpsertPermission(ctx context.Context, eventID, targetID uint64, newRole role.Role, grantedBy uint64) (*EventPermission, error) {
	var permission EventPermission
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		oldValues := map[string]any{}

		err := tx.Where("event_id = ? AND user_id = ?", eventID, targetID).
			First(&permission).Error
		switch {
		case err == nil:
			oldValues = map[string]any{"user_id": targetID, "role": permission.Role}
			permission.Role = newRole.String()
			if err := tx.Save(&permission).Error; err != nil {
				return err
			}
		case err == gorm.ErrRecordNotFound:
			permission = EventPermission{
				EventID:   eventID,
				UserID:    targetID,
				Role:      newRole.String(),
				GrantedAt: time.Now().UTC(),
			}
			if err := tx.Create(&permission).Error; err != nil {
				return err
			}
		default:
			return err
		}

		newValues := map[string]any{"user_id": targetID, "role": newRole.String()}
		diff := history.ComputeDiff(oldValues, newValues)
		if len(diff) == 0 {
			return nil
		}
		_, err = r.ledger.Append(tx, eventID, grantedBy, history.KindPermissionChange, history.Payload{Fields: diff})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &permission, nil
}

func (r *EventRepositoryImpl) RemovePermission(ctx context.Context, eventID, targetID uint64, removedBy uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var permission EventPermission
		if err := tx.Where("event_id = ? AND user_id = ?", eventID, targetID).
			First(&permission).Error; err != nil {
			return err
		}

		if err := tx.Delete(&permission).Error; err != nil {
			return err
		}

		diff := history.ComputeDiff(
			map[string]any{"user_id": targetID, "role": permission.Role},
			map[string]any{"user_id": nil, "role": nil},
		)
		_, err := r.ledger.Append(tx, eventID, removedBy, history.KindPermissionChange, history.Payload{Fields: diff})
		return err
	})
}

// eventColumns whitelists the payload fields that may be written back onto
// the events table during rollback. Anything else (permission_change
// payload keys in particular) is skipped.
var eventColumns = map[string]string{
	"title":              "title",
	"description":        "description",
	"start_time":         "start_time",
	"end_time":           "end_time",
	"location":           "location",
	"is_recurring":       "is_recurring",
	"recurrence_pattern": "recurrence_pattern",
}

// ApplyRollback writes the target version's recorded values onto the live
// row and appends the rollback entry in the same transaction. No conflict
// check runs here.
func (r *EventRepositoryImpl) ApplyRollback(ctx context.Context, eventID, userID uint64, target *history.EventChange) (*history.EventChange, error) {
	var change *history.EventChange
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates, err := rollbackColumns(target.Changes)
		if err != nil {
			return err
		}
		updates["updated_at"] = time.Now().UTC()

		result := tx.Model(&Event{}).Where("id = ?", eventID).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		payload := history.Payload{
			RolledBackFrom: target.Version,
			Changes:        &target.Changes,
		}
		change, err = r.ledger.Append(tx, eventID, userID, history.KindRollback, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// rollbackColumns flattens a recorded payload into column updates. Delete
// tombstones apply their snapshot directly, field payloads apply each
// delta's new value, rollback payloads delegate to the wrapped target.
func rollbackColumns(p history.Payload) (map[string]any, error) {
	source := map[string]any{}
	switch {
	case p.Changes != nil:
		return rollbackColumns(*p.Changes)
	case p.Snapshot != nil:
		source = p.Snapshot
	default:
		for field, delta := range p.Fields {
			source[field] = delta.New
		}
	}

	updates := make(map[string]any)
	for field, value := range source {
		column, ok := eventColumns[field]
		if !ok {
			continue
		}
		normalized, err := normalizeColumn(field, value)
		if err != nil {
			return nil, errors.UnprocessableEntity("Can't apply recorded value for "+field, err)
		}
		updates[column] = normalized
	}
	return updates, nil
}

// normalizeColumn converts json-decoded payload values back into the types
// the events table expects. Timestamps round-trip through RFC3339 strings.
func normalizeColumn(field string, value any) (any, error) {
	switch field {
	case "start_time", "end_time":
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case string:
			return time.Parse(time.RFC3339, v)
		}
		return nil, fmt.Errorf("unexpected %s value %T", field, value)
	case "recurrence_pattern":
		if value == nil {
			return Pattern(nil), nil
		}
		if m, ok := value.(map[string]any); ok {
			return Pattern(m), nil
		}
		return nil, fmt.Errorf("unexpected recurrence_pattern value %T", value)
	}
	return value, nil
}

func (e *Event) apply(changes map[string]any) {
	for field, value := range changes {
		switch field {
		case "title":
			e.Title = value.(string)
		case "description":
			e.Description = value.(string)
		case "start_time":
			e.StartTime = value.(time.Time)
		case "end_time":
			e.EndTime = value.(time.Time)
		case "location":
			if s, ok := value.(string); ok {
				e.Location = &s
			} else {
				e.Location = nil
			}
		case "is_recurring":
			e.IsRecurring = value.(bool)
		case "recurrence_pattern":
			if m, ok := value.(map[string]any); ok {
				e.RecurrencePattern = Pattern(m)
			} else {
				e.RecurrencePattern = nil
			}
		}
	}
}
