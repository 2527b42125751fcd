package event

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Pattern is an opaque recurrence description stored as jsonb. The API
// never expands occurrences from it, clients interpret it.
type Pattern map[string]any

func (p Pattern) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func (p *Pattern) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	case nil:
		*p = nil
		return nil
	}
	return fmt.Errorf("unsupported pattern source %T", src)
}

type Event struct {
	ID                uint64    `json:"id" gorm:"primaryKey"`
	Title             string    `json:"title" gorm:"index"`
	Description       string    `json:"description"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	Location          *string   `json:"location"`
	IsRecurring       bool      `json:"is_recurring" gorm:"default:false"`
	RecurrencePattern Pattern   `json:"recurrence_pattern" gorm:"type:jsonb"`
	CreatedBy         uint64    `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	// ChangeSeq backs per-event version assignment, see history.Ledger.
	ChangeSeq uint64 `json:"-"`
}

type EventPermission struct {
	ID        uint64    `json:"id" gorm:"primaryKey"`
	EventID   uint64    `json:"event_id" gorm:"uniqueIndex:idx_permission_event_user"`
	UserID    uint64    `json:"user_id" gorm:"uniqueIndex:idx_permission_event_user"`
	Role      string    `json:"role"`
	GrantedAt time.Time `json:"granted_at"`
}

// fullSnapshot captures every versioned field, used as the "old" side of
// update diffs and the "new" side of create diffs.
func (e *Event) fullSnapshot() map[string]any {
	var location any
	if e.Location != nil {
		location = *e.Location
	}
	var pattern any
	if e.RecurrencePattern != nil {
		pattern = map[string]any(e.RecurrencePattern)
	}
	return map[string]any{
		"title":              e.Title,
		"description":        e.Description,
		"start_time":         e.StartTime,
		"end_time":           e.EndTime,
		"location":           location,
		"is_recurring":       e.IsRecurring,
		"recurrence_pattern": pattern,
	}
}

// deleteSnapshot is the tombstone recorded for delete changes. Location and
// recurrence fields are intentionally not captured.
func (e *Event) deleteSnapshot() map[string]any {
	return map[string]any{
		"title":       e.Title,
		"description": e.Description,
		"start_time":  e.StartTime,
		"end_time":    e.EndTime,
	}
}

// Patch carries a partial update. Nil pointers mean "leave untouched"; only
// the submitted fields ever appear in the recorded diff. The Clear flags
// record an explicit null for the nullable fields, which a nil pointer
// alone cannot express.
type Patch struct {
	Title             *string
	Description       *string
	StartTime         *time.Time
	EndTime           *time.Time
	Location          *string
	IsRecurring       *bool
	RecurrencePattern Pattern

	ClearLocation          bool
	ClearRecurrencePattern bool
}

func (p Patch) fields() map[string]any {
	changes := make(map[string]any)
	if p.Title != nil {
		changes["title"] = *p.Title
	}
	if p.Description != nil {
		changes["description"] = *p.Description
	}
	if p.StartTime != nil {
		changes["start_time"] = *p.StartTime
	}
	if p.EndTime != nil {
		changes["end_time"] = *p.EndTime
	}
	if p.Location != nil {
		changes["location"] = *p.Location
	} else if p.ClearLocation {
		changes["location"] = nil
	}
	if p.IsRecurring != nil {
		changes["is_recurring"] = *p.IsRecurring
	}
	if p.RecurrencePattern != nil {
		changes["recurrence_pattern"] = map[string]any(p.RecurrencePattern)
	} else if p.ClearRecurrencePattern {
		changes["recurrence_pattern"] = nil
	}
	return changes
}
