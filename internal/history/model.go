package history

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ChangeKind tags what a ledger entry records.
type ChangeKind string

const (
	KindCreate           ChangeKind = "create"
	KindUpdate           ChangeKind = "update"
	KindDelete           ChangeKind = "delete"
	KindRollback         ChangeKind = "rollback"
	KindPermissionChange ChangeKind = "permission_change"
)

// FieldDelta is the before/after pair recorded for one field.
type FieldDelta struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Payload is the stored diff of one ledger entry. The populated part is
// selected by the entry's change kind instead of sniffing the shape:
// Fields for create/update/permission_change, Snapshot for delete
// tombstones, RolledBackFrom+Changes for rollbacks (Changes wraps the
// target version's payload).
type Payload struct {
	Fields         map[string]FieldDelta `json:"fields,omitempty"`
	Snapshot       map[string]any        `json:"snapshot,omitempty"`
	RolledBackFrom uint64                `json:"rolled_back_from,omitempty"`
	Changes        *Payload              `json:"changes,omitempty"`
}

// Value implements driver.Valuer so the payload lands in a jsonb column.
func (p Payload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *Payload) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	case nil:
		*p = Payload{}
		return nil
	}
	return fmt.Errorf("unsupported payload source %T", src)
}

// resolve looks through rollback wrappers to the payload that actually
// carries field data.
func (p *Payload) resolve() *Payload {
	if p.Changes != nil {
		return p.Changes.resolve()
	}
	return p
}

// FieldKeys returns every field the payload recorded a value for.
func (p *Payload) FieldKeys() []string {
	resolved := p.resolve()
	keys := make([]string, 0, len(resolved.Fields)+len(resolved.Snapshot))
	for k := range resolved.Fields {
		keys = append(keys, k)
	}
	for k := range resolved.Snapshot {
		keys = append(keys, k)
	}
	return keys
}

// RecordedValue extracts the value this payload recorded for a field: the
// delta's new value, or the raw tombstone value for delete snapshots. A
// field the version never touched has no recorded value.
func (p *Payload) RecordedValue(field string) (any, bool) {
	resolved := p.resolve()
	if delta, ok := resolved.Fields[field]; ok {
		return delta.New, true
	}
	if v, ok := resolved.Snapshot[field]; ok {
		return v, true
	}
	return nil, false
}

// EventChange is one immutable entry of an event's version ledger. Versions
// are unique and monotonically increasing per event, starting at 1, and are
// never reused, rollbacks included.
type EventChange struct {
	ID        uint64     `json:"id" gorm:"primaryKey"`
	EventID   uint64     `json:"event_id" gorm:"uniqueIndex:idx_event_version"`
	UserID    uint64     `json:"user_id"`
	Version   uint64     `json:"version" gorm:"uniqueIndex:idx_event_version"`
	Kind      ChangeKind `json:"change_type" gorm:"column:change_type"`
	Changes   Payload    `json:"changes" gorm:"type:jsonb"`
	ChangedAt time.Time  `json:"changed_at"`
}
