package history

import (
	"context"
	defError "errors"
	"event-scheduler/internal/errors"
	"event-scheduler/internal/role"

	"gorm.io/gorm"
)

// RoleResolver reports the role a user holds on an event, if any.
type RoleResolver interface {
	ResolveRole(ctx context.Context, eventID, userID uint64) (role.Role, bool, error)
}

// EventRoller applies a past version's recorded state back onto the live
// event record and appends the resulting rollback entry, atomically.
type EventRoller interface {
	ApplyRollback(ctx context.Context, eventID, userID uint64, target *EventChange) (*EventChange, error)
}

type Service interface {
	History(ctx context.Context, eventID, userID uint64) ([]EventChange, error)
	Version(ctx context.Context, eventID, version, userID uint64) (*EventChange, error)
	VersionDiff(ctx context.Context, eventID, v1, v2, userID uint64) (*DiffResponse, error)
	Rollback(ctx context.Context, eventID, targetVersion, userID uint64) (*EventChange, error)
}

type DefaultService struct {
	ledger Ledger
	roles  RoleResolver
	events EventRoller
}

func NewService(ledger Ledger, roles RoleResolver, events EventRoller) Service {
	return &DefaultService{
		ledger: ledger,
		roles:  roles,
		events: events,
	}
}

// requireAccess hides the event entirely from users without a permission row.
func (s *DefaultService) requireAccess(ctx context.Context, eventID, userID uint64) (role.Role, error) {
	r, ok, err := s.roles.ResolveRole(ctx, eventID, userID)
	if err != nil {
		return r, err
	}
	if !ok {
		return r, errors.NotFound("Event not found or no access", nil)
	}
	return r, nil
}

func (s *DefaultService) History(ctx context.Context, eventID, userID uint64) ([]EventChange, error) {
	if _, err := s.requireAccess(ctx, eventID, userID); err != nil {
		return nil, err
	}
	return s.ledger.List(ctx, eventID)
}

func (s *DefaultService) Version(ctx context.Context, eventID, version, userID uint64) (*EventChange, error) {
	if _, err := s.requireAccess(ctx, eventID, userID); err != nil {
		return nil, err
	}

	change, err := s.ledger.Get(ctx, eventID, version)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Version not found", err)
		}
		return nil, err
	}
	return change, nil
}

type VersionValues struct {
	Version1 any `json:"version1"`
	Version2 any `json:"version2"`
}

type DiffResponse struct {
	Version1    uint64                   `json:"version1"`
	Version2    uint64                   `json:"version2"`
	Differences map[string]VersionValues `json:"differences"`
}

// VersionDiff compares the values two versions recorded, not reconstructed
// historical state: a field one version never touched is absent from its
// payload and drops out of the comparison.
func (s *DefaultService) VersionDiff(ctx context.Context, eventID, v1, v2, userID uint64) (*DiffResponse, error) {
	if _, err := s.requireAccess(ctx, eventID, userID); err != nil {
		return nil, err
	}

	first, err := s.ledger.Get(ctx, eventID, v1)
	if err == nil {
		var second *EventChange
		second, err = s.ledger.Get(ctx, eventID, v2)
		if err == nil {
			return &DiffResponse{
				Version1:    v1,
				Version2:    v2,
				Differences: diffPayloads(&first.Changes, &second.Changes),
			}, nil
		}
	}
	if defError.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NotFound("One or both versions not found", err)
	}
	return nil, err
}

func diffPayloads(first, second *Payload) map[string]VersionValues {
	keys := make(map[string]struct{})
	for _, k := range first.FieldKeys() {
		keys[k] = struct{}{}
	}
	for _, k := range second.FieldKeys() {
		keys[k] = struct{}{}
	}

	differences := make(map[string]VersionValues)
	for key := range keys {
		val1, _ := first.RecordedValue(key)
		val2, _ := second.RecordedValue(key)
		if !valuesEqual(val1, val2) {
			differences[key] = VersionValues{Version1: val1, Version2: val2}
		}
	}
	return differences
}

// Rollback reapplies the target version's recorded state onto the live
// record and appends a new highest version, never rewinding the counter.
func (s *DefaultService) Rollback(ctx context.Context, eventID, targetVersion, userID uint64) (*EventChange, error) {
	r, err := s.requireAccess(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if !r.Meets(role.Editor) {
		return nil, errors.Forbidden("Not enough permissions", nil)
	}

	target, err := s.ledger.Get(ctx, eventID, targetVersion)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Version not found", err)
		}
		return nil, err
	}

	return s.events.ApplyRollback(ctx, eventID, userID, target)
}
