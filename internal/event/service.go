package event

import (
	"context"
	defError "errors"
	"event-scheduler/internal/errors"
	"event-scheduler/internal/history"
	"event-scheduler/internal/role"
	"event-scheduler/internal/worker"
	"event-scheduler/redis"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
)

// UserChecker verifies that a share target exists.
type UserChecker interface {
	UserExists(ctx context.Context, id uint64) (bool, error)
}

type Service interface {
	CreateEvent(ctx context.Context, userID uint64, ev *Event) error
	CreateBatch(ctx context.Context, userID uint64, events []*Event) error
	ListEvents(ctx context.Context, userID uint64, page, pageSize int, start, end *time.Time) (*PaginatedEvents, error)
	GetEvent(ctx context.Context, eventID, userID uint64) (*Event, error)
	UpdateEvent(ctx context.Context, eventID, userID uint64, patch Patch) (*Event, error)
	DeleteEvent(ctx context.Context, eventID, userID uint64) error
	ShareEvent(ctx context.Context, eventID, requesterID, targetID uint64, newRole role.Role) (*EventPermission, error)
	ListPermissions(ctx context.Context, eventID, requesterID uint64) ([]EventPermission, error)
	UpdatePermission(ctx context.Context, eventID, requesterID, targetID uint64, newRole role.Role) (*EventPermission, error)
	RemovePermission(ctx context.Context, eventID, requesterID, targetID uint64) error

	// interfaces consumed by the history service
	ResolveRole(ctx context.Context, eventID, userID uint64) (role.Role, bool, error)
	ApplyRollback(ctx context.Context, eventID, userID uint64, target *history.EventChange) (*history.EventChange, error)
}

type DefaultService struct {
	repository EventRepository
	users      UserChecker
	cache      *redis.Cache
	pool       *worker.Pool
}

func NewService(repository EventRepository, users UserChecker, cache *redis.Cache, pool *worker.Pool) Service {
	return &DefaultService{
		repository: repository,
		users:      users,
		cache:      cache,
		pool:       pool,
	}
}

// CreateEvent rejects overlapping events before any write happens. The
// overlap test is the half-open interval intersection against every event
// the creator holds a permission on.
func (s *DefaultService) CreateEvent(ctx context.Context, userID uint64, ev *Event) error {
	conflicts, err := s.repository.CountConflicts(ctx, userID, ev.StartTime, ev.EndTime)
	if err != nil {
		return err
	}
	if conflicts > 0 {
		return errors.Conflict("Event conflicts with existing events", nil)
	}

	if err := s.repository.Create(ctx, userID, ev); err != nil {
		return err
	}

	s.bumpListVersion(ctx, userID)
	return nil
}

func (s *DefaultService) CreateBatch(ctx context.Context, userID uint64, events []*Event) error {
	if err := s.repository.CreateBatch(ctx, userID, events); err != nil {
		return err
	}
	s.bumpListVersion(ctx, userID)
	return nil
}

type PaginatedEvents struct {
	Data []Event    `json:"data"`
	Meta EventsMeta `json:"meta"`
}

func (s *DefaultService) ListEvents(ctx context.Context, userID uint64, page, pageSize int, start, end *time.Time) (*PaginatedEvents, error) {
	// Version key invalidates cached pages whenever the user's events change
	versionKey := fmt.Sprintf("user:%d:events:version", userID)
	v := s.cache.GetVersion(ctx, versionKey)

	var startUnix, endUnix int64
	if start != nil {
		startUnix = start.Unix()
	}
	if end != nil {
		endUnix = end.Unix()
	}
	cacheKey := fmt.Sprintf("events:u:%d:v:%d:p:%d:ps:%d:s:%d:e:%d", userID, v, page, pageSize, startUnix, endUnix)

	var result PaginatedEvents
	found, _ := s.cache.Get(ctx, cacheKey, &result)
	if found {
		return &result, nil
	}

	events, meta, err := s.repository.ListForUser(ctx, userID, page, pageSize, start, end)
	if err != nil {
		return nil, err
	}
	result = PaginatedEvents{Data: events, Meta: meta}

	// populate the cache off the request path
	s.pool.Submit(func(taskCtx context.Context) error {
		return s.cache.Set(taskCtx, cacheKey, result, 24*time.Hour)
	})

	return &result, nil
}

func (s *DefaultService) GetEvent(ctx context.Context, eventID, userID uint64) (*Event, error) {
	ev, err := s.repository.FindForUser(ctx, eventID, userID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Event not found", err)
		}
		return nil, err
	}
	return ev, nil
}

func (s *DefaultService) UpdateEvent(ctx context.Context, eventID, userID uint64, patch Patch) (*Event, error) {
	if _, err := s.GetEvent(ctx, eventID, userID); err != nil {
		return nil, err
	}

	if err := s.requireRole(ctx, eventID, userID, role.Editor); err != nil {
		return nil, err
	}

	ev, err := s.repository.Update(ctx, eventID, userID, patch.fields())
	if err != nil {
		return nil, err
	}

	s.bumpHolderVersions(ctx, eventID)
	return ev, nil
}

func (s *DefaultService) DeleteEvent(ctx context.Context, eventID, userID uint64) error {
	if _, err := s.GetEvent(ctx, eventID, userID); err != nil {
		return err
	}

	if err := s.requireRole(ctx, eventID, userID, role.Owner); err != nil {
		return err
	}

	// holders must be collected before their permission rows are deleted;
	// best effort, a failure only costs cache freshness
	holders, err := s.repository.Permissions(ctx, eventID)
	if err != nil {
		log.Printf("Failed to load permission holders for event %d: %v", eventID, err)
	}

	if err := s.repository.Delete(ctx, eventID, userID); err != nil {
		return err
	}

	for _, p := range holders {
		s.bumpListVersion(ctx, p.UserID)
	}
	return nil
}

func (s *DefaultService) ShareEvent(ctx context.Context, eventID, requesterID, targetID uint64, newRole role.Role) (*EventPermission, error) {
	if err := s.requireRole(ctx, eventID, requesterID, role.Owner); err != nil {
		return nil, err
	}

	if _, err := s.repository.FindByID(ctx, eventID); err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Event not found", err)
		}
		return nil, err
	}

	exists, err := s.users.UserExists(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.NotFound("User not found", nil)
	}

	permission, err := s.repository.UpsertPermission(ctx, eventID, targetID, newRole, requesterID)
	if err != nil {
		return nil, err
	}

	s.bumpListVersion(ctx, targetID)
	return permission, nil
}

func (s *DefaultService) ListPermissions(ctx context.Context, eventID, requesterID uint64) ([]EventPermission, error) {
	if err := s.requireRole(ctx, eventID, requesterID, role.Viewer); err != nil {
		return nil, err
	}
	return s.repository.Permissions(ctx, eventID)
}

func (s *DefaultService) UpdatePermission(ctx context.Context, eventID, requesterID, targetID uint64, newRole role.Role) (*EventPermission, error) {
	if err := s.requireRole(ctx, eventID, requesterID, role.Owner); err != nil {
		return nil, err
	}

	if _, err := s.repository.GetPermission(ctx, eventID, targetID); err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Permission not found", err)
		}
		return nil, err
	}

	permission, err := s.repository.UpsertPermission(ctx, eventID, targetID, newRole, requesterID)
	if err != nil {
		return nil, err
	}

	s.bumpListVersion(ctx, targetID)
	return permission, nil
}

func (s *DefaultService) RemovePermission(ctx context.Context, eventID, requesterID, targetID uint64) error {
	if err := s.requireRole(ctx, eventID, requesterID, role.Owner); err != nil {
		return err
	}

	if requesterID == targetID {
		return errors.BadRequest("Cannot remove your own owner permissions", nil)
	}

	err := s.repository.RemovePermission(ctx, eventID, targetID, requesterID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return errors.NotFound("Permission not found", err)
		}
		return err
	}

	s.bumpListVersion(ctx, targetID)
	return nil
}

func (s *DefaultService) ResolveRole(ctx context.Context, eventID, userID uint64) (role.Role, bool, error) {
	return s.repository.ResolveRole(ctx, eventID, userID)
}

func (s *DefaultService) ApplyRollback(ctx context.Context, eventID, userID uint64, target *history.EventChange) (*history.EventChange, error) {
	change, err := s.repository.ApplyRollback(ctx, eventID, userID, target)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Event not found", err)
		}
		return nil, err
	}

	s.bumpHolderVersions(ctx, eventID)
	return change, nil
}

// requireRole is the one place rank comparison happens for event
// operations. No permission row means Forbidden here; read paths that
// should hide the event entirely go through GetEvent's 404 instead.
func (s *DefaultService) requireRole(ctx context.Context, eventID, userID uint64, minimum role.Role) error {
	r, ok, err := s.repository.ResolveRole(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if !ok || !r.Meets(minimum) {
		return errors.Forbidden("Not enough permissions", nil)
	}
	return nil
}

func (s *DefaultService) bumpListVersion(ctx context.Context, userID uint64) {
	versionKey := fmt.Sprintf("user:%d:events:version", userID)
	s.cache.IncrementVersion(ctx, versionKey)
}

// bumpHolderVersions invalidates the cached lists of everyone who can see
// the event.
func (s *DefaultService) bumpHolderVersions(ctx context.Context, eventID uint64) {
	holders, err := s.repository.Permissions(ctx, eventID)
	if err != nil {
		log.Printf("Failed to load permission holders for event %d: %v", eventID, err)
		return
	}
	for _, p := range holders {
		s.bumpListVersion(ctx, p.UserID)
	}
}
