package history

import (
	"context"
	"event-scheduler/internal/errors"
	"event-scheduler/internal/role"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Append(tx *gorm.DB, eventID, userID uint64, kind ChangeKind, payload Payload) (*EventChange, error) {
	args := m.Called(tx, eventID, userID, kind, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*EventChange), args.Error(1)
}

func (m *MockLedger) List(ctx context.Context, eventID uint64) ([]EventChange, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]EventChange), args.Error(1)
}

func (m *MockLedger) Get(ctx context.Context, eventID, version uint64) (*EventChange, error) {
	args := m.Called(ctx, eventID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*EventChange), args.Error(1)
}

type MockRoles struct {
	mock.Mock
}

func (m *MockRoles) ResolveRole(ctx context.Context, eventID, userID uint64) (role.Role, bool, error) {
	args := m.Called(ctx, eventID, userID)
	return args.Get(0).(role.Role), args.Bool(1), args.Error(2)
}

type MockRoller struct {
	mock.Mock
}

func (m *MockRoller) ApplyRollback(ctx context.Context, eventID, userID uint64, target *EventChange) (*EventChange, error) {
	args := m.Called(ctx, eventID, userID, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*EventChange), args.Error(1)
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	apiErr, ok := err.(*errors.APIError)
	assert.True(t, ok, "expected APIError, got %v", err)
	return apiErr.Status
}

func TestHistory_NoPermissionHidesEvent(t *testing.T) {
	ledger := new(MockLedger)
	roles := new(MockRoles)
	service := NewService(ledger, roles, new(MockRoller))

	roles.On("ResolveRole", mock.Anything, uint64(1), uint64(7)).Return(role.Viewer, false, nil)

	_, err := service.History(context.Background(), 1, 7)

	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
	ledger.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestHistory_ReturnsLedgerEntries(t *testing.T) {
	ledger := new(MockLedger)
	roles := new(MockRoles)
	service := NewService(ledger, roles, new(MockRoller))

	changes := []EventChange{
		{EventID: 1, Version: 1, Kind: KindCreate},
		{EventID: 1, Version: 2, Kind: KindUpdate},
	}
	roles.On("ResolveRole", mock.Anything, uint64(1), uint64(7)).Return(role.Viewer, true, nil)
	ledger.On("List", mock.Anything, uint64(1)).Return(changes, nil)

	result, err := service.History(context.Background(), 1, 7)

	assert.NoError(t, err)
	assert.Len(t, result, 2)
	assert.Equal(t, uint64(1), result[0].Version)
	assert.Equal(t, uint64(2), result[1].Version)
}

func TestVersion_NotFound(t *testing.T) {
	ledger := new(MockLedger)
	roles := new(MockRoles)
	service := NewService(ledger, roles, new(MockRoller))

	roles.On("ResolveRole", mock.Anything, uint64(1), uint64(7)).Return(role.Viewer, true, nil)
	ledger.On("Get", mock.Anything, uint64(1), uint64(99)).Return(nil, gorm.ErrRecordNotFound)

	_, err := service.Version(context.Background(), 1, 99, 7)

	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestVersionDiff_MissingVersion(t *testing.T) {
	ledger := new(MockLedger)
	roles := new(MockRoles)
	service := NewService(ledger, roles, new(MockRoller))

	roles.On("ResolveRole", mock.Anything, uint64(1), uint64(7)).Return(role.Editor, true, nil)
	ledger.On("Get", mock.Anything, uint64(1), uint64(1)).Return(&EventChange{Version: 1}, nil)
	ledger.On("Get", mock.Anything, uint64(1), uint64(5)).Return(nil, gorm.ErrRecordNotFound)

	_, err := service.VersionDiff(context.Background(), 1, 1, 5, 7)

	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestVersionDiff_ComparesRecordedValues(t *testing.T) {
	ledger := new(MockLedger)
	roles := new(MockRoles)
	service := NewService(ledger, roles, new(MockRoller))

	v1 := &EventChange{Version: 1, Kind: KindCreate, Changes: Payload{
		Fields: map[string]FieldDelta{"title": {Old: nil, New: "Standup"}},
	}}
	v2 := &EventChange{Version: 2, Kind: KindUpdate, Changes: Payload{
		Fields: map[string]FieldDelta{"title": {Old: "Standup", New: "Daily Standup"}},
	}}

	roles.On("ResolveRole", mock.Anything, uint64(1), uint64(7)).Return(role.Viewer, true, nil)
	ledger.On("Get", mock.Anything, uint64(1), uint64(1)).Return(v1, nil)
	ledger.On("Get", mock.Anything, uint64(1), uint64(2)).Return(v2, nil)

	diff, err := service.VersionDiff(context.Background(), 1, 1, 2, 7)

	assert.NoError(t, err)
	assert.Equal(t, uint64(1), diff.Version1)
	assert.Equal(t, uint64(2), diff.Version2)
	assert.Equal(t, VersionValues{Version1: "Standup", Version2: "Daily Standup"}, diff.Differences["title"])
}

func TestRollback_ViewerForbidden(t *testing.T) {
	ledger := new(MockLedger)
	roles := new(MockRoles)
	roller := new(MockRoller)
	service := NewService(ledger, roles, roller)

	roles.On("ResolveRole", mock.Anything, uint64(1), uint64(7)).Return(role.Viewer, true, nil)

	_, err := service.Rollback(context.Background(), 1, 1, 7)

	assert.Equal(t, http.StatusForbidden, statusOf(t, err))
	// denied before any ledger write can happen
	ledger.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
	roller.AssertNotCalled(t, "ApplyRollback", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRollback_NoPermissionHidesEvent(t *testing.T) {
	ledger := new(MockLedger)
	roles := new(MockRoles)
	service := NewService(ledger, roles, new(MockRoller))

	roles.On("ResolveRole", mock.Anything, uint64(1), uint64(7)).Return(role.Viewer, false, nil)

	_, err := service.Rollback(context.Background(), 1, 1, 7)

	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestRollback_AppendsNewVersion(t *testing.T) {
	ledger := new(MockLedger)
	roles := new(MockRoles)
	roller := new(MockRoller)
	service := NewService(ledger, roles, roller)

	target := &EventChange{EventID: 1, Version: 1, Kind: KindCreate, Changes: Payload{
		Fields: map[string]FieldDelta{"title": {Old: nil, New: "Standup"}},
	}}
	applied := &EventChange{EventID: 1, Version: 3, Kind: KindRollback, Changes: Payload{
		RolledBackFrom: 1,
		Changes:        &target.Changes,
	}}

	roles.On("ResolveRole", mock.Anything, uint64(1), uint64(7)).Return(role.Editor, true, nil)
	ledger.On("Get", mock.Anything, uint64(1), uint64(1)).Return(target, nil)
	roller.On("ApplyRollback", mock.Anything, uint64(1), uint64(7), target).Return(applied, nil)

	change, err := service.Rollback(context.Background(), 1, 1, 7)

	assert.NoError(t, err)
	assert.Equal(t, KindRollback, change.Kind)
	assert.Equal(t, uint64(3), change.Version)
	assert.Equal(t, uint64(1), change.Changes.RolledBackFrom)
	roller.AssertExpectations(t)
}
