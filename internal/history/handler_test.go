package history

import (
	"context"
	"event-scheduler/internal/errors"
	"event-scheduler/internal/middleware"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// mock implementation of the Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) History(ctx context.Context, eventID, userID uint64) ([]EventChange, error) {
	args := m.Called(ctx, eventID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]EventChange), args.Error(1)
}

func (m *MockService) Version(ctx context.Context, eventID, version, userID uint64) (*EventChange, error) {
	args := m.Called(ctx, eventID, version, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*EventChange), args.Error(1)
}

func (m *MockService) VersionDiff(ctx context.Context, eventID, v1, v2, userID uint64) (*DiffResponse, error) {
	args := m.Called(ctx, eventID, v1, v2, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*DiffResponse), args.Error(1)
}

func (m *MockService) Rollback(ctx context.Context, eventID, targetVersion, userID uint64) (*EventChange, error) {
	args := m.Called(ctx, eventID, targetVersion, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*EventChange), args.Error(1)
}

func setupRouter(handler *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.ErrorHandler())
	router.Use(func(c *gin.Context) {
		c.Set("user_id", uint64(1))
	})

	router.GET("/events/:id/history", handler.ShowHistory)
	router.GET("/events/:id/history/:version", handler.ShowVersion)
	router.GET("/events/:id/diff/:v1/:v2", handler.ShowDiff)
	router.POST("/events/:id/rollback/:version", handler.Rollback)
	return router
}

func TestShowHistory_Success(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService))

	mockService.On("History", mock.Anything, uint64(5), uint64(1)).
		Return([]EventChange{{EventID: 5, Version: 1, Kind: KindCreate}}, nil)

	req := httptest.NewRequest("GET", "/events/5/history", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestShowHistory_InvalidID(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService))

	req := httptest.NewRequest("GET", "/events/abc/history", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "History", mock.Anything, mock.Anything, mock.Anything)
}

func TestShowVersion_NotFound(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService))

	mockService.On("Version", mock.Anything, uint64(5), uint64(9), uint64(1)).
		Return(nil, errors.NotFound("Version not found", nil))

	req := httptest.NewRequest("GET", "/events/5/history/9", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestShowDiff_Success(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService))

	mockService.On("VersionDiff", mock.Anything, uint64(5), uint64(1), uint64(2), uint64(1)).
		Return(&DiffResponse{
			Version1: 1,
			Version2: 2,
			Differences: map[string]VersionValues{
				"title": {Version1: "Standup", Version2: "Daily Standup"},
			},
		}, nil)

	req := httptest.NewRequest("GET", "/events/5/diff/1/2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Daily Standup")
}

func TestRollback_Forbidden(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService))

	mockService.On("Rollback", mock.Anything, uint64(5), uint64(1), uint64(1)).
		Return(nil, errors.Forbidden("Not enough permissions", nil))

	req := httptest.NewRequest("POST", "/events/5/rollback/1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRollback_Success(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService))

	mockService.On("Rollback", mock.Anything, uint64(5), uint64(2), uint64(1)).
		Return(&EventChange{EventID: 5, Version: 4, Kind: KindRollback}, nil)

	req := httptest.NewRequest("POST", "/events/5/rollback/2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":4`)
	mockService.AssertExpectations(t)
}
