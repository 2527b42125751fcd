package event

import (
	"bytes"
	"encoding/json"
	"event-scheduler/internal/errors"
	"event-scheduler/internal/role"
	"event-scheduler/internal/utils"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type CreateEventRequest struct {
	Title             string         `json:"title" binding:"required,min=1,max=255"`
	Description       string         `json:"description"`
	StartTime         time.Time      `json:"start_time" binding:"required"`
	EndTime           time.Time      `json:"end_time" binding:"required,gtfield=StartTime"`
	Location          *string        `json:"location"`
	IsRecurring       bool           `json:"is_recurring"`
	RecurrencePattern map[string]any `json:"recurrence_pattern"`
}

func (req *CreateEventRequest) toEvent() *Event {
	return &Event{
		Title:             req.Title,
		Description:       req.Description,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		Location:          req.Location,
		IsRecurring:       req.IsRecurring,
		RecurrencePattern: Pattern(req.RecurrencePattern),
	}
}

func (h *Handler) Create(c *gin.Context) {
	var form CreateEventRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	userID, _ := c.Get("user_id")

	ev := form.toEvent()
	if err := h.service.CreateEvent(c.Request.Context(), userID.(uint64), ev); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, ev)
}

type BatchCreateRequest struct {
	Events []CreateEventRequest `json:"events" binding:"required,min=1,dive"`
}

func (h *Handler) CreateBatch(c *gin.Context) {
	var form BatchCreateRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	userID, _ := c.Get("user_id")

	events := make([]*Event, 0, len(form.Events))
	for i := range form.Events {
		events = append(events, form.Events[i].toEvent())
	}

	if err := h.service.CreateBatch(c.Request.Context(), userID.(uint64), events); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, events)
}

func (h *Handler) List(c *gin.Context) {
	userID, _ := c.Get("user_id")
	page, pageSize := utils.GetPaginationParams(c)

	var start, end *time.Time
	if raw := c.Query("start_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.Error(errors.BadRequest("Invalid start_date", err))
			return
		}
		start = &t
	}
	if raw := c.Query("end_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.Error(errors.BadRequest("Invalid end_date", err))
			return
		}
		end = &t
	}

	result, err := h.service.ListEvents(c.Request.Context(), userID.(uint64), page, pageSize, start, end)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) Show(c *gin.Context) {
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid event id", err))
		return
	}

	userID, _ := c.Get("user_id")

	ev, err := h.service.GetEvent(c.Request.Context(), eventID, userID.(uint64))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, ev)
}

type UpdateEventRequest struct {
	Title             *string        `json:"title" binding:"omitempty,min=1,max=255"`
	Description       *string        `json:"description"`
	StartTime         *time.Time     `json:"start_time"`
	EndTime           *time.Time     `json:"end_time"`
	Location          *string        `json:"location"`
	IsRecurring       *bool          `json:"is_recurring"`
	RecurrencePattern map[string]any `json:"recurrence_pattern"`
}

func (h *Handler) Update(c *gin.Context) {
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid event id", err))
		return
	}

	var form UpdateEventRequest
	if err := c.ShouldBindBodyWith(&form, binding.JSON); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	// A nil pointer can't tell "absent" from an explicit null, so presence
	// of the nullable fields is checked against the raw body.
	var submitted map[string]json.RawMessage
	if err := c.ShouldBindBodyWith(&submitted, binding.JSON); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	userID, _ := c.Get("user_id")

	patch := Patch{
		Title:             form.Title,
		Description:       form.Description,
		StartTime:         form.StartTime,
		EndTime:           form.EndTime,
		Location:          form.Location,
		IsRecurring:       form.IsRecurring,
		RecurrencePattern: Pattern(form.RecurrencePattern),

		ClearLocation:          form.Location == nil && isExplicitNull(submitted, "location"),
		ClearRecurrencePattern: form.RecurrencePattern == nil && isExplicitNull(submitted, "recurrence_pattern"),
	}

	ev, err := h.service.UpdateEvent(c.Request.Context(), eventID, userID.(uint64), patch)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, ev)
}

func isExplicitNull(body map[string]json.RawMessage, field string) bool {
	raw, ok := body[field]
	return ok && string(bytes.TrimSpace(raw)) == "null"
}

func (h *Handler) Delete(c *gin.Context) {
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid event id", err))
		return
	}

	userID, _ := c.Get("user_id")

	if err := h.service.DeleteEvent(c.Request.Context(), eventID, userID.(uint64)); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Event deleted successfully"})
}

type ShareRequest struct {
	UserID uint64 `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required,oneof=viewer editor owner"`
}

func (h *Handler) Share(c *gin.Context) {
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid event id", err))
		return
	}

	var form ShareRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}
	newRole, err := role.Parse(form.Role)
	if err != nil {
		c.Error(errors.BadRequest("Invalid role", err))
		return
	}

	requesterID, _ := c.Get("user_id")

	permission, err := h.service.ShareEvent(c.Request.Context(), eventID, requesterID.(uint64), form.UserID, newRole)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, permission)
}

func (h *Handler) ListPermissions(c *gin.Context) {
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid event id", err))
		return
	}

	requesterID, _ := c.Get("user_id")

	permissions, err := h.service.ListPermissions(c.Request.Context(), eventID, requesterID.(uint64))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, permissions)
}

type UpdatePermissionRequest struct {
	Role string `json:"role" binding:"required,oneof=viewer editor owner"`
}

func (h *Handler) UpdatePermission(c *gin.Context) {
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid event id", err))
		return
	}
	targetID, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid user id", err))
		return
	}

	var form UpdatePermissionRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}
	newRole, err := role.Parse(form.Role)
	if err != nil {
		c.Error(errors.BadRequest("Invalid role", err))
		return
	}

	requesterID, _ := c.Get("user_id")

	permission, err := h.service.UpdatePermission(c.Request.Context(), eventID, requesterID.(uint64), targetID, newRole)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, permission)
}

func (h *Handler) RemovePermission(c *gin.Context) {
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid event id", err))
		return
	}
	targetID, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid user id", err))
		return
	}

	requesterID, _ := c.Get("user_id")

	if err := h.service.RemovePermission(c.Request.Context(), eventID, requesterID.(uint64), targetID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Permission removed"})
}
