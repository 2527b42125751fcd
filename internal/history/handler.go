package history

import (
	"event-scheduler/internal/errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func parseID(c *gin.Context, param string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid "+param+" parameter", err))
		return 0, false
	}
	return id, true
}

func (h *Handler) ShowHistory(c *gin.Context) {
	eventID, ok := parseID(c, "id")
	if !ok {
		return
	}

	userID, _ := c.Get("user_id")

	changes, err := h.service.History(c.Request.Context(), eventID, userID.(uint64))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, changes)
}

func (h *Handler) ShowVersion(c *gin.Context) {
	eventID, ok := parseID(c, "id")
	if !ok {
		return
	}
	version, ok := parseID(c, "version")
	if !ok {
		return
	}

	userID, _ := c.Get("user_id")

	change, err := h.service.Version(c.Request.Context(), eventID, version, userID.(uint64))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, change)
}

func (h *Handler) ShowDiff(c *gin.Context) {
	eventID, ok := parseID(c, "id")
	if !ok {
		return
	}
	v1, ok := parseID(c, "v1")
	if !ok {
		return
	}
	v2, ok := parseID(c, "v2")
	if !ok {
		return
	}

	userID, _ := c.Get("user_id")

	diff, err := h.service.VersionDiff(c.Request.Context(), eventID, v1, v2, userID.(uint64))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, diff)
}

func (h *Handler) Rollback(c *gin.Context) {
	eventID, ok := parseID(c, "id")
	if !ok {
		return
	}
	version, ok := parseID(c, "version")
	if !ok {
		return
	}

	userID, _ := c.Get("user_id")

	change, err := h.service.Rollback(c.Request.Context(), eventID, version, userID.(uint64))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, change)
}
