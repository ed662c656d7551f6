package notification

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bizpulse/internal/logger"
	"bizpulse/pkg/errors"
	"bizpulse/pkg/middleware"
)

type Handler struct {
	Service *Service
	Logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequireUser())
	{
		notifications := v1.Group("/notifications")
		{
			notifications.GET("", h.List)
			notifications.GET("/unread-count", h.UnreadCount)
			notifications.POST("/read-all", h.MarkAllRead)
			notifications.POST("/:id/read", h.MarkRead)
			notifications.DELETE("/:id", h.Delete)
		}

		v1.GET("/email-preferences", h.GetPreference)
		v1.PUT("/email-preferences", h.UpdatePreference)
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, errors.ToErrorResponse(err))
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
			errors.ErrValidation.WithDetail("message", "invalid notification id"),
		))
		return 0, false
	}
	return id, true
}

// List godoc
// @Summary      List notifications
// @Tags         notifications
// @Produce      json
// @Param        X-User-ID  header  int   true   "Acting user"
// @Param        unread     query   bool  false  "Only unread"
// @Param        limit      query   int   false  "Page size (max 200)"
// @Success      200  {array}   Notification
// @Router       /notifications [get]
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	filter := ListFilter{
		UnreadOnly: c.Query("unread") == "true",
		Limit:      limit,
	}

	items, err := h.Service.List(c.Request.Context(), middleware.UserID(c), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// UnreadCount godoc
// @Summary      Count unread notifications
// @Tags         notifications
// @Produce      json
// @Param        X-User-ID  header  int  true  "Acting user"
// @Success      200  {object}  UnreadCountResponse
// @Router       /notifications/unread-count [get]
func (h *Handler) UnreadCount(c *gin.Context) {
	n, err := h.Service.UnreadCount(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, UnreadCountResponse{Unread: n})
}

// MarkRead godoc
// @Summary      Mark a notification read
// @Tags         notifications
// @Produce      json
// @Param        X-User-ID  header  int  true  "Acting user"
// @Param        id         path    int  true  "Notification ID"
// @Success      200  {object}  Notification
// @Failure      404  {object}  map[string]interface{}
// @Router       /notifications/{id}/read [post]
func (h *Handler) MarkRead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	n, err := h.Service.MarkRead(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// MarkAllRead godoc
// @Summary      Mark every notification read
// @Tags         notifications
// @Produce      json
// @Param        X-User-ID  header  int  true  "Acting user"
// @Success      200  {object}  MarkAllReadResponse
// @Router       /notifications/read-all [post]
func (h *Handler) MarkAllRead(c *gin.Context) {
	updated, err := h.Service.MarkAllRead(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, MarkAllReadResponse{Updated: updated})
}

// Delete godoc
// @Summary      Delete a notification
// @Tags         notifications
// @Param        X-User-ID  header  int  true  "Acting user"
// @Param        id         path    int  true  "Notification ID"
// @Success      204
// @Router       /notifications/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.Service.Delete(c.Request.Context(), middleware.UserID(c), id); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetPreference godoc
// @Summary      Get email preferences
// @Tags         email-preferences
// @Produce      json
// @Param        X-User-ID  header  int  true  "Acting user"
// @Success      200  {object}  EmailPreference
// @Router       /email-preferences [get]
func (h *Handler) GetPreference(c *gin.Context) {
	p, err := h.Service.Preference(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdatePreference godoc
// @Summary      Update email preferences
// @Tags         email-preferences
// @Accept       json
// @Produce      json
// @Param        X-User-ID  header  int                      true  "Acting user"
// @Param        body       body    UpdatePreferenceRequest  true  "Fields to change"
// @Success      200  {object}  EmailPreference
// @Failure      400  {object}  map[string]interface{}
// @Router       /email-preferences [put]
func (h *Handler) UpdatePreference(c *gin.Context) {
	var req UpdatePreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	p, err := h.Service.UpdatePreference(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
