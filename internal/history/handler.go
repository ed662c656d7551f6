package history

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bizpulse/internal/alert"
	"bizpulse/internal/constants"
	"bizpulse/internal/directory"
	"bizpulse/internal/dispatch"
	"bizpulse/internal/logger"
	"bizpulse/pkg/errors"
	"bizpulse/pkg/middleware"
)

type Handler struct {
	repo      Repository
	directory directory.Directory
	logger    logger.Logger
}

func NewHandler(repo Repository, dir directory.Directory, log logger.Logger) *Handler {
	return &Handler{repo: repo, directory: dir, logger: log}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	admin := router.Group("/api/v1/admin")
	admin.Use(middleware.RequireUser(), h.requireAdmin)
	{
		admin.GET("/alert-history", h.List)
	}
}

func (h *Handler) requireAdmin(c *gin.Context) {
	user, err := h.directory.User(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		if errors.IsNotFound(err) {
			c.AbortWithStatusJSON(http.StatusForbidden, errors.ToErrorResponse(errors.ErrForbidden))
			return
		}
		h.logger.ErrorwCtx(c.Request.Context(), "Failed to load acting user", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errors.ToErrorResponse(errors.ErrInternal))
		return
	}
	if user.Role != directory.RoleAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, errors.ToErrorResponse(errors.ErrForbidden))
		return
	}
	c.Next()
}

// List godoc
// @Summary      List alert delivery history
// @Description  Recent pipeline outcomes, newest first. Admins only.
// @Tags         alert-history
// @Produce      json
// @Param        X-User-ID  header  int     true   "Acting user"
// @Param        status     query   string  false  "delivered, suppressed or failed"
// @Param        category   query   string  false  "Security, System, UserAction or Business"
// @Param        severity   query   string  false  "LOW, MEDIUM, HIGH or CRITICAL"
// @Param        event_type query   string  false  "Event type name"
// @Param        limit      query   int     false  "Max items (default 50, max 200)"
// @Success      200  {object}  ListResponse
// @Failure      400  {object}  map[string]interface{}
// @Failure      403  {object}  map[string]interface{}
// @Router       /admin/alert-history [get]
func (h *Handler) List(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
			errors.ErrValidation.WithDetail("message", err.Error()),
		))
		return
	}

	entries, err := h.repo.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.ErrorwCtx(c.Request.Context(), "Failed to list alert history", "error", err)
		c.JSON(http.StatusInternalServerError, errors.ToErrorResponse(errors.ErrInternal))
		return
	}

	c.JSON(http.StatusOK, ListResponse{Items: entries, Count: len(entries)})
}

func parseFilter(c *gin.Context) (Filter, error) {
	f := Filter{
		Status:    c.Query("status"),
		EventType: c.Query("event_type"),
		Limit:     constants.DefaultLimit,
	}

	switch dispatch.Status(f.Status) {
	case "", dispatch.StatusDelivered, dispatch.StatusSuppressed, dispatch.StatusFailed:
	default:
		return f, errors.ErrValidation.WithDetail("status", f.Status)
	}

	if raw := c.Query("category"); raw != "" {
		cat, err := alert.ParseCategory(raw)
		if err != nil {
			return f, err
		}
		f.Category = string(cat)
	}
	if raw := c.Query("severity"); raw != "" {
		sev, err := alert.ParseSeverity(raw)
		if err != nil {
			return f, err
		}
		f.Severity = string(sev)
	}

	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return f, errors.ErrValidation.WithDetail("limit", raw)
		}
		f.Limit = min(n, constants.MaxLimit)
	}
	return f, nil
}
