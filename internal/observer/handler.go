package observer

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"bizpulse/internal/alert"
	"bizpulse/internal/constants"
	"bizpulse/internal/logger"
	"bizpulse/pkg/errors"
)

// actorEnvelope carries the initiating user next to the flat hook body.
type actorEnvelope struct {
	InitiatedBy *alert.Actor `json:"initiated_by"`
}

type loginSucceededRequest struct {
	Email     string `json:"email" binding:"required"`
	IPAddress string `json:"ip_address"`
}

type Handler struct {
	Observers *Observers
	Token     string
	Logger    logger.Logger
}

func NewHandler(observers *Observers, token string, log logger.Logger) *Handler {
	return &Handler{Observers: observers, Token: token, Logger: log}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	hooks := router.Group("/api/v1/hooks")
	hooks.Use(h.requireToken())
	{
		hooks.POST("/sales", hook(h, h.Observers.SaleClosed))
		hooks.POST("/expenses", hook(h, h.Observers.ExpenseSubmitted))
		hooks.POST("/goals", hook(h, h.Observers.GoalClosed))
		hooks.POST("/content-deletions", hook(h, h.Observers.ContentDeleted))
		hooks.POST("/bulk-operations", hook(h, h.Observers.BulkOperationPerformed))
		hooks.POST("/failed-logins", hook(h, h.Observers.LoginFailed))
		hooks.POST("/successful-logins", h.LoginSucceeded)
		hooks.POST("/sessions", hook(h, h.Observers.SessionActivity))
		hooks.POST("/admin-accounts", hook(h, h.Observers.AdminAccountModified))
	}
}

func (h *Handler) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.Token == "" {
			c.Next()
			return
		}
		got := c.GetHeader(constants.HeaderHookToken)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errors.ToErrorResponse(
				errors.ErrUnauthorized.WithDetail("message", "invalid hook token"),
			))
			return
		}
		c.Next()
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.Logger.ErrorwCtx(c.Request.Context(), "Hook failed", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, errors.ToErrorResponse(err))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
		errors.ErrValidation.WithDetail("message", err.Error()),
	))
}

// hook binds the flat input body plus initiated_by and runs one observer.
// An accepted transition answers 202 whether or not it raised an alert.
func hook[T any](h *Handler, observe func(context.Context, T, *alert.Actor) (Decision, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in T
		if err := c.ShouldBindBodyWith(&in, binding.JSON); err != nil {
			badRequest(c, err)
			return
		}
		var env actorEnvelope
		if err := c.ShouldBindBodyWith(&env, binding.JSON); err != nil {
			badRequest(c, err)
			return
		}

		decision, err := observe(c.Request.Context(), in, env.InitiatedBy)
		if err != nil {
			h.handleError(c, errors.ErrServiceUnavailable.WithCause(err))
			return
		}
		c.JSON(http.StatusAccepted, decision)
	}
}

// LoginSucceeded godoc
// @Summary      Clear the failed login counter
// @Tags         hooks
// @Accept       json
// @Param        body  body  loginSucceededRequest  true  "Login"
// @Success      204
// @Router       /hooks/successful-logins [post]
func (h *Handler) LoginSucceeded(c *gin.Context) {
	var req loginSucceededRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.Observers.LoginSucceeded(c.Request.Context(), req.Email, req.IPAddress); err != nil {
		h.handleError(c, errors.ErrServiceUnavailable.WithCause(err))
		return
	}
	c.Status(http.StatusNoContent)
}
