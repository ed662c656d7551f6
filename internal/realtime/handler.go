package realtime

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"bizpulse/internal/alert"
	"bizpulse/internal/logger"
	"bizpulse/pkg/errors"
	"bizpulse/pkg/middleware"
)

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   logger.Logger
}

func NewHandler(hub *Hub, log logger.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The upstream auth layer owns origin policy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: log,
	}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/api/v1/ws", middleware.RequireUser(), h.Serve)
}

// Serve godoc
// @Summary      Subscribe to live alerts
// @Description  Upgrades to a websocket that streams administrative-alerts.{category} payloads addressed to the caller
// @Tags         realtime
// @Param        X-User-ID  header  int     true   "Acting user"
// @Param        channels   query   string  false  "Comma separated category slugs (default: all)"
// @Success      101
// @Failure      400  {object}  map[string]interface{}
// @Router       /ws [get]
func (h *Handler) Serve(c *gin.Context) {
	channels, err := parseChannels(c.Query("channels"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
			errors.ErrValidation.WithDetail("message", err.Error()),
		))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnw("Failed to upgrade websocket connection", "error", err)
		return
	}

	client := NewClient(h.hub, conn, middleware.UserID(c), channels)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

func parseChannels(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		slugs := make([]string, 0, len(alert.Categories()))
		for _, cat := range alert.Categories() {
			slugs = append(slugs, cat.Slug())
		}
		return slugs, nil
	}

	valid := make(map[string]bool)
	for _, cat := range alert.Categories() {
		valid[cat.Slug()] = true
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		slug := strings.ToLower(strings.TrimSpace(part))
		if slug == "" {
			continue
		}
		if !valid[slug] {
			return nil, fmt.Errorf("unknown channel: %s", slug)
		}
		out = append(out, slug)
	}
	return out, nil
}
