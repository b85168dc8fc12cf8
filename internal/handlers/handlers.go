package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/tesseract-hub/platform-health-monitor/internal/config"
	"github.com/tesseract-hub/platform-health-monitor/internal/services"
	ws "github.com/tesseract-hub/platform-health-monitor/internal/websocket"
)

// Handler contains all HTTP handlers
type Handler struct {
	monitor  *services.HealthMonitor
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

// NewHandler creates a new handler. hub may be nil when websockets are not served.
func NewHandler(monitor *services.HealthMonitor, hub *ws.Hub, cfg config.WebSocketConfig) *Handler {
	return &Handler{
		monitor: monitor,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				// origins are enforced by the CORS middleware
				return true
			},
		},
	}
}

// Health returns the health status of this service
func (h *Handler) Health(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	if h.monitor.Stopped() {
		status = "stopping"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetStatus returns the system snapshot together with every platform
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.CurrentStatus())
}

// GetPlatforms returns all monitored platforms
func (h *Handler) GetPlatforms(c *gin.Context) {
	platforms := h.monitor.GetTargets()

	c.JSON(http.StatusOK, gin.H{
		"platforms": platforms,
		"total":     len(platforms),
	})
}

// GetPlatform returns a single platform by name
func (h *Handler) GetPlatform(c *gin.Context) {
	platform, err := h.monitor.GetTarget(c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, platform)
}

// RestartPlatform marks a platform as restarting
func (h *Handler) RestartPlatform(c *gin.Context) {
	name := c.Param("name")
	if err := h.monitor.RestartTarget(name); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message":  "restart initiated",
		"platform": name,
	})
}

// GetIncidents returns the newest incidents, optionally limited by ?limit=
func (h *Handler) GetIncidents(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	incidents := h.monitor.GetIncidents(limit)
	c.JSON(http.StatusOK, gin.H{
		"incidents": incidents,
		"total":     len(incidents),
	})
}

// GetReport returns the current health report with recommendations
func (h *Handler) GetReport(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.BuildReport())
}

// SSEStream handles Server-Sent Events for real-time updates
func (h *Handler) SSEStream(c *gin.Context) {
	// Generate unique subscriber ID
	subID := uuid.New().String()

	notifier := h.monitor.Notifier()
	ch := notifier.Subscribe(subID)
	defer notifier.Unsubscribe(subID)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	// Send initial data
	c.SSEvent("status", h.monitor.CurrentStatus())
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent(string(event.Type), event.Data)
			c.Writer.Flush()
		}
	}
}

// WebSocket upgrades the connection and hands it to the hub
func (h *Handler) WebSocket(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "websocket stream unavailable"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("Failed to upgrade WebSocket")
		return
	}
	h.hub.Serve(conn)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrTargetNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrMonitorStopped):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
