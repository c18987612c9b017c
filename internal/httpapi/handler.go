// File: internal/httpapi/handler.go
// License: Apache-2.0
//
// Package httpapi exposes the native process over a local HTTP API.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/momentics/beatbridge/api"
	"github.com/momentics/beatbridge/message"
	"github.com/momentics/beatbridge/router"
)

// Bridge is the part of the supervisor the API drives.
type Bridge interface {
	State() api.ConnectionState
	Snapshot() router.Snapshot
	SendCommand(cmd *message.Command) error
}

// StatsSource supplies the /debug payload.
type StatsSource interface {
	Stats() map[string]any
}

// Handler handles HTTP requests for the bridge.
type Handler struct {
	bridge Bridge
	stats  StatsSource
}

// NewHandler creates a new Handler. stats may be nil.
func NewHandler(bridge Bridge, stats StatsSource) *Handler {
	return &Handler{bridge: bridge, stats: stats}
}

// CommandRequest represents the request body for sending a command.
type CommandRequest struct {
	Command  string   `json:"command" binding:"required"`
	Position *float64 `json:"position"`
	ID       string   `json:"id"`
	Type     string   `json:"type"`
}

// StatusResponse represents the connection state in API responses.
type StatusResponse struct {
	State       api.ConnectionState `json:"state"`
	Description string              `json:"description"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func sendError(c *gin.Context, statusCode int, code, message string, details map[string]any) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// RegisterRoutes registers the bridge routes on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/status", h.Status)
	r.GET("/nowplaying", h.NowPlaying)
	r.POST("/commands", h.SendCommand)
	r.GET("/debug", h.Debug)
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Status handles GET /status.
func (h *Handler) Status(c *gin.Context) {
	st := h.bridge.State()
	c.JSON(http.StatusOK, StatusResponse{State: st, Description: st.Description()})
}

// NowPlaying handles GET /nowplaying.
func (h *Handler) NowPlaying(c *gin.Context) {
	c.JSON(http.StatusOK, h.bridge.Snapshot())
}

// SendCommand handles POST /commands and forwards the command to the
// extension.
func (h *Handler) SendCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error(), nil)
		return
	}

	cmd := message.NewCommand(req.Command)
	if req.Position != nil || req.ID != "" || req.Type != "" {
		cmd.Data = &message.CommandData{Position: req.Position, ID: req.ID, Type: req.Type}
	}

	err := h.bridge.SendCommand(cmd)
	var apiErr *api.Error
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "sent", "command": cmd.Command})
	case errors.Is(err, api.ErrNotConnected):
		sendError(c, http.StatusServiceUnavailable, "NOT_CONNECTED", "extension is not connected; command dropped", nil)
	case errors.As(err, &apiErr) && apiErr.Code == api.ErrCodeProtocol:
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", apiErr.Message, apiErr.Context)
	default:
		sendError(c, http.StatusBadGateway, "SEND_FAILED", err.Error(), nil)
	}
}

// Debug handles GET /debug.
func (h *Handler) Debug(c *gin.Context) {
	if h.stats == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, h.stats.Stats())
}
