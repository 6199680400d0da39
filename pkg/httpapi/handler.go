package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kolibri-protocol/kolibri-go/pkg/broker"
	"github.com/kolibri-protocol/kolibri-go/pkg/subscription"
	"github.com/kolibri-protocol/kolibri-go/pkg/wire"
)

// Backend is the part of a broker session the API drives.
// *broker.Session implements it.
type Backend interface {
	State() broker.State
	Status() broker.Status
	ClientID() string
	Pending() int
	Subscriptions() []subscription.Info
	Subscribe(path string, h subscription.Handler) error
	Unsubscribe(path string) error
	Write(p wire.PointState) error
}

var _ Backend = (*broker.Session)(nil)

// Options configure a Handler.
type Options struct {
	Logger *slog.Logger

	// OnPoint receives values for subscriptions created through the API.
	// Values are recorded as the subscription's last value either way.
	OnPoint subscription.Handler

	// Version is reported by the health endpoint.
	Version string

	// Now stamps writes that carry no timestamp.
	Now func() time.Time
}

// Handler serves the API for one backend.
type Handler struct {
	backend Backend
	logger  *slog.Logger
	onPoint subscription.Handler
	version string
	now     func() time.Time
}

// NewHandler creates a Handler for backend.
func NewHandler(backend Backend, opts Options) *Handler {
	h := &Handler{
		backend: backend,
		logger:  opts.Logger,
		onPoint: opts.OnPoint,
		version: opts.Version,
		now:     opts.Now,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.onPoint == nil {
		h.onPoint = func(wire.PointState) {}
	}
	if h.version == "" {
		h.version = "dev"
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failure.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// StatusResponse describes the session.
type StatusResponse struct {
	State         string        `json:"state"`
	Connected     bool          `json:"connected"`
	Status        broker.Status `json:"status"`
	ClientID      string        `json:"client_id,omitempty"`
	Pending       int           `json:"pending"`
	Subscriptions int           `json:"subscriptions"`
}

// SubscribeRequest is the body of POST /api/subscriptions.
type SubscribeRequest struct {
	Path string `json:"path" binding:"required"`
}

// WriteRequest is the body of POST /api/write. Quality defaults to good
// and Timestamp, in milliseconds, to the current time.
type WriteRequest struct {
	Path      string `json:"path" binding:"required"`
	Value     any    `json:"value"`
	Quality   *int   `json:"quality"`
	Timestamp *int64 `json:"timestamp"`
}

const (
	codeValidation   = "VALIDATION_ERROR"
	codeNotFound     = "NOT_FOUND"
	codeNotConnected = "NOT_CONNECTED"
	codeUnavailable  = "SESSION_CLOSED"
	codeExhausted    = "RESOURCE_EXHAUSTED"
	codeInternal     = "INTERNAL_ERROR"
)

func sendError(c *gin.Context, statusCode int, code, message, path string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message, Path: path},
	})
}

// sendBackendError maps session errors onto HTTP statuses.
func sendBackendError(c *gin.Context, err error, path string) {
	switch {
	case errors.Is(err, broker.ErrEmptyPath), errors.Is(err, subscription.ErrEmptyPath):
		sendError(c, http.StatusBadRequest, codeValidation, err.Error(), path)
	case errors.Is(err, broker.ErrNotConnected):
		sendError(c, http.StatusServiceUnavailable, codeNotConnected, err.Error(), path)
	case errors.Is(err, broker.ErrClosed):
		sendError(c, http.StatusServiceUnavailable, codeUnavailable, err.Error(), path)
	case errors.Is(err, subscription.ErrResourceExhausted):
		sendError(c, http.StatusTooManyRequests, codeExhausted, err.Error(), path)
	default:
		sendError(c, http.StatusInternalServerError, codeInternal, err.Error(), path)
	}
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": h.version,
	})
}

// Status handles GET /api/status.
func (h *Handler) Status(c *gin.Context) {
	state := h.backend.State()
	c.JSON(http.StatusOK, StatusResponse{
		State:         state.String(),
		Connected:     state == broker.StateConnected,
		Status:        h.backend.Status(),
		ClientID:      h.backend.ClientID(),
		Pending:       h.backend.Pending(),
		Subscriptions: len(h.backend.Subscriptions()),
	})
}

// ListSubscriptions handles GET /api/subscriptions.
func (h *Handler) ListSubscriptions(c *gin.Context) {
	c.JSON(http.StatusOK, h.backend.Subscriptions())
}

// Subscribe handles POST /api/subscriptions. The subscription is sent to
// the broker once the session is connected.
func (h *Handler) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, codeValidation, "invalid request body: "+err.Error(), "")
		return
	}
	if err := h.backend.Subscribe(req.Path, h.onPoint); err != nil {
		sendBackendError(c, err, req.Path)
		return
	}
	h.logger.Info("subscription added", "path", req.Path)
	c.JSON(http.StatusAccepted, gin.H{"path": req.Path})
}

// Unsubscribe handles DELETE /api/subscriptions/*path. Only wanted
// subscriptions can be removed.
func (h *Handler) Unsubscribe(c *gin.Context) {
	path := c.Param("path")
	if info, ok := h.lookup(path); !ok || !info.Want {
		sendError(c, http.StatusNotFound, codeNotFound, "no subscription for path", path)
		return
	}
	if err := h.backend.Unsubscribe(path); err != nil {
		sendBackendError(c, err, path)
		return
	}
	h.logger.Info("subscription removed", "path", path)
	c.Status(http.StatusNoContent)
}

// Point handles GET /api/points/*path and returns the last value
// received for a subscribed path.
func (h *Handler) Point(c *gin.Context) {
	path := c.Param("path")
	info, ok := h.lookup(path)
	if !ok {
		sendError(c, http.StatusNotFound, codeNotFound, "no subscription for path", path)
		return
	}
	if info.Last == nil {
		sendError(c, http.StatusNotFound, codeNotFound, "no value received yet", path)
		return
	}
	c.JSON(http.StatusOK, info.Last)
}

// Write handles POST /api/write.
func (h *Handler) Write(c *gin.Context) {
	var req WriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, codeValidation, "invalid request body: "+err.Error(), "")
		return
	}

	p := wire.NewPointState(req.Path, req.Value, h.now())
	if req.Quality != nil {
		p.Quality = *req.Quality
	}
	if req.Timestamp != nil {
		p.Timestamp = *req.Timestamp
	}

	if err := h.backend.Write(p); err != nil {
		sendBackendError(c, err, req.Path)
		return
	}
	c.JSON(http.StatusAccepted, p)
}

func (h *Handler) lookup(path string) (subscription.Info, bool) {
	for _, info := range h.backend.Subscriptions() {
		if info.Path == path {
			return info, true
		}
	}
	return subscription.Info{}, false
}

// RegisterRoutes registers the API routes on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.Health)

	api := r.Group("/api")
	{
		api.GET("/status", h.Status)
		api.GET("/subscriptions", h.ListSubscriptions)
		api.POST("/subscriptions", h.Subscribe)
		api.DELETE("/subscriptions/*path", h.Unsubscribe)
		api.GET("/points/*path", h.Point)
		api.POST("/write", h.Write)
	}
}

// NewRouter returns a gin engine serving the API with panic recovery
// and request logging.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.logger))
	h.RegisterRoutes(r)
	return r
}
