package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	models "Rotator/internal/domain/models"
	domrepo "Rotator/internal/domain/repository"
	"Rotator/internal/service/ratelimit"
	xhttp "Rotator/pkg/http"
	xlogger "Rotator/pkg/logger"
)

// AlgorithmService is what the HTTP layer needs from the engine.
type AlgorithmService interface {
	Status(ctx context.Context) (*models.StatusResponse, error)
	History(ctx context.Context, limit int) ([]models.RebalanceResult, error)
	TriggerManual(ctx context.Context) *models.RebalanceResult
}

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

var classify = xhttp.ErrorMapping(map[error]func(string) *xhttp.AppError{
	domrepo.ErrNotFound:       xhttp.NotFoundError,
	domrepo.ErrAlreadyRunning: xhttp.ConflictError,
})

// AlgorithmEchoHandler exposes status, history and the manual trigger.
type AlgorithmEchoHandler struct {
	logger     *xlogger.Logger
	svc        AlgorithmService
	limiter    *ratelimit.Limiter
	checks     map[string]HealthCheck
	runTimeout time.Duration
}

func NewAlgorithmEchoHandler(logger *xlogger.Logger, svc AlgorithmService, limiter *ratelimit.Limiter, checks map[string]HealthCheck, runTimeout time.Duration) *AlgorithmEchoHandler {
	if runTimeout <= 0 {
		runTimeout = 10 * time.Minute
	}
	return &AlgorithmEchoHandler{
		logger:     logger.Component("api"),
		svc:        svc,
		limiter:    limiter,
		checks:     checks,
		runTimeout: runTimeout,
	}
}

func (h *AlgorithmEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/algorithm")
	g.GET("/status", h.Status)
	g.GET("/logs", h.Logs)
	g.POST("/rebalance", h.Rebalance)
	e.GET("/healthz", h.Health)
}

func (h *AlgorithmEchoHandler) Status(c echo.Context) error {
	res, err := h.svc.Status(c.Request().Context())
	if err != nil {
		h.logger.Error("status failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err, classify)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, res)
}

func (h *AlgorithmEchoHandler) Logs(c echo.Context) error {
	req := &models.LogsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	logs, err := h.svc.History(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("logs failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err, classify)
	}
	return xhttp.ListResponse(c, logs, int64(len(logs)))
}

// Rebalance runs a manual rebalance and returns its result, including a
// failed one. The run is detached from the request so a client hanging up
// cannot abort a half-placed order set.
func (h *AlgorithmEchoHandler) Rebalance(c echo.Context) error {
	if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "manual rebalance rate limit exceeded")
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), h.runTimeout)
	defer cancel()

	res := h.svc.TriggerManual(ctx)
	if !res.Success {
		h.logger.Warn("manual rebalance failed", xlogger.String("run_id", res.RunID), xlogger.String("error", res.Error))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AlgorithmEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := map[string]string{}
	healthy := true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		return c.JSON(http.StatusServiceUnavailable, status)
	}
	return c.JSON(http.StatusOK, status)
}
