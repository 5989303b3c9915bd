package api

import (
	"errors"
	"time"

	"FinArb/internal/domain/models"
	domrepo "FinArb/internal/domain/repository"
	"FinArb/internal/usecase"
	xhttp "FinArb/pkg/http"
	xlogger "FinArb/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ArbiterEchoHandler exposes the arbitration engine over HTTP.
type ArbiterEchoHandler struct {
	logger    *xlogger.Logger
	engine    *usecase.Engine
	cache     domrepo.ResultCache
	publisher domrepo.ResultPublisher
	cacheTTL  time.Duration
}

func NewArbiterEchoHandler(
	logger *xlogger.Logger,
	engine *usecase.Engine,
	cache domrepo.ResultCache,
	publisher domrepo.ResultPublisher,
	cacheTTL time.Duration,
) *ArbiterEchoHandler {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Second
	}
	return &ArbiterEchoHandler{
		logger:    logger,
		engine:    engine,
		cache:     cache,
		publisher: publisher,
		cacheTTL:  cacheTTL,
	}
}

func (h *ArbiterEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/resolve", h.Resolve)
	g.GET("/health", h.Health)
}

// Resolve answers one arbitration request. Fresh results are cached
// briefly; fusion requests and no_cache bypass the cache.
func (h *ArbiterEchoHandler) Resolve(c echo.Context) error {
	req := &models.ResolveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	engineReq := req.ToRequest()
	ctx := c.Request().Context()

	useCache := !req.NoCache && !req.Fusion
	if useCache {
		if cached, ok := h.cache.Get(ctx, engineReq.Capability, engineReq.Entity); ok {
			c.Response().Header().Set("X-Cache", "hit")
			return xhttp.SuccessResponse(c, cached)
		}
	}

	res, err := h.engine.Resolve(ctx, engineReq)
	if err != nil {
		return h.resolveError(c, err)
	}

	if useCache {
		if cerr := h.cache.Set(ctx, res, h.cacheTTL); cerr != nil {
			h.logger.Warn("result cache set failed", xlogger.Error(cerr))
		}
	}
	if perr := h.publisher.PublishResult(ctx, res); perr != nil {
		h.logger.Warn("result publish failed", xlogger.Error(perr))
	}

	return xhttp.SuccessResponse(c, res)
}

// Health reports derived health and circuit state per (source, capability).
func (h *ArbiterEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.HealthSnapshot())
}

func (h *ArbiterEchoHandler) resolveError(c echo.Context, err error) error {
	var allFailed *models.AllSourcesFailedError
	switch {
	case errors.Is(err, models.ErrNoCapableSource):
		return xhttp.AppErrorResponse(c,
			xhttp.NotFoundError("no source serves the requested capability").WithError(err))
	case errors.As(err, &allFailed):
		h.logger.Warn("resolve exhausted all sources",
			xlogger.Int("attempts", len(allFailed.Attempts)))
		return xhttp.AppErrorResponse(c,
			xhttp.UnavailableError("all capable sources failed").WithError(err))
	default:
		h.logger.Error("resolve error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
}
