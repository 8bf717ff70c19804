// Package server is the HTTP boundary of the guard-gateway: it receives
// candidate URLs, runs the validator, and answers with the decision.
//
// The caller contract: a blocked URL gets a 403 whose message is
// "Security validation failed: <reason>", and a safe URL gets the normalized
// form the caller must fetch instead of its own input. Redirect hops during
// the eventual fetch are the caller's to re-validate, one call per hop.
package server

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/stacklume/fetchguard/internal/common/configtypes"
	"github.com/stacklume/fetchguard/internal/common/httputil"
	"github.com/stacklume/fetchguard/internal/common/redis"
	"github.com/stacklume/fetchguard/internal/common/requestid"
	"github.com/stacklume/fetchguard/internal/guard/metrics"
	"github.com/stacklume/fetchguard/internal/guard/validator"
)

// Validation modes accepted by the validate endpoint
const (
	ModeFull = "full"
	ModeSync = "sync"
)

// Server handles guard-gateway HTTP requests
type Server struct {
	cfg       *configtypes.Config
	validator *validator.Validator
	metrics   *metrics.Collector
	redis     *redis.Client // nil when the DNS cache is disabled
	logger    *zap.Logger
}

// NewServer wires the validator behind the HTTP surface
func NewServer(
	cfg *configtypes.Config,
	v *validator.Validator,
	collector *metrics.Collector,
	redisClient *redis.Client,
	logger *zap.Logger,
) *Server {
	return &Server{
		cfg:       cfg,
		validator: v,
		metrics:   collector,
		redis:     redisClient,
		logger:    logger,
	}
}

// HandleRequest is the fasthttp entry point
func (s *Server) HandleRequest(ctx *fasthttp.RequestCtx) {
	reqID := requestid.Generate(string(ctx.Request.Header.Peek("X-Request-ID")))
	ctx.Response.Header.Set("X-Request-ID", reqID)

	logger := s.logger.With(zap.String("request_id", reqID))

	switch string(ctx.Path()) {
	case "/health":
		s.handleHealth(ctx)
	case "/ready":
		s.handleReady(ctx)
	case "/v1/validate":
		if !ctx.IsGet() && !ctx.IsPost() {
			logger.Warn("Method not allowed", zap.String("method", string(ctx.Method())))
			httputil.JSONError(ctx, "Method not allowed", fasthttp.StatusMethodNotAllowed)
			return
		}
		s.handleValidate(ctx, logger)
	default:
		logger.Warn("Not found", zap.String("path", string(ctx.Path())))
		httputil.JSONError(ctx, "Endpoint not found", fasthttp.StatusNotFound)
	}
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	httputil.JSONData(ctx, map[string]string{"status": "ok"}, fasthttp.StatusOK)
}

func (s *Server) handleReady(ctx *fasthttp.RequestCtx) {
	if s.redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(pingCtx); err != nil {
			httputil.JSONError(ctx, "DNS cache unavailable", fasthttp.StatusServiceUnavailable)
			return
		}
	}
	httputil.JSONData(ctx, map[string]string{"status": "ready"}, fasthttp.StatusOK)
}

// handleValidate runs the validator on the url parameter. mode=sync runs the
// no-I/O layer only (the cheap pre-filter); the default full mode is the one
// a fetch pipeline must use before any outbound request.
func (s *Server) handleValidate(ctx *fasthttp.RequestCtx, logger *zap.Logger) {
	s.metrics.IncActiveRequests()
	defer s.metrics.DecActiveRequests()

	// FormValue covers query args, POST form bodies, and multipart
	rawURL := string(ctx.FormValue("url"))
	if rawURL == "" {
		httputil.JSONError(ctx, "Missing required parameter: url", fasthttp.StatusBadRequest)
		return
	}

	// Same source as url: a POSTed form can carry the mode too
	mode := string(ctx.FormValue("mode"))
	if mode == "" {
		mode = ModeFull
	}
	if mode != ModeFull && mode != ModeSync {
		httputil.JSONError(ctx, "Invalid mode: must be \"full\" or \"sync\"", fasthttp.StatusBadRequest)
		return
	}

	start := time.Now()
	var decision validator.Decision
	if mode == ModeSync {
		decision = s.validator.ValidateSync(rawURL)
	} else {
		reqCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.Timeout.ToDuration())
		defer cancel()
		decision = s.validator.Validate(reqCtx, rawURL)
	}
	duration := time.Since(start)

	s.metrics.RecordDecision(decision.Safe, string(decision.Reason), mode, duration)

	if !decision.Safe {
		logger.Info("URL blocked",
			zap.String("url", rawURL),
			zap.String("reason", string(decision.Reason)),
			zap.String("detail", decision.Detail),
			zap.String("mode", mode),
			zap.Duration("duration", duration))

		httputil.JSONResponse(ctx, false,
			"Security validation failed: "+decision.Message(),
			decision, fasthttp.StatusForbidden)
		return
	}

	logger.Debug("URL validated",
		zap.String("url", rawURL),
		zap.String("normalized_url", decision.NormalizedURL),
		zap.String("mode", mode),
		zap.Duration("duration", duration))

	httputil.JSONData(ctx, decision, fasthttp.StatusOK)
}
