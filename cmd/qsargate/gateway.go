package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonwraymond/qsargate/audit"
	"github.com/jonwraymond/qsargate/auth"
	"github.com/jonwraymond/qsargate/cache"
	"github.com/jonwraymond/qsargate/config"
	"github.com/jonwraymond/qsargate/health"
	"github.com/jonwraymond/qsargate/observe"
	"github.com/jonwraymond/qsargate/resilience"
	"github.com/jonwraymond/qsargate/rpc"
	"github.com/jonwraymond/qsargate/server"
	"github.com/jonwraymond/qsargate/toolbox"
	"github.com/jonwraymond/qsargate/tools"
)

// gateway is the assembled process: one key cache, one permission store
// and one toolbox client, shared by every request.
type gateway struct {
	handler     http.Handler
	permissions *auth.PermissionStore
	keys        *auth.JWKSCache
	toolbox     *toolbox.Client
}

func newGateway(ctx context.Context, s *config.Settings, obs observe.Observer) (*gateway, error) {
	logger := obs.Logger()

	authMetrics, err := observe.NewAuthMetrics(obs.Meter())
	if err != nil {
		return nil, fmt.Errorf("create auth metrics: %w", err)
	}
	emitter := audit.NewEmitter(logger)

	gw := &gateway{}
	var verifier auth.Verifier
	oidcErr := s.ValidateOIDC()
	switch {
	case s.Security.BypassAuth:
		logger.Warn(ctx, "authentication bypass enabled; every request runs as the bypass principal")
	case oidcErr != nil:
		logger.Error(ctx, "OIDC settings incomplete; authenticated methods will fail",
			observe.Field{Key: "error", Value: oidcErr.Error()})
	default:
		gw.keys = auth.NewJWKSCache(auth.JWKSConfig{
			URL:          s.JWKSURL(),
			CacheTTL:     s.JWKSCacheTTL(),
			FetchTimeout: s.Security.JWKSFetchTimeout,
			Logger:       logger,
			Metrics:      authMetrics,
		})
		verifier = auth.NewTokenVerifier(auth.VerifierConfig{
			Issuer:     s.Security.OIDCIssuer,
			Audience:   s.Security.OIDCAudience,
			Algorithms: s.Security.OIDCAlgorithms,
		}, gw.keys)
	}
	gate := auth.NewGate(auth.GateConfig{
		Bypass:        s.Security.BypassAuth,
		RoleClaimPath: s.Security.RoleClaimPath,
		Logger:        logger,
		Metrics:       authMetrics,
	}, verifier)

	gw.permissions = auth.NewPermissionStore(ctx, s.Security.ToolPermissionsFile, logger)
	authorizer := auth.NewRBACAuthorizer(gw.permissions, auth.RBACConfig{
		Audit:   emitter,
		Metrics: authMetrics,
		Logger:  logger,
	})

	gw.toolbox, err = toolbox.NewClient(toolbox.Config{
		BaseURL:          s.Toolbox.BaseURL,
		Headers:          s.Toolbox.Headers,
		Light:            resilience.Profile{Timeout: s.Toolbox.LightTimeout, MaxAttempts: s.Toolbox.LightAttempts},
		Heavy:            resilience.Profile{Timeout: s.Toolbox.HeavyTimeout, MaxAttempts: s.Toolbox.HeavyAttempts},
		HeavyConcurrency: s.Toolbox.HeavyConcurrency,
		RateLimit:        s.Toolbox.RateLimit,
		RateBurst:        s.Toolbox.RateBurst,
		BreakerFailures:  s.Toolbox.BreakerFailures,
		BreakerReset:     s.Toolbox.BreakerReset,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create toolbox client: %w", err)
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterQSARTools(registry, gw.toolbox); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	execMW, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return nil, fmt.Errorf("create execution middleware: %w", err)
	}
	var resultCache *cache.Middleware
	if s.Toolbox.CacheTTL > 0 {
		policy := cache.Policy{DefaultTTL: s.Toolbox.CacheTTL, MaxEntries: s.Toolbox.CacheSize}
		resultCache = cache.NewMiddleware(cache.NewMemoryCache(policy), nil, policy, nil)
	}
	pipeline := tools.NewPipeline(registry, tools.PipelineConfig{
		Authorizer: authorizer,
		Audit:      emitter,
		Observe:    execMW,
		Cache:      resultCache,
		Logger:     logger,
	})

	agg := health.NewAggregator(health.AggregatorConfig{})
	if gw.keys != nil {
		agg.Register(health.NewJWKSChecker(gw.keys))
	}
	agg.Register(health.NewPermissionsChecker(gw.permissions))
	agg.Register(health.NewToolboxChecker(gw.toolbox, gw.toolbox.BaseURL()))

	gw.handler = server.NewRouter(server.RouterOptions{
		MCP: rpc.NewHandler(rpc.Config{
			Auth:    gate,
			Tools:   pipeline,
			Version: version,
			Logger:  logger,
		}),
		Health:          agg,
		Service:         health.ServiceInfo{Name: serviceName, Version: version},
		Metrics:         obs.MetricsHandler(),
		Audit:           emitter,
		AllowAllOrigins: s.IsDevelopment(),
		CORSOrigins:     s.App.CORSOrigins,
	})

	logger.Info(ctx, "gateway assembled",
		observe.Field{Key: "tools", Value: registry.Len()},
		observe.Field{Key: "toolbox", Value: gw.toolbox.BaseURL()},
		observe.Field{Key: "bypass", Value: s.Security.BypassAuth},
	)
	return gw, nil
}
