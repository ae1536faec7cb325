package router

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	authh "github.com/jwalitptl/deepmed-api/internal/handler/auth"
	"github.com/jwalitptl/deepmed-api/internal/handler/health"
	"github.com/jwalitptl/deepmed-api/internal/handler/patient"
	"github.com/jwalitptl/deepmed-api/internal/handler/places"
	promh "github.com/jwalitptl/deepmed-api/internal/handler/prometheus"
	"github.com/jwalitptl/deepmed-api/internal/middleware"
)

// Requests under these prefixes carry patient data or credentials in their
// path, query or body.
var redactedPrefixes = []string{
	"/api/patients",
	"/api/predict",
	"/api/places",
	"/api/admin",
}

type Handlers struct {
	Patient *patient.Handler
	Places  *places.Handler
	Health  *health.Handler
	Metrics *promh.Handler
	// Auth is nil when the admin API is disabled.
	Auth *authh.Handler
}

type RouterConfig struct {
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	CORSConfig       middleware.CORSConfig
	MaxBodyBytes     int64
}

type Router struct {
	engine   *gin.Engine
	handlers Handlers
	// auth is nil when the admin API is disabled.
	auth        *middleware.AuthMiddleware
	predictions []gin.HandlerFunc
}

func NewRouter(handlers Handlers, auth *middleware.AuthMiddleware, config RouterConfig) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()

	r := &Router{
		engine:   engine,
		handlers: handlers,
		auth:     auth,
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(redactedPrefixes...),
		middleware.ErrorHandler(),
	)
	if handlers.Metrics != nil {
		engine.Use(handlers.Metrics.Middleware())
	}

	engine.Use(middleware.CORS(config.CORSConfig))

	sizeLimit := middleware.DefaultSizeLimitConfig()
	if config.MaxBodyBytes > 0 {
		sizeLimit.MaxBodySize = config.MaxBodyBytes
	}
	engine.Use(middleware.SizeLimit(sizeLimit))

	// Predictions are throttled per client IP.
	if config.RateLimitEnabled && config.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		r.predictions = append(r.predictions, limiter.RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	if r.handlers.Health != nil {
		r.handlers.Health.RegisterRoutes(r.engine)
	}
	if r.handlers.Metrics != nil {
		r.engine.GET("/metrics", r.handlers.Metrics.Handler())
	}

	api := r.engine.Group("/api")

	r.handlers.Patient.RegisterRoutes(api, r.predictions...)
	api.POST("/predict", append(r.predictions, r.handlers.Patient.Predict)...)
	r.handlers.Places.RegisterRoutes(api)

	if r.auth != nil && r.handlers.Auth != nil {
		admin := api.Group("/admin")
		r.handlers.Auth.RegisterRoutes(admin)

		protected := admin.Group("")
		protected.Use(r.auth.Authenticate())
		r.handlers.Patient.RegisterAdminRoutes(protected)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
