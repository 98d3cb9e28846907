package http

import (
	"context"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"go.uber.org/zap"

	"github.com/loopio/feedback-tracker/internal/observability"
	apperrors "github.com/loopio/feedback-tracker/pkg/util/errorutil"
)

// MiddlewareConfig drives the global middleware chain.
type MiddlewareConfig struct {
	RequestTimeout time.Duration
	// AllowedOrigins is a comma separated CORS allow list; "*" allows any origin.
	AllowedOrigins  string
	RateLimitMax    int
	RateLimitWindow time.Duration
	// LimiterStorage shares rate-limit counters between instances. Nil keeps
	// them in process memory.
	LimiterStorage fiber.Storage
}

// RegisterMiddlewares attaches the global chain. The request logger sits
// outside error rendering so it sees the final status.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, cfg MiddlewareConfig) {
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorHandlingMiddleware(logger, metrics))
	// Attachments and avatars are embedded by a browser client on another origin.
	app.Use(helmet.New(helmet.Config{CrossOriginResourcePolicy: "cross-origin"}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  allowedOrigins(cfg.AllowedOrigins),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization",
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		ExposeHeaders: observability.RequestIDHeader,
	}))
	if cfg.RateLimitMax > 0 {
		app.Use(rateLimiter(cfg))
	}
	if cfg.RequestTimeout > 0 {
		app.Use(requestTimeoutMiddleware(cfg.RequestTimeout))
	}
}

func allowedOrigins(raw string) string {
	if raw == "" {
		return "*"
	}
	return raw
}

// rateLimiter counts requests per client IP over a fixed window.
func rateLimiter(cfg MiddlewareConfig) fiber.Handler {
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = 10 * time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        cfg.RateLimitMax,
		Expiration: window,
		Storage:    cfg.LimiterStorage,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		LimitReached: func(c *fiber.Ctx) error {
			return apperrors.NewDomainError("RATE_LIMITED", "too many requests, please try again later",
				fiber.StatusTooManyRequests, map[string]any{"retry_after_seconds": strconv.Itoa(int(window.Seconds()))})
		},
	})
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// errorHandlingMiddleware renders any returned error, and any panic, as
// {"error":{"code","message","details?"}}.
func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				renderError(c, logger, metrics, err)
				err = nil
			}
		}()
		return c.Next()
	}
}

func renderError(c *fiber.Ctx, logger *zap.Logger, metrics *observability.Metrics, err error) {
	domainErr := apperrors.ToDomainError(err)
	if metrics != nil {
		metrics.RecordError(c.Path(), c.Method(), domainErr.Code)
	}
	body := fiber.Map{
		"code":    domainErr.Code,
		"message": domainErr.Message,
	}
	if len(domainErr.Details) > 0 {
		body["details"] = domainErr.Details
	}
	if domainErr.HTTPStatus >= fiber.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.String("method", c.Method()),
			zap.Error(domainErr))
	}
	_ = c.Status(domainErr.HTTPStatus).JSON(fiber.Map{"error": body})
}
