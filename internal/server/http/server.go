package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/cafe/internal/config"
	"github.com/Additional-Code/cafe/internal/observability"
	"github.com/Additional-Code/cafe/internal/presentation/http/response"
	"github.com/Additional-Code/cafe/pkg/errorbank"
)

// Module exposes the HTTP server lifecycle to Fx.
var Module = fx.Module("http_server",
	fx.Provide(NewEcho),
	fx.Invoke(Run),
)

// NewEcho configures the Echo router with basic middleware.
func NewEcho(cfg config.Config, obs *observability.Manager, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if obs != nil && obs.TracingEnabled() {
		e.Use(otelecho.Middleware(cfg.Observability.ServiceName))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	if obs != nil && obs.MetricsEnabled() && obs.MetricsHandler() != nil {
		e.GET(cfg.Observability.PrometheusPath, echo.WrapHandler(obs.MetricsHandler()))
	}

	return e
}

// ErrorHandler renders errors that escape handlers and middleware (routing
// misses, auth and rate-limit rejections, panics) in the standard envelope.
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		b := response.New(c)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			b = b.WithStatus(he.Code).WithError(fromHTTPError(he))
		} else {
			b = b.WithError(err)
		}

		appErr := errorbank.From(err)
		if he == nil && appErr.StatusCode() >= http.StatusInternalServerError {
			logger.Error("http request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}

		if err := b.Build(); err != nil {
			logger.Warn("write error response", zap.Error(err))
		}
	}
}

func fromHTTPError(he *echo.HTTPError) *errorbank.AppError {
	message := http.StatusText(he.Code)
	if he.Message != nil {
		message = fmt.Sprint(he.Message)
	}
	opts := []errorbank.Option{}
	if he.Internal != nil {
		opts = append(opts, errorbank.WithCause(he.Internal))
	}

	switch {
	case he.Code == http.StatusUnauthorized:
		return errorbank.Unauthorized(message, opts...)
	case he.Code == http.StatusNotFound:
		return errorbank.NotFound(message, opts...)
	case he.Code == http.StatusConflict:
		return errorbank.Conflict(message, opts...)
	case he.Code >= http.StatusInternalServerError:
		return errorbank.Internal(message, opts...)
	default:
		return errorbank.BadRequest(message, opts...)
	}
}

// Run starts the HTTP server and ties it to the Fx lifecycle.
func Run(lc fx.Lifecycle, cfg config.Config, e *echo.Echo, logger *zap.Logger) {
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)

	server := &http.Server{
		Addr:    addr,
		Handler: e,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting HTTP server", zap.String("addr", addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping HTTP server")
			return server.Shutdown(ctx)
		},
	})
}
