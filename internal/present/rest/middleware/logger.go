package middleware

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nexusholdings/nexus/internal/utils"
)

// RequestLogger emits one zap entry per request.
func RequestLogger() echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:      true,
		LogMethod:   true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := []zap.Field{
				utils.String("method", v.Method),
				utils.String("uri", v.URI),
				utils.Int("status", v.Status),
				utils.Duration("latency", v.Latency),
				utils.String("remoteIp", v.RemoteIP),
			}
			if sc := trace.SpanContextFromContext(c.Request().Context()); sc.HasTraceID() {
				fields = append(fields, utils.String("traceId", sc.TraceID().String()))
			}
			if id, ok := RequesterID(c.Request().Context()); ok {
				fields = append(fields, utils.String("requesterId", id))
			}
			if v.Error != nil {
				fields = append(fields, utils.ErrorField(v.Error))
				utils.Warn("request failed", fields...)
				return nil
			}
			utils.Info("request", fields...)
			return nil
		},
	})
}
