package server

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"slfs-backend/core/service"
	"slfs-backend/internal/auth"
	"slfs-backend/internal/handler"
	"slfs-backend/internal/metrics"
)

const bodyLimit = "10M"

type Deps struct {
	Payments       service.PaymentService
	Clearance      service.ClearanceService
	Metrics        *metrics.Metrics
	Log            *logrus.Entry
	Modules        []handler.Module
	AllowedOrigins []string
	StaticDir      string
	// STKPushSecret enables bearer-token auth on /api/stkpush when set.
	STKPushSecret string
}

func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = sonicSerializer{}

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(requestLogger(d.Log))
	if d.Metrics != nil {
		e.Use(d.Metrics.Middleware())
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     d.AllowedOrigins,
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit(bodyLimit))

	h := handler.NewHandler(d.Payments, d.Clearance, d.Log)

	e.GET("/", handler.Welcome)

	api := e.Group("/api")

	var stkPushGuard []echo.MiddlewareFunc
	if d.STKPushSecret != "" {
		stkPushGuard = append(stkPushGuard, auth.RequireBearer([]byte(d.STKPushSecret), d.Log))
	}
	api.POST("/stkpush", h.STKPush, stkPushGuard...)
	api.POST("/clearance/apply", h.ApplyClearance)

	for _, m := range d.Modules {
		m.Register(api.Group("/" + m.Name()))
	}
	api.Any("", handler.NotFound)
	api.Any("/*", handler.NotFound)

	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	e.GET("/*", handler.NewSPA(d.StaticDir).Serve)

	return e
}

func requestLogger(log *logrus.Entry) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := log.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"request_id": v.RequestID,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request failed")
				return nil
			}
			entry.Info("request handled")
			return nil
		},
	})
}
