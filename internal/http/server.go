package http

import (
	"context"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/renderforge/render-gateway/internal/admission"
	"github.com/renderforge/render-gateway/internal/ledger"
	"github.com/renderforge/render-gateway/internal/metrics"
)

type Server struct{ e *echo.Echo }

func NewServer(ctrl *admission.Controller, ledg *ledger.Ledger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// routes
	v1 := e.Group("/v1")
	v1.POST("/render", renderHandler(ctrl))
	v1.POST("/invoices", createInvoiceHandler(ledg))
	v1.GET("/invoices/:id", checkInvoiceHandler(ledg))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
