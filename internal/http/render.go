package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/renderforge/render-gateway/internal/admission"
	"github.com/renderforge/render-gateway/internal/model"
)

// Headers the funding path is read from.
const (
	headerAPIKey  = "X-API-Key"
	headerPayment = "X-Payment"
)

type renderReq struct {
	URL        string `json:"url"`
	Markdown   string `json:"markdown"`
	Kind       string `json:"kind"` // "png" | "jpeg" | "pdf" | "html"
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Quality    int    `json:"quality"`
	FullPage   bool   `json:"full_page"`
	WaitMillis int    `json:"wait_ms"`
}

func renderHandler(ctrl *admission.Controller) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req renderReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		kind, ok := model.ParseJobKind(req.Kind)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid kind"})
		}

		job := model.RenderJob{
			URL:        req.URL,
			Markdown:   req.Markdown,
			Kind:       kind,
			Width:      req.Width,
			Height:     req.Height,
			Quality:    req.Quality,
			FullPage:   req.FullPage,
			WaitMillis: req.WaitMillis,
		}

		auth := admission.AuthContext{
			APIKey:        strings.TrimSpace(c.Request().Header.Get(headerAPIKey)),
			PaymentHeader: strings.TrimSpace(c.Request().Header.Get(headerPayment)),
		}

		res, err := ctrl.AdmitAndRun(c.Request().Context(), job, auth)
		if err != nil {
			return writeDenial(c, err)
		}

		for k, v := range res.Headers {
			c.Response().Header().Set(k, v)
		}
		return c.Blob(http.StatusOK, res.ContentType, res.Body)
	}
}

// writeDenial maps the admission taxonomy onto HTTP statuses; every body is
// machine-readable with the information needed to retry correctly.
func writeDenial(c echo.Context, err error) error {
	var d *admission.Denial
	if !errors.As(err, &d) {
		log.Errorf("render failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	switch d.Reason {
	case admission.ReasonPaymentRequired:
		return c.JSON(http.StatusPaymentRequired, d.Quote)

	case admission.ReasonAuth:
		return c.JSON(http.StatusUnauthorized, errBody(d))

	case admission.ReasonQuotaExceeded:
		setRetryAfter(c, d)
		return c.JSON(http.StatusForbidden, errBody(d))

	case admission.ReasonRateLimited:
		setRetryAfter(c, d)
		return c.JSON(http.StatusTooManyRequests, errBody(d))

	case admission.ReasonBusy:
		setRetryAfter(c, d)
		return c.JSON(http.StatusServiceUnavailable, errBody(d))

	case admission.ReasonInvalidRequest:
		return c.JSON(http.StatusBadRequest, errBody(d))

	case admission.ReasonRenderFailure:
		log.Errorf("render failure: %v", d)
		return c.JSON(http.StatusBadGateway, errBody(d))

	default:
		log.Errorf("unmapped denial: %v", d)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func errBody(d *admission.Denial) map[string]any {
	body := map[string]any{
		"error":  string(d.Reason),
		"detail": d.Message,
	}
	if d.RetryAfter > 0 {
		body["retry_after_seconds"] = int(d.RetryAfter.Seconds())
	}
	return body
}

func setRetryAfter(c echo.Context, d *admission.Denial) {
	if d.RetryAfter <= 0 {
		return
	}
	secs := int(d.RetryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
}
