package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/renderforge/render-gateway/internal/ledger"
)

type createInvoiceReq struct {
	Plan  string `json:"plan"`
	Email string `json:"email"`
}

func createInvoiceHandler(ledg *ledger.Ledger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createInvoiceReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		inv, err := ledg.CreateInvoice(c.Request().Context(), req.Plan, req.Email)
		if err != nil {
			if errors.Is(err, ledger.ErrUnknownPlan) || errors.Is(err, ledger.ErrInvalidEmail) {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
			}
			log.Errorf("create invoice failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}

		return c.JSON(http.StatusCreated, ledg.ViewOf(inv))
	}
}

func checkInvoiceHandler(ledg *ledger.Ledger) echo.HandlerFunc {
	return func(c echo.Context) error {
		inv, err := ledg.CheckInvoice(c.Request().Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, ledger.ErrInvoiceNotFound) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "invoice not found"})
			}
			log.Errorf("check invoice failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}

		return c.JSON(http.StatusOK, ledg.ViewOf(inv))
	}
}
