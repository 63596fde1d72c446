package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/renderforge/render-gateway/internal/admission"
	"github.com/renderforge/render-gateway/internal/chain"
	"github.com/renderforge/render-gateway/internal/config"
	httpSrv "github.com/renderforge/render-gateway/internal/http"
	"github.com/renderforge/render-gateway/internal/ledger"
	"github.com/renderforge/render-gateway/internal/logger"
	"github.com/renderforge/render-gateway/internal/ratelimit"
	"github.com/renderforge/render-gateway/internal/renderer"
	"github.com/renderforge/render-gateway/internal/store"
	"github.com/renderforge/render-gateway/internal/x402"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server and invoice reconciler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		zlog := logger.Init(cfg.Log.Level)
		defer func() { _ = zlog.Sync() }()

		db, closeDB, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer closeDB()

		ctx := context.Background()

		creds, err := store.NewCredentialStore(ctx, db)
		if err != nil {
			return fmt.Errorf("credential store: %w", err)
		}

		limiter := ratelimit.New(cfg.RateLimit.Window, cfg.RateLimit.Cap)
		admitter := admission.NewAdmitter(cfg.Admission.MaxConcurrent)

		gate := x402.NewGate(
			x402.NewHTTPFacilitator(cfg.Facilitator.BaseURL, cfg.Facilitator.TimeoutMs),
			x402.GateConfig{
				Network:     cfg.Payment.Network,
				PayTo:       cfg.Payment.PayTo,
				Asset:       cfg.Payment.Asset,
				PriceAtomic: cfg.Payment.PriceAtomic,
			},
			zlog,
		)

		ledg, err := ledger.New(
			ctx,
			db,
			creds,
			chain.NewHTTPQuery(cfg.Chain.BaseURL, cfg.Chain.TimeoutMs),
			ledger.Config{
				ReceivingAddress:  cfg.Payment.PayTo,
				TokenDecimals:     cfg.Payment.TokenDecimals,
				TTL:               cfg.Invoices.TTL,
				LookbackBlocks:    cfg.Chain.LookbackBlocks,
				ToleranceAtomic:   cfg.Invoices.ToleranceAtomic,
				ReconcileInterval: cfg.Invoices.ReconcileInterval,
			},
			zlog,
		)
		if err != nil {
			return fmt.Errorf("invoice ledger: %w", err)
		}

		rend := renderer.NewHTTPRenderer(
			cfg.Renderer.BaseURL,
			cfg.Renderer.TimeoutMs,
			cfg.Renderer.Breaker.FailThreshold,
			cfg.Renderer.Breaker.OpenForMs,
		)

		ctrl := admission.NewController(
			creds,
			limiter,
			admitter,
			gate,
			rend,
			time.Duration(cfg.Renderer.TimeoutMs)*time.Millisecond,
			zlog,
		)

		server := httpSrv.NewServer(ctrl, ledg)

		reconCtx, stopRecon := context.WithCancel(ctx)
		defer stopRecon()
		go ledg.Run(reconCtx)

		errCh := make(chan error, 1)
		go func() {
			log.Printf("starting http on %s", cfg.HTTP.Addr)
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Printf("signal received: %s, shutting down...", sig)
		case err := <-errCh:
			if err != nil {
				log.Printf("http server exited: %v", err)
			}
		}

		stopRecon()

		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutCtx)

		return nil
	},
}
