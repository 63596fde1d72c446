package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/renderforge/render-gateway/internal/config"
	"github.com/renderforge/render-gateway/internal/model"
	"github.com/renderforge/render-gateway/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the store with demo credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

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

		log.Println(">> Seeding demo credentials...")

		if err := seedCredentials(ctx, creds); err != nil {
			return err
		}

		log.Println(">> Seed completed")
		return nil
	},
}

// seedCredentials inserts deterministic demo keys (idempotent upsert).
func seedCredentials(ctx context.Context, creds *store.CredentialStore) error {
	now := time.Now()
	demo := []model.Credential{
		{
			Key:          "11111111111111111111111111111111",
			Tier:         "free",
			MonthlyLimit: 50,
			OwnerHint:    "demo-free",
		},
		{
			Key:          "22222222222222222222222222222222",
			Tier:         "starter",
			MonthlyLimit: 500,
			OwnerHint:    "demo-starter",
		},
		{
			Key:          "33333333333333333333333333333333",
			Tier:         "pro",
			MonthlyLimit: 2000,
			OwnerHint:    "demo-pro",
		},
	}

	for _, c := range demo {
		c.PeriodAnchor = model.PeriodTag(now)
		c.CreatedAt = now
		c.UpdatedAt = now
		if err := creds.Upsert(ctx, c); err != nil {
			return fmt.Errorf("seed credential %q: %w", c.OwnerHint, err)
		}
	}
	return nil
}
