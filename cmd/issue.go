package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/renderforge/render-gateway/internal/config"
	"github.com/renderforge/render-gateway/internal/model"
	"github.com/renderforge/render-gateway/internal/store"
)

var (
	issuePlan  string
	issueOwner string

	issueCmd = &cobra.Command{
		Use:   "issue",
		Short: "Issue an API key for a plan (operator path)",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, ok := model.LookupPlan(issuePlan)
			if !ok {
				return fmt.Errorf("unknown plan %q", issuePlan)
			}

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

			cred, err := creds.Issue(ctx, plan, issueOwner)
			if err != nil {
				return fmt.Errorf("issue credential: %w", err)
			}

			fmt.Printf("plan=%s limit=%d key=%s\n", cred.Tier, cred.MonthlyLimit, cred.Key)
			return nil
		},
	}
)

func init() {
	issueCmd.Flags().StringVar(&issuePlan, "plan", "free", "plan to issue the key for")
	issueCmd.Flags().StringVar(&issueOwner, "owner", "", "optional owner hint stored with the key")
}
