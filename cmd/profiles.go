package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cellarworks/enrich-cli/internal/domain"
	"github.com/cellarworks/enrich-cli/internal/store"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Inspect and manage learned domain profiles",
}

var profilesShowCmd = &cobra.Command{
	Use:   "show <domain>",
	Short: "Show the learned profile for a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		p, err := st.GetProfile(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get profile")
		}
		if p == nil {
			return eris.Errorf("no profile for %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

var (
	overrideTier        int
	overrideTimeoutSecs int
)

var profilesSetCmd = &cobra.Command{
	Use:   "set <domain>",
	Short: "Set a manual tier or timeout override for a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if overrideTier == 0 && overrideTimeoutSecs == 0 {
			return eris.New("at least one of --tier or --timeout-secs is required")
		}
		if overrideTier < 0 || overrideTier > domain.NumTiers {
			return eris.Errorf("tier must be between 1 and %d", domain.NumTiers)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		cache := store.NewProfileCache(st, cfg.Store.ProfileTTL())
		p, err := cache.Update(ctx, args[0], func(p *domain.DomainProfile) {
			if overrideTier != 0 {
				p.ManualTier = overrideTier
			}
			if overrideTimeoutSecs != 0 {
				p.ManualTimeout = time.Duration(overrideTimeoutSecs) * time.Second
			}
		})
		if err != nil {
			return eris.Wrap(err, "update profile")
		}

		zap.L().Info("profile override set",
			zap.String("domain", p.Domain),
			zap.Int("manual_tier", p.ManualTier),
			zap.Duration("manual_timeout", p.ManualTimeout),
		)
		return nil
	},
}

var profilesSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired domain profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		n, err := st.DeleteExpiredProfiles(ctx)
		if err != nil {
			return eris.Wrap(err, "sweep profiles")
		}
		zap.L().Info("profile sweep complete", zap.Int("deleted", n))
		return nil
	},
}

func init() {
	profilesSetCmd.Flags().IntVar(&overrideTier, "tier", 0, "manual tier override (1-3)")
	profilesSetCmd.Flags().IntVar(&overrideTimeoutSecs, "timeout-secs", 0, "manual timeout override in seconds")
	profilesCmd.AddCommand(profilesShowCmd, profilesSetCmd, profilesSweepCmd)
	rootCmd.AddCommand(profilesCmd)
}
