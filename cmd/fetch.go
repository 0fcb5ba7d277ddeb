package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cellarworks/enrich-cli/internal/domain"
	"github.com/cellarworks/enrich-cli/internal/store"
)

var (
	fetchTier    int
	fetchContent bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetch a single URL through the tiered router",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		profiles := store.NewProfileCache(st, cfg.Store.ProfileTTL())
		router := initRouter(profiles)

		res, err := router.Fetch(ctx, args[0], domain.FetchOptions{ForceTier: fetchTier})
		if err != nil {
			if ex, ok := domain.IsExhausted(err); ok {
				enc := json.NewEncoder(os.Stderr)
				enc.SetIndent("", "  ")
				_ = enc.Encode(ex.Attempts)
			}
			return eris.Wrap(err, "fetch")
		}

		zap.L().Info("fetch complete",
			zap.String("url", args[0]),
			zap.Int("tier", res.Tier),
			zap.Int("status", res.StatusCode),
			zap.Duration("latency", res.Latency),
			zap.Int("bytes", len(res.Content)),
		)

		if fetchContent {
			fmt.Println(res.Content)
			return nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"title":       res.Title,
			"tier":        res.Tier,
			"status_code": res.StatusCode,
			"latency_ms":  res.Latency.Milliseconds(),
			"bytes":       len(res.Content),
		})
	},
}

func init() {
	fetchCmd.Flags().IntVar(&fetchTier, "tier", 0, "pin the fetch to one tier (1-3), skipping escalation")
	fetchCmd.Flags().BoolVar(&fetchContent, "content", false, "print the extracted content instead of metadata")
	rootCmd.AddCommand(fetchCmd)
}
