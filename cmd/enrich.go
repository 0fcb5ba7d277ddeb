package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cellarworks/enrich-cli/internal/model"
)

var (
	enrichName        string
	enrichBrand       string
	enrichCategory    string
	enrichFingerprint string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run an enrichment session for a single product",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var rec *model.ProductRecord
		switch {
		case enrichFingerprint != "":
			rec, err = env.Store.GetProduct(ctx, enrichFingerprint)
			if err != nil {
				return eris.Wrap(err, "load product")
			}
			if rec == nil {
				return eris.Errorf("no product with fingerprint %s", enrichFingerprint)
			}
		case enrichName != "":
			cat := model.Category(enrichCategory)
			rec = &model.ProductRecord{
				Fingerprint: model.Fingerprint(enrichName, enrichBrand, cat),
				Name:        enrichName,
				Brand:       enrichBrand,
				Category:    cat,
				Fields:      model.FieldMap{},
				Status:      model.StatusSkeleton,
				CreatedAt:   time.Now().UTC(),
			}
		default:
			return eris.New("either --name or --fingerprint is required")
		}

		sess, runErr := env.Pipeline.Run(ctx, rec)
		if sess != nil {
			if err := env.Store.SaveSession(ctx, sess); err != nil {
				zap.L().Warn("save session failed", zap.Error(err))
			}
		}
		if runErr != nil {
			return eris.Wrap(runErr, "enrichment run")
		}

		saved, err := env.Store.SaveProduct(ctx, rec)
		if err != nil {
			return eris.Wrap(err, "save product")
		}

		zap.L().Info("enrichment complete",
			zap.String("fingerprint", saved.Fingerprint),
			zap.String("status", string(saved.Status)),
			zap.Float64("score", sess.Score),
			zap.Int("searches_used", sess.SearchesUsed),
			zap.Int("sources_used", sess.SourcesUsed),
			zap.String("stop", sess.Stop),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sess)
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichName, "name", "", "product name")
	enrichCmd.Flags().StringVar(&enrichBrand, "brand", "", "producer or brand")
	enrichCmd.Flags().StringVar(&enrichCategory, "category", "whiskey", "product category (whiskey, port, or a subtype)")
	enrichCmd.Flags().StringVar(&enrichFingerprint, "fingerprint", "", "re-enrich an existing stored product")
	rootCmd.AddCommand(enrichCmd)
}
