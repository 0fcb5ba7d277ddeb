package main

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cellarworks/enrich-cli/internal/model"
	"github.com/cellarworks/enrich-cli/internal/store"
)

var (
	batchLimit    int
	batchBelow    string
	batchCategory string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Batch enrich stored products below a completeness level",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		below := model.Status(batchBelow)
		if _, ok := map[model.Status]bool{
			model.StatusSkeleton: true, model.StatusPartial: true,
			model.StatusBaseline: true, model.StatusEnriched: true,
			model.StatusComplete: true,
		}[below]; !ok {
			return eris.Errorf("invalid status %q", batchBelow)
		}

		recs, err := env.Store.ListProducts(ctx, store.ProductFilter{
			Category: model.Category(batchCategory),
			Limit:    batchLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list products")
		}

		// The store has no below-status filter, so trim here.
		queue := recs[:0]
		for _, rec := range recs {
			if !rec.Status.AtLeast(below) {
				queue = append(queue, rec)
			}
		}

		return processBatch(ctx, env, queue, cfg.Enrich.MaxConcurrentProducts)
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of products to process")
	batchCmd.Flags().StringVar(&batchBelow, "below", string(model.StatusComplete), "only enrich products below this status")
	batchCmd.Flags().StringVar(&batchCategory, "category", "", "restrict to one category")
	rootCmd.AddCommand(batchCmd)
}

// processBatch enriches products concurrently. Individual failures are
// logged and counted, never abort the batch.
func processBatch(ctx context.Context, env *enrichEnv, recs []model.ProductRecord, concurrency int) error {
	if len(recs) == 0 {
		zap.L().Info("no products to enrich")
		return nil
	}

	zap.L().Info("processing batch",
		zap.Int("products", len(recs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for i := range recs {
		rec := recs[i]
		g.Go(func() error {
			log := zap.L().With(zap.String("fingerprint", rec.Fingerprint))

			sess, err := env.Pipeline.Run(gctx, &rec)
			if sess != nil {
				if sErr := env.Store.SaveSession(gctx, sess); sErr != nil {
					log.Warn("save session failed", zap.Error(sErr))
				}
			}
			if err != nil {
				failed.Add(1)
				log.Error("enrichment failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			if _, err := env.Store.SaveProduct(gctx, &rec); err != nil {
				failed.Add(1)
				log.Error("save product failed", zap.Error(err))
				return nil
			}

			succeeded.Add(1)
			log.Info("enrichment complete",
				zap.String("status", string(rec.Status)),
				zap.Float64("score", sess.Score),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}
