package main

import (
	"encoding/csv"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cellarworks/enrich-cli/internal/model"
	"github.com/cellarworks/enrich-cli/internal/store"
)

var importCSVPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import skeleton products from CSV",
	Long:  "Reads a CSV with name,brand,category columns and creates skeleton records. Existing fingerprints keep their enriched fields.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		f, err := os.Open(importCSVPath)
		if err != nil {
			return eris.Wrap(err, "open csv")
		}
		defer f.Close()

		recs, err := parseProductCSV(f)
		if err != nil {
			return eris.Wrap(err, "parse csv")
		}

		var created int64
		if ps, ok := st.(*store.PostgresStore); ok {
			created, err = ps.ImportProducts(ctx, recs)
			if err != nil {
				return eris.Wrap(err, "bulk import")
			}
		} else {
			for i := range recs {
				if _, err := st.SaveProduct(ctx, &recs[i]); err != nil {
					return eris.Wrapf(err, "save %s", recs[i].Fingerprint)
				}
				created++
			}
		}

		zap.L().Info("import complete",
			zap.Int64("imported", created),
			zap.String("csv", importCSVPath),
		)
		return nil
	},
}

// parseProductCSV reads name,brand,category rows into skeleton records.
// A header row is detected by its first cell and skipped.
func parseProductCSV(r io.Reader) ([]model.ProductRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	now := time.Now().UTC()
	var recs []model.ProductRecord
	for line := 1; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "line %d", line)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "name") {
			continue
		}
		if len(row) < 3 {
			return nil, eris.Errorf("line %d: want name,brand,category, got %d columns", line, len(row))
		}

		name := strings.TrimSpace(row[0])
		brand := strings.TrimSpace(row[1])
		cat := model.Category(strings.TrimSpace(row[2]))
		if name == "" {
			return nil, eris.Errorf("line %d: name is required", line)
		}

		recs = append(recs, model.ProductRecord{
			Fingerprint: model.Fingerprint(name, brand, cat),
			Name:        name,
			Brand:       brand,
			Category:    cat,
			Fields:      model.FieldMap{},
			Status:      model.StatusSkeleton,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return recs, nil
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to CSV file (required)")
	_ = importCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(importCmd)
}
