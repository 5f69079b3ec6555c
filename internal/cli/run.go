package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jengzang/respatch/internal/analysis/views"
	"github.com/jengzang/respatch/internal/database"
	"github.com/jengzang/respatch/internal/ingest"
	"github.com/jengzang/respatch/internal/logging"
	"github.com/jengzang/respatch/internal/models"
	"github.com/jengzang/respatch/internal/pipeline"
	"github.com/jengzang/respatch/internal/repository"
	"github.com/jengzang/respatch/internal/service"
)

// RunCmd returns the run command
func RunCmd() *cobra.Command {
	var (
		configPath  string
		fixesPath   string
		tidesPath   string
		dbPath      string
		geojsonPath string
		viewName    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build residence patches from a fixes CSV and a tide table",
		Long: `Run the residence patch pipeline over every tag in the fixes file.

The selected view (summary, points or spatial) is written to stdout as JSON.
With --db the runs and their views are also stored in SQLite; with
--geojson the patch polygons of all tags are written as one
FeatureCollection.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := views.ParseView(viewName)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			inputs, err := ingest.ReadFixesFile(fixesPath)
			if err != nil {
				return fmt.Errorf("read fixes: %w", err)
			}
			tides, err := ingest.ReadTidesFile(tidesPath)
			if err != nil {
				return fmt.Errorf("read tides: %w", err)
			}

			p, err := pipeline.New(cfg.Pipeline)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var batch *pipeline.BatchResult
			if dbPath != "" {
				conn, err := database.Open(database.Config{Path: dbPath})
				if err != nil {
					return err
				}
				defer conn.Close()

				svc := service.NewRunService(repository.NewRunRepository(conn), repository.NewPatchRepository(conn), p)
				runs, b, err := svc.Execute(ctx, inputs, tides)
				if err != nil {
					return err
				}
				for _, r := range runs {
					logging.Info().Str("run_id", r.ID).Str("individual", r.Individual).Str("status", r.Status).Msg("stored run")
				}
				batch = b
			} else {
				if batch, err = p.RunAll(ctx, inputs, tides); err != nil {
					return err
				}
			}

			tables := orderedTables(batch)
			if geojsonPath != "" {
				if err := writeGeoJSON(geojsonPath, tables); err != nil {
					return err
				}
			}
			if err := writeView(cmd, tables, view); err != nil {
				return err
			}

			if len(batch.Errors) > 0 {
				for individual, err := range batch.Errors {
					logging.Error().Str("individual", individual).Err(err).Msg("run failed")
				}
				return fmt.Errorf("%d of %d individuals failed", len(batch.Errors), len(inputs))
			}
			return nil
		},
	}

	configFlag(cmd, &configPath)
	cmd.Flags().StringVar(&fixesPath, "fixes", "", "fixes CSV (TAG,TIME,X,Y,SD,NBS,...)")
	cmd.Flags().StringVar(&tidesPath, "tides", "", "tide table CSV (timestamp,waterlevel,tide_number)")
	cmd.Flags().StringVar(&dbPath, "db", "", "also store runs in this SQLite database")
	cmd.Flags().StringVar(&geojsonPath, "geojson", "", "write patch polygons to this GeoJSON file")
	cmd.Flags().StringVar(&viewName, "view", "summary", "view written to stdout: summary, points or spatial")
	_ = cmd.MarkFlagRequired("fixes")
	_ = cmd.MarkFlagRequired("tides")

	return cmd
}

// orderedTables returns the successful patch tables sorted by individual
func orderedTables(batch *pipeline.BatchResult) []models.PatchTable {
	ids := make([]string, 0, len(batch.Results))
	for id := range batch.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tables := make([]models.PatchTable, len(ids))
	for i, id := range ids {
		tables[i] = batch.Results[id].Table
	}
	return tables
}

func writeView(cmd *cobra.Command, tables []models.PatchTable, view models.View) error {
	var rows []interface{}
	for _, t := range tables {
		projected, err := views.Project(t, view)
		if err != nil {
			return err
		}
		switch v := projected.(type) {
		case []models.SummaryRow:
			for _, r := range v {
				rows = append(rows, r)
			}
		case []models.PointRow:
			for _, r := range v {
				rows = append(rows, r)
			}
		case []models.SpatialRow:
			fc := views.Features(v)
			for _, f := range fc.Features {
				rows = append(rows, f)
			}
		}
	}
	if rows == nil {
		rows = []interface{}{}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func writeGeoJSON(path string, tables []models.PatchTable) error {
	var rows []models.SpatialRow
	for _, t := range tables {
		rows = append(rows, views.Spatial(t)...)
	}
	body, err := views.Features(rows).MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write geojson: %w", err)
	}
	return nil
}
