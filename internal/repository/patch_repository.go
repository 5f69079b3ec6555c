package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jengzang/respatch/internal/database"
	"github.com/jengzang/respatch/internal/models"
)

// PatchRepository stores and reads the views of a run's patch table
type PatchRepository struct {
	db *sql.DB
}

// NewPatchRepository creates a new patch repository
func NewPatchRepository(db *sql.DB) *PatchRepository {
	return &PatchRepository{db: db}
}

// Save writes the spatial and points views of one run in a single
// transaction, replacing anything stored for it before
func (r *PatchRepository) Save(ctx context.Context, runID string, patches []models.SpatialRow, points []models.PointRow) error {
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM patch_points WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("failed to clear points: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM patches WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("failed to clear patches: %w", err)
		}

		patchStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO patches (
				run_id, id, tide_number, patch, type, time_start, time_end, time_mean,
				tidaltime_mean, x_mean, y_mean, duration, dist_in_patch, dist_bw_patch,
				disp_in_patch, waterlevel_mean, res_time_mean, nfixes, area, circularity, geometry
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare patch insert: %w", err)
		}
		defer patchStmt.Close()

		for _, p := range patches {
			geom, err := encodeGeometry(p.Geometry)
			if err != nil {
				return fmt.Errorf("failed to encode geometry: %w", err)
			}
			var distBw sql.NullFloat64
			if p.DistBwPatch != nil {
				distBw = sql.NullFloat64{Float64: *p.DistBwPatch, Valid: true}
			}
			_, err = patchStmt.ExecContext(ctx,
				runID, p.ID, p.TideNumber, p.Patch, string(p.Type),
				p.TimeStart, p.TimeEnd, p.TimeMean, p.TidaltimeMean,
				p.XMean, p.YMean, p.Duration, p.DistInPatch, distBw,
				p.DispInPatch, p.WaterlevelMean, p.ResTimeMean, p.NFixes,
				p.Area, p.Circularity, geom,
			)
			if err != nil {
				return fmt.Errorf("failed to insert patch %d: %w", p.Patch, err)
			}
		}

		pointStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO patch_points (
				run_id, id, tide_number, patch, time, x, y, tidaltime, waterlevel, res_time, type
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare point insert: %w", err)
		}
		defer pointStmt.Close()

		for _, pt := range points {
			_, err := pointStmt.ExecContext(ctx,
				runID, pt.ID, pt.TideNumber, pt.Patch, pt.Time, pt.X, pt.Y,
				pt.Tidaltime, pt.Waterlevel, pt.ResTime, string(pt.Type),
			)
			if err != nil {
				return fmt.Errorf("failed to insert point: %w", err)
			}
		}
		return nil
	})
}

const patchColumns = `
	id, tide_number, type, patch, time_start, time_end, time_mean, tidaltime_mean,
	x_mean, y_mean, duration, dist_in_patch, dist_bw_patch, disp_in_patch,
	waterlevel_mean, res_time_mean, nfixes, area, circularity, geometry
`

// Spatial reads the stored patches of a run with their geometry
func (r *PatchRepository) Spatial(ctx context.Context, runID string) ([]models.SpatialRow, error) {
	query := `SELECT ` + patchColumns + ` FROM patches WHERE run_id = ? ORDER BY id, tide_number, patch`
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query patches: %w", err)
	}
	defer rows.Close()

	out := make([]models.SpatialRow, 0)
	for rows.Next() {
		var row models.SpatialRow
		var distBw sql.NullFloat64
		var geom string
		err := rows.Scan(
			&row.ID, &row.TideNumber, &row.Type, &row.Patch,
			&row.TimeStart, &row.TimeEnd, &row.TimeMean, &row.TidaltimeMean,
			&row.XMean, &row.YMean, &row.Duration, &row.DistInPatch, &distBw, &row.DispInPatch,
			&row.WaterlevelMean, &row.ResTimeMean, &row.NFixes, &row.Area, &row.Circularity, &geom,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan patch: %w", err)
		}
		if distBw.Valid {
			d := distBw.Float64
			row.DistBwPatch = &d
		}
		if row.Geometry, err = decodeGeometry(geom); err != nil {
			return nil, fmt.Errorf("failed to decode geometry of patch %d: %w", row.Patch, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Summary reads the stored patches of a run without geometry
func (r *PatchRepository) Summary(ctx context.Context, runID string) ([]models.SummaryRow, error) {
	spatial, err := r.Spatial(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make([]models.SummaryRow, len(spatial))
	for i, s := range spatial {
		out[i] = s.SummaryRow
	}
	return out, nil
}

// Points reads the stored contributing fixes of a run
func (r *PatchRepository) Points(ctx context.Context, runID string) ([]models.PointRow, error) {
	query := `
		SELECT id, tide_number, patch, time, x, y, tidaltime, waterlevel, res_time, type
		FROM patch_points
		WHERE run_id = ?
		ORDER BY id, tide_number, patch, time
	`
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer rows.Close()

	out := make([]models.PointRow, 0)
	for rows.Next() {
		var p models.PointRow
		if err := rows.Scan(&p.ID, &p.TideNumber, &p.Patch, &p.Time, &p.X, &p.Y,
			&p.Tidaltime, &p.Waterlevel, &p.ResTime, &p.Type); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
