package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jengzang/respatch/internal/database"
	"github.com/jengzang/respatch/internal/models"
)

// ErrRunNotFound is returned when no run has the requested id
var ErrRunNotFound = errors.New("run not found")

// RunRepository handles database operations for pipeline runs and their
// stored views
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run
func (r *RunRepository) Create(ctx context.Context, run *models.AnalysisRun) error {
	query := `
		INSERT INTO runs (
			id, individual, status, params_json, raw_fixes, cleaned_fixes,
			inferred_fixes, patches, error_message, created_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Individual,
		run.Status,
		run.ParamsJSON,
		run.RawFixes,
		run.CleanedFixes,
		run.InferredFix,
		run.Patches,
		run.ErrorMessage,
		run.CreatedAt,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// Update writes the mutable fields of a run
func (r *RunRepository) Update(ctx context.Context, run *models.AnalysisRun) error {
	query := `
		UPDATE runs SET
			status = ?, raw_fixes = ?, cleaned_fixes = ?, inferred_fixes = ?,
			patches = ?, error_message = ?, completed_at = ?
		WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		run.Status,
		run.RawFixes,
		run.CleanedFixes,
		run.InferredFix,
		run.Patches,
		run.ErrorMessage,
		run.CompletedAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetByID retrieves a run by id
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.AnalysisRun, error) {
	query := `
		SELECT id, individual, status, params_json, raw_fixes, cleaned_fixes,
			   inferred_fixes, patches, error_message, created_at, completed_at
		FROM runs
		WHERE id = ?
	`
	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// List returns a page of runs matching filter, newest first, and the
// total number of matches
func (r *RunRepository) List(ctx context.Context, filter models.RunFilter) ([]models.AnalysisRun, int64, error) {
	var where []string
	var args []interface{}
	if filter.Individual != "" {
		where = append(where, "individual = ?")
		args = append(args, filter.Individual)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs "+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	query := `
		SELECT id, individual, status, params_json, raw_fixes, cleaned_fixes,
			   inferred_fixes, patches, error_message, created_at, completed_at
		FROM runs ` + clause + `
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`
	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]models.AnalysisRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, total, rows.Err()
}

// Delete removes a run together with its patches and points
func (r *RunRepository) Delete(ctx context.Context, id string) error {
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM patch_points WHERE run_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete points: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM patches WHERE run_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete patches: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete run: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrRunNotFound
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.AnalysisRun, error) {
	run := &models.AnalysisRun{}
	var completed sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.Individual,
		&run.Status,
		&run.ParamsJSON,
		&run.RawFixes,
		&run.CleanedFixes,
		&run.InferredFix,
		&run.Patches,
		&run.ErrorMessage,
		&run.CreatedAt,
		&completed,
	)
	if err != nil {
		return nil, err
	}
	if completed.Valid {
		t := completed.Time
		run.CompletedAt = &t
	}
	return run, nil
}

// encodeGeometry stores a patch polygon as a GeoJSON geometry
func encodeGeometry(mp orb.MultiPolygon) (string, error) {
	if mp == nil {
		mp = orb.MultiPolygon{}
	}
	raw, err := geojson.NewGeometry(mp).MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeGeometry(s string) (orb.MultiPolygon, error) {
	g, err := geojson.UnmarshalGeometry([]byte(s))
	if err != nil {
		return nil, err
	}
	switch geom := g.Geometry().(type) {
	case orb.MultiPolygon:
		return geom, nil
	case orb.Polygon:
		return orb.MultiPolygon{geom}, nil
	default:
		return nil, fmt.Errorf("unexpected geometry type %s", g.Type)
	}
}
