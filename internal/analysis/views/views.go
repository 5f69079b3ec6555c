// Package views projects a patch table into the summary, points and
// spatial views that storage, the API and the CLI consume.
package views

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jengzang/respatch/internal/analysis"
	"github.com/jengzang/respatch/internal/models"
)

// StageName identifies the accessor in errors and logs
const StageName = "patch_accessor"

// Summary returns one row per patch without geometry
func Summary(table models.PatchTable) []models.SummaryRow {
	rows := make([]models.SummaryRow, len(table.Patches))
	for i, p := range table.Patches {
		rows[i] = summaryRow(p)
	}
	return rows
}

// Points returns one row per contributing fix, tagged with its patch
func Points(table models.PatchTable) []models.PointRow {
	rows := make([]models.PointRow, 0, table.TotalFixes())
	for _, p := range table.Patches {
		for _, i := range p.Fixes {
			f := table.Arena.At(i)
			rows = append(rows, models.PointRow{
				ID:         p.ID,
				TideNumber: p.TideNumber,
				Patch:      p.Patch,
				Time:       f.Time,
				X:          f.X,
				Y:          f.Y,
				Tidaltime:  f.Tidaltime,
				Waterlevel: f.Waterlevel,
				ResTime:    f.ResTime,
				Type:       f.Type,
			})
		}
	}
	return rows
}

// Spatial returns the summary rows joined with each patch polygon
func Spatial(table models.PatchTable) []models.SpatialRow {
	rows := make([]models.SpatialRow, len(table.Patches))
	for i, p := range table.Patches {
		rows[i] = models.SpatialRow{SummaryRow: summaryRow(p), Geometry: cloneGeometry(p.Geometry)}
	}
	return rows
}

// FeatureCollection renders the spatial view as GeoJSON, one feature per
// patch with the summary fields as properties
func FeatureCollection(table models.PatchTable) *geojson.FeatureCollection {
	return Features(Spatial(table))
}

// Features renders spatial rows as GeoJSON
func Features(rows []models.SpatialRow) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, row := range rows {
		f := geojson.NewFeature(row.Geometry)
		f.Properties["id"] = row.ID
		f.Properties["tide_number"] = row.TideNumber
		f.Properties["patch"] = row.Patch
		f.Properties["type"] = string(row.Type)
		f.Properties["time_mean"] = row.TimeMean
		f.Properties["tidaltime_mean"] = row.TidaltimeMean
		f.Properties["x_mean"] = row.XMean
		f.Properties["y_mean"] = row.YMean
		f.Properties["duration"] = row.Duration
		f.Properties["distInPatch"] = row.DistInPatch
		f.Properties["dispInPatch"] = row.DispInPatch
		f.Properties["waterlevel_mean"] = row.WaterlevelMean
		f.Properties["nfixes"] = row.NFixes
		f.Properties["area"] = row.Area
		f.Properties["circularity"] = row.Circularity
		if row.DistBwPatch != nil {
			f.Properties["distBwPatch"] = *row.DistBwPatch
		} else {
			f.Properties["distBwPatch"] = nil
		}
		fc.Append(f)
	}
	return fc
}

// Project returns the named view: []SummaryRow, []PointRow or []SpatialRow
func Project(table models.PatchTable, view models.View) (interface{}, error) {
	switch view {
	case models.ViewSummary:
		return Summary(table), nil
	case models.ViewPoints:
		return Points(table), nil
	case models.ViewSpatial:
		return Spatial(table), nil
	default:
		return nil, analysis.NewSchemaError(StageName, "view", fmt.Sprintf("unknown view %q", view))
	}
}

// ParseView validates a view name
func ParseView(name string) (models.View, error) {
	v := models.View(name)
	switch v {
	case models.ViewSummary, models.ViewPoints, models.ViewSpatial:
		return v, nil
	case "":
		return models.ViewSummary, nil
	}
	return "", analysis.NewSchemaError(StageName, "view", fmt.Sprintf("unknown view %q", name))
}

func summaryRow(p models.ResidencePatch) models.SummaryRow {
	var dist *float64
	if p.DistBwPatch != nil {
		d := *p.DistBwPatch
		dist = &d
	}
	return models.SummaryRow{
		ID:             p.ID,
		TideNumber:     p.TideNumber,
		Type:           p.Type,
		Patch:          p.Patch,
		TimeStart:      p.TimeStart,
		TimeEnd:        p.TimeEnd,
		TimeMean:       p.TimeMean,
		TidaltimeMean:  p.TidaltimeMean,
		XMean:          p.XMean,
		YMean:          p.YMean,
		Duration:       p.Duration,
		DistInPatch:    p.DistInPatch,
		DistBwPatch:    dist,
		DispInPatch:    p.DispInPatch,
		WaterlevelMean: p.WaterlevelMean,
		ResTimeMean:    p.ResTimeMean,
		NFixes:         p.NFixes,
		Area:           p.Area,
		Circularity:    p.Circularity,
	}
}

func cloneGeometry(mp orb.MultiPolygon) orb.MultiPolygon {
	if mp == nil {
		return nil
	}
	return mp.Clone()
}

func init() {
	analysis.RegisterStage(analysis.Stage{
		Name:        StageName,
		Order:       8,
		Description: "project patches into summary, points or spatial views",
	})
}
