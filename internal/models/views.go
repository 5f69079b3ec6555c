package models

import "github.com/paulmach/orb"

// View names one projection of a patch table
type View string

const (
	ViewSummary View = "summary"
	ViewPoints  View = "points"
	ViewSpatial View = "spatial"
)

// SummaryRow is one patch without geometry or fixes
type SummaryRow struct {
	ID             string   `json:"id" db:"id"`
	TideNumber     int      `json:"tide_number" db:"tide_number"`
	Type           FixType  `json:"type" db:"type"`
	Patch          int      `json:"patch" db:"patch"`
	TimeStart      float64  `json:"time_start" db:"time_start"`
	TimeEnd        float64  `json:"time_end" db:"time_end"`
	TimeMean       float64  `json:"time_mean" db:"time_mean"`
	TidaltimeMean  float64  `json:"tidaltime_mean" db:"tidaltime_mean"`
	XMean          float64  `json:"x_mean" db:"x_mean"`
	YMean          float64  `json:"y_mean" db:"y_mean"`
	Duration       float64  `json:"duration" db:"duration"`
	DistInPatch    float64  `json:"distInPatch" db:"dist_in_patch"`
	DistBwPatch    *float64 `json:"distBwPatch" db:"dist_bw_patch"`
	DispInPatch    float64  `json:"dispInPatch" db:"disp_in_patch"`
	WaterlevelMean float64  `json:"waterlevel_mean" db:"waterlevel_mean"`
	ResTimeMean    float64  `json:"resTime_mean" db:"res_time_mean"`
	NFixes         int      `json:"nfixes" db:"nfixes"`
	Area           float64  `json:"area" db:"area"`
	Circularity    float64  `json:"circularity" db:"circularity"`
}

// PointRow is one contributing fix tagged with its owning patch
type PointRow struct {
	ID         string  `json:"id" db:"id"`
	TideNumber int     `json:"tide_number" db:"tide_number"`
	Patch      int     `json:"patch" db:"patch"`
	Time       float64 `json:"time" db:"time"`
	X          float64 `json:"x" db:"x"`
	Y          float64 `json:"y" db:"y"`
	Tidaltime  float64 `json:"tidaltime" db:"tidaltime"`
	Waterlevel float64 `json:"waterlevel" db:"waterlevel"`
	ResTime    float64 `json:"resTime" db:"res_time"`
	Type       FixType `json:"type" db:"type"`
}

// SpatialRow is a summary row joined with the patch polygon
type SpatialRow struct {
	SummaryRow
	Geometry orb.MultiPolygon `json:"geometry"`
}
