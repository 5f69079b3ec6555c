package models

import "time"

// Fix is one raw position observation of a tag
type Fix struct {
	TagID string  `json:"tag" db:"tag"`
	Time  int64   `json:"time" db:"time"` // Unix epoch in milliseconds
	X     float64 `json:"x" db:"x"`
	Y     float64 `json:"y" db:"y"`
	SD    float64 `json:"sd" db:"sd"`   // Localization standard deviation
	NBS   int     `json:"nbs" db:"nbs"` // Number of receivers
	VarX  float64 `json:"varx" db:"varx"`
	VarY  float64 `json:"vary" db:"vary"`
	CovXY float64 `json:"covxy" db:"covxy"`
}

// CleanedFix is a quality-filtered, median-smoothed fix
type CleanedFix struct {
	ID        string    `json:"id" db:"id"`
	Seq       int       `json:"seq" db:"seq"`   // 1-based order after cleaning, 0 for inferred fixes
	Time      float64   `json:"time" db:"time"` // Unix seconds
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	XRaw      float64   `json:"x_raw" db:"x_raw"`
	YRaw      float64   `json:"y_raw" db:"y_raw"`
	X         float64   `json:"x" db:"x"` // Smoothed
	Y         float64   `json:"y" db:"y"` // Smoothed
	SD        float64   `json:"sd" db:"sd"`
	NBS       int       `json:"nbs" db:"nbs"`
	VarX      float64   `json:"varx" db:"varx"`
	VarY      float64   `json:"vary" db:"vary"`
	CovXY     float64   `json:"covxy" db:"covxy"`
}

// TideRow is one row of the external tide table
type TideRow struct {
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
	Waterlevel float64   `json:"waterlevel" db:"waterlevel"`
	TideNumber int       `json:"tide_number" db:"tide_number"`
}

// AlignedFix is a cleaned fix placed in its tidal cycle
type AlignedFix struct {
	CleanedFix
	TideNumber int     `json:"tide_number" db:"tide_number"`
	Tidaltime  float64 `json:"tidaltime" db:"tidaltime"` // Minutes since the start of the cycle
	Waterlevel float64 `json:"waterlevel" db:"waterlevel"`
}

// ResidenceFix carries the per-fix residence time in minutes
type ResidenceFix struct {
	AlignedFix
	ResTime float64 `json:"resTime" db:"res_time"`
}

// FixType tells sensor fixes from synthetic gap fixes
type FixType string

const (
	FixReal     FixType = "real"
	FixInferred FixType = "inferred"
)

// Label is the stationarity class of a fix
type Label string

const (
	LabelPatch  Label = "patch"
	LabelTravel Label = "travel"
)

// ClassifiedFix is a fix ready for patch construction
type ClassifiedFix struct {
	ResidenceFix
	Type    FixType `json:"type" db:"type"`
	Label   Label   `json:"label" db:"label"`
	Segment int     `json:"segment" db:"segment"` // Index of the run of equal labels
}
