package models

import "github.com/paulmach/orb"

// ResidencePatch is a spatially bounded, temporally contiguous stop
type ResidencePatch struct {
	ID         string  `json:"id"`
	TideNumber int     `json:"tide_number"`
	Patch      int     `json:"patch"` // 1-based, contiguous per (id, tide_number)
	Type       FixType `json:"type"`  // inferred only when every contributing fix is inferred

	TimeStart     float64 `json:"time_start"` // Unix seconds
	TimeEnd       float64 `json:"time_end"`
	TimeMean      float64 `json:"time_mean"`
	TidaltimeMean float64 `json:"tidaltime_mean"`
	Duration      float64 `json:"duration"` // Minutes

	XMean float64 `json:"x_mean"`
	YMean float64 `json:"y_mean"`

	DistInPatch float64  `json:"distInPatch"`
	DispInPatch float64  `json:"dispInPatch"`
	DistBwPatch *float64 `json:"distBwPatch"` // nil for the first patch of a cycle

	WaterlevelMean float64 `json:"waterlevel_mean"`
	ResTimeMean    float64 `json:"resTime_mean"`
	NFixes         int     `json:"nfixes"`

	Geometry    orb.MultiPolygon `json:"-"`
	Area        float64          `json:"area"`
	Perimeter   float64          `json:"perimeter"`
	Circularity float64          `json:"circularity"`

	// Fixes holds arena indices of the contributing fixes in time order.
	Fixes []int `json:"-"`
}

// PatchTable is a patch collection together with the arena its patches
// index into
type PatchTable struct {
	Arena   *Arena
	Patches []ResidencePatch
}

// TotalFixes sums NFixes over all patches
func (t PatchTable) TotalFixes() int {
	n := 0
	for _, p := range t.Patches {
		n += p.NFixes
	}
	return n
}
