// Package patch groups stationary fixes into residence patches and repairs
// patches cut in two by a tidal-cycle boundary.
package patch

import (
	"math"

	"github.com/jengzang/respatch/internal/spatial"
)

// Params holds patch construction parameters
type Params struct {
	// BufferSize is the radius of the disk drawn around every fix
	BufferSize float64 `json:"buffer_size" koanf:"buffer_size" validate:"gt=0"`
	// SpatIndepLim is the centroid distance from which two stops are independent
	SpatIndepLim float64 `json:"spat_indep_lim" koanf:"spat_indep_lim" validate:"gt=0"`
	// TempIndepLim is the gap in minutes from which two stops are independent
	TempIndepLim float64 `json:"temp_indep_lim" koanf:"temp_indep_lim" validate:"gt=0"`
	// RestIndepLim is the residence-time difference in minutes from which
	// two stops are independent, 0 disables the check
	RestIndepLim float64 `json:"rest_indep_lim" koanf:"rest_indep_lim" validate:"gte=0"`
	// MinFixes is the smallest number of fixes a patch may have
	MinFixes int `json:"min_fixes" koanf:"min_fixes" validate:"gte=1"`
}

// DefaultParams returns the parameters of the standard workflow
func DefaultParams() Params {
	return Params{
		BufferSize:   10,
		SpatIndepLim: 100,
		TempIndepLim: 30,
		RestIndepLim: 10,
		MinFixes:     3,
	}
}

// stop is the part of a patch the independence test looks at
type stop struct {
	x, y       float64
	start, end float64 // Unix seconds
	resTime    float64
}

// sameStop reports whether b, following a in time, continues the stay at
// a. Every configured limit must hold.
func sameStop(a, b stop, params Params) bool {
	if spatial.Distance(a.x, a.y, b.x, b.y) >= params.SpatIndepLim {
		return false
	}
	if (b.start-a.end)/60 >= params.TempIndepLim {
		return false
	}
	if params.RestIndepLim > 0 && math.Abs(b.resTime-a.resTime) >= params.RestIndepLim {
		return false
	}
	return true
}
