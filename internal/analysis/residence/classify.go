package residence

import (
	"github.com/jengzang/respatch/internal/analysis"
	"github.com/jengzang/respatch/internal/models"
)

// ClassifyStageName identifies the point classifier in errors and logs
const ClassifyStageName = "point_classifier"

// ClassifyParams holds classification parameters
type ClassifyParams struct {
	// ResTimeLimit is the residence time in minutes from which a fix is
	// stationary
	ResTimeLimit float64 `json:"res_time_limit" koanf:"res_time_limit" validate:"gte=0"`
	// TravelSeg caps the length of a travel segment in fixes, 0 disables it
	TravelSeg int `json:"travel_seg" koanf:"travel_seg" validate:"gte=0"`
}

// DefaultClassifyParams returns the parameters of the standard workflow
func DefaultClassifyParams() ClassifyParams {
	return ClassifyParams{ResTimeLimit: 2}
}

// Classify labels fixes patch or travel and numbers runs of equal labels.
// The input is not modified.
func Classify(fixes []models.ClassifiedFix, params ClassifyParams) ([]models.ClassifiedFix, error) {
	if err := analysis.ValidateParams(ClassifyStageName, params); err != nil {
		return nil, err
	}

	out := make([]models.ClassifiedFix, len(fixes))
	segment := 0
	runLen := 0
	for i, f := range fixes {
		label := models.LabelTravel
		if f.ResTime >= params.ResTimeLimit {
			label = models.LabelPatch
		}

		switch {
		case i == 0 || label != out[i-1].Label:
			segment++
			runLen = 0
		case label == models.LabelTravel && params.TravelSeg > 0 && runLen == params.TravelSeg:
			segment++
			runLen = 0
		}
		runLen++

		f.Label = label
		f.Segment = segment
		out[i] = f
	}
	return out, nil
}

func init() {
	analysis.RegisterStage(analysis.Stage{
		Name:        ClassifyStageName,
		Order:       5,
		Description: "label fixes patch or travel by residence time",
	})
}
