package tide

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/respatch/internal/analysis"
	"github.com/jengzang/respatch/internal/models"
)

var base = time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC)

func tideTable() []models.TideRow {
	return []models.TideRow{
		{Timestamp: base, Waterlevel: 120, TideNumber: 1},
		{Timestamp: base.Add(6 * time.Hour), Waterlevel: -80, TideNumber: 1},
		{Timestamp: base.Add(12*time.Hour + 25*time.Minute), Waterlevel: 115, TideNumber: 2},
	}
}

func fixAt(d time.Duration) models.CleanedFix {
	ts := base.Add(d)
	return models.CleanedFix{ID: "2087", Time: float64(ts.Unix()), Timestamp: ts}
}

func TestAlign(t *testing.T) {
	fixes := []models.CleanedFix{
		fixAt(-10 * time.Minute),
		fixAt(30 * time.Minute),
		fixAt(5 * time.Hour),
		fixAt(9 * time.Hour),
		fixAt(13 * time.Hour),
	}

	out, err := Align(fixes, tideTable())
	require.NoError(t, err)
	require.Len(t, out, 4, "fix before the first tide row is dropped")

	assert.Equal(t, 1, out[0].TideNumber)
	assert.InDelta(t, 30.0, out[0].Tidaltime, 1e-9)
	assert.Equal(t, 120.0, out[0].Waterlevel)

	assert.Equal(t, 1, out[1].TideNumber)
	assert.Equal(t, -80.0, out[1].Waterlevel, "nearest row is the 6h low water")

	assert.Equal(t, 1, out[2].TideNumber, "tide number is carried forward")
	assert.InDelta(t, 540.0, out[2].Tidaltime, 1e-9)

	assert.Equal(t, 2, out[3].TideNumber)
	assert.InDelta(t, 35.0, out[3].Tidaltime, 1e-9)
	assert.Equal(t, 115.0, out[3].Waterlevel)
}

func TestAlignTieTakesEarlierRow(t *testing.T) {
	out, err := Align([]models.CleanedFix{fixAt(3 * time.Hour)}, tideTable())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 120.0, out[0].Waterlevel)
}

func TestAlignIdempotent(t *testing.T) {
	fixes := []models.CleanedFix{
		fixAt(time.Hour), fixAt(7 * time.Hour), fixAt(12 * time.Hour), fixAt(14 * time.Hour),
	}

	first, err := Align(fixes, tideTable())
	require.NoError(t, err)
	second, err := Align(Strip(first), tideTable())
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Tidaltime, second[i].Tidaltime)
		assert.Equal(t, first[i].TideNumber, second[i].TideNumber)
	}
}

func TestAlignSortsInput(t *testing.T) {
	tides := tideTable()
	tides[0], tides[2] = tides[2], tides[0]
	fixes := []models.CleanedFix{fixAt(13 * time.Hour), fixAt(time.Hour)}

	out, err := Align(fixes, tides)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Less(t, out[0].Time, out[1].Time)
	assert.Equal(t, 1, out[0].TideNumber)
	assert.Equal(t, 2, out[1].TideNumber)
}

func TestAlignSchemaErrors(t *testing.T) {
	t.Run("empty table", func(t *testing.T) {
		_, err := Align([]models.CleanedFix{fixAt(0)}, nil)
		assert.True(t, analysis.IsSchemaError(err))
	})

	t.Run("decreasing tide number", func(t *testing.T) {
		tides := tideTable()
		tides[2].TideNumber = 0
		_, err := Align([]models.CleanedFix{fixAt(0)}, tides)
		assert.True(t, analysis.IsSchemaError(err))
	})

	t.Run("missing timestamp", func(t *testing.T) {
		tides := tideTable()
		tides[1].Timestamp = time.Time{}
		_, err := Align([]models.CleanedFix{fixAt(0)}, tides)
		assert.True(t, analysis.IsSchemaError(err))
	})
}
