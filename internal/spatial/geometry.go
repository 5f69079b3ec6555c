package spatial

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/stat"
)

// Centroid returns the arithmetic mean position of points
func Centroid(points []r2.Point) r2.Point {
	if len(points) == 0 {
		return r2.Point{}
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.X
		ys[i] = p.Y
	}
	return r2.Point{X: stat.Mean(xs, nil), Y: stat.Mean(ys, nil)}
}

// Area returns the area of a multipolygon, shells minus holes
func Area(mp orb.MultiPolygon) float64 {
	var total float64
	for _, poly := range mp {
		if len(poly) == 0 {
			continue
		}
		total += math.Abs(planar.Area(poly[0]))
		for _, hole := range poly[1:] {
			total -= math.Abs(planar.Area(hole))
		}
	}
	return total
}

// Perimeter returns the summed length of every ring, holes included
func Perimeter(mp orb.MultiPolygon) float64 {
	var total float64
	for _, poly := range mp {
		for _, ring := range poly {
			total += planar.Length(ring)
		}
	}
	return total
}

// Circularity is 4π·area/perimeter², 1 for a circle
func Circularity(area, perimeter float64) float64 {
	if perimeter <= 0 {
		return 0
	}
	return 4 * math.Pi * area / (perimeter * perimeter)
}

// RingClosed reports whether a ring has at least four points and ends
// where it starts
func RingClosed(r orb.Ring) bool {
	return len(r) >= 4 && r[0].Equal(r[len(r)-1])
}
