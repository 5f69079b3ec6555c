package spatial

import (
	"github.com/golang/geo/r2"
)

// Distance returns the planar distance between two projected positions
func Distance(x1, y1, x2, y2 float64) float64 {
	return r2.Point{X: x2, Y: y2}.Sub(r2.Point{X: x1, Y: y1}).Norm()
}

// PointDistance returns the planar distance between two points
func PointDistance(a, b r2.Point) float64 {
	return b.Sub(a).Norm()
}

// PathLength sums consecutive step lengths along a sequence of points
func PathLength(points []r2.Point) float64 {
	if len(points) < 2 {
		return 0
	}

	var total float64
	for i := 1; i < len(points); i++ {
		total += PointDistance(points[i-1], points[i])
	}
	return total
}

// Displacement returns the straight-line distance from the first to the
// last point
func Displacement(points []r2.Point) float64 {
	if len(points) < 2 {
		return 0
	}
	return PointDistance(points[0], points[len(points)-1])
}
