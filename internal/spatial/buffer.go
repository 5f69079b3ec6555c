package spatial

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ArcSegments is the number of vertices used to polygonize a full circle
const ArcSegments = 32

const (
	twoPi        = 2 * math.Pi
	minArcRadian = 1e-9
)

// arc is the part of circle `circle` between angles start and end
// (counter-clockwise, end > start) not covered by any other disk.
type arc struct {
	circle     int
	start, end float64
}

// BufferUnion buffers every point by radius and returns the union of the
// resulting disks. Outer rings are counter-clockwise, holes clockwise, and
// every ring is closed.
func BufferUnion(points []r2.Point, radius float64) orb.MultiPolygon {
	if len(points) == 0 || radius <= 0 {
		return nil
	}

	centers := dedupe(points, radius*1e-9)

	var rings []orb.Ring
	var arcs []arc
	for i := range centers {
		covered := coveredIntervals(centers, i, radius)
		if len(covered) == 0 {
			rings = append(rings, circleRing(centers[i], radius))
			continue
		}
		for _, free := range complement(covered) {
			arcs = append(arcs, arc{circle: i, start: free[0], end: free[1]})
		}
	}

	rings = append(rings, chainArcs(centers, radius, arcs)...)
	return assemble(rings)
}

func dedupe(points []r2.Point, eps float64) []r2.Point {
	out := make([]r2.Point, 0, len(points))
	for _, p := range points {
		dup := false
		for _, q := range out {
			if PointDistance(p, q) <= eps {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}

// coveredIntervals returns the merged angular intervals of circle i lying
// inside some other disk, sorted and within [0, 2π].
func coveredIntervals(centers []r2.Point, i int, radius float64) [][2]float64 {
	c := centers[i]
	reach := r2.RectFromPoints(c).ExpandedByMargin(2 * radius)

	var intervals [][2]float64
	for j, o := range centers {
		if j == i || !reach.ContainsPoint(o) {
			continue
		}
		v := o.Sub(c)
		d := v.Norm()
		if d >= 2*radius {
			continue
		}
		half := math.Acos(d / (2 * radius))
		start := normalizeAngle(math.Atan2(v.Y, v.X) - half)
		end := start + 2*half
		if end > twoPi {
			intervals = append(intervals, [2]float64{start, twoPi}, [2]float64{0, end - twoPi})
		} else {
			intervals = append(intervals, [2]float64{start, end})
		}
	}
	if len(intervals) == 0 {
		return nil
	}

	sort.Slice(intervals, func(a, b int) bool {
		return intervals[a][0] < intervals[b][0]
	})

	merged := [][2]float64{intervals[0]}
	for _, iv := range intervals[1:] {
		last := &merged[len(merged)-1]
		if iv[0] <= last[1] {
			if iv[1] > last[1] {
				last[1] = iv[1]
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// complement returns the free arcs between covered intervals, wrapping
// around 2π. An empty result means the circle is fully covered.
func complement(covered [][2]float64) [][2]float64 {
	var free [][2]float64
	for k := 0; k+1 < len(covered); k++ {
		if covered[k+1][0]-covered[k][1] > minArcRadian {
			free = append(free, [2]float64{covered[k][1], covered[k+1][0]})
		}
	}
	last := covered[len(covered)-1]
	if wrap := covered[0][0] + twoPi - last[1]; wrap > minArcRadian {
		free = append(free, [2]float64{last[1], covered[0][0] + twoPi})
	}
	return free
}

// chainArcs links free arcs end-to-start into closed rings. The union
// boundary leaves one circle exactly where the next free arc begins.
func chainArcs(centers []r2.Point, radius float64, arcs []arc) []orb.Ring {
	starts := make([]r2.Point, len(arcs))
	ends := make([]r2.Point, len(arcs))
	for k, a := range arcs {
		starts[k] = onCircle(centers[a.circle], radius, a.start)
		ends[k] = onCircle(centers[a.circle], radius, a.end)
	}

	used := make([]bool, len(arcs))
	var rings []orb.Ring
	for first := range arcs {
		if used[first] {
			continue
		}

		var ring orb.Ring
		cur := first
		for {
			used[cur] = true
			ring = append(ring, sampleArc(centers[arcs[cur].circle], radius, arcs[cur])...)

			next, best := -1, math.Inf(1)
			for k := range arcs {
				if used[k] && k != first {
					continue
				}
				if d := PointDistance(ends[cur], starts[k]); d < best {
					next, best = k, d
				}
			}
			if next == -1 || next == first {
				break
			}
			cur = next
		}

		if len(ring) >= 3 {
			rings = append(rings, append(ring, ring[0]))
		}
	}
	return rings
}

func sampleArc(c r2.Point, radius float64, a arc) []orb.Point {
	span := a.end - a.start
	n := int(math.Ceil(span / twoPi * ArcSegments))
	if n < 1 {
		n = 1
	}
	pts := make([]orb.Point, 0, n)
	for s := 0; s < n; s++ {
		p := onCircle(c, radius, a.start+span*float64(s)/float64(n))
		pts = append(pts, orb.Point{p.X, p.Y})
	}
	return pts
}

func circleRing(c r2.Point, radius float64) orb.Ring {
	ring := sampleArc(c, radius, arc{start: 0, end: twoPi})
	return append(orb.Ring(ring), ring[0])
}

func onCircle(c r2.Point, radius, angle float64) r2.Point {
	return c.Add(r2.Point{X: math.Cos(angle), Y: math.Sin(angle)}.Mul(radius))
}

func normalizeAngle(a float64) float64 {
	a = math.Mod(a, twoPi)
	if a < 0 {
		a += twoPi
	}
	return a
}

// assemble sorts rings into polygons: counter-clockwise rings are shells,
// clockwise rings become holes of the smallest shell containing them.
func assemble(rings []orb.Ring) orb.MultiPolygon {
	var shells, holes []orb.Ring
	for _, r := range rings {
		if signedArea(r) >= 0 {
			shells = append(shells, r)
		} else {
			holes = append(holes, r)
		}
	}

	mp := make(orb.MultiPolygon, len(shells))
	for i, s := range shells {
		mp[i] = orb.Polygon{s}
	}

	for _, h := range holes {
		owner, ownerArea := -1, math.Inf(1)
		for i, s := range shells {
			if !planar.RingContains(s, h[0]) {
				continue
			}
			if a := planar.Area(s); a < ownerArea {
				owner, ownerArea = i, a
			}
		}
		if owner >= 0 {
			mp[owner] = append(mp[owner], h)
		}
	}
	return mp
}

// signedArea is positive for counter-clockwise rings
func signedArea(r orb.Ring) float64 {
	var sum float64
	for i := 0; i+1 < len(r); i++ {
		sum += r[i][0]*r[i+1][1] - r[i+1][0]*r[i][1]
	}
	return sum / 2
}
