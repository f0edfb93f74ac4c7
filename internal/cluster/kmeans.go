// Package cluster groups applications by their reduced feature vectors.
package cluster

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/sbenjam1n/hlsopt/internal/hls"
	"gonum.org/v1/gonum/floats"
)

// ErrTooFewPoints is returned when there are fewer points than clusters.
var ErrTooFewPoints = errors.New("fewer points than clusters")

// KMeans configures Lloyd's algorithm with k-means++ seeding and restarts.
type KMeans struct {
	K         int
	Restarts  int
	MaxIter   int
	Tolerance float64
	Seed      int64
}

// DefaultKMeans returns the configuration used by the optimizer.
func DefaultKMeans(k int, seed int64) KMeans {
	return KMeans{K: k, Restarts: 10, MaxIter: 300, Tolerance: 1e-4, Seed: seed}
}

// Model is a fitted clustering.
type Model struct {
	Centroids [][]float64
	Labels    []int
	Inertia   float64
	Iter      int
}

// Fit clusters points. The result depends only on the points and Seed.
func (km KMeans) Fit(points [][]float64) (*Model, error) {
	if km.K < 1 {
		return nil, fmt.Errorf("cluster count must be positive, got %d", km.K)
	}
	if len(points) < km.K {
		return nil, fmt.Errorf("%w: %d points, %d clusters", ErrTooFewPoints, len(points), km.K)
	}
	dim := len(points[0])
	for i, p := range points {
		if len(p) != dim {
			return nil, fmt.Errorf("point %d has dimension %d, want %d", i, len(p), dim)
		}
	}
	restarts := max(km.Restarts, 1)
	maxIter := max(km.MaxIter, 1)
	tol := km.Tolerance * meanVariance(points)

	rng := rand.New(rand.NewSource(km.Seed))
	var best *Model
	for r := 0; r < restarts; r++ {
		centroids := seedPlusPlus(points, km.K, rng)
		m := lloyd(points, centroids, maxIter, tol)
		if best == nil || m.Inertia < best.Inertia {
			best = m
		}
	}
	return best, nil
}

// Predict returns the index of the centroid nearest to v. Ties resolve to
// the lowest index.
func (m *Model) Predict(v []float64) int {
	idx, _ := nearest(m.Centroids, v)
	return idx
}

// Assign sets Cluster on each profile by nearest centroid.
func (m *Model) Assign(profiles []hls.Profile) {
	for i := range profiles {
		profiles[i].Cluster = m.Predict(profiles[i].Vector)
	}
}

// Members returns, per cluster, the names of the profiles assigned to it in
// input order.
func Members(profiles []hls.Profile, k int) [][]string {
	out := make([][]string, k)
	for _, p := range profiles {
		if p.Cluster >= 0 && p.Cluster < k {
			out[p.Cluster] = append(out[p.Cluster], p.Name)
		}
	}
	return out
}

// seedPlusPlus picks the first centroid uniformly and each following one
// with probability proportional to its squared distance from the nearest
// centroid chosen so far.
func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := points[rng.Intn(len(points))]
	centroids = append(centroids, append([]float64(nil), first...))

	d2 := make([]float64, len(points))
	for len(centroids) < k {
		total := 0.0
		for i, p := range points {
			_, d := nearest(centroids, p)
			d2[i] = d
			total += d
		}
		next := len(points) - 1
		if total > 0 {
			target := rng.Float64() * total
			acc := 0.0
			for i, d := range d2 {
				acc += d
				if acc >= target && d > 0 {
					next = i
					break
				}
			}
		} else {
			next = rng.Intn(len(points))
		}
		centroids = append(centroids, append([]float64(nil), points[next]...))
	}
	return centroids
}

func lloyd(points, centroids [][]float64, maxIter int, tol float64) *Model {
	k, dim := len(centroids), len(points[0])
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}

	iter := 0
	for iter < maxIter {
		iter++
		changed := false
		for i, p := range points {
			c, _ := nearest(centroids, p)
			if c != labels[i] {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, p := range points {
			floats.Add(sums[labels[i]], p)
			counts[labels[i]]++
		}
		relocateEmpty(points, centroids, labels, sums, counts)
		shift := 0.0
		for c := range centroids {
			if counts[c] == 0 {
				copy(sums[c], centroids[c])
			} else {
				floats.Scale(1/float64(counts[c]), sums[c])
			}
			d := floats.Distance(centroids[c], sums[c], 2)
			shift += d * d
			centroids[c] = sums[c]
		}
		if shift <= tol {
			break
		}
	}

	inertia := 0.0
	for i, p := range points {
		c, d := nearest(centroids, p)
		labels[i] = c
		inertia += d
	}
	return &Model{Centroids: centroids, Labels: labels, Inertia: inertia, Iter: iter}
}

// nearest returns the closest centroid and the squared distance to it.
func nearest(centroids [][]float64, p []float64) (int, float64) {
	best, bestD := 0, math.Inf(1)
	for c, ctr := range centroids {
		d := floats.Distance(ctr, p, 2)
		if d*d < bestD {
			best, bestD = c, d*d
		}
	}
	return best, bestD
}

// relocateEmpty moves into each empty cluster the point farthest from its
// centroid. Distances are taken against the centroids before the update. A
// point moves at most once and never out of a single-member cluster.
func relocateEmpty(points, centroids [][]float64, labels []int, sums [][]float64, counts []int) {
	var dist []float64
	moved := make([]bool, len(points))
	for c := range centroids {
		if counts[c] > 0 {
			continue
		}
		if dist == nil {
			dist = make([]float64, len(points))
			for i, p := range points {
				dist[i] = floats.Distance(centroids[labels[i]], p, 2)
			}
		}
		far := -1
		for i := range points {
			if moved[i] || counts[labels[i]] < 2 {
				continue
			}
			if far < 0 || dist[i] > dist[far] {
				far = i
			}
		}
		if far < 0 {
			return
		}
		from := labels[far]
		floats.Sub(sums[from], points[far])
		counts[from]--
		copy(sums[c], points[far])
		counts[c] = 1
		labels[far] = c
		moved[far] = true
	}
}

func meanVariance(points [][]float64) float64 {
	n, dim := float64(len(points)), len(points[0])
	total := 0.0
	for j := 0; j < dim; j++ {
		mean := 0.0
		for _, p := range points {
			mean += p[j]
		}
		mean /= n
		v := 0.0
		for _, p := range points {
			v += (p[j] - mean) * (p[j] - mean)
		}
		total += v / n
	}
	return total / float64(dim)
}
