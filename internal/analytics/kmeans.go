package analytics

import (
	"math"
	"math/rand/v2"
)

const (
	kmeansSeed     = 42
	kmeansRestarts = 10
	kmeansMaxIter  = 300
)

// Standardize rescales every column to zero mean and unit variance
// (population standard deviation). Constant columns become all zeros.
func Standardize(rows [][]float64) [][]float64 {
	if len(rows) == 0 {
		return nil
	}
	dims := len(rows[0])
	n := float64(len(rows))

	mean := make([]float64, dims)
	for _, r := range rows {
		for j, v := range r {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= n
	}

	std := make([]float64, dims)
	for _, r := range rows {
		for j, v := range r {
			d := v - mean[j]
			std[j] += d * d
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / n)
		if std[j] == 0 {
			std[j] = 1
		}
	}

	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = make([]float64, dims)
		for j, v := range r {
			out[i][j] = (v - mean[j]) / std[j]
		}
	}
	return out
}

// KMeans partitions points into k clusters and returns the label of each
// point. Centroids are seeded with k-means++ from a fixed seed and the best
// of several restarts (lowest inertia) wins, so identical input always
// yields identical labels.
func KMeans(points [][]float64, k int) []int {
	if len(points) == 0 || k <= 0 {
		return nil
	}
	if k > len(points) {
		k = len(points)
	}

	rng := rand.New(rand.NewPCG(kmeansSeed, kmeansSeed))

	var best []int
	bestInertia := math.Inf(1)
	for run := 0; run < kmeansRestarts; run++ {
		centroids := seedPlusPlus(points, k, rng)
		labels, inertia := lloyd(points, centroids)
		if inertia < bestInertia {
			best, bestInertia = labels, inertia
		}
	}
	return best
}

func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.IntN(len(points))]))

	dist := make([]float64, len(points))
	for len(centroids) < k {
		var total float64
		for i, p := range points {
			dist[i] = nearest(p, centroids)
			total += dist[i]
		}

		// All remaining points coincide with a centroid.
		if total == 0 {
			centroids = append(centroids, clone(points[rng.IntN(len(points))]))
			continue
		}

		target := rng.Float64() * total
		chosen := len(points) - 1
		for i, d := range dist {
			target -= d
			if target <= 0 {
				chosen = i
				break
			}
		}
		centroids = append(centroids, clone(points[chosen]))
	}
	return centroids
}

func lloyd(points [][]float64, centroids [][]float64) ([]int, float64) {
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}

	dims := len(points[0])
	var inertia float64
	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false
		inertia = 0
		for i, p := range points {
			c, d := closest(p, centroids)
			inertia += d
			if labels[i] != c {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([][]float64, len(centroids))
		counts := make([]int, len(centroids))
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, p := range points {
			counts[labels[i]]++
			for j, v := range p {
				sums[labels[i]][j] += v
			}
		}
		// Empty clusters keep their previous centroid.
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for j := range sums[c] {
				centroids[c][j] = sums[c][j] / float64(counts[c])
			}
		}
	}
	return labels, inertia
}

func closest(p []float64, centroids [][]float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := sqDist(p, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

func nearest(p []float64, centroids [][]float64) float64 {
	_, d := closest(p, centroids)
	return d
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func clone(p []float64) []float64 {
	out := make([]float64, len(p))
	copy(out, p)
	return out
}
