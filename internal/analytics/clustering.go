package analytics

import (
	"errors"
	"sort"
)

// Category labels a fence by how busy its cluster is
type Category string

const (
	CategoryHotspot  Category = "HOTSPOT"
	CategoryStandard Category = "STANDARD"
	CategoryCold     Category = "COLD"
	CategoryUnknown  Category = "UNKNOWN"

	// MinClusterFences is the smallest fence count clustering accepts
	MinClusterFences = 3

	clusterCount = 3
)

// ErrNotEnoughData is returned when there are too few fences to cluster
var ErrNotEnoughData = errors.New("not enough data (min 3)")

var rankedCategories = []Category{CategoryHotspot, CategoryStandard, CategoryCold}

// Features is the clustering input row for one fence: entries, views per
// entry and average dwell seconds.
func (s FenceStats) Features() []float64 {
	return []float64{float64(s.Entries), s.Conversion(), s.AvgDwell().Seconds()}
}

// Classify groups fences into three clusters over standardized features and
// names the clusters by their mean entry count, busiest first.
func Classify(stats []FenceStats) ([]Metric, error) {
	if len(stats) < MinClusterFences {
		return nil, ErrNotEnoughData
	}

	rows := make([][]float64, len(stats))
	for i, s := range stats {
		rows[i] = s.Features()
	}
	labels := KMeans(Standardize(rows), clusterCount)

	categories := rankClusters(stats, labels)

	out := make([]Metric, len(stats))
	for i, s := range stats {
		m := s.ToMetric()
		m.Category = CategoryUnknown
		if c, ok := categories[labels[i]]; ok {
			m.Category = c
		}
		out[i] = m
	}
	return out, nil
}

// rankClusters maps cluster labels to categories ordered by mean entries
func rankClusters(stats []FenceStats, labels []int) map[int]Category {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for i, l := range labels {
		sums[l] += float64(stats[i].Entries)
		counts[l]++
	}

	clusters := make([]int, 0, len(counts))
	for l := range counts {
		clusters = append(clusters, l)
	}
	sort.Slice(clusters, func(i, j int) bool {
		mi := sums[clusters[i]] / float64(counts[clusters[i]])
		mj := sums[clusters[j]] / float64(counts[clusters[j]])
		if mi != mj {
			return mi > mj
		}
		return clusters[i] < clusters[j]
	})

	out := make(map[int]Category, len(clusters))
	for rank, l := range clusters {
		if rank < len(rankedCategories) {
			out[l] = rankedCategories[rank]
		}
	}
	return out
}
