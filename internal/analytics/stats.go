// Package analytics derives per-geofence engagement figures from the event
// log: entry/exit/view counts, dwell time, conversion and bounce rates, a
// k-means grouping of fences and an entry heatmap.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/geoaware/backend/internal/models"
)

// MaxSessionDuration bounds the entry→exit gap that counts as a visit
const MaxSessionDuration = 24 * time.Hour

// FenceRef identifies a geofence in a report
type FenceRef struct {
	ID   string
	Name string
}

// EventRecord is the subset of an event the stats walk needs
type EventRecord struct {
	Type      models.EventType
	FenceID   *string
	UserID    string
	Timestamp time.Time
}

// FenceStats holds the raw counters accumulated for one fence
type FenceStats struct {
	FenceID    string        `json:"fenceId"`
	Name       string        `json:"name"`
	Entries    int           `json:"entries"`
	Exits      int           `json:"exits"`
	Views      int           `json:"views"`
	DwellTotal time.Duration `json:"dwellTotal"`
	DwellCount int           `json:"dwellCount"`
}

// AvgDwell is the mean duration of the closed sessions, zero when none
func (s FenceStats) AvgDwell() time.Duration {
	if s.DwellCount == 0 {
		return 0
	}
	return s.DwellTotal / time.Duration(s.DwellCount)
}

// Conversion is views per entry, zero when there are no entries
func (s FenceStats) Conversion() float64 {
	if s.Entries == 0 {
		return 0
	}
	return float64(s.Views) / float64(s.Entries)
}

type session struct {
	fenceID string
	at      time.Time
}

// Compute walks events in timestamp order and accumulates counters per
// fence. Open sessions are tracked per user: an entry opens (or replaces)
// the user's session, an exit on the same fence closes it and contributes
// its duration when it lies strictly between zero and MaxSessionDuration.
// Events for fences not in the list are ignored. The result follows the
// order of fences.
func Compute(fences []FenceRef, events []EventRecord) []FenceStats {
	stats := make([]FenceStats, len(fences))
	index := make(map[string]int, len(fences))
	for i, f := range fences {
		stats[i] = FenceStats{FenceID: f.ID, Name: f.Name}
		index[f.ID] = i
	}

	ordered := make([]EventRecord, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	sessions := make(map[string]session)
	for _, ev := range ordered {
		if ev.FenceID == nil {
			continue
		}
		i, ok := index[*ev.FenceID]
		if !ok {
			continue
		}
		st := &stats[i]

		switch ev.Type {
		case models.EventEntry:
			st.Entries++
			sessions[ev.UserID] = session{fenceID: st.FenceID, at: ev.Timestamp}
		case models.EventContentView:
			st.Views++
		case models.EventExit:
			st.Exits++
			if open, ok := sessions[ev.UserID]; ok && open.fenceID == st.FenceID {
				d := ev.Timestamp.Sub(open.at)
				if d > 0 && d < MaxSessionDuration {
					st.DwellTotal += d
					st.DwellCount++
				}
				delete(sessions, ev.UserID)
			}
		}
	}

	return stats
}

// Metric is the per-fence row served by the metrics and clustering reports
type Metric struct {
	FenceID             string   `json:"fenceId"`
	Name                string   `json:"name"`
	Entries             int      `json:"entries"`
	Exits               int      `json:"exits"`
	Views               int      `json:"views"`
	AvgDwellTimeMinutes float64  `json:"avgDwellTimeMinutes"`
	ConversionRate      string   `json:"conversionRate"`
	BounceRate          string   `json:"bounceRate"`
	Category            Category `json:"category,omitempty"`
}

// ToMetric formats raw counters for presentation
func (s FenceStats) ToMetric() Metric {
	m := Metric{
		FenceID:             s.FenceID,
		Name:                s.Name,
		Entries:             s.Entries,
		Exits:               s.Exits,
		Views:               s.Views,
		AvgDwellTimeMinutes: round1(s.AvgDwell().Seconds() / 60),
		ConversionRate:      formatPercent(0),
		BounceRate:          formatPercent(0),
	}
	if s.Entries > 0 {
		entries := float64(s.Entries)
		m.ConversionRate = formatPercent(float64(s.Views) / entries * 100)
		m.BounceRate = formatPercent(math.Max(0, (entries-float64(s.Views))/entries*100))
	}
	return m
}

// Metrics formats every fence
func Metrics(stats []FenceStats) []Metric {
	out := make([]Metric, 0, len(stats))
	for _, s := range stats {
		out = append(out, s.ToMetric())
	}
	return out
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
