package learning

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"activity-categorizer/internal/models"
)

// focusThreshold is the visit length in seconds above which a visit counts as focused
const focusThreshold = 300.0

// DomainStats is the usage profile of one domain over the lookback window
type DomainStats struct {
	Domain      string
	Visits      int
	AvgDuration float64 // seconds
	UniqueUsers int
	DaysVisited int
	FocusScore  float64
	AvgHour     float64
}

// Profile reduces the per-visit samples of a domain to its usage profile
func Profile(a models.DomainActivity) DomainStats {
	s := DomainStats{
		Domain:      a.Domain,
		Visits:      a.Visits(),
		UniqueUsers: a.UniqueUsers,
		DaysVisited: a.DaysVisited,
	}
	if s.Visits == 0 {
		return s
	}

	focused := make([]float64, len(a.Durations))
	for i, d := range a.Durations {
		if d > focusThreshold {
			focused[i] = 1
		}
	}

	s.AvgDuration = stat.Mean(a.Durations, nil)
	s.FocusScore = stat.Mean(focused, nil)
	if len(a.StartHours) > 0 {
		s.AvgHour = stat.Mean(a.StartHours, nil)
	}
	return s
}

// rank orders profiles by visit count descending then domain
func rank(stats []DomainStats) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Visits != stats[j].Visits {
			return stats[i].Visits > stats[j].Visits
		}
		return stats[i].Domain < stats[j].Domain
	})
}
