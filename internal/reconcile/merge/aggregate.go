package merge

import types "github.com/yungbote/gradebridge-backend/internal/domain"

type Aggregates struct {
	Total     int
	Completed int
	Average   *float64
}

// Aggregate computes counts and the weighted average. Point-bearing entries contribute
// score/possible weighted by possible; percentage-only entries are weighted by the mean possible
// of the point-bearing entries, or 1 when there are none.
func Aggregate(entries []types.SnapshotEntry) Aggregates {
	agg := Aggregates{Total: len(entries)}

	var pointSum, pointWeight float64
	pointCount := 0
	var pctOnly []float64
	for _, e := range entries {
		if e.IsComplete() {
			agg.Completed++
		}
		switch {
		case e.Score != nil && e.Possible != nil && *e.Possible > 0:
			pct := *e.Score / *e.Possible * 100
			pointSum += pct * *e.Possible
			pointWeight += *e.Possible
			pointCount++
		case e.Percentage != nil:
			pctOnly = append(pctOnly, *NormalizePercentage(e.Percentage))
		}
	}
	if pointCount == 0 && len(pctOnly) == 0 {
		return agg
	}

	w := 1.0
	if pointCount > 0 {
		w = pointWeight / float64(pointCount)
	}
	sum, weight := pointSum, pointWeight
	for _, p := range pctOnly {
		sum += p * w
		weight += w
	}
	avg := sum / weight
	agg.Average = &avg
	return agg
}
