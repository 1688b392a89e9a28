package scanning

// ConfidenceBand buckets results by score for reporting.
type ConfidenceBand string

const (
	ConfidenceBandLow      ConfidenceBand = "low"       // [0,70)
	ConfidenceBandMedium   ConfidenceBand = "medium"    // [70,85)
	ConfidenceBandHigh     ConfidenceBand = "high"      // [85,95)
	ConfidenceBandVeryHigh ConfidenceBand = "very_high" // [95,100]
)

// BandForConfidence maps a confidence score to its reporting band.
func BandForConfidence(confidence int) ConfidenceBand {
	switch {
	case confidence >= 95:
		return ConfidenceBandVeryHigh
	case confidence >= 85:
		return ConfidenceBandHigh
	case confidence >= 70:
		return ConfidenceBandMedium
	default:
		return ConfidenceBandLow
	}
}

// ResultStats is the on-demand aggregation over a job's persisted results.
// Statistics are read-path only; the write path never maintains them
// incrementally.
type ResultStats struct {
	TotalResults     int64
	ByConfidenceBand map[ConfidenceBand]int64
	BySourceType     map[SourceType]int64
	Confirmed        int64
	Rejected         int64
	Unreviewed       int64
}

// NewResultStats returns an empty stats aggregate with initialized maps.
func NewResultStats() *ResultStats {
	return &ResultStats{
		ByConfidenceBand: make(map[ConfidenceBand]int64),
		BySourceType:     make(map[SourceType]int64),
	}
}

// Add folds one result into the aggregation.
func (s *ResultStats) Add(r *Result) {
	s.TotalResults++
	s.ByConfidenceBand[BandForConfidence(r.Confidence())]++
	s.BySourceType[r.SourceType()]++

	switch {
	case r.ConfirmedByUser() == nil:
		s.Unreviewed++
	case *r.ConfirmedByUser():
		s.Confirmed++
	default:
		s.Rejected++
	}
}
