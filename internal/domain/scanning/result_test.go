package scanning

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResultEnforcesThreshold(t *testing.T) {
	jobID := uuid.New()

	tests := []struct {
		name       string
		confidence int
		threshold  int
		wantErr    bool
	}{
		{name: "above threshold", confidence: 92, threshold: 80, wantErr: false},
		{name: "exactly at threshold", confidence: 80, threshold: 80, wantErr: false},
		{name: "below threshold", confidence: 79, threshold: 80, wantErr: true},
		{name: "confidence over 100", confidence: 101, threshold: 80, wantErr: true},
		{name: "negative confidence", confidence: -5, threshold: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewResult(jobID, "https://example.com/page", "https://example.com/img.jpg",
				tt.confidence, tt.threshold, SourceTypeWeb, nil)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, jobID, result.JobID())
			assert.GreaterOrEqual(t, result.Confidence(), tt.threshold)
			assert.Nil(t, result.ConfirmedByUser())
			assert.NotNil(t, result.Metadata())
		})
	}
}

func TestResultDemoProvenanceMarker(t *testing.T) {
	result, err := NewResult(uuid.New(), "https://example.com", "https://example.com/img.jpg",
		85, 80, SourceTypeWeb, map[string]string{MetadataKeyProvider: ProviderDemo})
	require.NoError(t, err)

	assert.Equal(t, ProviderDemo, result.Metadata()[MetadataKeyProvider])
}

func TestBandForConfidence(t *testing.T) {
	assert.Equal(t, ConfidenceBandLow, BandForConfidence(0))
	assert.Equal(t, ConfidenceBandLow, BandForConfidence(69))
	assert.Equal(t, ConfidenceBandMedium, BandForConfidence(70))
	assert.Equal(t, ConfidenceBandHigh, BandForConfidence(85))
	assert.Equal(t, ConfidenceBandVeryHigh, BandForConfidence(95))
	assert.Equal(t, ConfidenceBandVeryHigh, BandForConfidence(100))
}

func TestResultStatsAdd(t *testing.T) {
	stats := NewResultStats()

	confirmed := true
	rejected := false

	r1, err := NewResult(uuid.New(), "a", "b", 96, 80, SourceTypeWeb, nil)
	require.NoError(t, err)
	r2 := ReconstructResult(uuid.New(), uuid.New(), "a", "b", 72, SourceTypeSocialMedia, nil, nil, &confirmed, r1.CreatedAt())
	r3 := ReconstructResult(uuid.New(), uuid.New(), "a", "b", 88, SourceTypeSocialMedia, nil, nil, &rejected, r1.CreatedAt())

	stats.Add(r1)
	stats.Add(r2)
	stats.Add(r3)

	assert.Equal(t, int64(3), stats.TotalResults)
	assert.Equal(t, int64(1), stats.ByConfidenceBand[ConfidenceBandVeryHigh])
	assert.Equal(t, int64(1), stats.ByConfidenceBand[ConfidenceBandMedium])
	assert.Equal(t, int64(1), stats.ByConfidenceBand[ConfidenceBandHigh])
	assert.Equal(t, int64(1), stats.BySourceType[SourceTypeWeb])
	assert.Equal(t, int64(2), stats.BySourceType[SourceTypeSocialMedia])
	assert.Equal(t, int64(1), stats.Confirmed)
	assert.Equal(t, int64(1), stats.Rejected)
	assert.Equal(t, int64(1), stats.Unreviewed)
}
