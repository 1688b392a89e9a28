package scanning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTimeProvider steps time forward on every call so ordering assertions
// are deterministic.
type mockTimeProvider struct {
	current time.Time
}

func (m *mockTimeProvider) Now() time.Time {
	m.current = m.current.Add(time.Second)
	return m.current
}

func TestTimelineLifecycle(t *testing.T) {
	provider := &mockTimeProvider{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	tl := NewTimeline(provider)

	require.False(t, tl.HasStarted())
	require.False(t, tl.IsCompleted())
	assert.False(t, tl.CreatedAt().IsZero())

	tl.MarkStarted()
	require.True(t, tl.HasStarted())
	assert.True(t, tl.StartedAt().After(tl.CreatedAt()))

	tl.MarkCompleted()
	require.True(t, tl.IsCompleted())
	assert.True(t, tl.CompletedAt().After(tl.StartedAt()))
	assert.Equal(t, tl.CompletedAt(), tl.LastUpdate())
}

func TestReconstructTimeline(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	started := created.Add(time.Minute)
	completed := started.Add(time.Minute)

	tl := ReconstructTimeline(created, started, completed, completed)

	assert.Equal(t, created, tl.CreatedAt())
	assert.Equal(t, started, tl.StartedAt())
	assert.Equal(t, completed, tl.CompletedAt())
	assert.True(t, tl.HasStarted())
	assert.True(t, tl.IsCompleted())
}
