package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		wantErr bool
	}{
		{name: "queued to processing", from: JobStatusQueued, to: JobStatusProcessing, wantErr: false},
		{name: "queued to cancelled", from: JobStatusQueued, to: JobStatusCancelled, wantErr: false},
		{name: "queued to failed", from: JobStatusQueued, to: JobStatusFailed, wantErr: false},
		{name: "queued to completed", from: JobStatusQueued, to: JobStatusCompleted, wantErr: true},
		{name: "processing to completed", from: JobStatusProcessing, to: JobStatusCompleted, wantErr: false},
		{name: "processing to failed", from: JobStatusProcessing, to: JobStatusFailed, wantErr: false},
		{name: "processing to cancelled", from: JobStatusProcessing, to: JobStatusCancelled, wantErr: false},
		{name: "processing to queued", from: JobStatusProcessing, to: JobStatusQueued, wantErr: true},
		{name: "completed is terminal", from: JobStatusCompleted, to: JobStatusProcessing, wantErr: true},
		{name: "failed is terminal", from: JobStatusFailed, to: JobStatusProcessing, wantErr: true},
		{name: "cancelled is terminal", from: JobStatusCancelled, to: JobStatusProcessing, wantErr: true},
		{name: "cancelled cannot complete", from: JobStatusCancelled, to: JobStatusCompleted, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.from.ValidateTransition(tt.to)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestJobStatusIsTerminal(t *testing.T) {
	assert.False(t, JobStatusQueued.IsTerminal())
	assert.False(t, JobStatusProcessing.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.True(t, JobStatusCancelled.IsTerminal())
}

func TestParseJobStatus(t *testing.T) {
	tests := []struct {
		input string
		want  JobStatus
	}{
		{"QUEUED", JobStatusQueued},
		{"PROCESSING", JobStatusProcessing},
		{"COMPLETED", JobStatusCompleted},
		{"FAILED", JobStatusFailed},
		{"CANCELLED", JobStatusCancelled},
		{"bogus", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseJobStatus(tt.input))
	}
}
