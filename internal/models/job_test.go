package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCompleted, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusPending, false},
		{StatusProcessing, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusCompleted, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusProcessing, false},
		{StatusFailed, StatusCompleted, false},
		{StatusFailed, StatusPending, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"_to_"+string(tc.to), func(t *testing.T) {
			require.Equal(t, tc.want, CanTransition(tc.from, tc.to))
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	require.False(t, StatusPending.Terminal())
	require.False(t, StatusProcessing.Terminal())
	require.True(t, StatusCompleted.Terminal())
	require.True(t, StatusFailed.Terminal())
}

func TestParseStatus(t *testing.T) {
	st, ok := ParseStatus("PROCESSING")
	require.True(t, ok)
	require.Equal(t, StatusProcessing, st)

	_, ok = ParseStatus("processing")
	require.False(t, ok)

	_, ok = ParseStatus("STREAMING")
	require.False(t, ok, "legacy label is handled by event normalization, not the enum")
}

func TestNewJobDefaults(t *testing.T) {
	t.Run("fills defaults when provider and model are empty", func(t *testing.T) {
		job := NewJob("https://example.com/jd", "s3://bucket/resume.pdf", "", "")
		require.Equal(t, "openai", job.ModelProvider)
		require.Equal(t, "gpt-4o", job.ModelName)
		require.Equal(t, StatusPending, job.Status)
		require.NotEmpty(t, job.ID)
		require.Equal(t, job.CreatedAt, job.UpdatedAt)
	})

	t.Run("keeps explicit provider and model", func(t *testing.T) {
		job := NewJob("https://example.com/jd", "s3://bucket/resume.pdf", "anthropic", "claude-3")
		require.Equal(t, "anthropic", job.ModelProvider)
		require.Equal(t, "claude-3", job.ModelName)
	})

	t.Run("ids are unique", func(t *testing.T) {
		a := NewJob("u", "r", "", "")
		b := NewJob("u", "r", "", "")
		require.NotEqual(t, a.ID, b.ID)
	})
}

func TestJobClone(t *testing.T) {
	job := NewJob("https://example.com/jd", "s3://bucket/resume.pdf", "", "")
	clone := job.Clone()
	clone.Status = StatusFailed
	require.Equal(t, StatusPending, job.Status)

	var nilJob *Job
	require.Nil(t, nilJob.Clone())
}
