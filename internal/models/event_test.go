package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatusEventNormalize(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("defaults missing timestamp", func(t *testing.T) {
		ev := &StatusEvent{Status: StatusProcessing}
		canon, err := ev.Normalize(now)
		require.NoError(t, err)
		require.Equal(t, now, canon.Timestamp)
	})

	t.Run("keeps explicit timestamp", func(t *testing.T) {
		ts := now.Add(-time.Minute)
		ev := &StatusEvent{Status: StatusCompleted, Timestamp: ts}
		canon, err := ev.Normalize(now)
		require.NoError(t, err)
		require.Equal(t, ts, canon.Timestamp)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		ev := &StatusEvent{Status: "EXPLODED"}
		_, err := ev.Normalize(now)
		require.ErrorIs(t, err, ErrUnknownStatus)
	})

	t.Run("maps legacy STREAMING label to PROCESSING", func(t *testing.T) {
		ev := &StatusEvent{Status: "STREAMING", GeneratedText: "partial"}
		canon, err := ev.Normalize(now)
		require.NoError(t, err)
		require.Equal(t, StatusProcessing, canon.Status)
	})

	t.Run("folds content into generatedText", func(t *testing.T) {
		ev := &StatusEvent{Status: StatusCompleted, Content: "the letter"}
		canon, err := ev.Normalize(now)
		require.NoError(t, err)
		require.Equal(t, "the letter", canon.GeneratedText)
		require.Empty(t, canon.Content)
	})

	t.Run("generatedText wins over content", func(t *testing.T) {
		ev := &StatusEvent{Status: StatusCompleted, Content: "old", GeneratedText: "new"}
		canon, err := ev.Normalize(now)
		require.NoError(t, err)
		require.Equal(t, "new", canon.GeneratedText)
	})

	t.Run("folds partial_content out of streaming data", func(t *testing.T) {
		ev := &StatusEvent{
			Status:        StatusProcessing,
			StreamingData: &StreamingData{Progress: 0.4, PartialContent: "Dear"},
		}
		canon, err := ev.Normalize(now)
		require.NoError(t, err)
		require.Equal(t, "Dear", canon.GeneratedText)
		require.NotNil(t, canon.StreamingData)
		require.Empty(t, canon.StreamingData.PartialContent)
		require.InDelta(t, 0.4, canon.StreamingData.Progress, 1e-9)
	})

	t.Run("does not mutate the receiver", func(t *testing.T) {
		ev := &StatusEvent{
			Status:        StatusProcessing,
			Content:       "c",
			StreamingData: &StreamingData{PartialContent: "p"},
		}
		_, err := ev.Normalize(now)
		require.NoError(t, err)
		require.Equal(t, "c", ev.Content)
		require.Equal(t, "p", ev.StreamingData.PartialContent)
		require.True(t, ev.Timestamp.IsZero())
	})
}

func TestStatusEventStreaming(t *testing.T) {
	require.True(t, (&StatusEvent{Status: StatusProcessing, GeneratedText: "x"}).Streaming())
	require.True(t, (&StatusEvent{Status: StatusProcessing, StreamingData: &StreamingData{}}).Streaming())
	require.False(t, (&StatusEvent{Status: StatusProcessing}).Streaming())
	require.False(t, (&StatusEvent{Status: StatusCompleted, GeneratedText: "x"}).Streaming())
}

func TestStatusEventJSON(t *testing.T) {
	// The wire shape the worker posts.
	raw := `{
		"status": "PROCESSING",
		"streamingData": {"progress": 0.25, "tokens_generated": 120, "quality_score": 0.9, "cost_so_far": 0.003}
	}`
	var ev StatusEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	require.Equal(t, StatusProcessing, ev.Status)
	require.NotNil(t, ev.StreamingData)
	require.Equal(t, int64(120), ev.StreamingData.TokensGenerated)

	canon, err := ev.Normalize(time.Now())
	require.NoError(t, err)
	out, err := json.Marshal(canon)
	require.NoError(t, err)
	require.NotContains(t, string(out), "content")
	require.Contains(t, string(out), "tokens_generated")
}
