package queue

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPayloadCodec(t *testing.T) {
	t.Run("round trips zstd bodies", func(t *testing.T) {
		body := []byte(strings.Repeat("senior backend engineer, distributed systems, Go, Postgres. ", 40))
		packed := compressBody(body)
		require.Less(t, len(packed), len(body))

		out, err := decodeBody(packed, encodingZstd)
		require.NoError(t, err)
		require.Equal(t, body, out)
	})

	t.Run("passes plain bodies through", func(t *testing.T) {
		body := []byte(`{"jobId":"abc"}`)
		out, err := decodeBody(body, "")
		require.NoError(t, err)
		require.Equal(t, body, out)
	})

	t.Run("rejects unknown encodings", func(t *testing.T) {
		_, err := decodeBody([]byte("whatever"), "gzip")
		require.ErrorContains(t, err, "unsupported content encoding")
	})

	t.Run("rejects corrupt zstd", func(t *testing.T) {
		_, err := decodeBody([]byte("not a zstd frame"), encodingZstd)
		require.Error(t, err)
	})
}

func TestJobMessageJSON(t *testing.T) {
	msg := &JobMessage{
		JobID:         "0198c5a2-1111-7000-8000-000000000001",
		JDURL:         "https://jobs.example.com/postings/42",
		ResumeURI:     "s3://resumes/alice.pdf",
		ModelProvider: "openai",
		ModelName:     "gpt-4o",
	}

	b, err := json.Marshal(msg)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"jobId": "0198c5a2-1111-7000-8000-000000000001",
		"jdUrl": "https://jobs.example.com/postings/42",
		"resumeUri": "s3://resumes/alice.pdf",
		"modelProvider": "openai",
		"modelName": "gpt-4o"
	}`, string(b))
}
