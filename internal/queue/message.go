package queue

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// JobMessage is the work order published for each accepted job. The worker
// fleet consumes these from the jobs queue.
type JobMessage struct {
	JobID         string `json:"jobId"`
	JDURL         string `json:"jdUrl"`
	ResumeURI     string `json:"resumeUri"`
	ModelProvider string `json:"modelProvider"`
	ModelName     string `json:"modelName"`
	TraceID       string `json:"traceId,omitempty"`
}

// AMQP message properties used for payload compression. Compressed bodies
// carry the codec in content-encoding and the original size in a header so
// consumers can sanity-check the inflate.
const (
	encodingZstd          = "zstd"
	headerUncompressedLen = "x-uncompressed-size"
	headerTraceID         = "x-trace-id"
)

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
}

// compressBody returns the zstd-compressed payload.
func compressBody(body []byte) []byte {
	return zstdEncoder.EncodeAll(body, make([]byte, 0, len(body)/2))
}

// decodeBody inflates a delivery body according to its content encoding.
// An empty encoding passes the body through untouched.
func decodeBody(body []byte, contentEncoding string) ([]byte, error) {
	switch contentEncoding {
	case "":
		return body, nil
	case encodingZstd:
		out, err := zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress payload: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", contentEncoding)
	}
}
