package redis

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/snappy"
	"github.com/pierrec/lz4/v4"
)

// Compression algorithms for stored values
const (
	CompressionNone   = "none"
	CompressionSnappy = "snappy"
	CompressionLZ4    = "lz4"
)

// CompressionMinSize skips compression for small values, where the frame costs more than it saves
const CompressionMinSize = 1024

// Stored values carry a one-byte marker. JSON never starts with either.
const (
	markerSnappy byte = 0x01
	markerLZ4    byte = 0x02
)

var ErrDecompression = errors.New("decompression failed")

// ValidCompression reports whether algorithm is supported. Empty means none.
func ValidCompression(algorithm string) bool {
	switch algorithm {
	case "", CompressionNone, CompressionSnappy, CompressionLZ4:
		return true
	}
	return false
}

// compress frames content with a marker byte; small content and "none" pass through unchanged
func compress(content []byte, algorithm string) ([]byte, error) {
	if len(content) < CompressionMinSize {
		return content, nil
	}

	switch algorithm {
	case CompressionSnappy:
		return append([]byte{markerSnappy}, snappy.Encode(nil, content)...), nil

	case CompressionLZ4:
		var buf bytes.Buffer
		buf.WriteByte(markerLZ4)
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(content); err != nil {
			w.Close()
			return nil, fmt.Errorf("lz4 compression failed: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compression close failed: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return content, nil
	}
}

// decompress reads the marker written by compress. Unmarked content is returned as-is,
// so values written with a different setting still load.
func decompress(content []byte) ([]byte, error) {
	if len(content) == 0 {
		return content, nil
	}

	switch content[0] {
	case markerSnappy:
		out, err := snappy.Decode(nil, content[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: snappy: %v", ErrDecompression, err)
		}
		return out, nil

	case markerLZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(content[1:])))
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrDecompression, err)
		}
		return out, nil

	default:
		return content, nil
	}
}
