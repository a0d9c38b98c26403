// Package compress provides the compression collaborator consumed by the
// delta sync core. Any algorithm satisfies the contract as long as the
// reported stats are accurate.
package compress

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

// Stats describes the outcome of compressing a payload. Ratio is
// compressed/original; payloads that expand report a ratio above 1.
type Stats struct {
	OriginalSize   int     `json:"original_size"`
	CompressedSize int     `json:"compressed_size"`
	Ratio          float64 `json:"compression_ratio"`
}

// Result pairs compressed bytes with their stats.
type Result struct {
	Data  []byte `json:"data"`
	Stats Stats  `json:"stats"`
}

// Compressor compresses batch payloads for transport.
type Compressor interface {
	// Compress returns the compressed payload and accurate size stats.
	Compress(payload []byte) (*Result, error)

	// Decompress reverses Compress.
	Decompress(data []byte) ([]byte, error)

	// Name identifies the algorithm (e.g. "snappy", "gzip").
	Name() string
}

func statsFor(original, compressed int) Stats {
	s := Stats{OriginalSize: original, CompressedSize: compressed}
	if original > 0 {
		s.Ratio = float64(compressed) / float64(original)
	}
	return s
}

// Snappy is the default compressor. Snappy trades ratio for speed, which
// suits frequent small sync batches on mobile devices.
type Snappy struct{}

// NewSnappy returns a snappy block-format compressor.
func NewSnappy() *Snappy { return &Snappy{} }

func (*Snappy) Name() string { return "snappy" }

func (*Snappy) Compress(payload []byte) (*Result, error) {
	encoded := snappy.Encode(nil, payload)
	return &Result{
		Data:  encoded,
		Stats: statsFor(len(payload), len(encoded)),
	}, nil
}

func (*Snappy) Decompress(data []byte) ([]byte, error) {
	decoded, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decode: %w", err)
	}
	return decoded, nil
}

// Gzip compresses with DEFLATE at the default level. Better ratios than
// snappy on text-heavy payloads, at higher CPU cost.
type Gzip struct {
	level int
}

// NewGzip returns a gzip compressor at the default compression level.
func NewGzip() *Gzip { return &Gzip{level: gzip.DefaultCompression} }

// NewGzipLevel returns a gzip compressor at the given level.
func NewGzipLevel(level int) (*Gzip, error) {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		return nil, fmt.Errorf("invalid gzip level %d", level)
	}
	return &Gzip{level: level}, nil
}

func (*Gzip) Name() string { return "gzip" }

func (g *Gzip) Compress(payload []byte) (*Result, error) {
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, g.level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := gw.Write(payload); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return &Result{
		Data:  buf.Bytes(),
		Stats: statsFor(len(payload), buf.Len()),
	}, nil
}

func (g *Gzip) Decompress(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer gr.Close()

	decoded, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return decoded, nil
}
