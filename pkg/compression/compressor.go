// Package compression wraps the codecs used for persisted state files.
//
// Supported algorithms are gzip, snappy, lz4, zstd and s2, plus "none".
// Every codec is safe for concurrent use.
//
//	c, err := compression.NewCompressor(compression.Zstd)
//	packed, err := c.Compress(data)
//	data, err = c.Decompress(packed)
package compression

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/nebula-dispatch/pkg/pool"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	None   Algorithm = "none"
	Gzip   Algorithm = "gzip"
	Snappy Algorithm = "snappy"
	LZ4    Algorithm = "lz4"
	Zstd   Algorithm = "zstd"
	S2     Algorithm = "s2"
)

// MaxDecompressedSize bounds the output of Decompress.
const MaxDecompressedSize = 256 << 20

// ParseAlgorithm maps a configured name to an Algorithm. The empty string
// means None.
func ParseAlgorithm(name string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	switch a {
	case "":
		return None, nil
	case None, Gzip, Snappy, LZ4, Zstd, S2:
		return a, nil
	}
	return "", fmt.Errorf("unsupported compression algorithm: %s", name)
}

// Extension returns the conventional file suffix, or "" for None.
func (a Algorithm) Extension() string {
	switch a {
	case Gzip:
		return ".gz"
	case Snappy:
		return ".sz"
	case LZ4:
		return ".lz4"
	case Zstd:
		return ".zst"
	case S2:
		return ".s2"
	}
	return ""
}

// Compressor compresses and decompresses whole buffers.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Algorithm() Algorithm
}

// NewCompressor creates the compressor for algorithm.
func NewCompressor(algorithm Algorithm) (Compressor, error) {
	switch algorithm {
	case None, "":
		return noneCompressor{}, nil
	case Gzip:
		return newStreamCompressor(Gzip,
			func(w io.Writer) (io.WriteCloser, error) { return gzip.NewWriterLevel(w, gzip.DefaultCompression) },
			func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) }), nil
	case Snappy:
		return newStreamCompressor(Snappy,
			func(w io.Writer) (io.WriteCloser, error) { return snappy.NewBufferedWriter(w), nil },
			func(r io.Reader) (io.Reader, error) { return snappy.NewReader(r), nil }), nil
	case S2:
		return newStreamCompressor(S2,
			func(w io.Writer) (io.WriteCloser, error) { return s2.NewWriter(w), nil },
			func(r io.Reader) (io.Reader, error) { return s2.NewReader(r), nil }), nil
	case LZ4:
		return newStreamCompressor(LZ4,
			func(w io.Writer) (io.WriteCloser, error) { return lz4.NewWriter(w), nil },
			func(r io.Reader) (io.Reader, error) { return lz4.NewReader(r), nil }), nil
	case Zstd:
		return newZstdCompressor()
	}
	return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
}

type noneCompressor struct{}

func (noneCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (noneCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }
func (noneCompressor) Algorithm() Algorithm                   { return None }

// streamCompressor adapts a framed stream format to whole-buffer calls.
type streamCompressor struct {
	algorithm Algorithm
	newWriter func(io.Writer) (io.WriteCloser, error)
	newReader func(io.Reader) (io.Reader, error)
	buffers   *pool.BufferPool
}

func newStreamCompressor(a Algorithm, w func(io.Writer) (io.WriteCloser, error), r func(io.Reader) (io.Reader, error)) *streamCompressor {
	return &streamCompressor{
		algorithm: a,
		newWriter: w,
		newReader: r,
		buffers:   pool.NewBufferPool(),
	}
}

func (sc *streamCompressor) Algorithm() Algorithm { return sc.algorithm }

func (sc *streamCompressor) Compress(data []byte) ([]byte, error) {
	buf := sc.buffers.Get()
	defer sc.buffers.Put(buf)

	w, err := sc.newWriter(buf)
	if err != nil {
		return nil, fmt.Errorf("%s writer: %w", sc.algorithm, err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("%s compress: %w", sc.algorithm, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s compress: %w", sc.algorithm, err)
	}

	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

func (sc *streamCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := sc.newReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s reader: %w", sc.algorithm, err)
	}
	return readLimited(sc.algorithm, r)
}

func readLimited(a Algorithm, r io.Reader) ([]byte, error) {
	var out bytes.Buffer
	n, err := io.Copy(&out, io.LimitReader(r, MaxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("%s decompress: %w", a, err)
	}
	if n > MaxDecompressedSize {
		return nil, fmt.Errorf("%s decompress: output exceeds %d bytes", a, MaxDecompressedSize)
	}
	return out.Bytes(), nil
}

// zstdCompressor shares one encoder and decoder; both are safe for
// concurrent EncodeAll/DecodeAll calls.
type zstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newZstdCompressor() (*zstdCompressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecompressedSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &zstdCompressor{encoder: enc, decoder: dec}, nil
}

func (zc *zstdCompressor) Algorithm() Algorithm { return Zstd }

func (zc *zstdCompressor) Compress(data []byte) ([]byte, error) {
	return zc.encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func (zc *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	out, err := zc.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}
