// Package compress reads compressed scanner reports and compresses the
// events the NATS inventory publishes.
//
// Scanner exports are often archived or shipped over HTTP compressed. The
// package recognizes gzip and Zstandard payloads by their magic bytes or by
// an HTTP Content-Encoding value, and decompresses them with a size cap.
//
// Supported algorithms:
//   - ZSTD (Zstandard)
//   - Gzip
//
// Example usage:
//
//	data, alg, err := compress.Decode(raw, compress.DefaultMaxDecodedSize)
//	if err != nil {
//	    return err
//	}
//	log.Printf("decoded %s report (%d bytes)", alg, len(data))
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// AlgorithmZSTD is the Zstandard compression algorithm.
	AlgorithmZSTD Algorithm = "zstd"

	// AlgorithmGzip is the gzip compression algorithm.
	AlgorithmGzip Algorithm = "gzip"

	// AlgorithmNone indicates no compression.
	AlgorithmNone Algorithm = "none"
)

// Level represents compression level.
type Level int

const (
	// LevelFastest prioritizes speed over compression ratio.
	LevelFastest Level = 1

	// LevelDefault is the default compression level (good balance).
	LevelDefault Level = 3

	// LevelBest provides maximum compression (slowest).
	LevelBest Level = 9
)

// DefaultMaxDecodedSize caps the decompressed size of one report.
const DefaultMaxDecodedSize = 512 << 20

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// ErrTooLarge is returned when a payload decompresses past the size cap.
var ErrTooLarge = errors.New("decompressed report exceeds size limit")

// Detect returns the algorithm data is compressed with, from its magic
// bytes. Uncompressed data yields AlgorithmNone.
func Detect(data []byte) Algorithm {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		return AlgorithmZSTD
	case bytes.HasPrefix(data, gzipMagic):
		return AlgorithmGzip
	default:
		return AlgorithmNone
	}
}

// FromContentEncoding maps an HTTP Content-Encoding value to an algorithm.
func FromContentEncoding(encoding string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return AlgorithmNone, nil
	case "gzip", "x-gzip":
		return AlgorithmGzip, nil
	case "zstd":
		return AlgorithmZSTD, nil
	default:
		return "", fmt.Errorf("unsupported content encoding: %s", encoding)
	}
}

// Compressor provides compression and decompression functionality.
type Compressor struct {
	algorithm Algorithm
	level     Level

	// ZSTD encoder/decoder pools for reuse
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
}

// NewCompressor creates a new compressor with the specified algorithm and level.
func NewCompressor(algorithm Algorithm, level Level) *Compressor {
	c := &Compressor{
		algorithm: algorithm,
		level:     level,
	}

	if algorithm == AlgorithmZSTD {
		c.zstdEncoderPool = sync.Pool{
			New: func() any {
				enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(int(level))))
				return enc
			},
		}
		c.zstdDecoderPool = sync.Pool{
			New: func() any {
				dec, _ := zstd.NewReader(nil)
				return dec
			},
		}
	}

	return c
}

// Algorithm returns the compression algorithm.
func (c *Compressor) Algorithm() Algorithm {
	return c.algorithm
}

// ContentEncoding returns the HTTP Content-Encoding header value.
func (c *Compressor) ContentEncoding() string {
	switch c.algorithm {
	case AlgorithmZSTD:
		return "zstd"
	case AlgorithmGzip:
		return "gzip"
	default:
		return ""
	}
}

// Compress compresses the input data.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case AlgorithmZSTD:
		return c.compressZSTD(data)
	case AlgorithmGzip:
		return c.compressGzip(data)
	case AlgorithmNone:
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", c.algorithm)
	}
}

// Decompress decompresses the input data. A maxSize of zero or less means
// DefaultMaxDecodedSize.
func (c *Compressor) Decompress(data []byte, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxDecodedSize
	}
	switch c.algorithm {
	case AlgorithmZSTD:
		return c.decompressZSTD(data, maxSize)
	case AlgorithmGzip:
		return decompressGzip(data, maxSize)
	case AlgorithmNone:
		if int64(len(data)) > maxSize {
			return nil, ErrTooLarge
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", c.algorithm)
	}
}

// compressZSTD compresses data using ZSTD.
func (c *Compressor) compressZSTD(data []byte) ([]byte, error) {
	enc := c.zstdEncoderPool.Get().(*zstd.Encoder)
	defer c.zstdEncoderPool.Put(enc)

	var buf bytes.Buffer
	enc.Reset(&buf)

	if _, err := enc.Write(data); err != nil {
		return nil, fmt.Errorf("zstd write error: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("zstd close error: %w", err)
	}

	return buf.Bytes(), nil
}

// decompressZSTD decompresses ZSTD data.
func (c *Compressor) decompressZSTD(data []byte, maxSize int64) ([]byte, error) {
	dec := c.zstdDecoderPool.Get().(*zstd.Decoder)
	defer c.zstdDecoderPool.Put(dec)

	if err := dec.Reset(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("zstd reset error: %w", err)
	}

	result, err := readLimited(dec, maxSize)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress error: %w", err)
	}

	return result, nil
}

// compressGzip compresses data using gzip.
func (c *Compressor) compressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	level := gzip.DefaultCompression
	if c.level <= LevelFastest {
		level = gzip.BestSpeed
	} else if c.level >= 7 {
		level = gzip.BestCompression
	}

	writer, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer error: %w", err)
	}

	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write error: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("gzip close error: %w", err)
	}

	return buf.Bytes(), nil
}

// decompressGzip decompresses gzip data.
func decompressGzip(data []byte, maxSize int64) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader error: %w", err)
	}
	defer reader.Close()

	result, err := readLimited(reader, maxSize)
	if err != nil {
		return nil, fmt.Errorf("gzip decompress error: %w", err)
	}

	return result, nil
}

func readLimited(r io.Reader, maxSize int64) ([]byte, error) {
	result, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(result)) > maxSize {
		return nil, ErrTooLarge
	}
	return result, nil
}

// Default compressors for convenience.
var (
	// DefaultZSTD is the default ZSTD compressor.
	DefaultZSTD = NewCompressor(AlgorithmZSTD, LevelDefault)

	// DefaultGzip is the default gzip compressor.
	DefaultGzip = NewCompressor(AlgorithmGzip, LevelDefault)

	identity = NewCompressor(AlgorithmNone, LevelDefault)
)

// For returns the shared compressor of algorithm.
func For(algorithm Algorithm) (*Compressor, error) {
	switch algorithm {
	case AlgorithmZSTD:
		return DefaultZSTD, nil
	case AlgorithmGzip:
		return DefaultGzip, nil
	case AlgorithmNone, "":
		return identity, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
}

// Decode decompresses data if its magic bytes name a known algorithm and
// returns it unchanged otherwise.
func Decode(data []byte, maxSize int64) ([]byte, Algorithm, error) {
	alg := Detect(data)
	c, _ := For(alg)
	out, err := c.Decompress(data, maxSize)
	if err != nil {
		return nil, alg, err
	}
	return out, alg, nil
}
