package crypto

import (
	"fmt"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compression algorithm names
const (
	CompressionZstd   = "zstd"
	CompressionSnappy = "snappy"
	CompressionNone   = "none"
)

// ZstdCompressor implements compression using zstd
type ZstdCompressor struct {
	level       int
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
	encoderOnce sync.Once
	decoderOnce sync.Once
	encoderErr  error
	decoderErr  error
}

// NewZstdCompressor creates a new zstd compressor
func NewZstdCompressor(level int) (*ZstdCompressor, error) {
	if level < 1 || level > 19 {
		return nil, fmt.Errorf("zstd level must be 1-19, got %d", level)
	}
	return &ZstdCompressor{level: level}, nil
}

// DefaultZstdCompressor creates a compressor with default settings (level 3)
func DefaultZstdCompressor() (*ZstdCompressor, error) {
	return NewZstdCompressor(3)
}

func (c *ZstdCompressor) getEncoder() (*zstd.Encoder, error) {
	c.encoderOnce.Do(func() {
		c.encoder, c.encoderErr = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.level)),
			zstd.WithEncoderConcurrency(1),
		)
	})
	return c.encoder, c.encoderErr
}

func (c *ZstdCompressor) getDecoder() (*zstd.Decoder, error) {
	c.decoderOnce.Do(func() {
		c.decoder, c.decoderErr = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(256*1024*1024),
		)
	})
	return c.decoder, c.decoderErr
}

// Compress encodes data in one shot
func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	encoder, err := c.getEncoder()
	if err != nil {
		return nil, fmt.Errorf("failed to get encoder: %w", err)
	}
	return encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
}

// Decompress decodes data in one shot
func (c *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}
	decoder, err := c.getDecoder()
	if err != nil {
		return nil, fmt.Errorf("failed to get decoder: %w", err)
	}
	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

func (c *ZstdCompressor) Algorithm() string { return CompressionZstd }
func (c *ZstdCompressor) Level() int        { return c.level }

// SnappyCompressor trades ratio for speed
type SnappyCompressor struct{}

// NewSnappyCompressor creates a snappy compressor
func NewSnappyCompressor() *SnappyCompressor {
	return &SnappyCompressor{}
}

func (c *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (c *SnappyCompressor) Decompress(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decode: %w", err)
	}
	return out, nil
}

func (c *SnappyCompressor) Algorithm() string { return CompressionSnappy }

// Compressor provides compression and decompression
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Algorithm() string
}

// NewCompressor returns the compressor for algo, or nil for "none"
func NewCompressor(algo string, level int) (Compressor, error) {
	switch algo {
	case CompressionZstd, "":
		if level == 0 {
			level = 3
		}
		return NewZstdCompressor(level)
	case CompressionSnappy:
		return NewSnappyCompressor(), nil
	case CompressionNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algo)
	}
}
