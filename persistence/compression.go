package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the algorithm used for a snapshot frame.
type Compression uint8

const (
	// CompressionNone stores the payload verbatim.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZstd uses zstd (better ratio).
	CompressionZstd Compression = 2
)

// frameMagic identifies a compression frame ("FVCF").
const frameMagic uint32 = 0x46564346

// frameHeaderSize is magic(4) + algorithm(1) + pad(3) + raw size(8) + stored size(8).
const frameHeaderSize = 24

// maxFramePayload bounds allocations when decoding untrusted frames.
const maxFramePayload = 1 << 36

var (
	// ErrInvalidFrame is returned when a frame header is malformed.
	ErrInvalidFrame = errors.New("persistence: invalid compression frame")
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// ParseCompression maps a configuration string to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd", "zstandard":
		return CompressionZstd, nil
	default:
		return CompressionNone, fmt.Errorf("persistence: unknown compression %q", s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

// EncodeFrame wraps data in a compression frame using algorithm c.
// If compression does not shrink the payload it is stored verbatim.
func EncodeFrame(data []byte, c Compression) ([]byte, error) {
	stored := data
	algo := c
	if len(data) == 0 {
		algo = CompressionNone
	}

	switch algo {
	case CompressionNone:
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("persistence: lz4: %w", err)
		}
		if n == 0 {
			algo = CompressionNone
		} else {
			stored = buf[:n]
		}
	case CompressionZstd:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, fmt.Errorf("persistence: zstd: %w", err)
		}
		stored = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("persistence: unknown compression %d", c)
	}

	if algo != CompressionNone && len(stored) >= len(data) {
		algo = CompressionNone
		stored = data
	}

	out := make([]byte, frameHeaderSize+len(stored))
	binary.LittleEndian.PutUint32(out[0:4], frameMagic)
	out[4] = byte(algo)
	binary.LittleEndian.PutUint64(out[8:16], uint64(len(data)))
	binary.LittleEndian.PutUint64(out[16:24], uint64(len(stored)))
	copy(out[frameHeaderSize:], stored)
	return out, nil
}

// DecodeFrame unwraps a frame produced by EncodeFrame.
func DecodeFrame(frame []byte) ([]byte, error) {
	if len(frame) < frameHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidFrame, len(frame))
	}
	if binary.LittleEndian.Uint32(frame[0:4]) != frameMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidFrame)
	}

	algo := Compression(frame[4])
	rawSize := binary.LittleEndian.Uint64(frame[8:16])
	storedSize := binary.LittleEndian.Uint64(frame[16:24])
	if rawSize > maxFramePayload || storedSize != uint64(len(frame)-frameHeaderSize) {
		return nil, fmt.Errorf("%w: size mismatch", ErrInvalidFrame)
	}
	stored := frame[frameHeaderSize:]

	switch algo {
	case CompressionNone:
		if rawSize != storedSize {
			return nil, fmt.Errorf("%w: size mismatch", ErrInvalidFrame)
		}
		return stored, nil
	case CompressionLZ4:
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(stored, out)
		if err != nil {
			return nil, fmt.Errorf("persistence: lz4: %w", err)
		}
		if uint64(n) != rawSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrInvalidFrame)
		}
		return out, nil
	case CompressionZstd:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("persistence: zstd: %w", err)
		}
		defer zstdDecoderPool.Put(dec)

		out, err := dec.DecodeAll(stored, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("persistence: zstd: %w", err)
		}
		if uint64(len(out)) != rawSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrInvalidFrame)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %d", ErrInvalidFrame, algo)
	}
}
