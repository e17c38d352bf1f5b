package persistence

import (
	"errors"
	"fmt"
	"hash/crc32"
)

// Snapshot pairs are tied together by the CRC32 (Castagnoli) of the framed
// index file, stored in the metadata file. It detects accidental corruption
// and mixing files from different saves; it is not a tamper check.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// ErrChecksumMismatch matches every *ChecksumMismatchError.
var ErrChecksumMismatch = errors.New("persistence: checksum mismatch")

// Checksum returns the CRC32-C of data.
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// ChecksumMismatchError reports a blob whose checksum differs from the
// recorded one.
type ChecksumMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: recorded 0x%08x, computed 0x%08x", e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrChecksumMismatch) succeed.
func (e *ChecksumMismatchError) Is(target error) bool { return target == ErrChecksumMismatch }

// VerifyChecksum returns a *ChecksumMismatchError unless data hashes to
// expected.
func VerifyChecksum(data []byte, expected uint32) error {
	if actual := Checksum(data); actual != expected {
		return &ChecksumMismatchError{Expected: expected, Actual: actual}
	}
	return nil
}
