package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// ErrMalformedName is returned by ParseFilename for names outside the grammar.
var ErrMalformedName = errors.New("ingest: malformed artifact name")

// ZeroIdentityKey is used when the RG fragment consists only of zeros.
const ZeroIdentityKey = "00000000000"

// timestampLayout is appended to stored filenames.
const timestampLayout = "20060102150405"

var namePattern = regexp.MustCompile(`^(\d{3})(\d{11})(\d{11})(.+)$`)

// ParsedName holds the fields encoded in an artifact name.
type ParsedName struct {
	// Original is the base name as given, including the extension.
	Original    string
	Stem        string
	Ext         string
	OriginCode  string
	TaxID       string
	RawRG       string
	IdentityKey string
	DisplayName string
}

// ParseFilename parses the base name of name. An extension is required.
func ParseFilename(name string) (ParsedName, error) {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	if ext == "" || ext == base {
		return ParsedName{}, fmt.Errorf("%w: %q has no extension", ErrMalformedName, base)
	}
	stem := strings.TrimSuffix(base, ext)

	m := namePattern.FindStringSubmatch(stem)
	if m == nil {
		return ParsedName{}, fmt.Errorf("%w: %q", ErrMalformedName, base)
	}

	return ParsedName{
		Original:    base,
		Stem:        stem,
		Ext:         ext,
		OriginCode:  m[1],
		TaxID:       FormatTaxID(m[2]),
		RawRG:       m[3],
		IdentityKey: IdentityKey(m[3]),
		DisplayName: strings.ReplaceAll(m[4], "_", " "),
	}, nil
}

// FormatTaxID formats an eleven digit CPF as xxx.xxx.xxx-xx.
func FormatTaxID(digits string) string {
	if len(digits) != 11 {
		return digits
	}
	return digits[0:3] + "." + digits[3:6] + "." + digits[6:9] + "-" + digits[9:11]
}

// IdentityKey strips leading zeros from an RG fragment.
func IdentityKey(rg string) string {
	key := strings.TrimLeft(rg, "0")
	if key == "" {
		return ZeroIdentityKey
	}
	return key
}

// UniqueFilename returns <stem>_<YYYYMMDDhhmmss><ext>.
func (p ParsedName) UniqueFilename(t time.Time) string {
	return p.Stem + "_" + t.Format(timestampLayout) + p.Ext
}
