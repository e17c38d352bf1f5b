package ingest

import (
	"fmt"
	"maps"
	"os"

	"gopkg.in/yaml.v3"
)

// UnknownOrigin is the label for codes missing from the registry.
const UnknownOrigin = "unknown"

var defaultOrigins = map[string]string{
	"001": "idnet",
	"002": "cacador",
	"003": "pf",
	"004": "prf",
	"005": "pff",
	"006": "pm",
	"007": "pc",
	"008": "pp",
	"009": "gm",
	"010": "sesp",
	"011": "sejuc",
	"012": "mitra",
	"013": "detran",
	"014": "sif",
}

// OriginRegistry maps three digit origin codes to labels.
// It is immutable after construction and safe for concurrent use.
type OriginRegistry struct {
	labels map[string]string
}

// DefaultOrigins returns the built-in registry.
func DefaultOrigins() *OriginRegistry {
	return &OriginRegistry{labels: maps.Clone(defaultOrigins)}
}

// NewOriginRegistry returns the defaults overlaid with overrides.
func NewOriginRegistry(overrides map[string]string) *OriginRegistry {
	r := DefaultOrigins()
	maps.Copy(r.labels, overrides)
	return r
}

// originFile is the YAML layout of an origin override file:
//
//	origins:
//	  "015": prison
//	  "002": hunter
type originFile struct {
	Origins map[string]string `yaml:"origins"`
}

// LoadOriginFile reads overrides from a YAML file.
func LoadOriginFile(path string) (*OriginRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f originFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ingest: parse origin file %s: %w", path, err)
	}
	for code := range f.Origins {
		if len(code) != 3 {
			return nil, fmt.Errorf("ingest: origin code %q must have three digits", code)
		}
	}
	return NewOriginRegistry(f.Origins), nil
}

// Label returns the label for code, or UnknownOrigin.
func (r *OriginRegistry) Label(code string) string {
	if l, ok := r.labels[code]; ok {
		return l
	}
	return UnknownOrigin
}

// Len returns the number of known codes.
func (r *OriginRegistry) Len() int { return len(r.labels) }
