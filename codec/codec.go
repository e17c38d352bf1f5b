// Package codec encodes the metadata section of an index snapshot.
//
// The codec name is written in front of the encoded section, so a snapshot is
// always read back with the codec that wrote it. Changing Default only
// affects snapshots written afterwards.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	gojson "github.com/goccy/go-json"
)

// ErrUnknownCodec is returned by Lookup for names no codec is registered under.
var ErrUnknownCodec = errors.New("codec: unknown codec")

// Codec marshals snapshot metadata. Implementations must be safe for
// concurrent use.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registered codec names. Both produce plain JSON, so either can read the
// other's output.
const (
	NameJSON   = "json"
	NameGoJSON = "go-json"
)

var (
	// JSON uses encoding/json.
	JSON Codec = stdCodec{}
	// GoJSON uses github.com/goccy/go-json.
	GoJSON Codec = goCodec{}

	// Default is the codec new snapshots are written with.
	Default = GoJSON
)

// Lookup returns the codec registered under name.
func Lookup(name string) (Codec, error) {
	switch name {
	case NameJSON:
		return JSON, nil
	case NameGoJSON:
		return GoJSON, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownCodec, name)
}

type goCodec struct{}

func (goCodec) Name() string                       { return NameGoJSON }
func (goCodec) Marshal(v any) ([]byte, error)      { return gojson.Marshal(v) }
func (goCodec) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }

type stdCodec struct{}

func (stdCodec) Name() string                       { return NameJSON }
func (stdCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (stdCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
