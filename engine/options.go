package engine

import (
	"github.com/hupe1980/facevault/codec"
	"github.com/hupe1980/facevault/index/graph"
	"github.com/hupe1980/facevault/index/ivf"
	"github.com/hupe1980/facevault/logging"
	"github.com/hupe1980/facevault/persistence"
)

// Options configures an Index.
type Options struct {
	// Home is the snapshot directory used by Persist.
	Home string

	// Compression wraps both snapshot files.
	Compression persistence.Compression

	// Codec encodes the metadata blob. Loading always uses the codec named in the blob.
	Codec codec.Codec

	// IVF configures the inverted-file kind.
	IVF []func(*ivf.Options)

	// Graph configures the graph kind.
	Graph []func(*graph.Options)

	Logger  *logging.Logger
	Metrics MetricsObserver
}

// Option defines a configuration option for an Index.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Codec:   codec.Default,
		Metrics: NoopMetricsObserver{},
	}
}

func applyOptions(opts []Option) Options {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if o.Codec == nil {
		o.Codec = codec.Default
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetricsObserver{}
	}
	o.Logger = logging.OrNoop(o.Logger)
	return o
}

// WithHome sets the directory Persist writes to.
func WithHome(dir string) Option {
	return func(o *Options) {
		o.Home = dir
	}
}

// WithCompression sets the snapshot compression.
func WithCompression(c persistence.Compression) Option {
	return func(o *Options) {
		o.Compression = c
	}
}

// WithCodec sets the metadata codec for new snapshots.
func WithCodec(c codec.Codec) Option {
	return func(o *Options) {
		o.Codec = c
	}
}

// WithIVFOptions configures the inverted-file kind.
func WithIVFOptions(fns ...func(*ivf.Options)) Option {
	return func(o *Options) {
		o.IVF = append(o.IVF, fns...)
	}
}

// WithGraphOptions configures the graph kind.
func WithGraphOptions(fns ...func(*graph.Options)) Option {
	return func(o *Options) {
		o.Graph = append(o.Graph, fns...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMetrics sets the metrics observer.
func WithMetrics(m MetricsObserver) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}
