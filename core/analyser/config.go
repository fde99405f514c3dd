package analyser

import (
	"github.com/jflow-project/jflow/core/descriptor"
	"github.com/jflow-project/jflow/core/frames"
)

// Defaults contains the default settings for analysing methods.
var Defaults = Config{
	Workers:         0,
	DescriptorCache: descriptor.DefaultCacheSize,
	ExceptionEdges:  true,
	MaxIterations:   frames.DefaultMaxIterations,
	Strict:          false,
}

// Config contains configuration options for the method analyser.
type Config struct {
	// Workers bounds the number of methods analysed at once. Zero sizes the
	// batch from the number of methods and CPUs.
	Workers int

	// DescriptorCache is the number of parsed method descriptors kept.
	DescriptorCache int

	// ExceptionEdges adds an edge from every instruction covered by a try
	// range to its handler. Without them handlers are unreachable.
	ExceptionEdges bool

	// MaxIterations caps fixed-point visits per method at this multiple of
	// its instruction count.
	MaxIterations int

	// Strict turns unreachable instructions into malformed-input errors
	// instead of warnings.
	Strict bool `toml:",omitempty"`
}
