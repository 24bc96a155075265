// Package backends defines the interface a compute engine needs to implement to execute
// goinfer graphs, and the registry used to pick one at runtime.
//
// An Engine enumerates candidate kernel implementations for an operator template
// (Primitives), each candidate exposing the concrete memory layout it wants on every
// port. The graph layer scores the candidates, picks one per node, allocates Memory for
// the edges and then instantiates Primitive objects that a Stream executes.
//
// Engines register themselves during package initialization, typically triggered by a
// side-effect import:
//
//	import _ "github.com/gomlx/goinfer/backends/cpu"
package backends

import (
	"os"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/goinfer/types/xslices"
)

// Engine is a compute provider: it knows which kernel implementations exist for an
// operator template and in which preference order, and it materializes them into
// executable primitives.
//
// An Engine must be safe for concurrent use; a single Engine is commonly shared by
// every graph of a process.
type Engine interface {
	// Name returns the short name of the engine, the key it was registered under.
	// E.g.: "cpu".
	Name() string

	// Description is a longer description of the Engine that can be used to
	// pretty-print, including configuration relevant to kernel availability
	// (instruction tiers, thread count).
	Description() string

	// Primitives enumerates the candidate implementations for the template, most
	// preferred first. The returned iterator is positioned on the first candidate; an
	// iterator with Ok() == false means the engine cannot implement the template at
	// all, which the caller reports as an error.
	Primitives(tpl Template) (PrimIter, error)

	// NewStream creates an execution context for running primitives. Streams are not
	// safe for concurrent use; create one per executing goroutine.
	NewStream() Stream

	// Finalize releases all associated resources immediately and makes the engine
	// invalid.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns an Engine.
type Constructor func(config string) Engine

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register engine with the given name, and a default constructor that takes as input a
// configuration string that is passed along to the engine constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// DefaultConfig is the name of the default engine configuration to use if specified.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// GOINFER_ENGINE is the environment variable with the default engine configuration to
// use.
//
// The format of config is "<engine_name>:<engine_configuration>".
// The "<engine_name>" is the name of a registered engine (e.g.: "cpu") and
// "<engine_configuration>" is engine specific (e.g.: for the cpu engine it selects
// instruction tiers and thread count).
const GOINFER_ENGINE = "GOINFER_ENGINE"

// New returns a new default Engine.
//
// The default is:
//
// 1. The environment GOINFER_ENGINE is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered engine is used with an empty configuration.
//
// It panics if no engine was registered.
func New() Engine {
	config, found := os.LookupEnv(GOINFER_ENGINE)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig creates an Engine from a configuration string.
//
// The format of config is "<engine_name>:<engine_configuration>".
// The "<engine_name>" is the name of a registered engine (e.g.: "cpu") and
// "<engine_configuration>" is engine specific (e.g.: for the cpu engine it selects
// instruction tiers and thread count).
func NewWithConfig(config string) Engine {
	if len(registeredConstructors) == 0 {
		exceptions.Panicf(`no registered engines for goinfer -- maybe import the default CPU one with import _ "github.com/gomlx/goinfer/backends/cpu"?`)
	}
	engineName := firstRegistered
	engineConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		engineName = config[:idx]
		engineConfig = config[idx+1:]
	}
	constructor, found := registeredConstructors[engineName]
	if !found {
		exceptions.Panicf("can't find engine %q for configuration %q given, available engines: %v",
			engineName, config, xslices.SortedKeys(registeredConstructors))
	}
	return constructor(engineConfig)
}
