package uthreads

import (
	"os"
	"time"

	"github.com/inhies/go-bytesize"
	"gopkg.in/yaml.v2"
)

// Config holds the compile-time constants spec.md §6 calls out
// (MAX_THREADS, STACK_SIZE) plus the quantum length, all made operator
// tunable instead of hard-coded — following the shape of
// compileopts.Options, the teacher's own "bag of tunables" struct.
type Config struct {
	// QuantumUsecs is the duration of one quantum, in microseconds of
	// virtual CPU time. Must be > 0.
	QuantumUsecs int `yaml:"quantum_usecs"`

	// MaxThreads is the TCB table capacity, spec.md's MAX_THREADS.
	MaxThreads int `yaml:"max_threads"`

	// StackSize is the size, in bytes, of each thread's stack region,
	// spec.md's STACK_SIZE. Accepts human-readable sizes in YAML/flags
	// ("4KiB") via bytesize.
	StackSize bytesize.ByteSize `yaml:"stack_size"`
}

// DefaultConfig matches the example values spec.md §3 and §8 use.
func DefaultConfig() Config {
	return Config{
		QuantumUsecs: 100000,
		MaxThreads:   100,
		StackSize:    4096 * bytesize.B,
	}
}

// Quantum returns the configured quantum length as a time.Duration.
func (c Config) Quantum() time.Duration {
	return time.Duration(c.QuantumUsecs) * time.Microsecond
}

// Verify validates the configuration, following compileopts.Options.Verify's
// style of one checked field at a time with a descriptive error.
func (c Config) Verify() error {
	if c.QuantumUsecs <= 0 {
		return badArg("Config.Verify", "quantum_usecs must be > 0")
	}
	if c.MaxThreads <= 1 {
		return badArg("Config.Verify", "max_threads must be > 1 (slot 0 is reserved for the host thread)")
	}
	if c.StackSize <= 0 {
		return badArg("Config.Verify", "stack_size must be > 0")
	}
	return nil
}

// fileConfig mirrors Config for YAML decoding: StackSize is decoded as a
// human-readable string ("4KiB") via bytesize.Parse rather than relying on
// yaml.v2 to understand bytesize.ByteSize directly.
type fileConfig struct {
	QuantumUsecs *int    `yaml:"quantum_usecs"`
	MaxThreads   *int    `yaml:"max_threads"`
	StackSize    *string `yaml:"stack_size"`
}

// LoadConfig reads a YAML config file, starting from DefaultConfig for any
// field the file omits.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, systemErr("LoadConfig", err.Error())
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, badArg("LoadConfig", "invalid config file: "+err.Error())
	}
	if fc.QuantumUsecs != nil {
		cfg.QuantumUsecs = *fc.QuantumUsecs
	}
	if fc.MaxThreads != nil {
		cfg.MaxThreads = *fc.MaxThreads
	}
	if fc.StackSize != nil {
		size, err := bytesize.Parse(*fc.StackSize)
		if err != nil {
			return cfg, badArg("LoadConfig", "invalid stack_size: "+err.Error())
		}
		cfg.StackSize = size
	}
	if err := cfg.Verify(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
