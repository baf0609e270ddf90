package docker

import (
	"sort"
	"time"

	"github.com/sakif/vinstackcode/internal/executor"
)

// Runtime describes how to run one language: the image and the command prefix
// that receives the source as its final argument.
type Runtime struct {
	Image   string
	Command []string
}

// Config holds the configuration for Docker execution.
type Config struct {
	// Runtimes maps a language name to its image and command.
	Runtimes map[string]Runtime
	// MemoryLimit is the maximum amount of memory a container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs a container can use.
	CPULimit float64
	// Timeout is the maximum amount of time a run can take.
	Timeout time.Duration
	// PoolSize is the number of pre-warmed containers kept per language.
	PoolSize int
}

// DefaultRuntimes covers the languages the quests use.
func DefaultRuntimes() map[string]Runtime {
	return map[string]Runtime{
		"python":     {Image: "python:3.12-alpine", Command: []string{"python", "-c"}},
		"javascript": {Image: "node:22-alpine", Command: []string{"node", "-e"}},
	}
}

// DefaultConfig provides sensible defaults for the sandbox.
func DefaultConfig() Config {
	return Config{
		Runtimes: DefaultRuntimes(),
		// 128 MB memory limit
		MemoryLimit: 128 * 1024 * 1024,
		// 0.5 CPU shares
		CPULimit: 0.5,
		Timeout:  executor.DefaultTimeout,
		PoolSize: 3,
	}
}

// Languages returns the configured language names, sorted.
func (c Config) Languages() []string {
	out := make([]string, 0, len(c.Runtimes))
	for lang := range c.Runtimes {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}
