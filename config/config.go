// Package config loads the collector tuning file and converts it into
// the per-pass scanner switches and handle allocation budgets.
package config

import (
	"fmt"
	"io"

	"github.com/inhies/go-bytesize"
	yaml "gopkg.in/yaml.v2"

	"github.com/stjordanis/zgc/handles"
	"github.com/stjordanis/zgc/roots"
)

// Config is the collector tuning file. Memory fields take
// human-readable sizes ("512KB", "1.5MB"); an empty size means
// unlimited (or no reservation, for reserves).
type Config struct {
	// DeferWeakRoots moves the weak root sources out of the pause
	// scanner's single pass and into the dedicated weak pass.
	DeferWeakRoots bool `yaml:"defer_weak_roots"`

	// ConcurrentWeakHandles designates the weak-global handle area
	// for concurrent rather than paused processing.
	ConcurrentWeakHandles bool `yaml:"concurrent_weak_handles"`

	// MaxLocalHandleMemory caps the memory backing local handle
	// blocks across all threads.
	MaxLocalHandleMemory string `yaml:"max_local_handle_memory"`

	// MaxGlobalHandles caps the slots of each global handle area.
	MaxGlobalHandles int `yaml:"max_global_handles"`

	// GlobalReserve pre-sizes the global handle areas.
	GlobalReserve string `yaml:"global_reserve"`

	maxLocalHandleMemory bytesize.ByteSize
	globalReserve        bytesize.ByteSize
}

// Load reads and validates a YAML tuning file.
func Load(r io.Reader) (*Config, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := new(Config)
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var err error
	if c.MaxLocalHandleMemory != "" {
		c.maxLocalHandleMemory, err = bytesize.Parse(c.MaxLocalHandleMemory)
		if err != nil {
			return fmt.Errorf("config: max_local_handle_memory: %w", err)
		}
	}
	if c.GlobalReserve != "" {
		c.globalReserve, err = bytesize.Parse(c.GlobalReserve)
		if err != nil {
			return fmt.Errorf("config: global_reserve: %w", err)
		}
	}
	if c.MaxGlobalHandles < 0 {
		return fmt.Errorf("config: max_global_handles must not be negative")
	}
	return nil
}

// RootFlags returns the per-pass switches for the root scanners.
func (c *Config) RootFlags() roots.Flags {
	return roots.Flags{
		DeferWeakRoots:        c.DeferWeakRoots,
		ConcurrentWeakHandles: c.ConcurrentWeakHandles,
	}
}

// HandleOptions turns the local handle memory cap into a block
// budget for the block allocator.
func (c *Config) HandleOptions() handles.Options {
	max := uint64(c.maxLocalHandleMemory)
	if max == 0 {
		return handles.Options{}
	}
	blocks := int(max / uint64(handles.BlockBytes))
	if blocks == 0 {
		// A cap below one block still means capped, not unlimited.
		blocks = 1
	}
	return handles.Options{MaxBlocks: blocks}
}

// TableOptions returns the bounds and reservation for the global
// handle table.
func (c *Config) TableOptions() handles.TableOptions {
	return handles.TableOptions{
		MaxHandles:   c.MaxGlobalHandles,
		ReserveBytes: uintptr(c.globalReserve),
	}
}
