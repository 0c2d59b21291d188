package config

import (
	"strings"
	"testing"

	"github.com/stjordanis/zgc/handles"
)

func TestLoadFullConfig(t *testing.T) {
	const doc = `
defer_weak_roots: true
concurrent_weak_handles: true
max_local_handle_memory: 64KB
max_global_handles: 1024
global_reserve: 8KB
`
	cfg, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	flags := cfg.RootFlags()
	if !flags.DeferWeakRoots || !flags.ConcurrentWeakHandles {
		t.Fatalf("flags = %+v", flags)
	}

	opts := cfg.HandleOptions()
	if want := int(64 * 1024 / uint64(handles.BlockBytes)); opts.MaxBlocks != want {
		t.Fatalf("max blocks = %d, want %d", opts.MaxBlocks, want)
	}

	topts := cfg.TableOptions()
	if topts.MaxHandles != 1024 {
		t.Fatalf("max handles = %d", topts.MaxHandles)
	}
	if topts.ReserveBytes != 8*1024 {
		t.Fatalf("reserve = %d bytes", topts.ReserveBytes)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if flags := cfg.RootFlags(); flags.DeferWeakRoots || flags.ConcurrentWeakHandles {
		t.Fatalf("flags not zero by default: %+v", flags)
	}
	if opts := cfg.HandleOptions(); opts.MaxBlocks != 0 {
		t.Fatalf("default block budget = %d, want unlimited", opts.MaxBlocks)
	}
	if topts := cfg.TableOptions(); topts.MaxHandles != 0 || topts.ReserveBytes != 0 {
		t.Fatalf("default table options = %+v", topts)
	}
}

func TestTinyHandleMemoryCapStaysBounded(t *testing.T) {
	// A cap smaller than one block must not truncate to an unlimited
	// budget.
	cfg, err := Load(strings.NewReader("max_local_handle_memory: 16B\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if opts := cfg.HandleOptions(); opts.MaxBlocks != 1 {
		t.Fatalf("block budget = %d, want 1", opts.MaxBlocks)
	}
}

func TestLoadRejectsBadSize(t *testing.T) {
	_, err := Load(strings.NewReader("max_local_handle_memory: twelve\n"))
	if err == nil {
		t.Fatalf("bad size accepted")
	}
	if !strings.Contains(err.Error(), "max_local_handle_memory") {
		t.Fatalf("error does not name the field: %v", err)
	}
}

func TestLoadRejectsNegativeHandleCap(t *testing.T) {
	_, err := Load(strings.NewReader("max_global_handles: -1\n"))
	if err == nil {
		t.Fatalf("negative handle cap accepted")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(strings.NewReader(":\n  - ]["))
	if err == nil {
		t.Fatalf("malformed document accepted")
	}
}

func TestConfigRoundTrip(t *testing.T) {
	const doc = "max_local_handle_memory: 1MB\n"
	cfg, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	alloc := handles.NewAllocator(cfg.HandleOptions())
	if alloc.Live() != 0 {
		t.Fatalf("fresh allocator reports live blocks")
	}
	table := handles.NewTable(cfg.TableOptions())
	h := table.MakeGlobal(0x1000, handles.FatalOnFailure)
	if handles.Resolve(h) != 0x1000 {
		t.Fatalf("table from config misbehaves")
	}
}
