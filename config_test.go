package shamrtos

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/inhies/go-bytesize"
	"gopkg.in/yaml.v3"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.yaml")
	data := []byte(`
max_threads: 8
stack_size: 1KB
scheduler: round-robin
preempt_on_wake: true
log_level: warn
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxThreads != 8 || cfg.StackSize != bytesize.KB || cfg.StackWords() != 256 {
		t.Errorf("got %+v", cfg)
	}
	if cfg.Scheduler != SchedRoundRobin || !cfg.PreemptOnWake {
		t.Errorf("got %+v", cfg)
	}
	// 没写的字段保持默认
	if cfg.FIFOSize != DefaultConfig().FIFOSize || cfg.TriggerWarmup != 10 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(cfg *Config){
		"no threads":      func(cfg *Config) { cfg.MaxThreads = 0 },
		"tiny stack":      func(cfg *Config) { cfg.StackSize = 100 },
		"unaligned stack": func(cfg *Config) { cfg.StackSize = 404 },
		"no fifo":         func(cfg *Config) { cfg.FIFOSize = 0 },
		"no sleep tick":   func(cfg *Config) { cfg.SleepTickHz = 0 },
		"sleep priority":  func(cfg *Config) { cfg.SleepPriority = 8 },
		"scheduler":       func(cfg *Config) { cfg.Scheduler = "edf" },
		"log level":       func(cfg *Config) { cfg.LogLevel = "loud" },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
			t.Errorf("%s: want ErrConfig, got %v", name, err)
		}
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config: %v", err)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("stack_size: lots\n"), 0o644)
	if _, err := LoadConfig(bad); err == nil {
		t.Error("want parse error for stack_size: lots")
	}

	small := filepath.Join(dir, "small.yaml")
	os.WriteFile(small, []byte("stack_size: 64B\n"), 0o644)
	if _, err := LoadConfig(small); !errors.Is(err, ErrConfig) {
		t.Errorf("want ErrConfig, got %v", err)
	}
}

func TestConfigYAMLRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StackSize = 2 * bytesize.KB
	cfg.Scheduler = SchedRoundRobin

	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "kernel.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("%v\n%s", err, data)
	}
	if got != cfg {
		t.Errorf("got %+v, want %+v", got, cfg)
	}
}
