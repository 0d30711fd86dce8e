package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadDefaults(t *testing.T) {
	c, err := Read(strings.NewReader("abi: rv32g\nprologue-scan-limit: 64\ncolor: false\n"))
	if err != nil {
		t.Fatal(err)
	}
	if c.ABI != "rv32g" {
		t.Errorf("abi: %q", c.ABI)
	}
	if c.PrologueScanLimit != 64 {
		t.Errorf("prologue-scan-limit: %d", c.PrologueScanLimit)
	}
	if c.SkipPrologueLimit != DefaultSkipPrologueLimit {
		t.Errorf("skip-prologue-limit: %d", c.SkipPrologueLimit)
	}
	if c.ByteOrder != DefaultByteOrder {
		t.Errorf("byte-order: %q", c.ByteOrder)
	}
	if c.Color == nil || *c.Color {
		t.Errorf("color should be false")
	}
}

func TestReadError(t *testing.T) {
	if _, err := Read(strings.NewReader("abi: [")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDefaultConfigFile(t *testing.T) {
	// the commented out default file must decode to the defaults
	var buf strings.Builder
	if err := writeDefaultConfig(&buf); err != nil {
		t.Fatal(err)
	}
	c, err := Read(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatal(err)
	}
	d := Default()
	if c.ABI != d.ABI || c.PrologueScanLimit != d.PrologueScanLimit || c.MaxBacktraceDepth != d.MaxBacktraceDepth {
		t.Errorf("default file %+v differs from Default() %+v", c, d)
	}
}

func TestLoadConfigXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	c := LoadConfig()
	if c.ABI != DefaultABI {
		t.Errorf("abi: %q", c.ABI)
	}
	path := filepath.Join(dir, configDir, configFile)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not created: %v", err)
	}

	c.SymbolCacheSize = 7
	if err := SaveConfig(c); err != nil {
		t.Fatal(err)
	}
	c2, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if c2.SymbolCacheSize != 7 {
		t.Errorf("saved value not read back: %d", c2.SymbolCacheSize)
	}
}
