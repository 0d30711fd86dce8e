package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

const (
	configDir       string = "rvframe"
	configDirHidden string = ".rvframe"
	configFile      string = "config.yml"
)

// Default values used for options missing from the config file.
const (
	DefaultABI               = "rv64g"
	DefaultByteOrder         = "little"
	DefaultPrologueScanLimit = 200
	DefaultSkipPrologueLimit = 100
	DefaultSymbolCacheSize   = 512
	DefaultBacktraceDepth    = 50
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// ABI selects the target ABI, one of the presets accepted by
	// proc.ParseABI (rv32g, rv64g, rv64gc, ...).
	ABI string `yaml:"abi,omitempty"`
	// ByteOrder of the target, "little", "big" or "unknown".
	ByteOrder string `yaml:"byte-order,omitempty"`

	// PrologueScanLimit is the maximum number of bytes examined by a
	// single prologue scan.
	PrologueScanLimit int `yaml:"prologue-scan-limit,omitempty"`
	// SkipPrologueLimit is the scan window used by skip-prologue when no
	// debug information is available.
	SkipPrologueLimit int `yaml:"skip-prologue-limit,omitempty"`
	// SymbolCacheSize is the number of entries of the pc to function cache.
	SymbolCacheSize int `yaml:"symbol-cache-size,omitempty"`
	// MaxBacktraceDepth limits the number of frames printed by backtrace.
	MaxBacktraceDepth int `yaml:"max-backtrace-depth,omitempty"`

	// LogOutput is the default value of --log-output.
	LogOutput string `yaml:"log-output,omitempty"`
	// Color enables colored output when stdout is a terminal.
	Color *bool `yaml:"color,omitempty"`
}

// Default returns a Config with every option set to its default value.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.ABI == "" {
		c.ABI = DefaultABI
	}
	if c.ByteOrder == "" {
		c.ByteOrder = DefaultByteOrder
	}
	if c.PrologueScanLimit <= 0 {
		c.PrologueScanLimit = DefaultPrologueScanLimit
	}
	if c.SkipPrologueLimit <= 0 {
		c.SkipPrologueLimit = DefaultSkipPrologueLimit
	}
	if c.SymbolCacheSize <= 0 {
		c.SymbolCacheSize = DefaultSymbolCacheSize
	}
	if c.MaxBacktraceDepth <= 0 {
		c.MaxBacktraceDepth = DefaultBacktraceDepth
	}
	if c.Color == nil {
		t := true
		c.Color = &t
	}
}

// LoadConfig attempts to populate a Config object from the config.yml file.
// A default config file is created if none exists. Errors are reported on
// stderr and result in the default configuration.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not create config directory: %v.\n", err)
		return Default()
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to get config file path: %v.\n", err)
		return Default()
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating default config file: %v\n", err)
			return Default()
		}
	}
	defer func() {
		err := f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Closing config file failed: %v.\n", err)
		}
	}()

	c, err := Read(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v.\n", err)
		return Default()
	}
	return c
}

// LoadConfigFile reads the configuration from path. Unlike LoadConfig
// errors are returned to the caller.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a YAML configuration and fills in defaults.
func Read(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read config data: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unable to decode config file: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return f, nil
}

func writeDefaultConfig(f io.Writer) error {
	_, err := io.WriteString(f,
		`# Configuration file for rvframe.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Target ABI: rv32g, rv64g, rv64gc, rv32imac, ...
# abi: rv64g

# Target byte order: little, big or unknown.
# byte-order: little

# Maximum number of bytes examined by a prologue scan.
# prologue-scan-limit: 200

# Window used by skip-prologue when no debug information is available.
# skip-prologue-limit: 100

# Number of cached pc to function lookups.
# symbol-cache-size: 512

# Maximum number of frames printed by backtrace.
# max-backtrace-depth: 50

# Default layers enabled by --log.
# log-output: frame

# Colored output when stdout is a terminal.
# color: true
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
// $XDG_CONFIG_HOME/rvframe is used when XDG_CONFIG_HOME is set, otherwise
// ~/.rvframe.
func GetConfigFilePath(file string) (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, configDir, file), nil
	}
	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	return filepath.Join(userHomeDir, configDirHidden, file), nil
}
