package swiftmeta

import (
	"encoding/binary"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/blacktop/go-swiftmeta/pkg/memory"
)

const (
	debugEnvVar       = "GO_SWIFTMETA_DEBUG"
	concurrencyEnvVar = "GO_SWIFTMETA_CONCURRENCY"
)

// Config describes the target platform and how an Inspector behaves.
type Config struct {
	PointerSize int    `toml:"pointer_size"`
	ByteOrder   string `toml:"byte_order"` // little or big
	// Concurrency bounds InspectAll. Zero means GOMAXPROCS.
	Concurrency int  `toml:"concurrency"`
	Debug       bool `toml:"debug"`
	// SkipInstantiationCheck trusts generic metadata without looking at its
	// instantiation cache.
	SkipInstantiationCheck bool `toml:"skip_instantiation_check"`
	// SkipSizeCheck disables checking field offsets against the instance
	// size from the value witness table.
	SkipSizeCheck bool `toml:"skip_size_check"`
}

// DefaultConfig is a 64-bit little endian target.
func DefaultConfig() Config {
	return Config{
		PointerSize: 8,
		ByteOrder:   "little",
	}
}

// ParseConfig decodes a TOML document on top of DefaultConfig. Unknown keys
// are an error.
func ParseConfig(data []byte) (Config, error) {
	conf := DefaultConfig()
	meta, err := toml.Decode(string(data), &conf)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	if err := conf.Validate(); err != nil {
		return Config{}, err
	}
	return conf, nil
}

// ApplyEnv overrides fields from GO_SWIFTMETA_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(debugEnvVar); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", debugEnvVar, v, err)
		}
		c.Debug = debug
	}
	if v := os.Getenv(concurrencyEnvVar); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid %s=%q", concurrencyEnvVar, v)
		}
		c.Concurrency = n
	}
	return nil
}

func (c Config) Validate() error {
	if c.PointerSize != 4 && c.PointerSize != 8 {
		return fmt.Errorf("pointer_size must be 4 or 8, got %d", c.PointerSize)
	}
	if _, err := c.Order(); err != nil {
		return err
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	return nil
}

// Order returns the configured byte order.
func (c Config) Order() (binary.ByteOrder, error) {
	switch strings.ToLower(c.ByteOrder) {
	case "", "little", "le":
		return binary.LittleEndian, nil
	case "big", "be":
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("unknown byte_order %q", c.ByteOrder)
}

// NewSpace builds an address space for the configured platform.
func (c Config) NewSpace(regions ...memory.Region) (*memory.Space, error) {
	order, err := c.Order()
	if err != nil {
		return nil, err
	}
	return memory.New(c.PointerSize, order, regions...)
}

func (c Config) concurrency() int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}
	return runtime.GOMAXPROCS(0)
}
