package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"unigate/native/gateway"
)

// Config is the on-disk gateway parameter file. The [gateway] table maps
// directly onto the core parameter set applied at startup.
type Config struct {
	Gateway gateway.Config `toml:"gateway"`
}

// Load reads the configuration from the given path. A missing file is
// materialised with defaults so operators have a template to edit.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0].String())
	}
	cfg.Gateway = cfg.Gateway.Normalise()
	if _, err := cfg.Gateway.Parameters(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		Gateway: gateway.Config{
			MinTxUSD:           "0",
			MaxTxUSD:           "1000e18",
			BlockUSDCap:        "0",
			EpochSeconds:       21600,
			MaxQuoteAgeSeconds: 300,
		},
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
