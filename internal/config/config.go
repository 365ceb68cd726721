// Package config holds the node's TOML configuration. Everything here is
// operator-facing plumbing; game rules live in the engine and are not
// configurable.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

type Config struct {
	// Home is the app home directory; state is stored under <home>/app.
	Home string `toml:"home"`

	// ListenAddr is the ABCI listen address.
	ListenAddr string `toml:"listen_addr"`

	// Transport is the ABCI transport: socket or grpc.
	Transport string `toml:"transport"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

func Default() Config {
	return Config{
		Home:       ".wager",
		ListenAddr: "tcp://127.0.0.1:26658",
		Transport:  "socket",
		LogLevel:   "info",
	}
}

// Load reads a TOML config file over the defaults. A missing file is not an
// error: the defaults are returned so a bare node start works.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "decode config %s", path)
	}
	if undec := meta.Undecoded(); len(undec) > 0 {
		return Config{}, errors.Errorf("unknown config key %q in %s", undec[0].String(), path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Transport {
	case "socket", "grpc":
	default:
		return errors.Errorf("invalid transport %q (want socket or grpc)", c.Transport)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.Home == "" {
		return errors.New("home must not be empty")
	}
	if c.ListenAddr == "" {
		return errors.New("listen_addr must not be empty")
	}
	return nil
}
