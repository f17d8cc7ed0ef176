// Package config loads the verifier's optional TOML configuration file.
// Command-line flags take precedence over file values; the file exists so
// that per-project analysis settings can live next to the objects they
// apply to.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config mirrors the keys of the configuration file.
type Config struct {
	Domain           string  `toml:"domain"`
	CheckTermination bool    `toml:"check_termination"`
	WideningDelay    int     `toml:"widening_delay"`
	NarrowingPasses  int     `toml:"narrowing_passes"`
	Thresholds       []int64 `toml:"thresholds"`
	PrintInvariants  bool    `toml:"print_invariants"`
}

// Default is the configuration used when no file is present.
func Default() Config {
	return Config{
		Domain:          "interval",
		WideningDelay:   1,
		NarrowingPasses: 2,
		Thresholds:      []int64{0, 1, 16, 32, 64, 256, 1024, 4096, 65536},
	}
}

// Load reads the configuration at path, layered over the defaults. A
// missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	if undec := meta.Undecoded(); len(undec) > 0 {
		return cfg, fmt.Errorf("config: %s: unknown key %s", path, undec[0])
	}
	return cfg, nil
}
