package civix

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable read by LoadConfigFromEnv,
// e.g. CIVIX_BACKEND_BASE_URL or CIVIX_IDENTITY_SIGN_OUT_TIMEOUT.
const EnvPrefix = "CIVIX_"

// LoadConfigFromEnv overlays CIVIX_* environment variables on DefaultConfig
// and validates the result. Unset variables keep their defaults.
func LoadConfigFromEnv() (Config, error) {
	return loadConfig(env.Options{Prefix: EnvPrefix})
}

func loadConfig(opts env.Options) (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
