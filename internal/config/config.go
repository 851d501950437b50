package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the demo server's tunables. The core packages
// themselves take no dependency on viper or on this type — only the
// cmd/server binary does.
type Config struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	UpdateInterval time.Duration `mapstructure:"update_interval"`
	RoleCacheTTL  time.Duration `mapstructure:"role_cache_ttl"`
	Secret        string        `mapstructure:"secret"`
}

// Load reads config/config.<CONFIG_ENV>.yaml (default "dev"), falling
// back to defaults when the file is absent.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("update_interval", "5s")
	v.SetDefault("role_cache_ttl", "5s")
	v.SetDefault("secret", "dev-secret-change-me")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
