package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads the configuration file plus APP_-prefixed environment
// overrides. path overrides the default search locations.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow common env vars without APP_ prefix for Docker/VM deploys
	v.BindEnv("ui.port", "UI_PORT", "APP_UI_PORT")
	v.BindEnv("database.url", "DATABASE_URL", "APP_DATABASE_URL")
	v.BindEnv("redis.url", "REDIS_URL", "APP_REDIS_URL")
	v.BindEnv("nats.url", "NATS_URL", "APP_NATS_URL")
	v.BindEnv("app.environment", "APP_ENVIRONMENT")
	v.BindEnv("logging.level", "LOG_LEVEL")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fleetsim")
	v.SetDefault("app.environment", "development")

	v.SetDefault("fleet.templates_dir", "./templates")
	v.SetDefault("fleet.data_dir", "./data")
	v.SetDefault("fleet.auto_start", true)
	v.SetDefault("fleet.pool.model", "fixed")
	v.SetDefault("fleet.pool.pool_size", 4)
	v.SetDefault("fleet.pool.max_workers", 16)
	v.SetDefault("fleet.pool.queue_threshold", 8)
	v.SetDefault("fleet.pool.idle_ttl", "1m")
	v.SetDefault("fleet.pool.stations_per_worker", 50)

	v.SetDefault("ui.enabled", true)
	v.SetDefault("ui.host", "")
	v.SetDefault("ui.port", 8080)
	v.SetDefault("ui.rate_per_second", 20)
	v.SetDefault("ui.burst", 40)
	v.SetDefault("ui.max_ips", 1024)
	v.SetDefault("ui.body_limit", 1<<20)
	v.SetDefault("ui.gzip_threshold", 1024)
	v.SetDefault("ui.max_add_stations", 100)
	v.SetDefault("ui.broadcast_timeout", "60s")

	v.SetDefault("prometheus.enabled", false)
	v.SetDefault("prometheus.path", "/metrics")
	v.SetDefault("prometheus.port", 9090)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
