package config

import "time"

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Fleet      FleetConfig      `mapstructure:"fleet"`
	UI         UIConfig         `mapstructure:"ui"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// StationGroup instantiates one template N times at startup.
type StationGroup struct {
	Template string `mapstructure:"template"`
	Count    int    `mapstructure:"count"`
}

type PoolConfig struct {
	Model             string        `mapstructure:"model"` // fixed | dynamic | set
	PoolSize          int           `mapstructure:"pool_size"`
	MaxWorkers        int           `mapstructure:"max_workers"`
	QueueThreshold    int           `mapstructure:"queue_threshold"`
	IdleTTL           time.Duration `mapstructure:"idle_ttl"`
	StationsPerWorker int           `mapstructure:"stations_per_worker"`
}

type FleetConfig struct {
	TemplatesDir string         `mapstructure:"templates_dir"`
	DataDir      string         `mapstructure:"data_dir"`
	Stations     []StationGroup `mapstructure:"stations"`
	Pool         PoolConfig     `mapstructure:"pool"`
	// AutoStart brings every configured station up on launch.
	AutoStart bool `mapstructure:"auto_start"`
}

type UIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`

	AuthEnabled bool `mapstructure:"auth_enabled"`
	// Users maps usernames to bcrypt password hashes.
	Users map[string]string `mapstructure:"users"`

	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
	MaxIPs        int     `mapstructure:"max_ips"`
	BodyLimit     int     `mapstructure:"body_limit"`
	GzipThreshold int     `mapstructure:"gzip_threshold"`

	MaxAddStations   int           `mapstructure:"max_add_stations"`
	BroadcastTimeout time.Duration `mapstructure:"broadcast_timeout"`
}

type RedisConfig struct {
	// URL empty keeps the shared authorization cache in process memory.
	URL string `mapstructure:"url"`
}

type NATSConfig struct {
	// URL empty keeps the broadcast channel in process memory.
	URL string `mapstructure:"url"`
}

type DatabaseConfig struct {
	// URL empty keeps the transaction journal in process memory.
	URL string `mapstructure:"url"`
}

type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
