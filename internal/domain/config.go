package domain

import "time"

// Config is the complete application configuration.
type Config struct {
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Evaluation  EvaluationConfig `mapstructure:"evaluation"`
	Policy      PolicyConfig     `mapstructure:"policy"`
	Logging     LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"`  // requests/sec per client
	RateBurst    int           `mapstructure:"rate_burst"`
}

// DatabaseConfig holds audit database settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CacheConfig holds evaluation cache settings.
type CacheConfig struct {
	// Backend selects the cache implementation: "memory", "redis" or "none".
	Backend     string        `mapstructure:"backend"`
	RedisURL    string        `mapstructure:"redis_url"`
	TTL         time.Duration `mapstructure:"ttl"`
	MaxEntries  int           `mapstructure:"max_entries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// EvaluationConfig holds the clinical evaluation tunables.
type EvaluationConfig struct {
	// MinDoseHoldDays is the minimum time on the current dose before an
	// escalation to the next schedule step is allowed.
	MinDoseHoldDays int `mapstructure:"min_dose_hold_days"`
	// MaintenanceTolerancePercent allows weight-maintenance checks to pass
	// within a fluctuation band below the threshold. Default 0 (strict),
	// pending product sign-off on the tolerance band.
	MaintenanceTolerancePercent float64 `mapstructure:"maintenance_tolerance_percent"`
}

// PolicyConfig holds coverage policy store settings.
type PolicyConfig struct {
	// SQLitePath points at the externally authored policy database. Empty
	// means the built-in policy table is the only source.
	SQLitePath string `mapstructure:"sqlite_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
