package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Lock      LockConfig      `mapstructure:"lock"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Finalizer FinalizerConfig `mapstructure:"finalizer"`
	Leader    LeaderConfig    `mapstructure:"leader"`
	Instance  InstanceConfig  `mapstructure:"instance"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	// RealtimePort is where the websocket bidding service listens.
	RealtimePort int    `mapstructure:"realtime_port"`
}

type RedisConfig struct {
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Channel  string        `mapstructure:"channel"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ApplySchema     bool          `mapstructure:"apply_schema"`
}

type StorageConfig struct {
	// Driver is "mysql" or "memory".
	Driver string `mapstructure:"driver"`
}

type LockConfig struct {
	// Backend is "redis" or "local".
	Backend       string        `mapstructure:"backend"`
	Timeout       time.Duration `mapstructure:"timeout"`
	TTL           time.Duration `mapstructure:"ttl"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type EngineConfig struct {
	SnipeWindow        time.Duration `mapstructure:"snipe_window"`
	Extension          time.Duration `mapstructure:"extension"`
	MaxCascadeRounds   int           `mapstructure:"max_cascade_rounds"`
	MaxSnapshotRetries int           `mapstructure:"max_snapshot_retries"`
}

type FinalizerConfig struct {
	Schedule string `mapstructure:"schedule"`
	Enabled  bool   `mapstructure:"enabled"`
}

type LeaderConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
	Key string        `mapstructure:"key"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.realtime_port", 8081)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "auction_events")
	v.SetDefault("redis.cache_ttl", 24*time.Hour)
	v.SetDefault("mysql.dsn", "auction_user:auction_pass@tcp(localhost:3306)/auction_db?parseTime=true")
	v.SetDefault("mysql.max_open_conns", 25)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("mysql.apply_schema", false)
	v.SetDefault("storage.driver", "mysql")
	v.SetDefault("lock.backend", "redis")
	v.SetDefault("lock.timeout", 5*time.Second)
	v.SetDefault("lock.ttl", 10*time.Second)
	v.SetDefault("lock.retry_interval", 50*time.Millisecond)
	v.SetDefault("engine.snipe_window", 60*time.Second)
	v.SetDefault("engine.extension", 120*time.Second)
	v.SetDefault("engine.max_cascade_rounds", 100)
	v.SetDefault("engine.max_snapshot_retries", 3)
	v.SetDefault("finalizer.schedule", "@every 1m")
	v.SetDefault("finalizer.enabled", true)
	v.SetDefault("leader.ttl", 30*time.Second)
	v.SetDefault("leader.key", "auction_finalizer_leader")
	v.SetDefault("instance.id", "")
	v.SetDefault("log.level", "info")
}

func bindEnv(v *viper.Viper) {
	v.AutomaticEnv()

	// Environment variable mappings
	bindings := map[string]string{
		"server.port":                 "SERVER_PORT",
		"server.host":                 "SERVER_HOST",
		"server.realtime_port":        "SERVER_REALTIME_PORT",
		"redis.address":               "REDIS_ADDRESS",
		"redis.password":              "REDIS_PASSWORD",
		"redis.db":                    "REDIS_DB",
		"redis.cache_ttl":             "REDIS_CACHE_TTL",
		"mysql.dsn":                   "MYSQL_DSN",
		"mysql.max_open_conns":        "MYSQL_MAX_OPEN_CONNS",
		"mysql.max_idle_conns":        "MYSQL_MAX_IDLE_CONNS",
		"mysql.conn_max_lifetime":     "MYSQL_CONN_MAX_LIFETIME",
		"mysql.apply_schema":          "MYSQL_APPLY_SCHEMA",
		"storage.driver":              "STORAGE_DRIVER",
		"lock.backend":                "LOCK_BACKEND",
		"lock.timeout":                "ENGINE_LOCK_TIMEOUT",
		"lock.ttl":                    "ENGINE_LOCK_TTL",
		"engine.snipe_window":         "ENGINE_SNIPE_WINDOW",
		"engine.extension":            "ENGINE_EXTENSION",
		"engine.max_cascade_rounds":   "ENGINE_MAX_CASCADE_ROUNDS",
		"engine.max_snapshot_retries": "ENGINE_MAX_SNAPSHOT_RETRIES",
		"finalizer.schedule":          "FINALIZER_SCHEDULE",
		"finalizer.enabled":           "FINALIZER_ENABLED",
		"leader.ttl":                  "LEADER_TTL",
		"instance.id":                 "INSTANCE_ID",
		"log.level":                   "LOG_LEVEL",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
}

func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Configuration file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/auction-engine/")

	bindEnv(v)

	// Read configuration file (optional - will use defaults/env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return unmarshal(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "mysql", "memory":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Lock.Backend {
	case "redis", "local":
	default:
		return fmt.Errorf("config: unknown lock backend %q", c.Lock.Backend)
	}
	if c.Lock.Timeout <= 0 || c.Lock.TTL <= 0 {
		return fmt.Errorf("config: lock timeout and ttl must be positive")
	}
	if c.Engine.MaxCascadeRounds <= 0 {
		return fmt.Errorf("config: engine.max_cascade_rounds must be positive")
	}
	if c.Engine.SnipeWindow < 0 || c.Engine.Extension <= 0 {
		return fmt.Errorf("config: invalid anti-snipe settings")
	}
	return nil
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, Redis: %s, Storage: %s, Lock: %s (%s), Instance: %s",
		c.Server.Host,
		c.Server.Port,
		c.Redis.Address,
		c.Storage.Driver,
		c.Lock.Backend,
		c.Lock.Timeout,
		c.Instance.ID,
	)
}
