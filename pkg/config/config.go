package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config global configuration
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	MySQL      MySQLConfig      `yaml:"mysql"`
	Redis      RedisConfig      `yaml:"redis"`
	Queue      QueueConfig      `yaml:"queue"`
	K8s        K8sConfig        `yaml:"k8s"`
	Logger     LoggerConfig     `yaml:"logger"`
}

// ControllerConfig control loop configuration
type ControllerConfig struct {
	Interval           int     `yaml:"interval"`             // evaluation interval (seconds)
	MinReplicas        int     `yaml:"min_replicas"`         // replica floor
	MaxReplicas        int     `yaml:"max_replicas"`         // replica ceiling
	MinWorkers         int     `yaml:"min_workers"`          // worker floor
	MaxWorkers         int     `yaml:"max_workers"`          // worker ceiling
	Step               int     `yaml:"step"`                 // replicas/workers added or removed per decision
	ScaleUpThreshold   float64 `yaml:"scale_up_threshold"`   // pressure above which we scale up (0..1)
	ScaleDownThreshold float64 `yaml:"scale_down_threshold"` // pressure below which we scale down (0..1)
	HysteresisCycles   int     `yaml:"hysteresis_cycles"`    // consecutive cycles before a direction reversal is honored
	QueueSaturation    int     `yaml:"queue_saturation"`     // backlog depth treated as full queue pressure
	HistoryWindow      int     `yaml:"history_window"`       // workload history window (minutes)
	ProbeTimeout       int     `yaml:"probe_timeout"`        // host metric sampling timeout (seconds)
	QueryTimeout       int     `yaml:"query_timeout"`        // history/persistence query timeout (seconds)
	ActuateTimeout     int     `yaml:"actuate_timeout"`      // orchestration API call timeout (seconds)
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// DSN builds the gorm MySQL DSN.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisConfig Redis configuration (optional integration)
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether a redis backend is configured at all.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// QueueConfig queue backlog configuration (optional integration)
type QueueConfig struct {
	Provider string `yaml:"provider"` // none, redis, asynq
	Key      string `yaml:"key"`      // redis list key (provider=redis)
	Name     string `yaml:"name"`     // asynq queue name (provider=asynq)
}

// K8sConfig orchestration configuration (optional integration)
type K8sConfig struct {
	Enabled    bool   `yaml:"enabled"`    // whether replica actuation is enabled
	Namespace  string `yaml:"namespace"`  // deployment namespace
	Deployment string `yaml:"deployment"` // deployment name to scale
	Kubeconfig string `yaml:"kubeconfig"` // kubeconfig path (empty: in-cluster, then default path)
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// Load reads the config file (CONFIG_PATH, default config/config.yaml),
// applies environment overrides, fills defaults and validates required bounds.
// A missing config file is not an error: the controller can run from
// environment variables and defaults alone.
func Load() (*Config, error) {
	cfg := &Config{}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	applyEnvOverrides(cfg)
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps recognized environment variables onto the config.
// Environment always wins over the file.
func applyEnvOverrides(cfg *Config) {
	setInt(&cfg.Controller.Interval, "CONTROLLER_INTERVAL")
	setInt(&cfg.Controller.MinReplicas, "CONTROLLER_MIN_REPLICAS")
	setInt(&cfg.Controller.MaxReplicas, "CONTROLLER_MAX_REPLICAS")
	setInt(&cfg.Controller.MinWorkers, "CONTROLLER_MIN_WORKERS")
	setInt(&cfg.Controller.MaxWorkers, "CONTROLLER_MAX_WORKERS")
	setInt(&cfg.Controller.Step, "CONTROLLER_STEP")
	setFloat(&cfg.Controller.ScaleUpThreshold, "CONTROLLER_SCALE_UP_THRESHOLD")
	setFloat(&cfg.Controller.ScaleDownThreshold, "CONTROLLER_SCALE_DOWN_THRESHOLD")
	setInt(&cfg.Controller.HysteresisCycles, "CONTROLLER_HYSTERESIS_CYCLES")
	setInt(&cfg.Controller.QueueSaturation, "CONTROLLER_QUEUE_SATURATION")
	setInt(&cfg.Controller.HistoryWindow, "CONTROLLER_HISTORY_WINDOW")

	setString(&cfg.MySQL.Host, "MYSQL_HOST")
	setInt(&cfg.MySQL.Port, "MYSQL_PORT")
	setString(&cfg.MySQL.User, "MYSQL_USER")
	setString(&cfg.MySQL.Password, "MYSQL_PASSWORD")
	setString(&cfg.MySQL.Database, "MYSQL_DATABASE")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")

	setString(&cfg.Queue.Provider, "QUEUE_PROVIDER")
	setString(&cfg.Queue.Key, "QUEUE_KEY")
	setString(&cfg.Queue.Name, "QUEUE_NAME")

	setBool(&cfg.K8s.Enabled, "KUBE_ENABLED")
	setString(&cfg.K8s.Namespace, "KUBE_NAMESPACE")
	setString(&cfg.K8s.Deployment, "KUBE_DEPLOYMENT_NAME")
	setString(&cfg.K8s.Kubeconfig, "KUBECONFIG")

	setString(&cfg.Logger.Level, "LOG_LEVEL")
}

// ApplyDefaults fills every optional knob with its safe default. Invalid
// values (negative, out of range) fall back to defaults rather than failing;
// only the required bounds are validated afterwards.
func ApplyDefaults(cfg *Config) {
	c := &cfg.Controller
	if c.Interval <= 0 {
		c.Interval = 60
	}
	if c.MinReplicas <= 0 {
		c.MinReplicas = 1
	}
	if c.MaxReplicas <= 0 {
		c.MaxReplicas = 10
	}
	if c.MinWorkers <= 0 {
		c.MinWorkers = 1
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = c.MaxReplicas
	}
	if c.Step <= 0 {
		c.Step = 1
	}
	if c.ScaleUpThreshold <= 0 || c.ScaleUpThreshold > 1 {
		c.ScaleUpThreshold = 0.8
	}
	if c.ScaleDownThreshold <= 0 || c.ScaleDownThreshold > 1 {
		c.ScaleDownThreshold = 0.3
	}
	if c.HysteresisCycles <= 0 {
		c.HysteresisCycles = 3
	}
	if c.QueueSaturation <= 0 {
		c.QueueSaturation = 50
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 60
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 1
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 5
	}
	if c.ActuateTimeout <= 0 {
		c.ActuateTimeout = 10
	}

	if cfg.MySQL.Port == 0 {
		cfg.MySQL.Port = 3306
	}
	if cfg.Queue.Provider == "" {
		cfg.Queue.Provider = "none"
	}
	if cfg.Queue.Key == "" {
		cfg.Queue.Key = "task_queue"
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "default"
	}
	if cfg.K8s.Namespace == "" {
		cfg.K8s.Namespace = "default"
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Output == "" {
		cfg.Logger.Output = "console"
	}
}

// Validate fails fast on bounds the loop cannot run with. Everything else
// has already been defaulted.
func Validate(cfg *Config) error {
	c := cfg.Controller
	if c.MaxReplicas < c.MinReplicas {
		return fmt.Errorf("invalid replica bounds: max_replicas (%d) < min_replicas (%d)", c.MaxReplicas, c.MinReplicas)
	}
	if c.MaxWorkers < c.MinWorkers {
		return fmt.Errorf("invalid worker bounds: max_workers (%d) < min_workers (%d)", c.MaxWorkers, c.MinWorkers)
	}
	if c.ScaleUpThreshold <= c.ScaleDownThreshold {
		return fmt.Errorf("invalid thresholds: scale_up_threshold (%.2f) must be greater than scale_down_threshold (%.2f)",
			c.ScaleUpThreshold, c.ScaleDownThreshold)
	}
	if cfg.K8s.Enabled && cfg.K8s.Deployment == "" {
		return fmt.Errorf("k8s actuation enabled but deployment name is empty")
	}
	switch cfg.Queue.Provider {
	case "none", "redis", "asynq":
	default:
		return fmt.Errorf("unknown queue provider: %s", cfg.Queue.Provider)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
