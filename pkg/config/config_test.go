package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, 60, cfg.Controller.Interval)
	assert.Equal(t, 1, cfg.Controller.MinReplicas)
	assert.Equal(t, 10, cfg.Controller.MaxReplicas)
	assert.Equal(t, 1, cfg.Controller.MinWorkers)
	assert.Equal(t, 10, cfg.Controller.MaxWorkers, "worker ceiling defaults to the replica ceiling")
	assert.Equal(t, 1, cfg.Controller.Step)
	assert.Equal(t, 0.8, cfg.Controller.ScaleUpThreshold)
	assert.Equal(t, 0.3, cfg.Controller.ScaleDownThreshold)
	assert.Equal(t, 3, cfg.Controller.HysteresisCycles)
	assert.Equal(t, 50, cfg.Controller.QueueSaturation)
	assert.Equal(t, 60, cfg.Controller.HistoryWindow)
	assert.Equal(t, 3306, cfg.MySQL.Port)
	assert.Equal(t, "none", cfg.Queue.Provider)
	assert.Equal(t, "task_queue", cfg.Queue.Key)
	assert.Equal(t, "default", cfg.Queue.Name)
	assert.Equal(t, "default", cfg.K8s.Namespace)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Output)
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Controller.Interval = 30
	cfg.Controller.MaxReplicas = 5
	cfg.Controller.ScaleUpThreshold = 0.9
	ApplyDefaults(cfg)

	assert.Equal(t, 30, cfg.Controller.Interval)
	assert.Equal(t, 5, cfg.Controller.MaxReplicas)
	assert.Equal(t, 5, cfg.Controller.MaxWorkers)
	assert.Equal(t, 0.9, cfg.Controller.ScaleUpThreshold)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("CONTROLLER_INTERVAL", "15")
	t.Setenv("CONTROLLER_MAX_REPLICAS", "7")
	t.Setenv("CONTROLLER_SCALE_UP_THRESHOLD", "0.85")
	t.Setenv("MYSQL_HOST", "db.internal")
	t.Setenv("MYSQL_PORT", "3307")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("QUEUE_PROVIDER", "redis")
	t.Setenv("QUEUE_KEY", "jobs")
	t.Setenv("KUBE_ENABLED", "true")
	t.Setenv("KUBE_NAMESPACE", "workers")
	t.Setenv("KUBE_DEPLOYMENT_NAME", "worker-pool")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Controller.Interval)
	assert.Equal(t, 7, cfg.Controller.MaxReplicas)
	assert.Equal(t, 0.85, cfg.Controller.ScaleUpThreshold)
	assert.Equal(t, "db.internal", cfg.MySQL.Host)
	assert.Equal(t, 3307, cfg.MySQL.Port)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "redis", cfg.Queue.Provider)
	assert.Equal(t, "jobs", cfg.Queue.Key)
	assert.True(t, cfg.K8s.Enabled)
	assert.Equal(t, "workers", cfg.K8s.Namespace)
	assert.Equal(t, "worker-pool", cfg.K8s.Deployment)
}

func TestLoad_FileWithEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
controller:
  interval: 20
  max_replicas: 4
mysql:
  host: file-db
queue:
  provider: asynq
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("MYSQL_HOST", "env-db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Controller.Interval)
	assert.Equal(t, 4, cfg.Controller.MaxReplicas)
	assert.Equal(t, "env-db", cfg.MySQL.Host, "environment wins over the file")
	assert.Equal(t, "asynq", cfg.Queue.Provider)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Controller.Interval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(cfg *Config) {},
		},
		{
			name: "max replicas below min",
			mutate: func(cfg *Config) {
				cfg.Controller.MinReplicas = 5
				cfg.Controller.MaxReplicas = 2
			},
			wantErr: "invalid replica bounds",
		},
		{
			name: "max workers below min",
			mutate: func(cfg *Config) {
				cfg.Controller.MinWorkers = 5
				cfg.Controller.MaxWorkers = 2
			},
			wantErr: "invalid worker bounds",
		},
		{
			name: "scale up threshold not above scale down",
			mutate: func(cfg *Config) {
				cfg.Controller.ScaleUpThreshold = 0.3
				cfg.Controller.ScaleDownThreshold = 0.3
			},
			wantErr: "invalid thresholds",
		},
		{
			name: "k8s enabled without deployment name",
			mutate: func(cfg *Config) {
				cfg.K8s.Enabled = true
				cfg.K8s.Deployment = ""
			},
			wantErr: "deployment name is empty",
		},
		{
			name: "unknown queue provider",
			mutate: func(cfg *Config) {
				cfg.Queue.Provider = "kafka"
			},
			wantErr: "unknown queue provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			ApplyDefaults(cfg)
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestMySQLConfigDSN(t *testing.T) {
	cfg := MySQLConfig{
		Host:     "localhost",
		Port:     3306,
		User:     "controller",
		Password: "secret",
		Database: "syscontrol",
	}
	assert.Equal(t,
		"controller:secret@tcp(localhost:3306)/syscontrol?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.DSN())
}
