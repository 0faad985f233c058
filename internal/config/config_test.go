package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "eduguard", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "eduguard-monitor", cfg.MQTT.ClientID)

	assert.Equal(t, "postgres", cfg.Store.Backend)

	assert.Equal(t, 5, cfg.Monitor.WindowMinutes)
	assert.Equal(t, 2*time.Minute, cfg.Monitor.HeartbeatInterval)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.AlertCooldown)
	assert.Equal(t, 3*time.Second, cfg.Monitor.SampleInterval)
	assert.Equal(t, time.Hour, cfg.Monitor.Retention)
	assert.Equal(t, []string{"posture", "stress", "cvs", "hydration"}, cfg.Monitor.ModelsEnabled)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("REDIS_ADDR", "test-redis:6380")
	os.Setenv("STORE_BACKEND", "memory")
	os.Setenv("MONITOR_HEARTBEAT_INTERVAL", "30s")
	os.Setenv("MONITOR_ALERT_COOLDOWN", "10m")
	os.Setenv("MODELS_ENABLED", "posture, cvs")
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 30*time.Second, cfg.Monitor.HeartbeatInterval)
	assert.Equal(t, 10*time.Minute, cfg.Monitor.AlertCooldown)
	assert.Equal(t, []string{"posture", "cvs"}, cfg.Monitor.ModelsEnabled)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 清理环境变量
	os.Clearenv()
}

func TestLoad_InvalidStoreBackend(t *testing.T) {
	os.Clearenv()
	os.Setenv("STORE_BACKEND", "dynamodb")

	cfg, err := Load()
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid STORE_BACKEND")

	os.Clearenv()
}

func TestLoad_FirebaseRequiresURL(t *testing.T) {
	os.Clearenv()
	os.Setenv("STORE_BACKEND", "firebase")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "FIREBASE_DATABASE_URL")

	os.Clearenv()
}

func TestLoad_RetentionMustCoverWindow(t *testing.T) {
	os.Clearenv()
	os.Setenv("MONITOR_WINDOW_MINUTES", "30")
	os.Setenv("MONITOR_RETENTION", "5m")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "MONITOR_RETENTION")

	os.Clearenv()
}

func TestModelEnabled(t *testing.T) {
	os.Clearenv()
	os.Setenv("MODELS_ENABLED", "posture,stress")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.ModelEnabled("posture"))
	assert.True(t, cfg.ModelEnabled("stress"))
	assert.False(t, cfg.ModelEnabled("cvs"))
	assert.False(t, cfg.ModelEnabled("hydration"))

	os.Clearenv()
}

func TestGetDSN(t *testing.T) {
	c := DatabaseConfig{
		Host:     "db-host",
		Port:     5433,
		User:     "u",
		Password: "p",
		Database: "d",
		SSLMode:  "disable",
	}
	assert.Equal(t, "host=db-host port=5433 user=u password=p dbname=d sslmode=disable", c.GetDSN())
}
