package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置（分类器事件通道）
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Config 监控服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 持久化后端选择
	Store struct {
		Backend        string // "postgres" | "firebase" | "memory"
		FirebaseURL    string // Firebase RTDB 根地址
		FirebaseSecret string // legacy auth token（可为空）
	}

	// 监控与报警策略
	Monitor struct {
		WindowMinutes     int           // 默认统计窗口（分钟）
		HeartbeatInterval time.Duration // 心跳评估间隔
		AlertCooldown     time.Duration // 同 (用户, 类型, 级别) 的报警冷却时间
		SampleInterval    time.Duration // 基线事件合成间隔
		PruneInterval     time.Duration // 事件日志批量清理间隔
		Retention         time.Duration // 内存事件日志保留时长（支持的最大窗口）
		ModelsEnabled     []string      // 可用的分类器类型（缺失的类型走降级基线）
		CameraDeviceID    int           // 摄像头设备号
	}

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "eduguard")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "eduguard-monitor")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.Store.Backend = getEnv("STORE_BACKEND", "postgres")
	cfg.Store.FirebaseURL = getEnv("FIREBASE_DATABASE_URL", "")
	cfg.Store.FirebaseSecret = getEnv("FIREBASE_DATABASE_SECRET", "")

	cfg.Monitor.WindowMinutes = getEnvInt("MONITOR_WINDOW_MINUTES", 5)
	cfg.Monitor.HeartbeatInterval = getEnvDuration("MONITOR_HEARTBEAT_INTERVAL", 2*time.Minute)
	cfg.Monitor.AlertCooldown = getEnvDuration("MONITOR_ALERT_COOLDOWN", 5*time.Minute)
	cfg.Monitor.SampleInterval = getEnvDuration("MONITOR_SAMPLE_INTERVAL", 3*time.Second)
	cfg.Monitor.PruneInterval = getEnvDuration("MONITOR_PRUNE_INTERVAL", time.Minute)
	cfg.Monitor.Retention = getEnvDuration("MONITOR_RETENTION", time.Hour)
	cfg.Monitor.ModelsEnabled = getEnvList("MODELS_ENABLED", []string{"posture", "stress", "cvs", "hydration"})
	cfg.Monitor.CameraDeviceID = getEnvInt("CAMERA_DEVICE_ID", 0)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate 校验配置取值
func (c *Config) validate() error {
	switch c.Store.Backend {
	case "postgres", "firebase", "memory":
	default:
		return fmt.Errorf("invalid STORE_BACKEND: %s", c.Store.Backend)
	}
	if c.Store.Backend == "firebase" && c.Store.FirebaseURL == "" {
		return fmt.Errorf("FIREBASE_DATABASE_URL is required when STORE_BACKEND=firebase")
	}
	if c.Monitor.WindowMinutes <= 0 {
		return fmt.Errorf("MONITOR_WINDOW_MINUTES must be positive")
	}
	if c.Monitor.HeartbeatInterval <= 0 {
		return fmt.Errorf("MONITOR_HEARTBEAT_INTERVAL must be positive")
	}
	if c.Monitor.AlertCooldown <= 0 {
		return fmt.Errorf("MONITOR_ALERT_COOLDOWN must be positive")
	}
	// 保留时长必须覆盖最大统计窗口，否则 summarize 会缺数据
	if c.Monitor.Retention < time.Duration(c.Monitor.WindowMinutes)*time.Minute {
		return fmt.Errorf("MONITOR_RETENTION must cover the monitor window")
	}
	return nil
}

// ModelEnabled 检查指定监控类型的分类器是否可用
func (c *Config) ModelEnabled(monitorType string) bool {
	for _, m := range c.Monitor.ModelsEnabled {
		if m == monitorType {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
