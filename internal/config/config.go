package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит все настройки relay-сервера
type Config struct {
	// HTTP/WebSocket server settings
	HTTPPort string

	// MySQL settings (схема МИС)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Serial settings
	SerialPorts    []string
	SerialBaud     int
	ConnectTimeout time.Duration

	// Aggregation settings
	FlushInterval time.Duration

	// Redis settings (опциональный кэш сессий; пустой RedisAddr отключает)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration

	// Migrations
	RunMigrations bool
}

// Load загружает конфигурацию из .env и переменных окружения с дефолтными значениями
func Load() *Config {
	godotenv.Load() // ignore error — will use env vars if no .env

	return &Config{
		HTTPPort: getEnvString("IOT_PORT", "8080"),

		DBHost:     getEnvString("DB_HOST", "localhost"),
		DBPort:     getEnvString("DB_PORT", "3306"),
		DBUser:     getEnvString("DB_USER", "root"),
		DBPassword: getEnvString("DB_PASSWORD", ""),
		DBName:     getEnvString("DB_NAME", "hospital"),

		SerialPorts:    splitList(getEnvString("SERIAL_PORTS", "/dev/ttyUSB0,/dev/ttyACM0,COM3")),
		SerialBaud:     getEnvInt("SERIAL_BAUD", 9600),
		ConnectTimeout: time.Duration(getEnvInt64("SERIAL_CONNECT_TIMEOUT_MS", 1000)) * time.Millisecond,

		FlushInterval: time.Duration(getEnvInt64("FLUSH_INTERVAL_MS", 5000)) * time.Millisecond,

		RedisAddr:     getEnvString("REDIS_ADDR", ""),
		RedisPassword: getEnvString("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SessionTTL:    time.Duration(getEnvInt("SESSION_TTL_SECONDS", 86400)) * time.Second,

		RunMigrations: getEnvBool("RUN_MIGRATIONS", false),
	}
}

// MySQLDSN собирает DSN для go-sql-driver/mysql
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
