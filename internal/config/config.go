package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/detection"
	"github.com/joho/godotenv"
)

const (
	SourceJSONL  = "jsonl"
	SourceImages = "images"
)

type Config struct {
	EARThreshold float64
	ConsecFrames int
	LeftEye      []int
	RightEye     []int

	FrameSource     string
	FrameSourcePath string
	FramePattern    string
	FrameFPS        float64
	MirrorFrames    bool
	LoopFrames      bool

	LandmarkServiceURL string

	AlarmCommand   string
	AlarmSound     string
	MQTTBroker     string
	MQTTAlarmTopic string
	MQTTClientID   string

	OverlayAddr      string
	OverlayTokenHash string
	CORSOrigins      string

	DBDriver   string
	DBPath     string
	DBName     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	LogLevel    string
	Environment string
}

func (c *Config) DSN() string {
	if c.DBDriver == "sqlite" {
		return c.DBPath
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// DSNForLog is DSN with the password masked.
func (c *Config) DSNForLog() string {
	if c.DBDriver == "sqlite" {
		return c.DBPath
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=*** dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBName, c.DBSSLMode)
}

func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

func (c *Config) Thresholds() detection.Thresholds {
	return detection.Thresholds{EARThreshold: c.EARThreshold, ConsecFrames: c.ConsecFrames}
}

// LoadConfig reads .env when present, then the process environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using system environment variables")
	}

	return &Config{
		EARThreshold: getEnvFloat("EYE_AR_THRESH", detection.DefaultEARThreshold),
		ConsecFrames: getEnvInt("EYE_AR_CONSEC_FRAMES", detection.DefaultConsecFrames),
		LeftEye:      getEnvInts("LEFT_EYE_INDICES", nil),
		RightEye:     getEnvInts("RIGHT_EYE_INDICES", nil),

		FrameSource:     getEnv("FRAME_SOURCE", SourceJSONL),
		FrameSourcePath: getEnv("FRAME_SOURCE_PATH", "data/session.jsonl"),
		FramePattern:    getEnv("FRAME_PATTERN", "*"),
		FrameFPS:        getEnvFloat("FRAME_FPS", 30),
		MirrorFrames:    getEnvBool("MIRROR_FRAMES", true),
		LoopFrames:      getEnvBool("LOOP_FRAMES", false),

		LandmarkServiceURL: getEnv("LANDMARK_SERVICE_URL", ""),

		AlarmCommand:   getEnv("ALARM_COMMAND", ""),
		AlarmSound:     getEnv("ALARM_SOUND", "alarm.wav"),
		MQTTBroker:     getEnv("MQTT_BROKER", ""),
		MQTTAlarmTopic: getEnv("MQTT_ALARM_TOPIC", "drowsiness/alarm"),
		MQTTClientID:   getEnv("MQTT_CLIENT_ID", "drowsiness-monitor"),

		OverlayAddr:      getEnv("OVERLAY_ADDR", ":8080"),
		OverlayTokenHash: getEnv("OVERLAY_TOKEN_HASH", ""),
		CORSOrigins:      getEnv("CORS_ORIGINS", "*"),

		DBDriver:   getEnv("DB_DRIVER", ""),
		DBPath:     getEnv("DB_PATH", "drowsiness.db"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "drowsiness"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		Environment: getEnv("ENVIRONMENT", "production"),
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Thresholds().Validate(); err != nil {
		errs = append(errs, err)
	}
	if (c.LeftEye == nil) != (c.RightEye == nil) {
		errs = append(errs, errors.New("LEFT_EYE_INDICES and RIGHT_EYE_INDICES must be set together"))
	}
	switch c.FrameSource {
	case SourceJSONL, SourceImages:
	default:
		errs = append(errs, fmt.Errorf("FRAME_SOURCE %q is not one of jsonl, images", c.FrameSource))
	}
	if c.FrameSource == SourceImages && c.LandmarkServiceURL == "" {
		errs = append(errs, errors.New("FRAME_SOURCE=images needs LANDMARK_SERVICE_URL"))
	}
	if c.FrameFPS < 0 {
		errs = append(errs, fmt.Errorf("FRAME_FPS %v is negative", c.FrameFPS))
	}
	switch c.DBDriver {
	case "", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not one of sqlite, postgres", c.DBDriver))
	}
	if c.DBDriver == "postgres" && c.DBPassword == "" {
		slog.Warn("DB_PASSWORD is not set")
	}
	return errors.Join(errs...)
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
		slog.Warn("ignoring invalid integer", "key", key, "value", v)
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		slog.Warn("ignoring invalid number", "key", key, "value", v)
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		slog.Warn("ignoring invalid boolean", "key", key, "value", v)
	}
	return defaultVal
}

// getEnvInts parses a comma separated list such as "362,382,381,380,374,373".
func getEnvInts(key string, defaultVal []int) []int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			slog.Warn("ignoring invalid index list", "key", key, "value", v)
			return defaultVal
		}
		out = append(out, n)
	}
	return out
}
