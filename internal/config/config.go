package config

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	MLLPListenPort     int
	OutboundHost       string
	OutboundPort       int
	OutboundMaxConns   int
	WebPort            int
	DataDir            string
	LogLevel           string
	SendingApplication string
	SendingFacility    string
	QCWindowSize       int
	QCMaxRetries       int
	TenantID           string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		MLLPListenPort:     getEnvAsInt("MLLP_LISTEN_PORT", 7001),
		OutboundHost:       getEnv("OUTBOUND_HL7_HOST", "localhost"),
		OutboundPort:       getEnvAsInt("OUTBOUND_HL7_PORT", 2575),
		OutboundMaxConns:   getEnvAsInt("OUTBOUND_MAX_CONNS", 5),
		WebPort:            getEnvAsInt("WEB_PORT", 5678),
		DataDir:            getEnv("DATA_DIR", "/data"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		SendingApplication: getEnv("SENDING_APPLICATION", "LAB"),
		SendingFacility:    getEnv("SENDING_FACILITY", "LAB"),
		QCWindowSize:       getEnvAsInt("QC_WINDOW_SIZE", 20),
		QCMaxRetries:       getEnvAsInt("QC_MAX_RETRIES", 3),
		TenantID:           getEnv("TENANT_ID", "default"),
	}

	setupLogger(cfg.LogLevel)

	slog.Info("Yapılandırma yüklendi",
		"mllpPort", cfg.MLLPListenPort,
		"outboundEndpoint", cfg.OutboundEndpoint(),
		"webPort", cfg.WebPort,
		"tenant", cfg.TenantID,
	)

	return cfg, nil
}

// OutboundEndpoint is the host:port outbound messages are forwarded to.
func (c *Config) OutboundEndpoint() string {
	return c.OutboundHost + ":" + strconv.Itoa(c.OutboundPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogger(level string) {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	slog.SetDefault(logger)
}
