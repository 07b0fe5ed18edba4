package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the full runtime configuration, read once at startup.
type Config struct {
	ModelPath   string
	ModelLabels []string
	TargetLabel string

	// Cameras maps camera name to its stream address. Fixed for the
	// process lifetime.
	Cameras map[string]string

	ConfThreshold float64
	NMSThreshold  float64

	Cooldown       time.Duration
	PollInterval   time.Duration
	CaptureTimeout time.Duration

	SnapshotDir string

	EmailFrom string
	EmailTo   string
	EmailPass string
	SMTPHost  string
	SMTPPort  int

	ListenAddr   string
	LogDirectory string
}

// Load reads configuration from the environment, after a best-effort load
// of a local .env file. Missing variables fall back to defaults.
func Load() (*Config, error) {
	// A missing .env file is fine; the process env is authoritative.
	_ = godotenv.Load()

	cfg := &Config{
		ModelPath:      getEnv("MODEL_PATH", filepath.Join("models", "cash.onnx")),
		ModelLabels:    splitList(getEnv("MODEL_LABELS", "cash")),
		TargetLabel:    getEnv("TARGET_LABEL", "cash"),
		Cameras:        camerasFromEnv(),
		ConfThreshold:  getEnvAsFloat("CONF_THRES", 0.25),
		NMSThreshold:   getEnvAsFloat("NMS_THRES", 0.45),
		Cooldown:       time.Duration(getEnvAsInt("COOLDOWN_SECONDS", 300)) * time.Second,
		PollInterval:   getEnvAsDuration("POLL_INTERVAL", 3*time.Second),
		CaptureTimeout: getEnvAsDuration("CAPTURE_TIMEOUT", 10*time.Second),
		SnapshotDir:    getEnv("SNAPSHOT_DIR", "."),
		EmailFrom:      getEnv("EMAIL_FROM", ""),
		EmailTo:        getEnv("EMAIL_TO", ""),
		EmailPass:      getEnv("EMAIL_PASS", ""),
		SMTPHost:       getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:       getEnvAsInt("SMTP_PORT", 587),
		ListenAddr:     getEnv("LISTEN_ADDR", ""),
		LogDirectory:   getEnv("LOG_DIR", filepath.Join(".", "logs")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the loaded configuration for values the poll loop cannot
// run with.
func (c *Config) Validate() error {
	if len(c.Cameras) == 0 {
		return fmt.Errorf("no cameras configured: set at least one CAMERA_<NAME> variable")
	}
	if c.ConfThreshold < 0 || c.ConfThreshold > 1 {
		return fmt.Errorf("CONF_THRES must be between 0 and 1, got %v", c.ConfThreshold)
	}
	if c.NMSThreshold < 0 || c.NMSThreshold > 1 {
		return fmt.Errorf("NMS_THRES must be between 0 and 1, got %v", c.NMSThreshold)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %v", c.PollInterval)
	}
	if c.CaptureTimeout <= 0 {
		return fmt.Errorf("CAPTURE_TIMEOUT must be positive, got %v", c.CaptureTimeout)
	}
	if c.TargetLabel == "" {
		return fmt.Errorf("TARGET_LABEL must not be empty")
	}
	return nil
}

// MailEnabled reports whether the email settings are complete enough to
// attempt delivery.
func (c *Config) MailEnabled() bool {
	return c.EmailFrom != "" && c.EmailTo != "" && c.EmailPass != ""
}

// CameraNames returns the configured camera names in a stable order.
func (c *Config) CameraNames() []string {
	names := make([]string, 0, len(c.Cameras))
	for name := range c.Cameras {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// camerasFromEnv collects every CAMERA_<NAME> variable; the lowercased
// suffix becomes the camera name.
func camerasFromEnv() map[string]string {
	cameras := make(map[string]string)
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || value == "" {
			continue
		}
		name, found := strings.CutPrefix(key, "CAMERA_")
		if !found || name == "" {
			continue
		}
		cameras[strings.ToLower(name)] = value
	}
	return cameras
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
