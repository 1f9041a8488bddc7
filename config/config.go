package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Mail credentials have no defaults inside code and must be provided via .env or the environment.
type AppConfig struct {
	AppPort        string
	AllowedOrigins []string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Site content and storage
	StaticDir   string
	StorageRoot string
	MaxUploadMB int
	SiteName    string
	// Contact form
	ContactRateLimitPerMinute int
	ContactRecipient          string
	// SMTP relay used by the contact form
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPTLS      bool
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool

	smtpTLSSet bool
}

// DefaultPath is where Load looks for the optional JSON config file.
var DefaultPath = filepath.Join("config", "config.json")

// Load builds the configuration once during boot.
//
// Precedence: .env (into the process environment) -> config/config.json -> defaults -> environment overrides.
func Load() (AppConfig, error) {
	// A missing .env is normal in production.
	_ = godotenv.Load()
	return LoadFile(DefaultPath)
}

// LoadFile is Load without the .env step, reading JSON from path.
func LoadFile(path string) (AppConfig, error) {
	var cfg AppConfig
	if err := loadJSONConfig(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports settings the server cannot start with.
func (c AppConfig) Validate() error {
	port, err := strconv.Atoi(c.AppPort)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.AppPort)
	}
	if c.MaxUploadMB <= 0 {
		return errors.New("max upload size must be positive")
	}
	if c.SMTPPort <= 0 {
		return fmt.Errorf("invalid smtp port %d", c.SMTPPort)
	}
	return nil
}

// MailConfigured reports whether contact mail can be sent at all.
func (c AppConfig) MailConfigured() bool {
	return c.SMTPHost != "" && c.SMTPUsername != "" && c.SMTPPassword != ""
}

// MaxUploadBytes is the per-file upload limit.
func (c AppConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads grouped sections into out if the file is present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if s, ok := m[key].(string); ok {
			return s
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if f, ok := m[key].(float64); ok {
			return int(f)
		}
		return 0
	}
	getBool := func(m map[string]any, key string) (bool, bool) {
		b, ok := m[key].(bool)
		return b, ok
	}
	getStringSlice := func(m map[string]any, key string) []string {
		arr, ok := m[key].([]any)
		if !ok {
			return nil
		}
		res := make([]string, 0, len(arr))
		for _, it := range arr {
			if s, ok := it.(string); ok {
				res = append(res, s)
			}
		}
		return res
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.SiteName = getString(app, "SiteName")
		out.StaticDir = getString(app, "StaticDir")
		out.GinMode = getString(app, "GinMode")
		out.GinPath = getString(app, "GinPath")
		out.ContactRateLimitPerMinute = getInt(app, "ContactRateLimitPerMinute")
		if list := getStringSlice(app, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}
	}

	if st, ok := raw["storage"].(map[string]any); ok {
		out.StorageRoot = getString(st, "Root")
		out.MaxUploadMB = getInt(st, "MaxUploadMB")
	}

	if sm, ok := raw["smtp"].(map[string]any); ok {
		out.SMTPHost = getString(sm, "Host")
		out.SMTPPort = getInt(sm, "Port")
		out.SMTPUsername = getString(sm, "Username")
		out.SMTPPassword = getString(sm, "Password")
		out.SMTPFrom = getString(sm, "From")
		out.ContactRecipient = getString(sm, "To")
		if b, ok := getBool(sm, "TLS"); ok {
			out.SMTPTLS = b
			out.smtpTLSSet = true
		}
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress, _ = getBool(lg, "Compress")
	}
	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "3000"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/gin.log"
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.StaticDir == "" {
		c.StaticDir = "public"
	}
	if c.StorageRoot == "" {
		c.StorageRoot = "."
	}
	if c.MaxUploadMB == 0 {
		c.MaxUploadMB = 10
	}
	if c.SiteName == "" {
		c.SiteName = "Portfolio"
	}
	if c.SMTPHost == "" {
		c.SMTPHost = "smtp.gmail.com"
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if !c.smtpTLSSet {
		c.SMTPTLS = true
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogPath == "" {
		c.LogPath = "logs/app.log"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	// PORT wins over APP_PORT, matching common hosting platforms.
	if v := getEnv("PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v := getEnv("STATIC_DIR", ""); v != "" {
		c.StaticDir = v
	}
	if v := getEnv("STORAGE_ROOT", ""); v != "" {
		c.StorageRoot = v
	}
	if v := getEnv("MAX_UPLOAD_MB", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxUploadMB = n
		}
	}
	if v := getEnv("SITE_NAME", ""); v != "" {
		c.SiteName = v
	}
	if v := getEnv("CONTACT_RATE_LIMIT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ContactRateLimitPerMinute = n
		}
	}
	if v := getEnv("SMTP_HOST", ""); v != "" {
		c.SMTPHost = v
	}
	if v := getEnv("SMTP_PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SMTPPort = n
		}
	}
	if v := getEnv("SMTP_TLS", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SMTPTLS = b
		}
	}
	if v := getEnv("EMAIL_USER", ""); v != "" {
		c.SMTPUsername = v
	}
	if v := getEnv("EMAIL_PASS", ""); v != "" {
		c.SMTPPassword = v
	}
	if v := getEnv("EMAIL_FROM", ""); v != "" {
		c.SMTPFrom = v
	}
	if v := getEnv("EMAIL_TO", ""); v != "" {
		c.ContactRecipient = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LogMaxSizeMB = n
		}
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LogMaxBackups = n
		}
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LogMaxAgeDays = n
		}
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.LogCompress = b
		}
	}

	// Sender and recipient fall back to the relay account.
	if c.SMTPFrom == "" {
		c.SMTPFrom = c.SMTPUsername
	}
	if c.ContactRecipient == "" {
		c.ContactRecipient = c.SMTPUsername
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
