package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ErrMissingJWTSecret is returned in production when no signing secret is configured.
var ErrMissingJWTSecret = errors.New("jwt_secret is required in production")

// Config captures runtime configuration sourced from an optional YAML file and KERNEL_* env vars.
type Config struct {
	Environment  string            `mapstructure:"env"`
	HTTPPort     string            `mapstructure:"http_port"`
	DatabasePath string            `mapstructure:"db_path"`
	LogDir       string            `mapstructure:"log_dir"`
	Debug        bool              `mapstructure:"debug"`
	JWTSecret    string            `mapstructure:"jwt_secret"`
	Admin        AdminConfig       `mapstructure:"admin"`
	Fingerprint  FingerprintConfig `mapstructure:"fingerprint"`
	Traffic      TrafficConfig     `mapstructure:"traffic"`
	Security     SecurityConfig    `mapstructure:"security"`
	GeoIP        GeoIPConfig       `mapstructure:"geoip"`
}

// AdminConfig seeds the first kernel operator when none exists.
type AdminConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// FingerprintConfig names the client cookie that carries the fingerprint seed.
type FingerprintConfig struct {
	CookieName string `mapstructure:"cookie_name"`
}

// TrafficConfig sizes the in-memory traffic ring and decides which paths are worth recording.
type TrafficConfig struct {
	Capacity int      `mapstructure:"capacity"`
	Prefixes []string `mapstructure:"prefixes"`
	TopN     int      `mapstructure:"top_n"`
}

// SecurityConfig drives the request guard and the kernel aggregation defaults.
type SecurityConfig struct {
	TrapPaths        []string `mapstructure:"trap_paths"`
	SuspiciousPaths  []string `mapstructure:"suspicious_paths"`
	BlockedCountries []string `mapstructure:"blocked_countries"`
	RateLimitRPS     float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst   int      `mapstructure:"rate_limit_burst"`
	// AutoMigrate creates the security tables at boot. When false the kernel runs
	// against whatever schema exists and reports missing tables as migration_needed.
	AutoMigrate   bool `mapstructure:"auto_migrate"`
	SuspicionDays int  `mapstructure:"suspicion_days"`
}

// GeoIPConfig points at a MaxMind City database. An empty path disables geo enrichment.
type GeoIPConfig struct {
	DBPath    string `mapstructure:"db_path"`
	CacheSize int    `mapstructure:"cache_size"`
}

// IsProduction reports whether the environment is production.
func (c Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("http_port", "8080")
	v.SetDefault("db_path", filepath.Join("data", "kernel.db"))
	v.SetDefault("log_dir", filepath.Join("data", "logs"))
	v.SetDefault("debug", false)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("admin.username", "")
	v.SetDefault("admin.password", "")
	v.SetDefault("fingerprint.cookie_name", "bz_fp")
	v.SetDefault("traffic.capacity", 1000)
	v.SetDefault("traffic.prefixes", []string{"/api/", "/store/", "/s/", "/checkout"})
	v.SetDefault("traffic.top_n", 15)
	v.SetDefault("security.trap_paths", []string{"/api/v1/internal/export-all", "/admin/backup.sql", "/api/v1/debug/vars"})
	v.SetDefault("security.suspicious_paths", []string{"/.env", "/.git", "/wp-admin", "/wp-login.php", "/phpmyadmin", "/xmlrpc.php", "/cgi-bin/", "/server-status"})
	v.SetDefault("security.blocked_countries", []string{})
	v.SetDefault("security.rate_limit_rps", 10.0)
	v.SetDefault("security.rate_limit_burst", 40)
	v.SetDefault("security.auto_migrate", true)
	v.SetDefault("security.suspicion_days", 7)
	v.SetDefault("geoip.db_path", "")
	v.SetDefault("geoip.cache_size", 4096)
}

// Load reads configuration and falls back to defaults so the server can boot with zero configuration.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("KERNEL_CONFIG"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("KERNEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			return Config{}, ErrMissingJWTSecret
		}
		cfg.JWTSecret = randomSecret()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
