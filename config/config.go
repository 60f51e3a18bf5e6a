package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// MaxClockSkew bounds the iat/nbf leeway the token codec may be configured with.
const MaxClockSkew = 60 * time.Second

// MaxGraceWindow caps how long after expiry a token may still be renewed in grace mode.
const MaxGraceWindow = 7 * 24 * time.Hour

type Config struct {
	ServerConfig    ServerConfig    `json:"server"`
	DatabaseConfig  DatabaseConfig  `json:"database"`
	RedisConfig     RedisConfig     `json:"redis"`
	VaultConfig     VaultConfig     `json:"vault"`
	SessionConfig   SessionConfig   `json:"session"`
	TokenConfig     TokenConfig     `json:"token"`
	RateLimitConfig RateLimitConfig `json:"rate_limit"`
	VersionConfig   VersionConfig   `json:"version"`
	HeartbeatConfig HeartbeatConfig `json:"heartbeat"`
	LoggingConfig   LoggingConfig   `json:"logging"`
	MetricsConfig   MetricsConfig   `json:"metrics"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	ProductionMode  bool   `json:"production_mode"`
	AllowedOrigins  string `json:"allowed_origins"`  // comma separated
	TrustedProxies  string `json:"trusted_proxies"`  // comma separated IPs or CIDRs allowed to set forwarding headers
	TrustedPlatform string `json:"trusted_platform"` // "cloudflare", "google_app_engine" or empty; its header is trusted from any peer
	ReadTimeout     int    `json:"read_timeout"`     // seconds
	WriteTimeout    int    `json:"write_timeout"`    // seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // seconds
	TLSEnabled      bool   `json:"tls_enabled"`
	TLSCertFile     string `json:"tls_cert_file"`
	TLSKeyFile      string `json:"tls_key_file"`
}

// DatabaseConfig selects and configures the activation store backend
type DatabaseConfig struct {
	Driver   string `json:"driver"` // postgres or memory
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	SSLMode  string `json:"ssl_mode"`
	MaxConns int    `json:"max_conns"`
	MinConns int    `json:"min_conns"`
}

// RedisConfig holds Redis configuration for the shared rate-limit window
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault settings for signing-key custody
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	KeyField   string `json:"key_field"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// SessionConfig describes the interactive-login credential this service accepts
type SessionConfig struct {
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer"`
}

// TokenConfig configures license token issuance
type TokenConfig struct {
	Issuer         string        `json:"issuer"`
	TTL            time.Duration `json:"ttl"`
	ClockSkew      time.Duration `json:"clock_skew"`
	GraceWindow    time.Duration `json:"grace_window"` // 0 means 24h, negative disables grace refresh
	PrivateKeyPath string        `json:"private_key_path"`
	PrivateKeyPEM  string        `json:"private_key_pem"`
	FromVault      bool          `json:"from_vault"`
}

// RatePolicy is N requests per Window
type RatePolicy struct {
	Requests int           `json:"requests"`
	Window   time.Duration `json:"window"`
}

// RateLimitConfig holds per-route sliding-window policies
type RateLimitConfig struct {
	UseRedis bool                  `json:"use_redis"`
	Routes   map[string]RatePolicy `json:"routes"`
}

// Release is one downloadable build in the update catalog
type Release struct {
	Platform    string    `json:"platform"`
	Arch        string    `json:"arch"`
	Version     string    `json:"version"`
	URL         string    `json:"url"`
	SHA256      string    `json:"sha256"`
	Notes       string    `json:"notes"`
	PublishedAt time.Time `json:"published_at"`
}

// VersionConfig holds the minimum supported client version and the release catalog
type VersionConfig struct {
	MinimumVersion string    `json:"minimum_version"`
	Releases       []Release `json:"releases"`
}

// HeartbeatConfig tunes heartbeat responses
type HeartbeatConfig struct {
	IntervalSeconds     int           `json:"interval_seconds"`
	LowBalanceThreshold float64       `json:"low_balance_threshold"`
	TrialEndingWindow   time.Duration `json:"trial_ending_window"`
	AdvisoryTimeout     time.Duration `json:"advisory_timeout"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

// Platforms whose edge sets a trusted client-IP header
const (
	PlatformCloudflare      = "cloudflare"
	PlatformGoogleAppEngine = "google_app_engine"
)

// GraceWindowOrDisabled maps the configured grace window to the effective one. Negative disables grace refresh.
func (t TokenConfig) GraceWindowOrDisabled() time.Duration {
	if t.GraceWindow < 0 {
		return 0
	}
	return t.GraceWindow
}

// SplitList splits a comma separated setting, dropping blanks
func SplitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Route names shared by the limiter and the HTTP layer
const (
	RouteActivate   = "activate"
	RouteRefresh    = "refresh"
	RouteHeartbeat  = "heartbeat"
	RouteDeactivate = "deactivate"
	RouteDevices    = "devices"
	RouteUpdates    = "updates"
)

// DefaultRatePolicies returns the built-in per-route limits. Activation is the tightest.
func DefaultRatePolicies() map[string]RatePolicy {
	return map[string]RatePolicy{
		RouteActivate:   {Requests: 5, Window: time.Minute},
		RouteRefresh:    {Requests: 20, Window: time.Minute},
		RouteHeartbeat:  {Requests: 60, Window: time.Minute},
		RouteDeactivate: {Requests: 10, Window: time.Minute},
		RouteDevices:    {Requests: 30, Window: time.Minute},
		RouteUpdates:    {Requests: 30, Window: time.Minute},
	}
}

func Load() (*Config, error) {
	return LoadFile(getEnvOrDefault("CONFIG_FILE", "config.json"))
}

// LoadFile reads an optional JSON base file, applies environment overrides and validates the result.
func LoadFile(filename string) (*Config, error) {
	cfg, err := loadFromFile(filename)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		// No config file, environment only
		cfg = baseConfig()
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// baseConfig holds the defaults a zero value cannot express. Files are decoded on top of it.
func baseConfig() *Config {
	return &Config{
		LoggingConfig: LoggingConfig{JSONFormat: true},
		MetricsConfig: MetricsConfig{Enabled: true},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.DatabaseConfig.Driver == "" {
		cfg.DatabaseConfig.Driver = "postgres"
	}
	if cfg.TokenConfig.Issuer == "" {
		cfg.TokenConfig.Issuer = "desktop-license-server"
	}
	if cfg.TokenConfig.TTL == 0 {
		cfg.TokenConfig.TTL = time.Hour
	}
	if cfg.TokenConfig.ClockSkew == 0 {
		cfg.TokenConfig.ClockSkew = MaxClockSkew
	}
	if cfg.TokenConfig.GraceWindow == 0 {
		cfg.TokenConfig.GraceWindow = 24 * time.Hour
	}

	defaults := DefaultRatePolicies()
	if cfg.RateLimitConfig.Routes == nil {
		cfg.RateLimitConfig.Routes = make(map[string]RatePolicy, len(defaults))
	}
	for route, policy := range defaults {
		if _, ok := cfg.RateLimitConfig.Routes[route]; !ok {
			cfg.RateLimitConfig.Routes[route] = policy
		}
	}

	if cfg.VersionConfig.MinimumVersion == "" {
		cfg.VersionConfig.MinimumVersion = "0.0.0"
	}
	if cfg.HeartbeatConfig.IntervalSeconds == 0 {
		cfg.HeartbeatConfig.IntervalSeconds = 900
	}
	if cfg.HeartbeatConfig.LowBalanceThreshold == 0 {
		cfg.HeartbeatConfig.LowBalanceThreshold = 1.0
	}
	if cfg.HeartbeatConfig.TrialEndingWindow == 0 {
		cfg.HeartbeatConfig.TrialEndingWindow = 72 * time.Hour
	}
	if cfg.HeartbeatConfig.AdvisoryTimeout == 0 {
		cfg.HeartbeatConfig.AdvisoryTimeout = 2 * time.Second
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
// The signing key and the session secret are only ever read here, never written back out.
func applyEnvOverrides(cfg *Config) {
	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", orInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", orString(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.ProductionMode = getEnvBoolOrDefault("SERVER_PRODUCTION", cfg.ServerConfig.ProductionMode)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", orString(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.TrustedProxies = getEnvOrDefault("SERVER_TRUSTED_PROXIES", cfg.ServerConfig.TrustedProxies)
	cfg.ServerConfig.TrustedPlatform = getEnvOrDefault("SERVER_TRUSTED_PLATFORM", cfg.ServerConfig.TrustedPlatform)
	cfg.ServerConfig.TLSEnabled = getEnvBoolOrDefault("SERVER_TLS_ENABLED", cfg.ServerConfig.TLSEnabled)
	cfg.ServerConfig.TLSCertFile = getEnvOrDefault("SERVER_TLS_CERT", cfg.ServerConfig.TLSCertFile)
	cfg.ServerConfig.TLSKeyFile = getEnvOrDefault("SERVER_TLS_KEY", cfg.ServerConfig.TLSKeyFile)
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", orInt(cfg.ServerConfig.ReadTimeout, 15))
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", orInt(cfg.ServerConfig.WriteTimeout, 15))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", orInt(cfg.ServerConfig.ShutdownTimeout, 10))

	// Database config
	cfg.DatabaseConfig.Driver = getEnvOrDefault("DB_DRIVER", cfg.DatabaseConfig.Driver)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", orString(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", orInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", orString(cfg.DatabaseConfig.User, "license"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Name = getEnvOrDefault("DB_NAME", orString(cfg.DatabaseConfig.Name, "licenses"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", orString(cfg.DatabaseConfig.SSLMode, "disable"))
	cfg.DatabaseConfig.MaxConns = getEnvIntOrDefault("DB_MAX_CONNS", orInt(cfg.DatabaseConfig.MaxConns, 25))
	cfg.DatabaseConfig.MinConns = getEnvIntOrDefault("DB_MIN_CONNS", orInt(cfg.DatabaseConfig.MinConns, 5))

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", orString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", orInt(cfg.RedisConfig.PoolSize, 10))

	// Vault config
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", orString(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", orString(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", orString(cfg.VaultConfig.SecretPath, "license-server/signing-key"))
	cfg.VaultConfig.KeyField = getEnvOrDefault("VAULT_KEY_FIELD", orString(cfg.VaultConfig.KeyField, "private_key"))
	cfg.VaultConfig.TLSEnabled = getEnvBoolOrDefault("VAULT_TLS_ENABLED", cfg.VaultConfig.TLSEnabled)
	cfg.VaultConfig.CACert = getEnvOrDefault("VAULT_CACERT", cfg.VaultConfig.CACert)

	// Session credential
	cfg.SessionConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.SessionConfig.JWTSecret)
	cfg.SessionConfig.Issuer = getEnvOrDefault("AUTH_JWT_ISSUER", cfg.SessionConfig.Issuer)

	// License token
	cfg.TokenConfig.Issuer = getEnvOrDefault("TOKEN_ISSUER", cfg.TokenConfig.Issuer)
	cfg.TokenConfig.TTL = getEnvDurationOrDefault("TOKEN_TTL", cfg.TokenConfig.TTL)
	cfg.TokenConfig.ClockSkew = getEnvDurationOrDefault("TOKEN_CLOCK_SKEW", cfg.TokenConfig.ClockSkew)
	cfg.TokenConfig.GraceWindow = getEnvDurationOrDefault("TOKEN_GRACE_WINDOW", cfg.TokenConfig.GraceWindow)
	cfg.TokenConfig.PrivateKeyPath = getEnvOrDefault("TOKEN_PRIVATE_KEY_PATH", cfg.TokenConfig.PrivateKeyPath)
	cfg.TokenConfig.PrivateKeyPEM = getEnvOrDefault("TOKEN_PRIVATE_KEY", cfg.TokenConfig.PrivateKeyPEM)
	cfg.TokenConfig.FromVault = getEnvBoolOrDefault("TOKEN_KEY_FROM_VAULT", cfg.TokenConfig.FromVault)

	// Rate limits, e.g. RATE_LIMIT_ACTIVATE=5/1m
	cfg.RateLimitConfig.UseRedis = getEnvBoolOrDefault("RATE_LIMIT_USE_REDIS", cfg.RateLimitConfig.UseRedis)
	for route, policy := range cfg.RateLimitConfig.Routes {
		cfg.RateLimitConfig.Routes[route] = getEnvRatePolicyOrDefault("RATE_LIMIT_"+strings.ToUpper(route), policy)
	}

	// Version gate
	cfg.VersionConfig.MinimumVersion = getEnvOrDefault("MIN_CLIENT_VERSION", cfg.VersionConfig.MinimumVersion)

	// Heartbeat
	cfg.HeartbeatConfig.IntervalSeconds = getEnvIntOrDefault("HEARTBEAT_INTERVAL_SECONDS", cfg.HeartbeatConfig.IntervalSeconds)
	cfg.HeartbeatConfig.LowBalanceThreshold = getEnvFloatOrDefault("HEARTBEAT_LOW_BALANCE", cfg.HeartbeatConfig.LowBalanceThreshold)
	cfg.HeartbeatConfig.TrialEndingWindow = getEnvDurationOrDefault("HEARTBEAT_TRIAL_ENDING_WINDOW", cfg.HeartbeatConfig.TrialEndingWindow)
	cfg.HeartbeatConfig.AdvisoryTimeout = getEnvDurationOrDefault("HEARTBEAT_ADVISORY_TIMEOUT", cfg.HeartbeatConfig.AdvisoryTimeout)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", orString(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", orString(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)

	cfg.MetricsConfig.Enabled = getEnvBoolOrDefault("METRICS_ENABLED", cfg.MetricsConfig.Enabled)
}

// Validate rejects configurations the service must not start with.
func (c *Config) Validate() error {
	if c.SessionConfig.JWTSecret == "" {
		return fmt.Errorf("session secret is required (AUTH_JWT_SECRET)")
	}
	if c.TokenConfig.TTL <= 0 {
		return fmt.Errorf("token ttl must be positive, got %s", c.TokenConfig.TTL)
	}
	if c.TokenConfig.ClockSkew < 0 || c.TokenConfig.ClockSkew > MaxClockSkew {
		return fmt.Errorf("token clock skew must be between 0 and %s, got %s", MaxClockSkew, c.TokenConfig.ClockSkew)
	}
	if c.TokenConfig.GraceWindow > MaxGraceWindow {
		return fmt.Errorf("token grace window must be at most %s, got %s", MaxGraceWindow, c.TokenConfig.GraceWindow)
	}
	for _, p := range SplitList(c.ServerConfig.TrustedProxies) {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("invalid trusted proxy %q", p)
			}
		}
	}
	switch c.ServerConfig.TrustedPlatform {
	case "", PlatformCloudflare, PlatformGoogleAppEngine:
	default:
		return fmt.Errorf("unknown trusted platform %q", c.ServerConfig.TrustedPlatform)
	}
	if _, err := semver.StrictNewVersion(strings.TrimPrefix(c.VersionConfig.MinimumVersion, "v")); err != nil {
		return fmt.Errorf("invalid minimum client version %q: %w", c.VersionConfig.MinimumVersion, err)
	}
	for _, r := range c.VersionConfig.Releases {
		if _, err := semver.StrictNewVersion(strings.TrimPrefix(r.Version, "v")); err != nil {
			return fmt.Errorf("invalid release version %q for %s/%s: %w", r.Version, r.Platform, r.Arch, err)
		}
	}
	for route, policy := range c.RateLimitConfig.Routes {
		if policy.Requests <= 0 || policy.Window <= 0 {
			return fmt.Errorf("rate limit for %s must allow at least one request per positive window", route)
		}
	}
	switch c.DatabaseConfig.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.DatabaseConfig.Driver)
	}
	return nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := baseConfig()
	if err := json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvRatePolicyOrDefault parses "<requests>/<window>", e.g. "5/1m".
func getEnvRatePolicyOrDefault(key string, defaultValue RatePolicy) RatePolicy {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.SplitN(value, "/", 2)
	if len(parts) != 2 {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return defaultValue
	}
	window, err := time.ParseDuration(strings.TrimSpace(parts[1]))
	if err != nil {
		return defaultValue
	}
	return RatePolicy{Requests: n, Window: window}
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		ServerConfig: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			AllowedOrigins:  "*",
			ReadTimeout:     15,
			WriteTimeout:    15,
			ShutdownTimeout: 10,
		},
		DatabaseConfig: DatabaseConfig{
			Driver:  "postgres",
			Host:    "localhost",
			Port:    5432,
			User:    "license",
			Name:    "licenses",
			SSLMode: "disable",
		},
		TokenConfig: TokenConfig{
			Issuer:         "desktop-license-server",
			TTL:            time.Hour,
			ClockSkew:      MaxClockSkew,
			GraceWindow:    24 * time.Hour,
			PrivateKeyPath: "keys/license_signing.pem",
		},
		RateLimitConfig: RateLimitConfig{Routes: DefaultRatePolicies()},
		VersionConfig: VersionConfig{
			MinimumVersion: "1.0.0",
			Releases: []Release{
				{Platform: "windows", Arch: "amd64", Version: "1.0.0", URL: "https://downloads.example.com/app-1.0.0-windows-amd64.msi"},
			},
		},
		HeartbeatConfig: HeartbeatConfig{
			IntervalSeconds:     900,
			LowBalanceThreshold: 1.0,
			TrialEndingWindow:   72 * time.Hour,
			AdvisoryTimeout:     2 * time.Second,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		MetricsConfig: MetricsConfig{Enabled: true},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
