// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the server configuration.
type Config struct {
	App        AppConfig
	Logger     LoggerConfig
	Data       DataConfig
	Server     ServerConfig
	Auth       AuthConfig
	Import     ImportConfig
	Redis      RedisConfig
	Engagement EngagementConfig
	Search     SearchConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds where persistent state lives.
type DataConfig struct {
	// BasePath holds directory.db and auth.key.
	BasePath string
}

// DatabasePath returns the sqlite file path.
func (d DataConfig) DatabasePath() string {
	return filepath.Join(d.BasePath, "directory.db")
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	AccessTokenDuration time.Duration
}

// ImportConfig holds trainer import configuration.
type ImportConfig struct {
	// TrainersFile is a YAML file of trainer profiles. Empty disables importing.
	TrainersFile string
	// Watch re-imports the file whenever it changes.
	Watch bool
	// SettleDelay debounces bursts of file events.
	SettleDelay time.Duration
}

// RedisConfig holds the optional change bus configuration.
type RedisConfig struct {
	// Addr enables the Redis change bus when set.
	Addr     string
	Password string
	Channel  string
}

// Enabled reports whether a Redis change bus is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// EngagementConfig holds the per-viewer write limits.
type EngagementConfig struct {
	RatePerSecond float64
	Burst         int
}

// SearchConfig holds trainer search configuration.
type SearchConfig struct {
	Enabled bool
}

// LoadConfig loads configuration from the process arguments with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load parses args as server flags and resolves every setting.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("directory", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Base path for the database and auth key")

	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 0, SSE streams are long lived)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	allowedOrigins := fs.String("allowed-origins", "", "Comma separated CORS origins (default: *)")

	accessTokenDuration := fs.String("access-token-duration", "", "Access token lifetime (default: 24h)")

	trainersFile := fs.String("trainers-file", "", "YAML file of trainer profiles to import")
	importWatch := fs.String("import-watch", "", "Re-import the trainers file when it changes (default: true)")
	settleDelay := fs.String("import-settle", "", "Delay before re-importing after a file event (default: 500ms)")

	redisAddr := fs.String("redis-addr", "", "Redis address for the shared change bus")
	redisChannel := fs.String("redis-channel", "", "Redis pub/sub channel (default: directory:changes)")

	engagementRate := fs.String("engagement-rate", "", "Engagement writes per second per viewer (default: 5)")
	engagementBurst := fs.String("engagement-burst", "", "Engagement write burst per viewer (default: 10)")

	searchEnabled := fs.String("search", "", "Enable the trainer search index (default: true)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Server: ServerConfig{
			Port:           getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			AllowedOrigins: splitList(getConfigValue(*allowedOrigins, "ALLOWED_ORIGINS", "*")),
		},
		Import: ImportConfig{
			TrainersFile: getConfigValue(*trainersFile, "IMPORT_TRAINERS_FILE", ""),
			Watch:        getBoolConfigValue(*importWatch, "IMPORT_WATCH", true),
		},
		Redis: RedisConfig{
			Addr:     getConfigValue(*redisAddr, "REDIS_ADDR", ""),
			Password: getConfigValue("", "REDIS_PASSWORD", ""),
			Channel:  getConfigValue(*redisChannel, "REDIS_CHANNEL", "directory:changes"),
		},
		Engagement: EngagementConfig{
			RatePerSecond: getFloatConfigValue(*engagementRate, "ENGAGEMENT_RATE", 5),
			Burst:         getIntConfigValue(*engagementBurst, "ENGAGEMENT_BURST", 10),
		},
		Search: SearchConfig{
			Enabled: getBoolConfigValue(*searchEnabled, "SEARCH_ENABLED", true),
		},
	}

	var err error
	if cfg.Auth.AccessTokenDuration, err = getDurationConfigValue(*accessTokenDuration, "ACCESS_TOKEN_DURATION", "24h"); err != nil {
		return nil, err
	}
	if cfg.Server.ReadTimeout, err = getDurationConfigValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.Server.WriteTimeout, err = getDurationConfigValue(*writeTimeout, "SERVER_WRITE_TIMEOUT", "0s"); err != nil {
		return nil, err
	}
	if cfg.Server.IdleTimeout, err = getDurationConfigValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"); err != nil {
		return nil, err
	}
	if cfg.Import.SettleDelay, err = getDurationConfigValue(*settleDelay, "IMPORT_SETTLE_DELAY", "500ms"); err != nil {
		return nil, err
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}
	if cfg.Import.TrainersFile != "" {
		if cfg.Import.TrainersFile, err = expandPath(cfg.Import.TrainersFile, ""); err != nil {
			return nil, fmt.Errorf("invalid trainers file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	if c.Engagement.RatePerSecond <= 0 || c.Engagement.Burst <= 0 {
		return errors.New("engagement rate and burst must be positive")
	}

	if c.Redis.Enabled() && c.Redis.Channel == "" {
		return errors.New("REDIS_CHANNEL cannot be empty when REDIS_ADDR is set")
	}

	return nil
}

// ClientConfig holds settings for the command-line client.
type ClientConfig struct {
	ServerURL string
	StateDir  string
	Token     string
	LogLevel  string
}

// LoadClientConfig resolves client settings from flags, environment and defaults.
// Unparsed trailing arguments are returned for the caller.
func LoadClientConfig(fs *flag.FlagSet, args []string) (*ClientConfig, []string, error) {
	serverURL := fs.String("server", "", "Directory server URL (default: http://localhost:8080)")
	stateDir := fs.String("state-dir", "", "Directory for the persisted guest identity")
	token := fs.String("token", "", "Access token for a signed-in session")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	cfg := &ClientConfig{
		ServerURL: strings.TrimRight(getConfigValue(*serverURL, "DIRECTORY_SERVER", "http://localhost:8080"), "/"),
		StateDir:  getConfigValue(*stateDir, "DIRECTORY_STATE_DIR", ""),
		Token:     getConfigValue(*token, "DIRECTORY_TOKEN", ""),
		LogLevel:  getConfigValue(*logLevel, "LOG_LEVEL", "warn"),
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	if cfg.StateDir, err = expandPath(cfg.StateDir, filepath.Join(home, ".ceskapp")); err != nil {
		return nil, nil, err
	}

	return cfg, fs.Args(), nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath defaults the data directory to ~/Ceskapp/data.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "Ceskapp", "data")

	expanded, err := expandPath(c.Data.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Data.BasePath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return defaultValue
	}
	return result
}

// getDurationConfigValue parses a duration from flag, env var, or default.
func getDurationConfigValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
