package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// AuthConfig holds token verification and admin panel settings.
type AuthConfig struct {
	// JWTSecret is the HMAC secret used to verify bearer tokens issued by
	// the identity provider.
	JWTSecret     string `yaml:"jwt_secret"`
	AdminPassword string `yaml:"admin_password"`
}

// TogetherConfig holds the settings for the Together AI image endpoint.
type TogetherConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// S3Config holds the optional blob storage settings. When Bucket or the
// credentials are empty, uploads are disabled and responses fall back to
// inline data URLs.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"`
	PublicURLPrefix string `yaml:"public_url_prefix"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// StorageConfig holds the persistent file-store settings.
type StorageConfig struct {
	// DataDir is the root of the JSON collections, the usage ledger and
	// the backups directory.
	DataDir string `yaml:"data_dir"`
	// FailClosed denies generations when the usage ledger is corrupt
	// instead of treating it as empty.
	FailClosed bool `yaml:"fail_closed"`
}

// LimitsConfig holds the daily generation quotas, prompt bounds and the
// per-IP request rate. Admin routes are exempt from the request rate.
type LimitsConfig struct {
	Authenticated   int `yaml:"authenticated"`
	Anonymous       int `yaml:"anonymous"`
	MaxPromptLength int `yaml:"max_prompt_length"`
	RequestsPerHour int `yaml:"requests_per_hour"`
}

// DatabaseConfig holds the optional relational mirror. Empty Type disables
// mirroring.
type DatabaseConfig struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// Config holds the full application configuration. CORSOrigins lists the
// browser origins allowed to call the API; debug mode allows any origin.
type Config struct {
	Port        int            `yaml:"port"`
	Debug       bool           `yaml:"debug"`
	LogLevel    string         `yaml:"log_level"`
	CORSOrigins []string       `yaml:"cors_origins"`
	Auth        AuthConfig     `yaml:"auth"`
	Together    TogetherConfig `yaml:"together"`
	S3          S3Config       `yaml:"s3"`
	Storage     StorageConfig  `yaml:"storage"`
	Limits      LimitsConfig   `yaml:"limits"`
	Database    DatabaseConfig `yaml:"database"`
}

// LoadConfig reads and parses the configuration file, applies environment
// overrides and defaults, and validates the result. It returns the config
// and a potential warning message. A missing file is not an error; the
// environment alone can carry a full configuration.
var LoadConfig = func(path string) (*Config, string, error) {
	var config Config
	var warning string

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, "", fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, "", fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnvOverrides(&config)

	if config.Port == 0 {
		config.Port = 8080
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.Together.BaseURL == "" {
		config.Together.BaseURL = "https://api.together.xyz"
	}
	if config.Together.Model == "" {
		config.Together.Model = "black-forest-labs/FLUX.1-schnell-Free"
	}
	if config.Storage.DataDir == "" {
		config.Storage.DataDir = "data"
	}
	if len(config.CORSOrigins) == 0 {
		config.CORSOrigins = []string{"http://localhost:5173"}
	}
	if config.Limits.MaxPromptLength == 0 {
		config.Limits.MaxPromptLength = 500
	}
	if config.Limits.RequestsPerHour == 0 {
		config.Limits.RequestsPerHour = 100
	}
	if config.Limits.Authenticated == 0 || config.Limits.Anonymous == 0 {
		config.Limits.Authenticated = 5
		config.Limits.Anonymous = 1
		warning = "limits not set, using defaults of 5 per day for authenticated users and 1 for anonymous"
	}

	if config.Together.APIKey == "" {
		return nil, "", fmt.Errorf("together.api_key must be configured in %s or via TOGETHER_AI_API_KEY", path)
	}
	if config.Auth.JWTSecret == "" && !config.Debug {
		return nil, "", fmt.Errorf("auth.jwt_secret must be configured outside debug mode")
	}

	return &config, warning, nil
}

func applyEnvOverrides(config *Config) {
	if port := os.Getenv("PROMPTCANVAS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}
	if debug := os.Getenv("PROMPTCANVAS_DEBUG"); debug != "" {
		config.Debug = debug == "true"
	}
	if level := os.Getenv("PROMPTCANVAS_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
	if origins := os.Getenv("PROMPTCANVAS_CORS_ORIGINS"); origins != "" {
		config.CORSOrigins = nil
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				config.CORSOrigins = append(config.CORSOrigins, origin)
			}
		}
	}
	if perHour := os.Getenv("PROMPTCANVAS_REQUESTS_PER_HOUR"); perHour != "" {
		if n, err := strconv.Atoi(perHour); err == nil {
			config.Limits.RequestsPerHour = n
		}
	}
	if secret := os.Getenv("PROMPTCANVAS_JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}
	if password := os.Getenv("PROMPTCANVAS_ADMIN_PASSWORD"); password != "" {
		config.Auth.AdminPassword = password
	}
	if key := os.Getenv("TOGETHER_AI_API_KEY"); key != "" {
		config.Together.APIKey = key
	}
	if base := os.Getenv("TOGETHER_AI_BASE_URL"); base != "" {
		config.Together.BaseURL = base
	}
	if model := os.Getenv("FLUX_MODEL_NAME"); model != "" {
		config.Together.Model = model
	}
	if bucket := os.Getenv("S3_BUCKET_NAME"); bucket != "" {
		config.S3.Bucket = bucket
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		config.S3.Region = region
	}
	if key := os.Getenv("AWS_ACCESS_KEY_ID"); key != "" {
		config.S3.AccessKeyID = key
	}
	if secret := os.Getenv("AWS_SECRET_ACCESS_KEY"); secret != "" {
		config.S3.SecretAccessKey = secret
	}
	if prefix := os.Getenv("S3_PUBLIC_URL_PREFIX"); prefix != "" {
		config.S3.PublicURLPrefix = prefix
	}
	if dir := os.Getenv("PROMPTCANVAS_DATA_DIR"); dir != "" {
		config.Storage.DataDir = dir
	}
	if dbType := os.Getenv("PROMPTCANVAS_DATABASE_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dsn := os.Getenv("PROMPTCANVAS_DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
}
