package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/sing3demons/oryfm/pkg/logger"
)

const (
	AuthenticationMethodEmail     = "email"
	AuthenticationMethodBasicAuth = "basic-auth"
)

var ErrInvalidConfig = errors.New("invalid_config")

type AppConfig struct {
	ServiceName string
	Version     string
	Port        string
	Env         string

	Hydra     HydraConfig
	FileMaker FileMakerConfig
	Login     RememberConfig
	Consent   RememberConfig
	Argon2    Argon2Config

	AuthenticationMethod string
	TestMode             bool
	ThemeCSSURL          string
	LabelsPath           string
	CSRFSecret           string

	LoggerConfig logger.LoggerConfig
	RedisConfig  RedisConfig
	MongoConfig  MongoConfig
	KafkaConfig  KafkaConfig
}

type HydraConfig struct {
	AdminURL           string
	MockTLSTermination bool
}

type FileMakerConfig struct {
	URL              string
	Username         string
	Password         string
	Database         string
	Layout           string
	SerializeRefresh bool
}

// RememberConfig holds the per-flow remember durations in seconds.
type RememberConfig struct {
	UserRememberTime    int
	DefaultRememberTime int
}

// Argon2Config is the strength new password hashes are written at. Memory is
// in KiB.
type Argon2Config struct {
	Memory      int
	Time        int
	Parallelism int
}

// Bounds on argon2id parameters, shared with hash parsing so every hash this
// service writes can be read back.
const (
	Argon2MaxMemoryKiB   = 4 << 20
	Argon2MaxTime        = 1 << 10
	Argon2MaxParallelism = 255
)

// Validate rejects parameters argon2id cannot run with or that stored hashes
// could not be parsed back from.
func (a Argon2Config) Validate() error {
	switch {
	case a.Time < 1 || a.Time > Argon2MaxTime:
		return fmt.Errorf("%w: ARGON2_TIME must be between 1 and %d", ErrInvalidConfig, Argon2MaxTime)
	case a.Parallelism < 1 || a.Parallelism > Argon2MaxParallelism:
		return fmt.Errorf("%w: ARGON2_PARALLELISM must be between 1 and %d", ErrInvalidConfig, Argon2MaxParallelism)
	case a.Memory < 8*a.Parallelism || a.Memory > Argon2MaxMemoryKiB:
		return fmt.Errorf("%w: ARGON2_MEMORY must be between %d and %d", ErrInvalidConfig, 8*a.Parallelism, Argon2MaxMemoryKiB)
	}
	return nil
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type MongoConfig struct {
	URI      string
	Database string
}

type KafkaConfig struct {
	Brokers          []string
	AuditTopic       string
	SecurityProtocol string
	SASLMechanism    string
	SASLUser         string
	SASLPassword     string
	CACertFile       string
}

func (c *AppConfig) KafkaEnabled() bool {
	return len(c.KafkaConfig.Brokers) > 0
}

func (c *AppConfig) MongoEnabled() bool {
	return c.MongoConfig.URI != ""
}

type ConfigManager struct {
	mu   sync.RWMutex
	data *AppConfig
}

// NewConfigManager reads the process environment. Call godotenv.Load before it
// to pick up a .env file.
func NewConfigManager() *ConfigManager {
	cfg := &AppConfig{
		ServiceName: getEnv("SERVICE_NAME", "oryfm"),
		Version:     getEnv("VERSION", "dev"),
		Port:        getEnv("PORT", "3000"),
		Env:         getEnv("APP_ENV", "production"),
		Hydra: HydraConfig{
			AdminURL:           os.Getenv("HYDRA_ADMIN_URL"),
			MockTLSTermination: getBool("MOCK_TLS_TERMINATION"),
		},
		FileMaker: FileMakerConfig{
			URL:              strings.TrimSuffix(os.Getenv("FILEMAKER_URL"), "/"),
			Username:         os.Getenv("FILEMAKER_USERNAME"),
			Password:         os.Getenv("FILEMAKER_PASSWORD"),
			Database:         os.Getenv("FILEMAKER_DATABASE"),
			Layout:           os.Getenv("FILEMAKER_LAYOUT"),
			SerializeRefresh: getBool("FILEMAKER_SERIALIZE_REFRESH"),
		},
		Login: RememberConfig{
			UserRememberTime:    getInt("LOGIN_USER_REMEMBER_TIME", 0),
			DefaultRememberTime: getInt("LOGIN_DEFAULT_REMEMBER_TIME", 0),
		},
		Consent: RememberConfig{
			UserRememberTime:    getInt("CONSENT_USER_REMEMBER_TIME", 0),
			DefaultRememberTime: getInt("CONSENT_DEFAULT_REMEMBER_TIME", 0),
		},
		Argon2: Argon2Config{
			Memory:      getInt("ARGON2_MEMORY", 64*1024),
			Time:        getInt("ARGON2_TIME", 3),
			Parallelism: getInt("ARGON2_PARALLELISM", 4),
		},
		AuthenticationMethod: getEnv("AUTHENTICATION_METHOD", AuthenticationMethodEmail),
		TestMode:             getBool("TEST_MODE"),
		ThemeCSSURL:          os.Getenv("THEME_CSS_URL"),
		LabelsPath:           getEnv("CUSTOM_LABELS_PATH", "./custom-labels.json"),
		CSRFSecret:           os.Getenv("CSRF_SECRET"),
		LoggerConfig: logger.LoggerConfig{
			Summary: logger.LogOutputConfig{
				Path:    getEnv("LOG_PATH", "./logs") + "/summary/",
				Console: getEnv("LOG_CONSOLE", "true") == "true",
				File:    getBool("LOG_FILE"),
			},
			Detail: logger.LogOutputConfig{
				Path:    getEnv("LOG_PATH", "./logs") + "/detail/",
				Console: getEnv("LOG_CONSOLE", "true") == "true",
				File:    getBool("LOG_FILE"),
			},
		},
		MongoConfig: MongoConfig{
			URI:      os.Getenv("MONGO_URI"),
			Database: getEnv("MONGO_DATABASE", "oryfm"),
		},
		KafkaConfig: KafkaConfig{
			Brokers:          splitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic:       getEnv("AUDIT_TOPIC", "oryfm.audit"),
			SecurityProtocol: getEnv("KAFKA_SECURITY_PROTOCOL", "PLAINTEXT"),
			SASLMechanism:    os.Getenv("KAFKA_SASL_MECHANISM"),
			SASLUser:         os.Getenv("KAFKA_SASL_USER"),
			SASLPassword:     os.Getenv("KAFKA_SASL_PASSWORD"),
			CACertFile:       os.Getenv("KAFKA_CA_CERT_FILE"),
		},
	}

	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		cfg.RedisConfig = RedisConfig{
			Addr:     redisHost,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		}
	}

	return &ConfigManager{data: cfg}
}

func (cm *ConfigManager) GetConfig() *AppConfig {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.data
}

func (cm *ConfigManager) SetConfig(newConfig *AppConfig) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.data = newConfig
}

// LoadDefaults fills derived values and rejects configurations the service cannot run with.
func (c *AppConfig) LoadDefaults() error {
	if c.Hydra.AdminURL == "" {
		return fmt.Errorf("%w: HYDRA_ADMIN_URL is required", ErrInvalidConfig)
	}
	if c.FileMaker.URL == "" || c.FileMaker.Database == "" || c.FileMaker.Layout == "" {
		return fmt.Errorf("%w: FILEMAKER_URL, FILEMAKER_DATABASE and FILEMAKER_LAYOUT are required", ErrInvalidConfig)
	}

	switch c.AuthenticationMethod {
	case AuthenticationMethodEmail, AuthenticationMethodBasicAuth:
	default:
		return fmt.Errorf("%w: unknown AUTHENTICATION_METHOD %q", ErrInvalidConfig, c.AuthenticationMethod)
	}
	if err := c.Argon2.Validate(); err != nil {
		return err
	}

	if c.CSRFSecret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("generate csrf secret: %w", err)
		}
		c.CSRFSecret = hex.EncodeToString(b)
	}
	return nil
}

func (c *AppConfig) IsBasicAuth() bool {
	return c.AuthenticationMethod == AuthenticationMethodBasicAuth
}

func (c *AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *AppConfig) RedisEnabled() bool {
	return c.RedisConfig.Addr != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
