package config

import (
	"errors"
	"testing"
)

func setRequired(t *testing.T) {
	t.Setenv("HYDRA_ADMIN_URL", "http://hydra:4445")
	t.Setenv("FILEMAKER_URL", "https://fm.example.com/")
	t.Setenv("FILEMAKER_DATABASE", "Users")
	t.Setenv("FILEMAKER_LAYOUT", "Api")
}

func TestNewConfigManager(t *testing.T) {
	setRequired(t)
	t.Setenv("LOGIN_USER_REMEMBER_TIME", "600")
	t.Setenv("LOGIN_DEFAULT_REMEMBER_TIME", "300")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("TEST_MODE", "1")

	cfg := NewConfigManager().GetConfig()
	if err := cfg.LoadDefaults(); err != nil {
		t.Fatalf("LoadDefaults() error = %v", err)
	}

	if cfg.FileMaker.URL != "https://fm.example.com" {
		t.Errorf("trailing slash not trimmed: %s", cfg.FileMaker.URL)
	}
	if cfg.Login.UserRememberTime != 600 || cfg.Login.DefaultRememberTime != 300 {
		t.Errorf("unexpected login remember config: %+v", cfg.Login)
	}
	if len(cfg.KafkaConfig.Brokers) != 2 {
		t.Errorf("expected 2 brokers, got %v", cfg.KafkaConfig.Brokers)
	}
	if !cfg.TestMode || cfg.IsBasicAuth() || cfg.RedisEnabled() {
		t.Errorf("unexpected flags: %+v", cfg)
	}
	if cfg.CSRFSecret == "" {
		t.Error("expected a generated csrf secret")
	}
}

func TestLoadDefaultsRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing hydra", env: map[string]string{"HYDRA_ADMIN_URL": ""}},
		{name: "missing layout", env: map[string]string{"FILEMAKER_LAYOUT": ""}},
		{name: "unknown method", env: map[string]string{"AUTHENTICATION_METHOD": "ldap"}},
		{name: "argon2 memory below 8 per lane", env: map[string]string{"ARGON2_MEMORY": "16", "ARGON2_PARALLELISM": "4"}},
		{name: "argon2 memory too large", env: map[string]string{"ARGON2_MEMORY": "4194305"}},
		{name: "argon2 negative memory", env: map[string]string{"ARGON2_MEMORY": "-1"}},
		{name: "argon2 zero time", env: map[string]string{"ARGON2_TIME": "0"}},
		{name: "argon2 time too large", env: map[string]string{"ARGON2_TIME": "1025"}},
		{name: "argon2 zero parallelism", env: map[string]string{"ARGON2_PARALLELISM": "0"}},
		{name: "argon2 parallelism wraps", env: map[string]string{"ARGON2_PARALLELISM": "260"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			err := NewConfigManager().GetConfig().LoadDefaults()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestArgon2ValidateAcceptsBounds(t *testing.T) {
	for _, a := range []Argon2Config{
		{Memory: 32, Time: 1, Parallelism: 4},
		{Memory: 64 * 1024, Time: 3, Parallelism: 4},
		{Memory: Argon2MaxMemoryKiB, Time: Argon2MaxTime, Parallelism: Argon2MaxParallelism},
	} {
		if err := a.Validate(); err != nil {
			t.Errorf("Validate(%+v) error = %v", a, err)
		}
	}
}
