package config

import (
	"os"
	"testing"
)

func TestLoadConfigNormalizesAppEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")

	tests := []struct {
		name         string
		appEnv       string
		want         string
		isProduction bool
	}{
		{"default is production", "", "production", true},
		{"dev alias", "Dev", "development", false},
		{"local alias", "local", "development", false},
		{"staging alias", "STAGE", "staging", false},
		{"prod alias", "prod", "production", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// t.Setenv registers the restore; unsetting after it leaves the
			// variable absent for the default case.
			t.Setenv("APP_ENV", tt.appEnv)
			if tt.appEnv == "" {
				os.Unsetenv("APP_ENV")
			}

			cfg, err := LoadConfig()
			if err != nil {
				t.Fatalf("LoadConfig: %v", err)
			}
			if cfg.AppEnv != tt.want {
				t.Errorf("AppEnv = %q, want %q", cfg.AppEnv, tt.want)
			}
			if cfg.IsProduction() != tt.isProduction {
				t.Errorf("IsProduction = %v, want %v", cfg.IsProduction(), tt.isProduction)
			}
		})
	}
}
