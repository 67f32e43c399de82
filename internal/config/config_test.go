package config

import "testing"

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("GATEWAY_PORT", "9001")
	t.Setenv("GATEWAY_AUTH_TOKEN", "secret-token")
	t.Setenv("DATA_DIR", "/tmp/aegis-data")

	cfg := LoadEnv(DefaultConfig())

	if cfg.Gateway.Port != 9001 {
		t.Errorf("Port = %d, want 9001", cfg.Gateway.Port)
	}
	if cfg.Gateway.AuthToken != "secret-token" {
		t.Errorf("AuthToken = %q, want secret-token", cfg.Gateway.AuthToken)
	}
	if cfg.DataDir != "/tmp/aegis-data" {
		t.Errorf("DataDir = %q, want /tmp/aegis-data", cfg.DataDir)
	}
}

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Gateway.MaxConnections != 1000 {
		t.Errorf("MaxConnections = %d, want 1000", cfg.Gateway.MaxConnections)
	}
	if cfg.Memory.MaxWorkingTokens != 8000 {
		t.Errorf("MaxWorkingTokens = %d, want 8000", cfg.Memory.MaxWorkingTokens)
	}
	if cfg.Agent.MaxSteps != 10 {
		t.Errorf("MaxSteps = %d, want 10", cfg.Agent.MaxSteps)
	}
	if cfg.Delivery.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.Delivery.MaxRetries)
	}
}
