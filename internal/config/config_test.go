package config

import (
	"strings"
	"testing"
)

func TestConfig_IsDev(t *testing.T) {
	cfg := &Config{Env: "development"}
	if !cfg.IsDev() {
		t.Error("expected IsDev to be true for development")
	}
	cfg.Env = "production"
	if cfg.IsDev() {
		t.Error("expected IsDev to be false for production")
	}
}

func TestConfig_IsProduction(t *testing.T) {
	cfg := &Config{Env: "production"}
	if !cfg.IsProduction() {
		t.Error("expected IsProduction to be true for production")
	}
}

func TestValidate_DevWithoutSecret(t *testing.T) {
	cfg := &Config{Env: "development", WSSendBuffer: 256}
	if err := cfg.Validate(); err != nil {
		t.Errorf("dev mode without secret should validate, got %v", err)
	}
}

func TestValidate_ProductionRequiresSecret(t *testing.T) {
	cfg := &Config{Env: "production", WSSendBuffer: 256}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing AUTH_SECRET in production")
	}
	if !strings.Contains(err.Error(), "AUTH_SECRET") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestValidate_ShortSecret(t *testing.T) {
	cfg := &Config{Env: "production", AuthSecret: "too-short", WSSendBuffer: 256}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for short AUTH_SECRET")
	}
}

func TestValidate_LongSecret(t *testing.T) {
	cfg := &Config{
		Env:          "production",
		AuthSecret:   strings.Repeat("s", 32),
		WSSendBuffer: 256,
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_WSSendBuffer(t *testing.T) {
	cfg := &Config{Env: "development", WSSendBuffer: 0}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-positive WS_SEND_BUFFER")
	}
}
