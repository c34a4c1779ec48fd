package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	ResetForTest()
	os.Unsetenv("REDDIT_USER_AGENT")
	os.Unsetenv("HTTP_MAX_RETRIES")
	os.Unsetenv("HTTP_RETRY_BASE_MS")
	os.Unsetenv("RATE_LIMIT_THRESHOLD")
	os.Unsetenv("COST_PER_1000_REQUESTS")

	cfg := Load()
	if cfg.UserAgent == "" {
		t.Fatalf("expected default UA, got empty")
	}
	if cfg.HTTPMaxRetries != 3 {
		t.Fatalf("expected default retries=3, got %d", cfg.HTTPMaxRetries)
	}
	if cfg.RateLimitThreshold != 50 {
		t.Fatalf("expected default RateLimitThreshold=50, got %d", cfg.RateLimitThreshold)
	}
	if cfg.CostPer1000Requests != 0.24 {
		t.Fatalf("expected default CostPer1000Requests=0.24, got %v", cfg.CostPer1000Requests)
	}
	ResetForTest()
}

func TestLoadCaches(t *testing.T) {
	ResetForTest()
	os.Setenv("REDDIT_USER_AGENT", "test-agent")
	defer os.Unsetenv("REDDIT_USER_AGENT")

	cfg1 := Load()
	os.Setenv("REDDIT_USER_AGENT", "changed-agent")
	cfg2 := Load()
	if cfg1 != cfg2 {
		t.Fatalf("Load() should return the cached instance")
	}
	if cfg2.UserAgent != "test-agent" {
		t.Fatalf("expected cached UA 'test-agent', got %q", cfg2.UserAgent)
	}
	ResetForTest()
}
