package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MONGODB_URI", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("PORT", "")
	t.Setenv("GEMINI_MODEL", "")
	t.Setenv("FLAG_CACHE_TTL", "")

	cfg := Load()

	if cfg.Port != "3001" {
		t.Errorf("Expected default port 3001, got %s", cfg.Port)
	}
	if cfg.StoreBackend != StoreBackendSQL {
		t.Errorf("Expected sql backend without MONGODB_URI, got %s", cfg.StoreBackend)
	}
	if cfg.GeminiModel != "gemini-2.5-flash" {
		t.Errorf("Unexpected default model %s", cfg.GeminiModel)
	}
	if cfg.FlagCacheTTL != 30*time.Second {
		t.Errorf("Expected 30s flag cache TTL, got %v", cfg.FlagCacheTTL)
	}
	if cfg.GenerationTimeout != 0 {
		t.Errorf("Expected no generation timeout by default, got %v", cfg.GenerationTimeout)
	}
}

func TestLoad_MongoURISelectsMongo(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/studyforge")
	t.Setenv("STORE_BACKEND", "")

	if got := Load().StoreBackend; got != StoreBackendMongo {
		t.Errorf("Expected mongo backend, got %s", got)
	}

	t.Setenv("STORE_BACKEND", "SQL")
	if got := Load().StoreBackend; got != StoreBackendSQL {
		t.Errorf("Expected explicit STORE_BACKEND to win, got %s", got)
	}
}

func TestIsAdminEmail(t *testing.T) {
	t.Setenv("ADMIN_EMAILS", " Admin@Example.com , ops@example.com,")

	cfg := Load()
	if len(cfg.AdminEmails) != 2 {
		t.Fatalf("Expected 2 admin emails, got %v", cfg.AdminEmails)
	}
	if !cfg.IsAdminEmail("admin@example.com") {
		t.Error("Expected case-insensitive match for admin@example.com")
	}
	if cfg.IsAdminEmail("someone@example.com") {
		t.Error("Did not expect someone@example.com to be an admin email")
	}
}

func TestGetDurationEnv_InvalidFallsBack(t *testing.T) {
	t.Setenv("JWT_ACCESS_TOKEN_EXPIRY", "soon")

	if got := Load().AccessTokenExpiry; got != 15*time.Minute {
		t.Errorf("Expected fallback to 15m, got %v", got)
	}
}
