package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FRONTEND_URL", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" || cfg.DB.Driver != "sqlite" {
		t.Fatalf("unexpected defaults: port=%s driver=%s", cfg.Port, cfg.DB.Driver)
	}
	if cfg.ProfileRetry.MaxRetries != 3 || cfg.ProfileRetry.Delay != time.Second {
		t.Fatalf("unexpected profile retry: %+v", cfg.ProfileRetry)
	}
	if cfg.Voice.OpeningDelay != 500*time.Millisecond {
		t.Fatalf("opening delay=%v, want 500ms", cfg.Voice.OpeningDelay)
	}
	if !cfg.IsDevelopment() {
		t.Fatal("empty FRONTEND_URL should be development")
	}
	if got := cfg.AllowedOrigins(); len(got) != 1 || got[0] != "*" {
		t.Fatalf("AllowedOrigins=%v, want [*]", got)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FRONTEND_URL", "https://buddy.example.com")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("VOICE_PROVIDER", "ElevenLabs")
	t.Setenv("PROFILE_RETRY_DELAY", "250ms")
	t.Setenv("CONVERSATION_LOG_ENABLED", "off")
	t.Setenv("CHAT_HISTORY_LIMIT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Voice.Provider != "elevenlabs" {
		t.Fatalf("provider=%q, want elevenlabs", cfg.Voice.Provider)
	}
	if cfg.ProfileRetry.Delay != 250*time.Millisecond {
		t.Fatalf("delay=%v, want 250ms", cfg.ProfileRetry.Delay)
	}
	if cfg.ConversationLog.Enabled {
		t.Fatal("conversation log should be disabled")
	}
	if cfg.HistoryLimit != 50 {
		t.Fatalf("history limit=%d, want fallback 50", cfg.HistoryLimit)
	}
	if cfg.IsDevelopment() {
		t.Fatal("explicit frontend URL should not be development")
	}
	if got := cfg.AllowedOrigins(); len(got) != 1 || got[0] != "https://buddy.example.com" {
		t.Fatalf("AllowedOrigins=%v", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"secret required in production", map[string]string{"FRONTEND_URL": "https://x.example.com", "JWT_SECRET": ""}, "JWT_SECRET"},
		{"postgres needs url", map[string]string{"DB_DRIVER": "postgres", "DATABASE_URL": ""}, "DATABASE_URL"},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"unknown completion", map[string]string{"COMPLETION_PROVIDER": "other"}, "COMPLETION_PROVIDER"},
		{"unknown voice", map[string]string{"VOICE_PROVIDER": "other"}, "VOICE_PROVIDER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FRONTEND_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err=%v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
