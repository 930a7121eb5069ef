package config

import (
	"fmt"
	"strings"
	"testing"
)

// fakeBackend is an in-memory ConfigBackend.
type fakeBackend struct {
	strings map[string]string
	ints    map[string]int
}

func (b *fakeBackend) GetString(key string) (string, bool, error) {
	v, ok := b.strings[key]
	return v, ok, nil
}

func (b *fakeBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.ints[key]
	return v, ok, nil
}

func (b *fakeBackend) SetString(key, val string) error {
	if b.strings == nil {
		b.strings = make(map[string]string)
	}
	b.strings[key] = val
	return nil
}

func (b *fakeBackend) SetInt(key string, val int) error {
	if b.ints == nil {
		b.ints = make(map[string]int)
	}
	b.ints[key] = val
	return nil
}

func (b *fakeBackend) Delete(key string) error {
	delete(b.strings, key)
	delete(b.ints, key)
	return nil
}

// fakeKeychain returns canned secrets.
type fakeKeychain map[string]string

func (kc fakeKeychain) Get(service, account string) (string, error) {
	if v, ok := kc[account]; ok {
		return v, nil
	}
	return "", fmt.Errorf("not found")
}

func TestLoadWith_Defaults(t *testing.T) {
	kc := fakeKeychain{"gemini_api_key": "gk", "gmail_token": "gt"}
	cfg, err := loadWith(&fakeBackend{}, kc)
	if err != nil {
		t.Fatalf("loadWith() error = %v", err)
	}

	if cfg.Server.Port != 4200 {
		t.Errorf("Port = %d, want 4200", cfg.Server.Port)
	}
	if cfg.Gmail.PendingLabel != "jobs-to-process" {
		t.Errorf("PendingLabel = %q", cfg.Gmail.PendingLabel)
	}
	if cfg.Gemini.Model != "gemini-2.0-flash" {
		t.Errorf("Model = %q", cfg.Gemini.Model)
	}
	if cfg.Pipeline.MaxMessages != 40 || cfg.Pipeline.Budget != "4m" {
		t.Errorf("Pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Gemini.APIKey != "gk" || cfg.Gmail.AccessToken != "gt" {
		t.Error("secrets not read from keychain")
	}
}

func TestLoadWith_BackendOverridesDefaults(t *testing.T) {
	b := &fakeBackend{
		strings: map[string]string{"gmail.pending_label": "inbox-jobs"},
		ints:    map[string]int{"server.port": 9999, "pipeline.max_threads": 5},
	}
	kc := fakeKeychain{"gemini_api_key": "gk", "gmail_token": "gt"}

	cfg, err := loadWith(b, kc)
	if err != nil {
		t.Fatalf("loadWith() error = %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Gmail.PendingLabel != "inbox-jobs" {
		t.Errorf("PendingLabel = %q, want inbox-jobs", cfg.Gmail.PendingLabel)
	}
	if cfg.Pipeline.MaxThreads != 5 {
		t.Errorf("MaxThreads = %d, want 5", cfg.Pipeline.MaxThreads)
	}
}

func TestLoadWith_EnvOverridesBackend(t *testing.T) {
	t.Setenv("APPTRACK_GMAIL_PENDING_LABEL", "from-env")
	t.Setenv("APPTRACK_GEMINI_API_KEY", "env-key")
	t.Setenv("APPTRACK_GMAIL_TOKEN", "env-token")

	b := &fakeBackend{strings: map[string]string{"gmail.pending_label": "from-backend"}}
	cfg, err := loadWith(b, fakeKeychain{})
	if err != nil {
		t.Fatalf("loadWith() error = %v", err)
	}
	if cfg.Gmail.PendingLabel != "from-env" {
		t.Errorf("PendingLabel = %q, want env value", cfg.Gmail.PendingLabel)
	}
	if cfg.Gemini.APIKey != "env-key" || cfg.Gmail.AccessToken != "env-token" {
		t.Error("secret env overrides not applied")
	}
}

func TestLoadWith_MissingSecretsFail(t *testing.T) {
	_, err := loadWith(&fakeBackend{}, fakeKeychain{})
	if err == nil {
		t.Fatal("loadWith() = nil error, want missing-key failure")
	}
	if !strings.Contains(err.Error(), "APPTRACK_GEMINI_API_KEY") {
		t.Errorf("error %q does not name the env var", err)
	}

	_, err = loadWith(&fakeBackend{}, fakeKeychain{"gemini_api_key": "gk"})
	if err == nil || !strings.Contains(err.Error(), "APPTRACK_GMAIL_TOKEN") {
		t.Errorf("error = %v, want missing gmail token", err)
	}
}

func TestSetKey_RejectsSecrets(t *testing.T) {
	if err := SetKey("gemini.api_key", "x"); err == nil {
		t.Error("SetKey(secret) = nil error, want refusal")
	}
}

func TestSetKey_UnknownKey(t *testing.T) {
	if err := SetKey("nope.nothing", "x"); err == nil {
		t.Error("SetKey(unknown) = nil error, want failure")
	}
}

func TestShowAll_OmitsSecrets(t *testing.T) {
	kc := fakeKeychain{"gemini_api_key": "gk", "gmail_token": "gt"}
	cfg, err := loadWith(&fakeBackend{}, kc)
	if err != nil {
		t.Fatalf("loadWith() error = %v", err)
	}

	for _, k := range ShowAll(cfg) {
		if k.Key == "gemini.api_key" || k.Key == "gmail.access_token" {
			t.Errorf("ShowAll exposes secret key %q", k.Key)
		}
	}
}
