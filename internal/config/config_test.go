package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/maruel/docstore/internal/token"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() is invalid: %v", err)
	}
	if !cfg.FileLock || cfg.LogLevel != "info" || cfg.Token.Length != 16 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoad(t *testing.T) {
	t.Run("Missing", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), FileName))
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}
		if !reflect.DeepEqual(cfg, Default()) {
			t.Errorf("Load(missing) = %+v, want defaults", cfg)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), FileName)
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}
		if !reflect.DeepEqual(cfg, Default()) {
			t.Errorf("Load(empty) = %+v, want defaults", cfg)
		}
	})

	t.Run("Values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), FileName)
		content := strings.Join([]string{
			"alerts: true",
			"log_level: debug",
			"file_lock: false",
			"history:",
			"  enabled: true",
			"  author_name: Ann",
			"watch:",
			"  throttle: 250ms",
			"token:",
			"  length: 8",
			"  alphabet: abc123",
			"  exclude: [number]",
			"",
		}, "\n")
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}
		want := &Config{
			Alerts:   true,
			LogLevel: "debug",
			History:  History{Enabled: true, AuthorName: "Ann", AuthorEmail: "docstore@localhost"},
			Watch:    Watch{Throttle: 250 * time.Millisecond},
			Token:    Token{Length: 8, Alphabet: "abc123", Exclude: []string{"number"}},
		}
		if !reflect.DeepEqual(cfg, want) {
			t.Errorf("Load() = %+v, want %+v", cfg, want)
		}
		opts, err := cfg.Token.Options()
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(opts, &token.Options{Alphabet: "abc123", Exclude: []token.Class{token.Number}}) {
			t.Errorf("Token.Options() = %+v", opts)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		tests := []struct {
			name    string
			content string
		}{
			{"unknown field", "colour: red\n"},
			{"log level", "log_level: verbose\n"},
			{"history author", "history:\n  enabled: true\n  author_email: \"\"\n"},
			{"throttle", "watch:\n  throttle: -1s\n"},
			{"token length", "token:\n  length: 1\n"},
			{"token class", "token:\n  exclude: [symbols]\n"},
			{"token alphabet", "token:\n  alphabet: a\n"},
			{"syntax", "alerts: [\n"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				path := filepath.Join(t.TempDir(), FileName)
				if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
					t.Fatal(err)
				}
				if _, err := Load(path); err == nil {
					t.Errorf("Load(%q) expected an error", tt.content)
				}
			})
		}
	})
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	cfg := Default()
	cfg.Alerts = true
	cfg.Watch.Throttle = 2 * time.Second
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Errorf("Load() = %+v, want %+v", got, cfg)
	}

	cfg.LogLevel = "loud"
	if err := cfg.Save(path); err == nil {
		t.Error("Save() of an invalid config expected an error")
	}
}
