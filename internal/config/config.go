// Manages the storage root configuration stored in docstore.yaml.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/maruel/docstore/internal/token"
)

// FileName is the configuration file at the storage root.
const FileName = "docstore.yaml"

// Config stores the settings of a storage root.
// Loaded from docstore.yaml; missing fields keep their defaults.
type Config struct {
	// Alerts logs every mutation at info level.
	Alerts bool `yaml:"alerts"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// CreateRoot creates the storage root directory when it is missing.
	CreateRoot bool `yaml:"create_root"`

	// FileLock serializes access with other processes using an advisory lock
	// file.
	FileLock bool `yaml:"file_lock"`

	History History `yaml:"history"`
	Watch   Watch   `yaml:"watch"`
	Token   Token   `yaml:"token"`
}

// History configures the git history of the storage root.
type History struct {
	Enabled     bool   `yaml:"enabled"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// Validate checks that an enabled history has an author.
func (h *History) Validate() error {
	if !h.Enabled {
		return nil
	}
	if h.AuthorName == "" {
		return errors.New("author_name is required")
	}
	if h.AuthorEmail == "" {
		return errors.New("author_email is required")
	}
	return nil
}

// Watch configures change notifications.
type Watch struct {
	// Throttle limits written events to one per file and interval. 0 disables
	// throttling.
	Throttle time.Duration `yaml:"throttle"`
}

// Token configures the token command defaults.
type Token struct {
	Length   int      `yaml:"length"`
	Alphabet string   `yaml:"alphabet,omitempty"`
	Exclude  []string `yaml:"exclude,omitempty"`
}

// Options converts the settings for token.Generate.
func (t *Token) Options() (*token.Options, error) {
	opts := &token.Options{Alphabet: t.Alphabet}
	for _, s := range t.Exclude {
		c, err := token.ParseClass(s)
		if err != nil {
			return nil, err
		}
		opts.Exclude = append(opts.Exclude, c)
	}
	return opts, nil
}

// Validate checks the length and exclusions, and that the alphabet leaves
// enough symbols.
func (t *Token) Validate() error {
	opts, err := t.Options()
	if err != nil {
		return err
	}
	if _, err := token.Generate(t.Length, opts); err != nil {
		return err
	}
	return nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		FileLock: true,
		History: History{
			AuthorName:  "docstore",
			AuthorEmail: "docstore@localhost",
		},
		Token: Token{Length: 16},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level: %q", c.LogLevel)
	}
	if err := c.History.Validate(); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if c.Watch.Throttle < 0 {
		return errors.New("watch: throttle must be non-negative")
	}
	if err := c.Token.Validate(); err != nil {
		return fmt.Errorf("token: %w", err)
	}
	return nil
}

// Load reads the configuration at path over the defaults.
//
// A missing file yields the defaults. Unknown fields are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is the configuration file chosen by the user
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
