package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"

	"github.com/witanlabs/rowsmith/internal/atomicfile"
)

// DefaultPrompt is the instruction sent with every unit.
const DefaultPrompt = "Instructions: Reword the following text while preserving all HTML tags and structure. " +
	"Only modify the text content within <p> and </p> tags. Do not alter or remove any HTML tags, " +
	"attributes, or other markup. Ensure the output is valid HTML and retains the original structure."

const (
	BackendAuto   = "auto"
	BackendLocal  = "local"
	BackendRemote = "remote"
	BackendStream = "stream"
	BackendNone   = "none"

	ModeSpans = "spans"
	ModeWhole = "whole"
)

// Config is the effective configuration. It is built once by the root
// command and passed down by value.
type Config struct {
	Backend               string       `json:"backend"`
	Prompt                string       `json:"prompt"`
	MaxLength             int          `json:"max_length"`
	RequestTimeoutSeconds int          `json:"request_timeout_seconds"`
	Mode                  string       `json:"mode"`
	Tag                   string       `json:"tag"`
	Concurrency           int          `json:"concurrency"`
	Cache                 bool         `json:"cache"`
	Remote                RemoteConfig `json:"remote"`
	Local                 LocalConfig  `json:"local"`
	Stream                StreamConfig `json:"stream"`
	Log                   LogConfig    `json:"log"`
}

type RemoteConfig struct {
	BaseURL           string  `json:"base_url"`
	APIKey            string  `json:"api_key,omitempty"`
	Model             string  `json:"model"`
	Temperature       float64 `json:"temperature"`
	RequestsPerMinute int     `json:"requests_per_minute"`
}

type LocalConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

type StreamConfig struct {
	URL string `json:"url"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend:               BackendAuto,
		Prompt:                DefaultPrompt,
		MaxLength:             1024,
		RequestTimeoutSeconds: 60,
		Mode:                  ModeSpans,
		Tag:                   "p",
		Concurrency:           1,
		Cache:                 true,
		Remote: RemoteConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-3.5-turbo",
			Temperature: 0.5,
		},
		Local: LocalConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama3.2",
		},
		Stream: StreamConfig{
			URL: "ws://localhost:5005/api/v1/stream",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

var tagPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required,
			validation.In(BackendAuto, BackendLocal, BackendRemote, BackendStream, BackendNone)),
		validation.Field(&c.Prompt, validation.Required),
		validation.Field(&c.MaxLength, validation.Required, validation.Min(1)),
		validation.Field(&c.RequestTimeoutSeconds, validation.Required, validation.Min(1)),
		validation.Field(&c.Mode, validation.Required, validation.In(ModeSpans, ModeWhole)),
		validation.Field(&c.Tag, validation.When(c.Mode == ModeSpans,
			validation.Required,
			validation.Match(tagPattern).Error("must be a bare element name such as p or li"))),
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1)),
		validation.Field(&c.Remote),
		validation.Field(&c.Local),
		validation.Field(&c.Stream),
		validation.Field(&c.Log),
	)
}

func (r RemoteConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.BaseURL, validation.Required),
		validation.Field(&r.Model, validation.Required),
		validation.Field(&r.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&r.RequestsPerMinute, validation.Min(0)),
	)
}

func (l LocalConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.BaseURL, validation.Required),
		validation.Field(&l.Model, validation.Required),
	)
}

func (s StreamConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.URL, validation.Required, validation.By(func(value any) error {
			u, _ := value.(string)
			if !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
				return validation.NewError("validation_stream_url", "must start with ws:// or wss://")
			}
			return nil
		})),
	)
}

func (l LogConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("trace", "debug", "info", "warn", "warning", "error")),
		validation.Field(&l.Format, validation.In("console", "json", "pretty")),
	)
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if k := c.Remote.APIKey; k != "" {
		if len(k) > 8 {
			c.Remote.APIKey = k[:3] + "..." + k[len(k)-4:]
		} else {
			c.Remote.APIKey = "***"
		}
	}
	return c
}

// Dir resolves the configuration directory.
func Dir() (string, error) {
	if v := os.Getenv("ROWSMITH_CONFIG_DIR"); v != "" {
		return v, nil
	}
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "rowsmith"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rowsmith"), nil
}

// FilePath is the default config file location.
func FilePath() (string, error) {
	d, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config.json"), nil
}

// Load reads the config file at path (the default location when empty) over
// the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		p, err := FilePath()
		if err != nil {
			return cfg, err
		}
		path = p
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path (the default location when empty) atomically.
func Save(path string, cfg Config) error {
	if path == "" {
		p, err := FilePath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return atomicfile.WriteFile(path, data, 0600)
}

// Delete removes the config file.
func Delete(path string) error {
	if path == "" {
		p, err := FilePath()
		if err != nil {
			return err
		}
		path = p
	}
	err := os.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays ROWSMITH_* variables (and OPENAI_API_KEY) onto cfg.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"ROWSMITH_BACKEND", &cfg.Backend},
		{"ROWSMITH_PROMPT", &cfg.Prompt},
		{"ROWSMITH_MODE", &cfg.Mode},
		{"ROWSMITH_TAG", &cfg.Tag},
		{"OPENAI_API_KEY", &cfg.Remote.APIKey},
		{"ROWSMITH_REMOTE_API_KEY", &cfg.Remote.APIKey},
		{"ROWSMITH_REMOTE_BASE_URL", &cfg.Remote.BaseURL},
		{"ROWSMITH_REMOTE_MODEL", &cfg.Remote.Model},
		{"ROWSMITH_LOCAL_BASE_URL", &cfg.Local.BaseURL},
		{"ROWSMITH_LOCAL_MODEL", &cfg.Local.Model},
		{"ROWSMITH_STREAM_URL", &cfg.Stream.URL},
		{"ROWSMITH_LOG_LEVEL", &cfg.Log.Level},
		{"ROWSMITH_LOG_FORMAT", &cfg.Log.Format},
	}
	for _, s := range strs {
		if v := strings.TrimSpace(getenv(s.key)); v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"ROWSMITH_MAX_LENGTH", &cfg.MaxLength},
		{"ROWSMITH_REQUEST_TIMEOUT_SECONDS", &cfg.RequestTimeoutSeconds},
		{"ROWSMITH_CONCURRENCY", &cfg.Concurrency},
		{"ROWSMITH_REMOTE_REQUESTS_PER_MINUTE", &cfg.Remote.RequestsPerMinute},
	}
	for _, i := range ints {
		v := strings.TrimSpace(getenv(i.key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", i.key, v)
		}
		*i.dst = n
	}

	if v := strings.TrimSpace(getenv("ROWSMITH_REMOTE_TEMPERATURE")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("ROWSMITH_REMOTE_TEMPERATURE: %q is not a number", v)
		}
		cfg.Remote.Temperature = f
	}
	if v := strings.TrimSpace(getenv("ROWSMITH_CACHE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ROWSMITH_CACHE: %q is not a boolean", v)
		}
		cfg.Cache = b
	}
	return nil
}
