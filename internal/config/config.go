package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/sethvargo/go-envconfig"
)

// Config captures everything the client needs at startup.
type Config struct {
	APIBaseURL     string
	CredentialPath string
	LogLevel       string
	LogFile        string
	RequestTimeout time.Duration
	Theme          string
	Dev            bool
}

const (
	defaultConfigPath     = "~/.config/famigo/config.toml"
	defaultCredentialPath = "~/.config/famigo/credential.toml"
	defaultLogFile        = "~/.local/state/famigo/famigo.log"
	defaultLogLevel       = "info"
	defaultRequestTimeout = 10 * time.Second
	devAPIBaseURL         = "http://localhost:8080"
)

// ErrBaseURLUnset is returned when no API base URL is configured outside dev mode.
var ErrBaseURLUnset = errors.New("api_base_url is not set (config file or FAMIGO_API_BASE_URL)")

type fileConfig struct {
	APIBaseURL            string `toml:"api_base_url"`
	CredentialPath        string `toml:"credential_path"`
	LogLevel              string `toml:"log_level"`
	LogFile               string `toml:"log_file"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	Theme                 string `toml:"theme"`
	Dev                   bool   `toml:"dev"`
}

type envOverrides struct {
	APIBaseURL            string `env:"FAMIGO_API_BASE_URL"`
	CredentialPath        string `env:"FAMIGO_CREDENTIAL_PATH"`
	LogLevel              string `env:"FAMIGO_LOG_LEVEL"`
	LogFile               string `env:"FAMIGO_LOG_FILE"`
	RequestTimeoutSeconds int    `env:"FAMIGO_REQUEST_TIMEOUT_SECONDS"`
	Theme                 string `env:"FAMIGO_THEME"`
	Dev                   *bool  `env:"FAMIGO_DEV, noinit"`
}

// Load reads the config file at path (empty uses the default location),
// applies FAMIGO_* environment overrides, and validates the result. A missing
// file is not an error; a missing base URL is, unless dev mode is on.
func Load(ctx context.Context, path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	raw, err := readFile(resolved)
	if err != nil {
		return Config{}, err
	}

	var env envOverrides
	if err := envconfig.Process(ctx, &env); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	applyEnv(&raw, env)

	cfg := Config{
		CredentialPath: mustExpand(firstNonEmpty(raw.CredentialPath, defaultCredentialPath)),
		LogLevel:       firstNonEmpty(raw.LogLevel, defaultLogLevel),
		LogFile:        mustExpand(firstNonEmpty(raw.LogFile, defaultLogFile)),
		RequestTimeout: defaultRequestTimeout,
		Theme:          strings.TrimSpace(raw.Theme),
		Dev:            raw.Dev,
	}
	if raw.RequestTimeoutSeconds > 0 {
		cfg.RequestTimeout = time.Duration(raw.RequestTimeoutSeconds) * time.Second
	}

	base := strings.TrimSpace(raw.APIBaseURL)
	if base == "" {
		if !cfg.Dev {
			return Config{}, ErrBaseURLUnset
		}
		base = devAPIBaseURL
	}
	cfg.APIBaseURL, err = NormalizeBaseURL(base)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NormalizeBaseURL trims whitespace and trailing slashes and defaults the
// scheme to http.
func NormalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrBaseURLUnset
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse api_base_url %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("parse api_base_url %q: missing host", raw)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), nil
}

func readFile(resolved string) (fileConfig, error) {
	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileConfig{}, nil
		}
		return fileConfig{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config: %w", err)
	}

	var raw fileConfig
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return fileConfig{}, fmt.Errorf("parse config: %w", err)
	}
	return raw, nil
}

func applyEnv(raw *fileConfig, env envOverrides) {
	if v := strings.TrimSpace(env.APIBaseURL); v != "" {
		raw.APIBaseURL = v
	}
	if v := strings.TrimSpace(env.CredentialPath); v != "" {
		raw.CredentialPath = v
	}
	if v := strings.TrimSpace(env.LogLevel); v != "" {
		raw.LogLevel = v
	}
	if v := strings.TrimSpace(env.LogFile); v != "" {
		raw.LogFile = v
	}
	if env.RequestTimeoutSeconds > 0 {
		raw.RequestTimeoutSeconds = env.RequestTimeoutSeconds
	}
	if v := strings.TrimSpace(env.Theme); v != "" {
		raw.Theme = v
	}
	if env.Dev != nil {
		raw.Dev = *env.Dev
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
