/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the
// user scope. Environment variables are read-only overrides at runtime; a
// local .env file is honored for development but never wins over the real
// environment.
//
// The client token is not stored on disk; it lives in the OS keychain.

type BackendConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type PollConfig struct {
	IntervalMs  int `yaml:"interval_ms"`
	MaxAttempts int `yaml:"max_attempts"` // per-fetch attempts; 1 means no retry
}

type ExportConfig struct {
	Dir    string `yaml:"dir"`    // empty means <config dir>/exports
	Format string `yaml:"format"` // "jpg" or "png"
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Backend       BackendConfig `yaml:"backend"`
	Poll          PollConfig    `yaml:"poll"`
	Export        ExportConfig  `yaml:"export"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults. The poll interval matches the
// service's expected cadence; a single attempt means fetch failures abort the
// upload rather than being silently retried.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false},
		Backend:       BackendConfig{BaseURL: "http://localhost:8000", TimeoutMs: 15000},
		Poll:          PollConfig{IntervalMs: 900, MaxAttempts: 1},
		Export:        ExportConfig{Dir: "", Format: "jpg"},
		Logging:       LoggingConfig{Level: "info", Format: "console", File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvBackendURL       = "SHR_BACKEND_URL"
	EnvBackendTimeoutMs = "SHR_BACKEND_TIMEOUT_MS"
	EnvPollIntervalMs   = "SHR_POLL_INTERVAL_MS"
	EnvPollMaxAttempts  = "SHR_POLL_MAX_ATTEMPTS"
	EnvExportDir        = "SHR_EXPORT_DIR"
	EnvExportFormat     = "SHR_EXPORT_FORMAT"
	EnvTelemetryOptIn   = "SHR_TELEMETRY_OPT_IN"
	EnvLogLevel         = "SHR_LOG_LEVEL"
	EnvLogFormat        = "SHR_LOG_FORMAT"
	EnvLogFile          = "SHR_LOG_FILE"
)

// Service/key for the OS keyring entry holding the client identity token.
const (
	keyringService = "ShowroomStudio"
	keyringToken   = "client_token"
)

// TokenStore abstracts the keyring so tests can stub it.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// tokenStore is swapped by tests; the default goes through the OS keyring.
var tokenStore TokenStore = &osKeyring{}

// SetTokenStore replaces the token store and returns the previous one.
func SetTokenStore(s TokenStore) TokenStore {
	old := tokenStore
	tokenStore = s
	return old
}

// LoadToken reads the client identity token from the keyring ("" if absent).
func LoadToken() (string, error) {
	tok, err := tokenStore.Get(keyringService, keyringToken)
	if err != nil {
		return "", err
	}
	return tok, nil
}

// StoreToken persists the client identity token into the keyring.
func StoreToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("refusing to store empty token")
	}
	return tokenStore.Set(keyringService, keyringToken, token)
}

// DeleteToken removes the client identity token from the keyring.
func DeleteToken() error { return tokenStore.Delete(keyringService, keyringToken) }

// osKeyring implements TokenStore via github.com/zalando/go-keyring.
// The actual calls live in keyring_real.go / keyring_stub.go (build tags).
type osKeyring struct{}

func (k *osKeyring) Get(service, key string) (string, error) { return keyringGet(service, key) }
func (k *osKeyring) Set(service, key, value string) error    { return keyringSet(service, key, value) }
func (k *osKeyring) Delete(service, key string) error        { return keyringDelete(service, key) }

// ConfigDir returns the per-user configuration directory.
func ConfigDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "ShowroomStudio")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "ShowroomStudio")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "showroom")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges
// environment overrides. A .env file in the working directory is loaded first
// without overriding already-set variables.
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ExportDir resolves the directory exports are written to, creating nothing.
func (c AppConfig) ExportDir() (string, error) {
	if strings.TrimSpace(c.Export.Dir) != "" {
		return c.Export.Dir, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "exports"), nil
}

func mergeInto(dst, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans copy directly from the file so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	if src.Backend.BaseURL != "" {
		dst.Backend.BaseURL = src.Backend.BaseURL
	}
	if src.Backend.TimeoutMs != 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}
	if src.Poll.IntervalMs != 0 {
		dst.Poll.IntervalMs = src.Poll.IntervalMs
	}
	if src.Poll.MaxAttempts != 0 {
		dst.Poll.MaxAttempts = src.Poll.MaxAttempts
	}
	if strings.TrimSpace(src.Export.Dir) != "" {
		dst.Export.Dir = strings.TrimSpace(src.Export.Dir)
	}
	if strings.TrimSpace(src.Export.Format) != "" {
		dst.Export.Format = strings.ToLower(strings.TrimSpace(src.Export.Format))
	}
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.TimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvPollIntervalMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Poll.IntervalMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvPollMaxAttempts)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Poll.MaxAttempts = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvExportDir)); v != "" {
		cfg.Export.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvExportFormat)); v != "" {
		cfg.Export.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		lv := strings.ToLower(v)
		cfg.General.TelemetryOptIn = lv == "1" || lv == "true" || lv == "on" || lv == "yes"
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}
