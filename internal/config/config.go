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
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
// Style settings (art style, aspect ratio, ...) are not part of it; they live in the
// local settings store next to this file.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type BackendConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	TLSInsecure bool   `yaml:"tls_insecure"`
	// Token is not stored on disk; it lives in the OS keychain or MGW_BACKEND_TOKEN.
}

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	Theme          string `yaml:"theme"` // "system" | "light" | "dark"
	RememberAPIKey bool   `yaml:"remember_api_key"`
}

// GenerationConfig throttles user-triggered page regeneration.
// A negative RegenIntervalMs disables throttling; 0 means the default.
type GenerationConfig struct {
	RegenIntervalMs int `yaml:"regen_interval_ms"`
	RegenBurst      int `yaml:"regen_burst"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int              `yaml:"config_version"`
	General       GeneralConfig    `yaml:"general"`
	Backend       BackendConfig    `yaml:"backend"`
	Generation    GenerationConfig `yaml:"generation"`
	Logging       LoggingConfig    `yaml:"logging"`
}

// DefaultBackendURL is the hosted generation service.
const DefaultBackendURL = "https://ai2comic-api.sparky.qzz.io"

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false, Theme: "system", RememberAPIKey: true},
		Backend:       BackendConfig{BaseURL: DefaultBackendURL, TimeoutMs: 300000, TLSInsecure: false},
		Generation:    GenerationConfig{RegenIntervalMs: 10000, RegenBurst: 3},
		Logging:       LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvConfigDir        = "MGW_CONFIG_DIR"
	EnvBackendURL       = "MGW_BACKEND_URL"
	EnvBackendTimeoutMs = "MGW_BACKEND_TIMEOUT_MS"
	EnvBackendTLSInsec  = "MGW_TLS_INSECURE"
	EnvBackendToken     = "MGW_BACKEND_TOKEN"
	EnvTelemetryOptIn   = "MGW_TELEMETRY_OPT_IN"
	EnvRegenIntervalMs  = "MGW_REGEN_INTERVAL_MS"
	EnvRegenBurst       = "MGW_REGEN_BURST"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "MGW_LOG_LEVEL"
	EnvLogFormat = "MGW_LOG_FORMAT"
	EnvLogSource = "MGW_LOG_SOURCE"
	EnvLogFile   = "MGW_LOG_FILE"
)

// Dir returns the per-user configuration directory. MGW_CONFIG_DIR wins when set.
func Dir() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvConfigDir)); v != "" {
		return v, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "MangaWizard")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "MangaWizard")
	default:
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "mangawizard")
		} else if h := os.Getenv("HOME"); h != "" {
			base = filepath.Join(h, ".config", "mangawizard")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
// The backend token is returned separately: MGW_BACKEND_TOKEN first, then the keyring.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, "", fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, "", fmt.Errorf("read %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	tok := strings.TrimSpace(os.Getenv(EnvBackendToken))
	if tok == "" {
		tok, _ = tokenStore.Get(keyringService, keyringToken)
	}
	return cfg, tok, nil
}

// Save writes the user config YAML and persists the token into the OS keyring (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if src.General.Theme != "" {
		dst.General.Theme = src.General.Theme
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	dst.General.RememberAPIKey = src.General.RememberAPIKey
	if src.Backend.BaseURL != "" {
		dst.Backend.BaseURL = strings.TrimRight(src.Backend.BaseURL, "/")
	}
	if src.Backend.TimeoutMs != 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}
	dst.Backend.TLSInsecure = src.Backend.TLSInsecure
	if src.Generation.RegenIntervalMs != 0 {
		dst.Generation.RegenIntervalMs = src.Generation.RegenIntervalMs
	}
	if src.Generation.RegenBurst > 0 {
		dst.Generation.RegenBurst = src.Generation.RegenBurst
	}
	if v := strings.TrimSpace(src.Logging.Level); v != "" {
		dst.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(src.Logging.Format); v != "" {
		dst.Logging.Format = strings.ToLower(v)
	}
	dst.Logging.Source = src.Logging.Source
	if v := strings.TrimSpace(src.Logging.File); v != "" {
		dst.Logging.File = v
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		cfg.Backend.BaseURL = strings.TrimRight(v, "/")
	}
	if n, ok := envInt(EnvBackendTimeoutMs); ok {
		cfg.Backend.TimeoutMs = n
	}
	if v, ok := envBool(EnvBackendTLSInsec); ok {
		cfg.Backend.TLSInsecure = v
	}
	if v, ok := envBool(EnvTelemetryOptIn); ok {
		cfg.General.TelemetryOptIn = v
	}
	if n, ok := envInt(EnvRegenIntervalMs); ok && n != 0 {
		cfg.Generation.RegenIntervalMs = n
	}
	if n, ok := envInt(EnvRegenBurst); ok && n > 0 {
		cfg.Generation.RegenBurst = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v, ok := envBool(EnvLogSource); ok {
		cfg.Logging.Source = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

func envInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return false, false
	}
	return v == "1" || v == "true" || v == "on" || v == "yes", true
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	names := map[string]string{
		"backend.base_url":             EnvBackendURL,
		"backend.timeout_ms":           EnvBackendTimeoutMs,
		"backend.tls_insecure":         EnvBackendTLSInsec,
		"general.telemetry_opt_in":     EnvTelemetryOptIn,
		"generation.regen_interval_ms": EnvRegenIntervalMs,
		"generation.regen_burst":       EnvRegenBurst,
		"logging.level":                EnvLogLevel,
		"logging.format":               EnvLogFormat,
		"logging.source":               EnvLogSource,
		"logging.file":                 EnvLogFile,
	}
	name, ok := names[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// Timeout returns the request timeout for non-streaming backend calls.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return time.Duration(Defaults().Backend.TimeoutMs) * time.Millisecond
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// RegenInterval returns the minimum spacing between regenerations of one page; 0 disables throttling.
func (g GenerationConfig) RegenInterval() time.Duration {
	if g.RegenIntervalMs < 0 {
		return 0
	}
	if g.RegenIntervalMs == 0 {
		return time.Duration(Defaults().Generation.RegenIntervalMs) * time.Millisecond
	}
	return time.Duration(g.RegenIntervalMs) * time.Millisecond
}
