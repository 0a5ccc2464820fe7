/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry provides a tiny, privacy‑respecting, opt‑in event sender
// for anonymous usage metrics and optional crash uploads.
package telemetry

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"mangawizard/internal/config"
	applog "mangawizard/internal/log"
	"mangawizard/internal/version"
)

// Environment variables read by FromEnv.
const (
	EnvOptIn     = config.EnvTelemetryOptIn
	EnvEventsURL = "MGW_TELEMETRY_URL"
	EnvCrashURL  = "MGW_CRASH_UPLOAD_URL"
	EnvTimeoutMs = "MGW_TELEMETRY_TIMEOUT_MS"
	EnvDebug     = "MGW_TELEMETRY_DEBUG"
)

const defaultTimeout = 1500 * time.Millisecond

// Config holds runtime configuration for telemetry and crash uploads.
// All telemetry is strictly opt‑in and disabled by default.
// If no URLs are set, events are dropped even if opt‑in is true.
type Config struct {
	OptIn        bool
	EventsURL    string
	CrashURL     string
	Timeout      time.Duration
	DebugLogging bool
}

// FromEnv reads the MGW_TELEMETRY_* variables.
func FromEnv() Config {
	cfg := Config{
		OptIn:        parseBool(os.Getenv(EnvOptIn)),
		EventsURL:    strings.TrimSpace(os.Getenv(EnvEventsURL)),
		CrashURL:     strings.TrimSpace(os.Getenv(EnvCrashURL)),
		Timeout:      defaultTimeout,
		DebugLogging: os.Getenv(EnvDebug) != "",
	}
	if ms := strings.TrimSpace(os.Getenv(EnvTimeoutMs)); ms != "" {
		if v, err := time.ParseDuration(ms + "ms"); err == nil && v > 0 {
			cfg.Timeout = v
		}
	}
	return cfg
}

// FromAppConfig combines the env endpoints with the opt-in flag from the settings file.
// The file value counts only when the env var is unset.
func FromAppConfig(app config.AppConfig) Config {
	cfg := FromEnv()
	if strings.TrimSpace(os.Getenv(EnvOptIn)) == "" {
		cfg.OptIn = app.General.TelemetryOptIn
	}
	return cfg
}

func parseBool(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// Client is a minimal async sender; it drops events silently on errors.
// It never blocks the caller; the queue is bounded.
type Client struct {
	cfg  Config
	log  *slog.Logger
	http *resty.Client
	q    chan map[string]any
	// pending counts queued events and uploads not yet finished.
	pending atomic.Int64
	once    sync.Once
	closed  chan struct{}
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// InitDefault initializes the package‑level default client from env when first used.
func InitDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
}

// NewDefault creates and installs the default client with cfg, closing the previous one.
func NewDefault(cfg Config) {
	defaultMu.Lock()
	prev := defaultClient
	defaultClient = New(cfg)
	defaultMu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

// Default returns the package-level client.
func Default() *Client {
	InitDefault()
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultClient
}

// New constructs a client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{
		cfg:    cfg,
		log:    applog.WithComponent("telemetry"),
		http:   resty.New().SetTimeout(cfg.Timeout).SetHeader("User-Agent", "mangawizard/"+version.String()),
		q:      make(chan map[string]any, 64),
		closed: make(chan struct{}),
	}
	go c.loop()
	return c
}

// Enabled reports whether anonymous telemetry is enabled and an endpoint is configured.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Enabled reports whether the default client sends events.
func Enabled() bool { return Default().Enabled() }

// Event queues a small JSON event if enabled. Safe to call from anywhere.
// props must not carry prompts, keys or image data.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	payload := map[string]any{
		"name":    name,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"version": version.String(),
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
	for k, v := range props {
		if _, reserved := payload[k]; reserved {
			continue
		}
		payload[k] = v
	}
	c.pending.Add(1)
	select {
	case c.q <- payload:
	default:
		c.pending.Add(-1)
		c.debug("telemetry queue full, event dropped", slog.String("event", name))
	}
}

// Event using default client.
func Event(name string, props map[string]any) { Default().Event(name, props) }

// Flush waits until queued events are sent or ctx ends, at most half a second.
func (c *Client) Flush(ctx context.Context) {
	if c == nil {
		return
	}
	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		if c.pending.Load() == 0 || time.Now().After(deadline) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// Close stops the background goroutine. Queued events are dropped.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.once.Do(func() { close(c.closed) })
}

func (c *Client) loop() {
	for {
		select {
		case <-c.closed:
			return
		case item := <-c.q:
			c.post(c.cfg.EventsURL, "application/json", item, "telemetry event")
			c.pending.Add(-1)
		}
	}
}

func (c *Client) post(url, contentType string, body any, what string) {
	resp, err := c.http.R().
		SetHeader("Content-Type", contentType).
		SetBody(body).
		Post(url)
	if err != nil {
		c.debug(what+" failed", slog.Any("err", err))
		return
	}
	if resp.IsError() {
		c.debug(what+" rejected", slog.Int("status", resp.StatusCode()))
		return
	}
	c.debug(what + " sent")
}

func (c *Client) debug(msg string, attrs ...any) {
	if c.cfg.DebugLogging {
		c.log.Debug(msg, attrs...)
	}
}

// UploadCrash posts an already‑serialized crash report to the configured crash URL if opt‑in.
// It returns immediately; Flush waits for the upload.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" || len(report) == 0 {
		return
	}
	b := append([]byte(nil), report...)
	c.pending.Add(1)
	go func() {
		defer c.pending.Add(-1)
		c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", b, "crash upload")
	}()
}

// UploadCrash using default client.
func UploadCrash(report []byte) { Default().UploadCrash(report) }
