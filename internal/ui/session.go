/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mangawizard/internal/backend"
	"mangawizard/internal/config"
	"mangawizard/internal/export"
	"mangawizard/internal/imaging"
	applog "mangawizard/internal/log"
	"mangawizard/internal/settings"
	"mangawizard/internal/telemetry"
	"mangawizard/internal/wizard"
)

// SessionOptions overrides parts of the wiring. Zero values load from the user config.
type SessionOptions struct {
	Config   *config.AppConfig
	Token    string
	Settings settings.Store // nil opens the SQLite store in the config dir
	Keys     wizard.KeyCache
}

// Session bundles everything one running wizard needs.
type Session struct {
	Config     config.AppConfig
	Client     *backend.Client
	Controller *wizard.Controller
	Settings   settings.Store
	Telemetry  *telemetry.Client
	Images     *imaging.Cache

	log    *slog.Logger
	unsub  func()
	closer func() error
}

// OpenSession loads configuration and builds the controller.
func OpenSession(opts SessionOptions) (*Session, error) {
	l := applog.WithComponent("session")
	cfg, token := config.Defaults(), opts.Token
	if opts.Config != nil {
		cfg = *opts.Config
	} else {
		loaded, tok, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		if token == "" {
			token = tok
		}
	}

	s := &Session{Config: cfg, Settings: opts.Settings, log: l}
	if s.Settings == nil {
		s.Settings = &settings.MemoryStore{}
		if dir, err := config.Dir(); err != nil {
			l.Warn("config dir unavailable, settings kept in memory", slog.Any("err", err))
		} else if err := os.MkdirAll(dir, 0o755); err != nil {
			l.Warn("create config dir failed, settings kept in memory", slog.Any("err", err))
		} else if db, err := settings.OpenDefault(dir); err != nil {
			l.Warn("open settings store failed, settings kept in memory", slog.Any("err", err))
		} else {
			s.Settings, s.closer = db, db.Close
		}
	}

	keys := opts.Keys
	if keys == nil && cfg.General.RememberAPIKey {
		keys = config.APIKeys{}
	}

	s.Client = backend.NewClient(backend.Options{
		BaseURL:     cfg.Backend.BaseURL,
		Token:       token,
		Timeout:     cfg.Backend.Timeout(),
		TLSInsecure: cfg.Backend.TLSInsecure,
	})
	s.Controller = wizard.New(wizard.Options{
		Backend:       s.Client,
		Store:         s.Settings,
		Keys:          keys,
		RegenInterval: cfg.Generation.RegenInterval(),
		RegenBurst:    cfg.Generation.RegenBurst,
	})
	s.Images = imaging.NewCache(10 * time.Minute)

	telemetry.NewDefault(telemetry.FromAppConfig(cfg))
	s.Telemetry = telemetry.Default()
	s.unsub = s.Controller.Subscribe(telemetry.NewWizardObserver(s.Telemetry).Observe)

	l.Info("session ready", slog.String("backend", cfg.Backend.BaseURL), slog.Bool("telemetry", s.Telemetry.Enabled()))
	return s, nil
}

// Close flushes telemetry and releases the settings store.
func (s *Session) Close() error {
	if s.unsub != nil {
		s.unsub()
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	s.Telemetry.Flush(ctx)
	cancel()
	s.Images.Flush()
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

// SaveState writes the current storyboard with its generated page images to dir.
// It is used as a crash hook, so it never panics on an empty state.
func (s *Session) SaveState(dir string) (string, error) {
	st := s.Controller.State()
	if st.Storyboard == nil {
		return "", errors.New("nothing to save")
	}
	snap := struct {
		Prompt     string         `json:"prompt"`
		Step       string         `json:"step"`
		Storyboard any            `json:"storyboard"`
		Images     map[int]string `json:"images,omitempty"`
		Prompts    map[int]string `json:"prompts,omitempty"`
	}{Prompt: st.Prompt, Step: st.Step.String(), Storyboard: st.Storyboard, Images: map[int]string{}, Prompts: map[int]string{}}
	for _, p := range st.Pages {
		if p.HasImage() {
			snap.Images[p.PageNumber] = p.ImageURL
		}
		if p.EditablePrompt != "" {
			snap.Prompts[p.PageNumber] = p.EditablePrompt
		}
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("wizard-%s.json", time.Now().Format("20060102-150405")))
	return path, os.WriteFile(path, b, 0o600)
}

// Export writes the completed pages of the current state into outDir.
func (s *Session) Export(ctx context.Context, outDir string, preset export.PresetName, rtl bool) (export.Result, error) {
	st := s.Controller.State()
	book := export.Book{Writer: st.Prompt, Series: "Manga Wizard", Pages: st.CompletedPages()}
	if st.Storyboard != nil {
		book.Title = st.Storyboard.Title
	}
	if book.Title == "" {
		book.Title = "manga"
	}
	res, err := export.BatchExport(ctx, book, export.BatchOptions{Preset: preset, OutDir: outDir, RightToLeft: rtl})
	if err != nil {
		return res, err
	}
	telemetry.Event("pages.exported", map[string]any{"preset": string(preset), "pages": res.Pages})
	return res, nil
}
