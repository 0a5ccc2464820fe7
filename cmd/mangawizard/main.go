/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"mangawizard/internal/backend"
	"mangawizard/internal/config"
	"mangawizard/internal/crash"
	"mangawizard/internal/domain"
	applog "mangawizard/internal/log"
	"mangawizard/internal/telemetry"
	"mangawizard/internal/ui"
	"mangawizard/internal/version"
	"mangawizard/internal/wizard"
)

func usage() {
	fmt.Println("Manga Wizard")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  mangawizard version|-v|--version             Show version")
	fmt.Println("  mangawizard ui                                Launch desktop UI (build with -tags fyne for full UI)")
	fmt.Println("  mangawizard status                            Check whether the service has an API key")
	fmt.Println("  mangawizard set-key [-remember] <key>         Register an API key with the service")
	fmt.Println("  mangawizard storyboard [-aspect 9:16] <idea>  Stream a storyboard and print it as JSON")
	fmt.Println("  mangawizard config                            Print the effective configuration")
}

func main() {
	applog.Init(applog.FromEnv())
	l := applog.WithComponent("cli")
	defer crash.Recover(crashDir())

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) < 2 {
		usage()
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch args[1] {
	case "version", "--version", "-v":
		fmt.Println("Manga Wizard")
		fmt.Println(version.String())
		return
	case "ui":
		err = runUI()
	case "status":
		err = runStatus(ctx)
	case "set-key":
		err = runSetKey(ctx, args[2:])
	case "storyboard":
		err = runStoryboard(ctx, args[2:])
	case "config":
		err = runConfig()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		l.Error("command failed", slog.String("cmd", args[1]), slog.Any("err", err))
		fmt.Println("Error:", err)
		stop()
		os.Exit(1)
	}
}

func crashDir() string {
	dir, err := config.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "crashes")
}

func newClient() (*backend.Client, config.AppConfig, error) {
	cfg, token, err := config.Load()
	if err != nil {
		return nil, cfg, err
	}
	telemetry.NewDefault(telemetry.FromAppConfig(cfg))
	return backend.NewClient(backend.Options{
		BaseURL:     cfg.Backend.BaseURL,
		Token:       token,
		Timeout:     cfg.Backend.Timeout(),
		TLSInsecure: cfg.Backend.TLSInsecure,
	}), cfg, nil
}

func runUI() error {
	sess, err := ui.OpenSession(ui.SessionOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()
	return ui.Run(sess)
}

func runStatus(ctx context.Context) error {
	c, cfg, err := newClient()
	if err != nil {
		return err
	}
	ok, err := c.CheckConfigStatus(ctx)
	if err != nil {
		return err
	}
	fmt.Println("Backend:", cfg.Backend.BaseURL)
	if ok {
		fmt.Println("API key: configured")
	} else {
		fmt.Println("API key: missing (run: mangawizard set-key <key>)")
	}
	return nil
}

func runSetKey(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("set-key", flag.ContinueOnError)
	remember := fs.Bool("remember", false, "also store the key in the OS keyring")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key := strings.TrimSpace(fs.Arg(0))
	if key == "" {
		key = strings.TrimSpace(os.Getenv("MGW_API_KEY"))
	}
	if key == "" {
		return errors.New("set-key requires <key> (or MGW_API_KEY)")
	}
	c, _, err := newClient()
	if err != nil {
		return err
	}
	if err := c.SetAPIKey(ctx, key); err != nil {
		return err
	}
	if *remember {
		if err := (config.APIKeys{}).Save(key); err != nil {
			return fmt.Errorf("remember key: %w", err)
		}
	}
	fmt.Println("API key registered.")
	return nil
}

func runStoryboard(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("storyboard", flag.ContinueOnError)
	aspect := fs.String("aspect", string(domain.Aspect9x16), "page aspect ratio (16:9, 4:3, 1:1, 9:16)")
	style := fs.String("style", "", "art style description")
	quiet := fs.Bool("q", false, "do not echo model thinking to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		return errors.New("storyboard requires a story idea")
	}
	if !domain.AspectRatio(*aspect).Valid() {
		return fmt.Errorf("unsupported aspect ratio %q (want one of %s)", *aspect, aspectList())
	}
	c, _, err := newClient()
	if err != nil {
		return err
	}
	defer telemetry.Default().Flush(context.Background())

	thinking := io.Writer(os.Stderr)
	if *quiet {
		thinking = io.Discard
	}
	req := backend.StoryboardRequest{Prompt: prompt, ReferenceStyle: *style, AspectRatio: *aspect}
	return streamStoryboard(ctx, c, req, os.Stdout, thinking)
}

// streamStoryboard writes model thinking to thinking and the finished storyboard as JSON to out.
func streamStoryboard(ctx context.Context, c *backend.Client, req backend.StoryboardRequest, out, thinking io.Writer) error {
	var sb *domain.Storyboard
	var failed error
	err := c.GenerateStoryboardStream(ctx, req, backend.StoryboardHandlers{
		OnThinking: func(text string, _ backend.EventKind) { _, _ = io.WriteString(thinking, text) },
		OnComplete: func(s *domain.Storyboard) { sb = s },
		OnError:    func(msg string) { failed = fmt.Errorf("generation failed: %s", msg) },
	})
	_, _ = fmt.Fprintln(thinking)
	switch {
	case err != nil:
		return err
	case failed != nil:
		return failed
	case sb == nil:
		return wizard.ErrStreamEnded
	}
	telemetry.Event(telemetry.EventStoryboardGenerated, map[string]any{"pages": len(sb.Pages), "aspect_ratio": req.AspectRatio, "source": "cli"})
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(sb)
}

func aspectList() string {
	names := make([]string, len(domain.AspectRatios))
	for i, a := range domain.AspectRatios {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}

func runConfig() error {
	cfg, token, err := config.Load()
	if err != nil {
		return err
	}
	path, _ := config.ConfigPath()
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Println("# file:", path)
	for _, key := range []string{"backend.base_url", "backend.timeout_ms", "general.telemetry_opt_in", "generation.regen_interval_ms", "logging.level"} {
		if env, ok := config.EnvOverrideFor(key); ok && os.Getenv(env) != "" {
			fmt.Printf("# %s overridden by %s\n", key, env)
		}
	}
	if token != "" {
		fmt.Println("# backend token: set")
	}
	fmt.Print(string(out))
	return nil
}
