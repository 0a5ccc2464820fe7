/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"mangawizard/internal/domain"
	applog "mangawizard/internal/log"
)

// Options configures a Client.
type Options struct {
	BaseURL     string
	Token       string        // optional bearer token
	Timeout     time.Duration // request/response calls only; streams are bounded by their context
	TLSInsecure bool
}

// Client talks to the generation service. Request/response calls go through
// resty; streaming calls read the response body through a frame Decoder.
type Client struct {
	BaseURL string
	http    *resty.Client
	stream  *http.Client
	token   string
	log     *slog.Logger
}

// NewClient creates a new backend client. The base URL may include a trailing slash; it is normalized.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	l := applog.WithComponent("backend").With(slog.String("base_url", base))

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.TLSInsecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-hosted dev backends
	}

	rc := resty.New().
		SetTransport(transport).
		SetBaseURL(base).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetLogger(restyLogger{l})
	if opts.Token != "" {
		rc.SetAuthToken(opts.Token)
	}
	return &Client{
		BaseURL: base,
		http:    rc,
		stream:  &http.Client{Transport: transport},
		token:   opts.Token,
		log:     l,
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("backend %s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
	if b := strings.TrimSpace(e.Body); b != "" {
		if len(b) > 300 {
			b = b[:300] + "…"
		}
		msg += ": " + b
	}
	return msg
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, dest any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	c.log.Debug("request done", slog.String("method", method), slog.String("path", path),
		slog.Int("status", resp.StatusCode()), slog.Duration("took", time.Since(start)))
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode(), Body: string(resp.Body())}
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), dest); err != nil {
		return fmt.Errorf("backend %s %s: decode response: %w", method, path, err)
	}
	return nil
}

type configStatus struct {
	IsConfigured bool `json:"is_configured"`
}

// CheckConfigStatus reports whether an API credential is configured server-side.
func (c *Client) CheckConfigStatus(ctx context.Context) (bool, error) {
	var st configStatus
	if err := c.doJSON(ctx, http.MethodGet, "/config/status", nil, &st); err != nil {
		return false, err
	}
	return st.IsConfigured, nil
}

// SetAPIKey registers a generation credential with the service.
func (c *Client) SetAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("api key is empty")
	}
	return c.doJSON(ctx, http.MethodPost, "/config/api-key", map[string]string{"api_key": key}, nil)
}

// GenerateStoryboard requests a storyboard without streaming progress.
func (c *Client) GenerateStoryboard(ctx context.Context, req StoryboardRequest) (*domain.Storyboard, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, "/generate/storyboard", req, &raw); err != nil {
		return nil, err
	}
	return ParseStoryboard(raw)
}

// GeneratePagesBatch generates one image per requested page. A page missing from
// the result (or with an empty image) failed individually; the call itself succeeded.
func (c *Client) GeneratePagesBatch(ctx context.Context, req BatchRequest) ([]PageResult, error) {
	var resp batchResponse
	if err := c.doJSON(ctx, http.MethodPost, "/generate/pages/batch", req, &resp); err != nil {
		return nil, err
	}
	c.log.Info("batch generated", slog.Int("requested", len(req.Pages)), slog.Int("returned", len(resp.Results)))
	return resp.Results, nil
}

// restyLogger routes resty's internal warnings into slog.
type restyLogger struct{ l *slog.Logger }

func (r restyLogger) Errorf(format string, v ...any) { r.l.Error(fmt.Sprintf(format, v...)) }
func (r restyLogger) Warnf(format string, v ...any)  { r.l.Warn(fmt.Sprintf(format, v...)) }
func (r restyLogger) Debugf(format string, v ...any) { r.l.Debug(fmt.Sprintf(format, v...)) }
