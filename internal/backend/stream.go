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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"mangawizard/internal/domain"
)

// EventKind identifies a stream event.
type EventKind string

const (
	EventThinking EventKind = "thinking"
	EventText     EventKind = "text"
	EventResult   EventKind = "result"
	EventImage    EventKind = "image"
	EventError    EventKind = "error"
)

// Event is one decoded stream event. Text carries thinking/text increments and
// error messages; Storyboard is set for result events; Image and PageNumber
// for image events.
type Event struct {
	Kind       EventKind
	Text       string
	Storyboard *domain.Storyboard
	Image      string
	PageNumber int
}

// Terminal reports whether the event ends its stream.
func (e Event) Terminal() bool {
	return e.Kind == EventResult || e.Kind == EventImage || e.Kind == EventError
}

// Stream yields events until a terminal event, then io.EOF.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

type wireEvent struct {
	Type       string          `json:"type"`
	Content    json.RawMessage `json:"content"`
	PageNumber int             `json:"page_number"`
}

type streamKind int

const (
	storyboardStream streamKind = iota
	pageStream
)

type eventStream struct {
	body   io.ReadCloser
	dec    *Decoder
	kind   streamKind
	log    *slog.Logger
	done   bool
	closer sync.Once
}

func (s *eventStream) Recv() (Event, error) {
	for {
		if s.done {
			return Event{}, io.EOF
		}
		payload, err := s.dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) && s.dec.Discarded > 0 {
				s.log.Debug("discarded incomplete trailing frame", slog.Int("bytes", s.dec.Discarded))
			}
			s.done = true
			_ = s.Close()
			return Event{}, err
		}
		ev, ok := s.decode(payload)
		if !ok {
			continue
		}
		if ev.Terminal() {
			s.done = true
			_ = s.Close()
		}
		return ev, nil
	}
}

func (s *eventStream) Close() error {
	var err error
	s.closer.Do(func() { err = s.body.Close() })
	return err
}

func (s *eventStream) decode(payload string) (Event, bool) {
	var w wireEvent
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		s.log.Warn("malformed frame dropped", slog.Any("err", err), slog.String("frame", payload))
		return Event{}, false
	}
	kind := EventKind(w.Type)
	switch {
	case kind == EventThinking,
		kind == EventError,
		kind == EventText && s.kind == storyboardStream,
		kind == EventImage && s.kind == pageStream:
		text, err := contentString(w.Content)
		if err != nil {
			s.log.Warn("malformed frame dropped", slog.String("type", w.Type), slog.Any("err", err))
			return Event{}, false
		}
		if kind == EventImage {
			if text == "" {
				return Event{Kind: EventError, Text: "image event without data"}, true
			}
			return Event{Kind: EventImage, Image: text, PageNumber: w.PageNumber}, true
		}
		return Event{Kind: kind, Text: text}, true
	case kind == EventResult && s.kind == storyboardStream:
		sb, err := ParseStoryboard(w.Content)
		if err != nil {
			s.log.Warn("storyboard result rejected", slog.Any("err", err))
			return Event{Kind: EventError, Text: err.Error()}, true
		}
		return Event{Kind: EventResult, Storyboard: sb}, true
	default:
		s.log.Debug("unknown event ignored", slog.String("type", w.Type))
		return Event{}, false
	}
}

// contentString accepts a JSON string; other JSON values are passed through as text.
func contentString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	if !json.Valid(raw) {
		return "", fmt.Errorf("invalid content")
	}
	return string(raw), nil
}

func (c *Client) openStream(ctx context.Context, path string, body any, kind streamKind) (Stream, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend POST %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Method: http.MethodPost, Path: path, Code: resp.StatusCode, Body: string(b)}
	}
	c.log.Debug("stream opened", slog.String("path", path))
	return &eventStream{
		body: resp.Body,
		dec:  NewDecoder(resp.Body),
		kind: kind,
		log:  c.log.With(slog.String("path", path)),
	}, nil
}

// StreamStoryboard opens POST /generate/storyboard/stream. Events: thinking, text, result, error.
func (c *Client) StreamStoryboard(ctx context.Context, req StoryboardRequest) (Stream, error) {
	return c.openStream(ctx, "/generate/storyboard/stream", req, storyboardStream)
}

// StreamPage opens POST /generate/page/stream. Events: thinking, image, error.
func (c *Client) StreamPage(ctx context.Context, req PageRequest) (Stream, error) {
	return c.openStream(ctx, "/generate/page/stream", req, pageStream)
}

// StoryboardHandlers receives storyboard stream events. Nil callbacks are skipped.
type StoryboardHandlers struct {
	OnThinking func(text string, kind EventKind)
	OnComplete func(sb *domain.Storyboard)
	OnError    func(msg string)
}

// PageHandlers receives page stream events. Nil callbacks are skipped.
type PageHandlers struct {
	OnThinking func(text string)
	OnImage    func(image string, pageNumber int)
	OnError    func(msg string)
}

// GenerateStoryboardStream drives a storyboard stream to its end, dispatching events.
// OnComplete is called at most once. The returned error covers transport failures only.
func (c *Client) GenerateStoryboardStream(ctx context.Context, req StoryboardRequest, h StoryboardHandlers) error {
	st, err := c.StreamStoryboard(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	return drain(st, func(ev Event) {
		switch ev.Kind {
		case EventThinking, EventText:
			if h.OnThinking != nil {
				h.OnThinking(ev.Text, ev.Kind)
			}
		case EventResult:
			if h.OnComplete != nil {
				h.OnComplete(ev.Storyboard)
			}
		case EventError:
			if h.OnError != nil {
				h.OnError(ev.Text)
			}
		}
	})
}

// GeneratePageStream drives a page stream to its end, dispatching events.
// OnImage is called at most once.
func (c *Client) GeneratePageStream(ctx context.Context, req PageRequest, h PageHandlers) error {
	st, err := c.StreamPage(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	return drain(st, func(ev Event) {
		switch ev.Kind {
		case EventThinking:
			if h.OnThinking != nil {
				h.OnThinking(ev.Text)
			}
		case EventImage:
			if h.OnImage != nil {
				h.OnImage(ev.Image, ev.PageNumber)
			}
		case EventError:
			if h.OnError != nil {
				h.OnError(ev.Text)
			}
		}
	})
}

func drain(st Stream, fn func(Event)) error {
	for {
		ev, err := st.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fn(ev)
	}
}
