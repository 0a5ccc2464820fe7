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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mangawizard/internal/backend"
	"mangawizard/internal/domain"
	"mangawizard/internal/wizard"
)

const cliStoryboard = `{"title":"Robot","total_pages":1,"pages":[` +
	`{"page_number":1,"layout_description":"wide","panels":[{"panel_number":1,"description":"robot walks","dialogue":null}]}]}`

func storyboardServer(t *testing.T, frames ...string) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			_, _ = io.WriteString(w, "data: "+f+"\n\n")
		}
	}))
	t.Cleanup(srv.Close)
	return backend.NewClient(backend.Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
}

func TestStreamStoryboardPrintsResult(t *testing.T) {
	c := storyboardServer(t,
		`{"type":"thinking","content":"plotting"}`,
		`{"type":"result","content":`+cliStoryboard+`}`,
	)
	var out, thinking bytes.Buffer
	req := backend.StoryboardRequest{Prompt: "A lost robot", AspectRatio: "9:16"}
	if err := streamStoryboard(context.Background(), c, req, &out, &thinking); err != nil {
		t.Fatalf("stream: %v", err)
	}
	if !strings.HasPrefix(thinking.String(), "plotting") {
		t.Fatalf("thinking = %q", thinking.String())
	}
	var sb domain.Storyboard
	if err := json.Unmarshal(out.Bytes(), &sb); err != nil {
		t.Fatalf("output is not a storyboard: %v\n%s", err, out.String())
	}
	if sb.Title != "Robot" || len(sb.Pages) != 1 {
		t.Fatalf("storyboard = %+v", sb)
	}
}

func TestStreamStoryboardWithoutResultFails(t *testing.T) {
	c := storyboardServer(t, `{"type":"thinking","content":"plotting"}`, `{"type":"text","content":"draft"}`)
	var out bytes.Buffer
	err := streamStoryboard(context.Background(), c, backend.StoryboardRequest{Prompt: "x", AspectRatio: "1:1"}, &out, io.Discard)
	if !errors.Is(err, wizard.ErrStreamEnded) {
		t.Fatalf("want ErrStreamEnded, got %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestStreamStoryboardErrorEvent(t *testing.T) {
	c := storyboardServer(t, `{"type":"error","content":"quota exceeded"}`)
	err := streamStoryboard(context.Background(), c, backend.StoryboardRequest{Prompt: "x", AspectRatio: "1:1"}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("err = %v", err)
	}
}

func TestRunStoryboardRejectsBadAspect(t *testing.T) {
	err := runStoryboard(context.Background(), []string{"-aspect", "3:2", "A lost robot"})
	if err == nil || !strings.Contains(err.Error(), "16:9, 4:3, 1:1, 9:16") {
		t.Fatalf("err = %v", err)
	}
	if err := runStoryboard(context.Background(), []string{"-aspect", "1:1"}); err == nil {
		t.Fatalf("missing idea accepted")
	}
}
