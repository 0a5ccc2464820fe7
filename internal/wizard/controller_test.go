/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package wizard

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"mangawizard/internal/backend"
	"mangawizard/internal/config"
	"mangawizard/internal/domain"
	"mangawizard/internal/settings"
)

type fakeStream struct {
	ctx    context.Context
	events []backend.Event
	block  bool
}

func (s *fakeStream) Recv() (backend.Event, error) {
	if len(s.events) > 0 {
		ev := s.events[0]
		s.events = s.events[1:]
		return ev, nil
	}
	if s.block {
		<-s.ctx.Done()
		return backend.Event{}, s.ctx.Err()
	}
	return backend.Event{}, io.EOF
}

func (s *fakeStream) Close() error { return nil }

type fakeBackend struct {
	mu         sync.Mutex
	configured bool
	keys       []string
	calls      int

	storyboardEvents []backend.Event
	storyboardReqs   []backend.StoryboardRequest

	batchReqs []backend.BatchRequest
	batchFn   func(ctx context.Context, req backend.BatchRequest) ([]backend.PageResult, error)

	pageReqs   []backend.PageRequest
	pageEvents func(req backend.PageRequest) []backend.Event
	pageBlock  bool
	pageOpened chan struct{}
}

func (f *fakeBackend) CheckConfigStatus(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.configured, nil
}

func (f *fakeBackend) SetAPIKey(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.keys = append(f.keys, key)
	f.configured = true
	return nil
}

func (f *fakeBackend) StreamStoryboard(ctx context.Context, req backend.StoryboardRequest) (backend.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.storyboardReqs = append(f.storyboardReqs, req)
	return &fakeStream{ctx: ctx, events: append([]backend.Event(nil), f.storyboardEvents...)}, nil
}

func (f *fakeBackend) GeneratePagesBatch(ctx context.Context, req backend.BatchRequest) ([]backend.PageResult, error) {
	f.mu.Lock()
	f.calls++
	f.batchReqs = append(f.batchReqs, req)
	fn := f.batchFn
	f.mu.Unlock()
	if fn == nil {
		return imagesFor(req), nil
	}
	return fn(ctx, req)
}

func (f *fakeBackend) StreamPage(ctx context.Context, req backend.PageRequest) (backend.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.pageReqs = append(f.pageReqs, req)
	var evs []backend.Event
	if f.pageEvents != nil {
		evs = f.pageEvents(req)
	}
	if f.pageOpened != nil {
		close(f.pageOpened)
		f.pageOpened = nil
	}
	return &fakeStream{ctx: ctx, events: evs, block: f.pageBlock}, nil
}

func (f *fakeBackend) lastBatch() backend.BatchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batchReqs[len(f.batchReqs)-1]
}

func (f *fakeBackend) lastPage() backend.PageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageReqs[len(f.pageReqs)-1]
}

// imagesFor returns an image named after each requested page.
func imagesFor(req backend.BatchRequest) []backend.PageResult {
	out := make([]backend.PageResult, 0, len(req.Pages))
	for _, p := range req.Pages {
		out = append(out, backend.PageResult{PageNumber: p.PageNumber, Image: imgName(p.PageNumber)})
	}
	return out
}

func imgName(n int) string { return "IMG" + string(rune('0'+n)) }

func sampleStoryboard(pages int) *domain.Storyboard {
	sb := &domain.Storyboard{Title: "Robot", TotalPages: pages}
	for i := 1; i <= pages; i++ {
		sb.Pages = append(sb.Pages, domain.Page{
			PageNumber:        i,
			LayoutDescription: "grid",
			Panels:            []domain.Panel{{PanelNumber: 1, Description: "scene", ShotType: "Wide"}},
		})
	}
	return sb
}

func resultEvents(pages int) []backend.Event {
	return []backend.Event{
		{Kind: backend.EventThinking, Text: "planning "},
		{Kind: backend.EventText, Text: "{\"title\""},
		{Kind: backend.EventThinking, Text: "pages"},
		{Kind: backend.EventResult, Storyboard: sampleStoryboard(pages)},
	}
}

func newConfigured(t *testing.T, fb *fakeBackend) *Controller {
	t.Helper()
	fb.configured = true
	c := New(Options{Backend: fb, Store: &settings.MemoryStore{}})
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return c
}

// toGallery drives a controller with an n-page storyboard to the gallery.
func toGallery(t *testing.T, c *Controller, fb *fakeBackend, n int) {
	t.Helper()
	fb.storyboardEvents = resultEvents(n)
	ctx := context.Background()
	if err := c.StartStory(ctx, "A lost robot finds a flower"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.ConfirmStoryboard(ctx, c.State().Storyboard); err != nil {
		t.Fatalf("confirm storyboard: %v", err)
	}
	if err := c.ConfirmFirstPage(ctx); err != nil {
		t.Fatalf("confirm first page: %v", err)
	}
	if st := c.State(); st.Step != StepGallery {
		t.Fatalf("step = %v", st.Step)
	}
}

func TestStartStoryRequiresConfiguration(t *testing.T) {
	fb := &fakeBackend{}
	c := New(Options{Backend: fb})
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	before := fb.calls
	err := c.StartStory(context.Background(), "A lost robot finds a flower")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured, got %v", err)
	}
	if fb.calls != before {
		t.Fatalf("backend was called")
	}
	if err := c.StartStory(context.Background(), "   "); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("want ErrEmptyPrompt, got %v", err)
	}
}

func TestStartStoryExample(t *testing.T) {
	fb := &fakeBackend{storyboardEvents: resultEvents(2)}
	c := newConfigured(t, fb)
	c.UpdateStyle(domain.StyleConfig{StyleText: "ink", ExtraPrompt: "moody", AspectRatio: domain.Aspect9x16, ImageSize: domain.Size2K})

	var seen []State
	unsub := c.Subscribe(func(s State) { seen = append(seen, s) })
	defer unsub()

	if err := c.StartStory(context.Background(), "A lost robot finds a flower"); err != nil {
		t.Fatalf("start: %v", err)
	}
	st := c.State()
	if st.Step != StepStoryboard {
		t.Fatalf("step = %v", st.Step)
	}
	if st.Storyboard == nil || len(st.Storyboard.Pages) != 2 || st.Storyboard.Pages[0].PageNumber != 1 || st.Storyboard.Pages[1].PageNumber != 2 {
		t.Fatalf("storyboard = %+v", st.Storyboard)
	}
	if st.ThinkingText != "" || st.StreamText != "" || st.Loading {
		t.Fatalf("buffers/loading not cleared: %+v", st)
	}
	req := fb.storyboardReqs[0]
	if req.AspectRatio != "9:16" || req.ReferenceStyle != "ink moody" {
		t.Fatalf("request = %+v", req)
	}
	var sawThinking, sawText bool
	for _, s := range seen {
		if s.ThinkingText == "planning " {
			sawThinking = true
		}
		if s.StreamText == "{\"title\"" {
			sawText = true
		}
	}
	if !sawThinking || !sawText {
		t.Fatalf("observers missed stream increments")
	}
	for i := 1; i < len(seen); i++ {
		if seen[i].Revision <= seen[i-1].Revision {
			t.Fatalf("revisions not increasing")
		}
	}
}

func TestStartStoryErrorEvent(t *testing.T) {
	fb := &fakeBackend{storyboardEvents: []backend.Event{
		{Kind: backend.EventThinking, Text: "x"},
		{Kind: backend.EventError, Text: "quota exceeded"},
	}}
	c := newConfigured(t, fb)
	err := c.StartStory(context.Background(), "p")
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.Message != "quota exceeded" {
		t.Fatalf("want GenerationError, got %v", err)
	}
	st := c.State()
	if st.Step != StepStart || st.Loading {
		t.Fatalf("state = %+v", st)
	}
}

func TestStartStoryStreamEnded(t *testing.T) {
	fb := &fakeBackend{storyboardEvents: []backend.Event{{Kind: backend.EventThinking, Text: "x"}}}
	c := newConfigured(t, fb)
	if err := c.StartStory(context.Background(), "p"); !errors.Is(err, ErrStreamEnded) {
		t.Fatalf("want ErrStreamEnded, got %v", err)
	}
	if c.State().Step != StepStart {
		t.Fatalf("should stay at start")
	}
}

func TestConfirmStoryboardGeneratesFirstPage(t *testing.T) {
	fb := &fakeBackend{storyboardEvents: resultEvents(3)}
	c := newConfigured(t, fb)
	c.UpdateStyle(domain.StyleConfig{StyleText: "ink", StyleImage: "STYLE", AspectRatio: domain.Aspect4x3, ImageSize: domain.Size1K})
	ctx := context.Background()
	if err := c.StartStory(ctx, "p"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.ConfirmStoryboard(ctx, &domain.Storyboard{}); !errors.Is(err, ErrEmptyStoryboard) {
		t.Fatalf("want ErrEmptyStoryboard, got %v", err)
	}
	edited := c.State().Storyboard
	edited.Pages[0].Panels[0].Dialogue = "hello"
	if err := c.ConfirmStoryboard(ctx, edited); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	st := c.State()
	if st.Step != StepPreview {
		t.Fatalf("step = %v", st.Step)
	}
	if st.FirstPageImage != imgName(1) || st.Pages[0].Status != domain.StatusCompleted {
		t.Fatalf("first page = %+v image=%q", st.Pages[0], st.FirstPageImage)
	}
	if st.Pages[1].Status != domain.StatusPending || st.Pages[2].Status != domain.StatusPending {
		t.Fatalf("later pages should be pending")
	}
	want := domain.BuildPagePrompt(edited.Pages[0], "ink")
	if st.FirstPagePrompt != want || st.EditableFirstPagePrompt != want || st.Pages[0].EditablePrompt != want {
		t.Fatalf("prompts = %q / %q", st.FirstPagePrompt, st.EditableFirstPagePrompt)
	}
	req := fb.lastBatch()
	if len(req.Pages) != 1 || req.Pages[0].PageNumber != 1 || req.Pages[0].Panels[0].Dialogue != "hello" {
		t.Fatalf("batch pages = %+v", req.Pages)
	}
	if req.StyleReferenceImageBase64 != "STYLE" || req.ReferencePrompt != "" || req.AspectRatio != "4:3" || req.ImageSize != "1K" {
		t.Fatalf("batch request = %+v", req)
	}
}

func TestConfirmStoryboardMissingImage(t *testing.T) {
	fb := &fakeBackend{storyboardEvents: resultEvents(2)}
	fb.batchFn = func(context.Context, backend.BatchRequest) ([]backend.PageResult, error) {
		return nil, nil
	}
	c := newConfigured(t, fb)
	ctx := context.Background()
	if err := c.StartStory(ctx, "p"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.ConfirmStoryboard(ctx, c.State().Storyboard); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	st := c.State()
	if st.Step != StepPreview || st.Pages[0].Status != domain.StatusFailed || st.FirstPageImage != "" {
		t.Fatalf("state = %+v", st)
	}
	if err := c.ConfirmFirstPage(ctx); !errors.Is(err, ErrNoFirstPageImage) {
		t.Fatalf("want ErrNoFirstPageImage, got %v", err)
	}
}

func TestConfirmStoryboardTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	fb := &fakeBackend{storyboardEvents: resultEvents(2)}
	fb.batchFn = func(context.Context, backend.BatchRequest) ([]backend.PageResult, error) { return nil, boom }
	c := newConfigured(t, fb)
	ctx := context.Background()
	_ = c.StartStory(ctx, "p")
	err := c.ConfirmStoryboard(ctx, c.State().Storyboard)
	if !errors.Is(err, boom) {
		t.Fatalf("want wrapped transport error, got %v", err)
	}
	st := c.State()
	if st.Step != StepStoryboard || st.Pages[0].Status != domain.StatusFailed || st.Loading {
		t.Fatalf("state = %+v", st)
	}
}

func TestConfirmFirstPagePartialBatch(t *testing.T) {
	fb := &fakeBackend{}
	c := newConfigured(t, fb)
	fb.batchFn = func(_ context.Context, req backend.BatchRequest) ([]backend.PageResult, error) {
		if req.Pages[0].PageNumber == 1 {
			return imagesFor(req), nil
		}
		return []backend.PageResult{{PageNumber: 2, Image: "P2"}}, nil
	}
	toGallery(t, c, fb, 3)
	st := c.State()
	if st.Pages[1].Status != domain.StatusCompleted || st.Pages[1].ImageURL != "P2" {
		t.Fatalf("page 2 = %+v", st.Pages[1])
	}
	if st.Pages[2].Status != domain.StatusFailed || st.Pages[2].ImageURL != "" {
		t.Fatalf("page 3 = %+v", st.Pages[2])
	}
	if st.Pages[0].Status != domain.StatusCompleted {
		t.Fatalf("page 1 changed: %+v", st.Pages[0])
	}
	req := fb.lastBatch()
	if len(req.Pages) != 2 || req.Pages[0].PageNumber != 2 || req.Pages[1].PageNumber != 3 {
		t.Fatalf("batch pages = %+v", req.Pages)
	}
	if req.StyleReferenceImageBase64 != backend.NullString(imgName(1)) || string(req.ReferencePrompt) != st.FirstPagePrompt {
		t.Fatalf("anchor not used: %+v", req)
	}
}

func TestConfirmFirstPageSinglePage(t *testing.T) {
	fb := &fakeBackend{}
	c := newConfigured(t, fb)
	fb.storyboardEvents = resultEvents(1)
	ctx := context.Background()
	_ = c.StartStory(ctx, "p")
	_ = c.ConfirmStoryboard(ctx, c.State().Storyboard)
	batches := len(fb.batchReqs)
	if err := c.ConfirmFirstPage(ctx); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if c.State().Step != StepGallery || len(fb.batchReqs) != batches {
		t.Fatalf("single page should advance without a batch")
	}
}

func TestRegenerateFirstPage(t *testing.T) {
	fb := &fakeBackend{storyboardEvents: resultEvents(2)}
	c := newConfigured(t, fb)
	ctx := context.Background()
	_ = c.StartStory(ctx, "p")
	_ = c.ConfirmStoryboard(ctx, c.State().Storyboard)

	fb.batchFn = func(_ context.Context, req backend.BatchRequest) ([]backend.PageResult, error) {
		return []backend.PageResult{{PageNumber: 1, Image: "NEW1"}}, nil
	}
	c.SetFirstPagePrompt("brighter colors")
	c.SetTempRefImage("UPLOAD")
	if err := c.RegenerateFirstPage(ctx); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	req := fb.lastBatch()
	if req.Pages[0].CustomPrompt != "brighter colors" || req.ExtraReferenceImageBase64 != "UPLOAD" {
		t.Fatalf("request = %+v", req)
	}
	st := c.State()
	if st.FirstPageImage != "NEW1" || st.FirstPagePrompt != "brighter colors" || st.Pages[0].EditablePrompt != "brighter colors" {
		t.Fatalf("state = %+v", st)
	}
	if st.Step != StepPreview {
		t.Fatalf("step = %v", st.Step)
	}

	c.SetUseCurrentAsRef(true)
	if err := c.RegenerateFirstPage(ctx); err != nil {
		t.Fatalf("regenerate again: %v", err)
	}
	if got := fb.lastBatch().ExtraReferenceImageBase64; got != "NEW1" {
		t.Fatalf("extra ref = %q, want current image", got)
	}
}

func TestRegeneratePageOne(t *testing.T) {
	fb := &fakeBackend{}
	c := newConfigured(t, fb)
	toGallery(t, c, fb, 3)
	ctx := context.Background()
	fb.pageEvents = func(req backend.PageRequest) []backend.Event {
		return []backend.Event{
			{Kind: backend.EventThinking, Text: "sketch"},
			{Kind: backend.EventImage, Image: "R" + imgName(req.Page.PageNumber), PageNumber: req.Page.PageNumber},
		}
	}
	before := c.State()
	if err := c.RegeneratePage(ctx, 1, "new anchor prompt", "", false); err != nil {
		t.Fatalf("regenerate 1: %v", err)
	}
	req := fb.lastPage()
	if req.ReferencePrompt != "" || req.Page.CustomPrompt != "new anchor prompt" {
		t.Fatalf("page 1 request = %+v", req)
	}
	st := c.State()
	if st.FirstPageImage != "R"+imgName(1) || st.FirstPagePrompt != "new anchor prompt" {
		t.Fatalf("anchor not updated: %+v", st)
	}
	for i := 1; i < 3; i++ {
		if st.Pages[i].ImageURL != before.Pages[i].ImageURL || st.Pages[i].Status != before.Pages[i].Status {
			t.Fatalf("sibling page %d changed", i+1)
		}
	}

	if err := c.RegeneratePage(ctx, 2, "", "EXTRA", false); err != nil {
		t.Fatalf("regenerate 2: %v", err)
	}
	req = fb.lastPage()
	if req.StyleReferenceImageBase64 != backend.NullString("R"+imgName(1)) || req.ReferencePrompt != "new anchor prompt" {
		t.Fatalf("page 2 did not use new anchor: %+v", req)
	}
	if req.Page.CustomPrompt != before.Pages[1].EditablePrompt || req.ExtraReferenceImageBase64 != "EXTRA" {
		t.Fatalf("page 2 request = %+v", req)
	}
	st = c.State()
	if st.FirstPageImage != "R"+imgName(1) || st.FirstPagePrompt != "new anchor prompt" {
		t.Fatalf("regenerating page 2 touched the anchor")
	}
	if st.Pages[1].ImageURL != "R"+imgName(2) || st.Pages[1].Status != domain.StatusCompleted {
		t.Fatalf("page 2 = %+v", st.Pages[1])
	}

	if err := c.RegeneratePage(ctx, 3, "", "", true); err != nil {
		t.Fatalf("regenerate 3: %v", err)
	}
	if got := fb.lastPage().StyleReferenceImageBase64; got != backend.NullString(imgName(3)) {
		t.Fatalf("use-current style ref = %q", got)
	}
}

func TestRegeneratePageErrorAndNotFound(t *testing.T) {
	fb := &fakeBackend{}
	c := newConfigured(t, fb)
	toGallery(t, c, fb, 2)
	ctx := context.Background()
	if err := c.RegeneratePage(ctx, 9, "", "", false); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("want ErrPageNotFound, got %v", err)
	}
	fb.pageEvents = func(backend.PageRequest) []backend.Event {
		return []backend.Event{{Kind: backend.EventError, Text: "blocked"}}
	}
	err := c.RegeneratePage(ctx, 2, "", "", false)
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.Page != 2 {
		t.Fatalf("want GenerationError for page 2, got %v", err)
	}
	st := c.State()
	if st.Pages[1].Status != domain.StatusFailed || st.Pages[0].Status != domain.StatusCompleted {
		t.Fatalf("statuses = %v / %v", st.Pages[0].Status, st.Pages[1].Status)
	}
	fb.pageEvents = nil
	if err := c.RegeneratePage(ctx, 2, "", "", false); !errors.Is(err, ErrStreamEnded) {
		t.Fatalf("want ErrStreamEnded, got %v", err)
	}
}

func TestRegenerateRateLimited(t *testing.T) {
	fb := &fakeBackend{}
	fb.configured = true
	c := New(Options{Backend: fb, RegenInterval: time.Hour, RegenBurst: 1})
	_ = c.Init(context.Background())
	toGallery(t, c, fb, 2)
	fb.pageEvents = func(req backend.PageRequest) []backend.Event {
		return []backend.Event{{Kind: backend.EventImage, Image: "X"}}
	}
	ctx := context.Background()
	if err := c.RegeneratePage(ctx, 2, "", "", false); err != nil {
		t.Fatalf("first regenerate: %v", err)
	}
	if err := c.RegeneratePage(ctx, 2, "", "", false); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
	if err := c.RegeneratePage(ctx, 1, "", "", false); err != nil {
		t.Fatalf("other page should not be limited: %v", err)
	}
}

func TestBusyRejectsSecondOperation(t *testing.T) {
	fb := &fakeBackend{storyboardEvents: resultEvents(2)}
	c := newConfigured(t, fb)
	ctx := context.Background()
	_ = c.StartStory(ctx, "p")

	started := make(chan struct{})
	fb.batchFn = func(ctx context.Context, req backend.BatchRequest) ([]backend.PageResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	errc := make(chan error, 1)
	sb := c.State().Storyboard
	go func() { errc <- c.ConfirmStoryboard(ctx, sb) }()
	<-started
	if !c.State().Loading {
		t.Fatalf("expected loading")
	}
	if err := c.ConfirmStoryboard(ctx, sb); !errors.Is(err, ErrBusy) {
		t.Fatalf("want ErrBusy, got %v", err)
	}
	if err := c.GoTo(StepStart); err != nil {
		t.Fatalf("goto: %v", err)
	}
	if err := <-errc; !errors.Is(err, ErrCanceled) {
		t.Fatalf("want ErrCanceled, got %v", err)
	}
	st := c.State()
	if st.Step != StepStart || st.Loading || st.Pages[0].Status != domain.StatusFailed {
		t.Fatalf("state after cancel = %+v", st)
	}
	if st.Storyboard == nil {
		t.Fatalf("GoTo must keep data")
	}
}

func TestGoToCancelsRegeneration(t *testing.T) {
	fb := &fakeBackend{}
	c := newConfigured(t, fb)
	toGallery(t, c, fb, 2)
	opened := make(chan struct{})
	fb.pageBlock = true
	fb.pageOpened = opened
	errc := make(chan error, 1)
	go func() { errc <- c.RegeneratePage(context.Background(), 2, "", "", false) }()
	<-opened
	if err := c.GoTo(StepPreview); err != nil {
		t.Fatalf("goto: %v", err)
	}
	if err := <-errc; !errors.Is(err, ErrCanceled) {
		t.Fatalf("want ErrCanceled, got %v", err)
	}
	st := c.State()
	if st.Pages[1].Status != domain.StatusFailed || st.Step != StepPreview {
		t.Fatalf("state = %+v", st)
	}
	if err := c.GoTo(StepGallery); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("forward navigation must fail, got %v", err)
	}
}

func TestReset(t *testing.T) {
	fb := &fakeBackend{}
	c := newConfigured(t, fb)
	c.UpdateStyle(domain.StyleConfig{StyleText: "ink", AspectRatio: domain.Aspect1x1, ImageSize: domain.Size4K})
	toGallery(t, c, fb, 2)
	c.Reset()
	st := c.State()
	if st.Step != StepStart || st.Storyboard != nil || len(st.Pages) != 0 || st.FirstPageImage != "" ||
		st.FirstPagePrompt != "" || st.Prompt != "" || st.ThinkingText != "" {
		t.Fatalf("state not cleared: %+v", st)
	}
	if !st.Configured || st.Style.StyleText != "ink" {
		t.Fatalf("config lost: %+v", st)
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	fb := &fakeBackend{}
	c := newConfigured(t, fb)
	toGallery(t, c, fb, 2)
	st := c.State()
	st.Pages[0].ImageURL = "mutated"
	st.Storyboard.Pages[0].Panels[0].Description = "mutated"
	again := c.State()
	if again.Pages[0].ImageURL == "mutated" || again.Storyboard.Pages[0].Panels[0].Description == "mutated" {
		t.Fatalf("snapshot shares memory with controller")
	}
}

type memTokens struct{ m map[string]string }

func (s *memTokens) Get(service, key string) (string, error) {
	v, ok := s.m[service+"/"+key]
	if !ok {
		return "", config.ErrNoSecret
	}
	return v, nil
}
func (s *memTokens) Set(service, key, value string) error { s.m[service+"/"+key] = value; return nil }
func (s *memTokens) Delete(service, key string) error    { delete(s.m, service+"/"+key); return nil }

func TestAPIKeyCaching(t *testing.T) {
	prev := config.SetTokenStore(&memTokens{m: map[string]string{}})
	defer config.SetTokenStore(prev)

	fb := &fakeBackend{}
	c := New(Options{Backend: fb, Keys: config.APIKeys{}})
	ctx := context.Background()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if c.State().Configured {
		t.Fatalf("should not be configured")
	}
	if err := c.SetAPIKey(ctx, " ", true); !errors.Is(err, ErrEmptyAPIKey) {
		t.Fatalf("want ErrEmptyAPIKey, got %v", err)
	}
	if err := c.SetAPIKey(ctx, "sk-1", true); err != nil {
		t.Fatalf("set key: %v", err)
	}
	if !c.State().Configured {
		t.Fatalf("should be configured")
	}

	// a restarted service forgot the key; a new controller re-registers the cached one
	fb2 := &fakeBackend{}
	c2 := New(Options{Backend: fb2, Keys: config.APIKeys{}})
	if err := c2.Init(ctx); err != nil {
		t.Fatalf("init 2: %v", err)
	}
	if !c2.State().Configured || len(fb2.keys) != 1 || fb2.keys[0] != "sk-1" {
		t.Fatalf("cached key not registered: %v", fb2.keys)
	}

	if err := c2.SetAPIKey(ctx, "sk-2", false); err != nil {
		t.Fatalf("set key 2: %v", err)
	}
	if _, err := (config.APIKeys{}).Load(); !errors.Is(err, config.ErrNoSecret) {
		t.Fatalf("key should be forgotten, got %v", err)
	}
}

func TestUpdateStylePersists(t *testing.T) {
	store := &settings.MemoryStore{}
	c := New(Options{Backend: &fakeBackend{}, Store: store})
	c.UpdateStyle(domain.StyleConfig{StyleText: "sketch", ExtraPrompt: "rain", AspectRatio: domain.Aspect16x9, ImageSize: domain.Size4K, StyleImage: "IMG"})
	got, ok := store.Load()
	if !ok || got.StyleText != "sketch" || got.ExtraPrompt != "rain" || got.AspectRatio != domain.Aspect16x9 || got.ImageSize != domain.Size4K {
		t.Fatalf("persisted = %+v", got)
	}
	if got.StyleImage != "" {
		t.Fatalf("style image must not be persisted")
	}
	c2 := New(Options{Backend: &fakeBackend{}, Store: store})
	if c2.State().Style.StyleText != "sketch" {
		t.Fatalf("new controller did not load saved style")
	}
	if c.State().Style.StyleImage != "IMG" {
		t.Fatalf("in-memory style image lost")
	}
}

func TestStepString(t *testing.T) {
	if StepGallery.String() != "Gallery" || Step(9).String() != "Step(9)" || Step(9).Valid() {
		t.Fatalf("step names")
	}
}
