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
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mangawizard/internal/backend"
	"mangawizard/internal/domain"
	applog "mangawizard/internal/log"
	"mangawizard/internal/settings"
)

// Backend is the subset of the generation client the controller needs.
type Backend interface {
	CheckConfigStatus(ctx context.Context) (bool, error)
	SetAPIKey(ctx context.Context, key string) error
	StreamStoryboard(ctx context.Context, req backend.StoryboardRequest) (backend.Stream, error)
	GeneratePagesBatch(ctx context.Context, req backend.BatchRequest) ([]backend.PageResult, error)
	StreamPage(ctx context.Context, req backend.PageRequest) (backend.Stream, error)
}

// KeyCache remembers the API key locally so it can be re-registered.
type KeyCache interface {
	Load() (string, error)
	Save(key string) error
	Forget() error
}

// Options configures a Controller. Store and Keys are optional.
type Options struct {
	Backend       Backend
	Store         settings.Store
	Keys          KeyCache
	RegenInterval time.Duration // minimum spacing of manual regenerations per page; 0 disables
	RegenBurst    int
}

type operation struct {
	id      string
	name    string
	cancel  context.CancelFunc
	pending map[int]bool // pages this operation moved to pending
	log     *slog.Logger
}

// Controller is the wizard state machine. All methods are safe for concurrent use;
// operations that talk to the backend block until they finish.
type Controller struct {
	be    Backend
	store settings.Store
	keys  KeyCache
	regen *throttle
	log   *slog.Logger

	mu      sync.Mutex
	st      State
	op      *operation
	subs    map[int]func(State)
	nextSub int
}

// New creates a controller at step Start with the saved style settings.
func New(opts Options) *Controller {
	c := &Controller{
		be:    opts.Backend,
		store: opts.Store,
		keys:  opts.Keys,
		regen: newThrottle(opts.RegenInterval, opts.RegenBurst),
		log:   applog.WithComponent("wizard"),
		subs:  map[int]func(State){},
	}
	c.st.Style = settings.LoadOrDefault(opts.Store).Normalized()
	return c
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.Clone()
}

// Subscribe registers fn to receive a snapshot after every change. Callbacks run on
// the goroutine that made the change; they must not block.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// update applies fn under the lock and notifies observers unless fn fails.
func (c *Controller) update(fn func(st *State) error) error {
	c.mu.Lock()
	if err := fn(&c.st); err != nil {
		c.mu.Unlock()
		return err
	}
	c.publishLocked()
	return nil
}

// commitOp applies fn only while op is still the in-flight operation.
func (c *Controller) commitOp(op *operation, fn func(st *State)) bool {
	c.mu.Lock()
	if c.op != op {
		c.mu.Unlock()
		return false
	}
	fn(&c.st)
	c.publishLocked()
	return true
}

// publishLocked bumps the revision, releases the lock and notifies observers.
func (c *Controller) publishLocked() {
	c.st.Revision++
	snap := c.st.Clone()
	subs := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(snap.Clone())
	}
}

// begin claims the in-flight slot. prep validates and mutates the state atomically
// with the claim; returning run=false applies prep's changes without starting an operation.
func (c *Controller) begin(ctx context.Context, name string, prep func(st *State, op *operation) (bool, error)) (context.Context, *operation, error) {
	c.mu.Lock()
	if c.op != nil {
		busy := c.op.name
		c.mu.Unlock()
		c.log.Debug("operation rejected", slog.String("op", name), slog.String("busy_with", busy))
		return nil, nil, ErrBusy
	}
	opCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	op := &operation{id: id, name: name, cancel: cancel, pending: map[int]bool{}, log: applog.WithOperationID(c.log, name, id)}
	run, err := prep(&c.st, op)
	if err != nil || !run {
		cancel()
		if err != nil {
			c.mu.Unlock()
			return nil, nil, err
		}
		c.publishLocked()
		return nil, nil, nil
	}
	c.op = op
	c.st.Loading = true
	c.st.Operation = name
	c.publishLocked()
	op.log.Debug("operation started")
	return opCtx, op, nil
}

// end releases the in-flight slot if op still holds it.
func (c *Controller) end(op *operation) {
	op.cancel()
	c.commitOp(op, func(st *State) {
		c.op = nil
		st.Loading = false
		st.Operation = ""
		st.RegeneratingPage = 0
	})
}

// cancelLocked aborts the in-flight operation; pages it left pending become failed.
func (c *Controller) cancelLocked() {
	op := c.op
	if op == nil {
		return
	}
	op.cancel()
	for n := range op.pending {
		if i := domain.IndexOfPage(c.st.Pages, n); i >= 0 && c.st.Pages[i].Status == domain.StatusPending {
			c.st.Pages[i].Status = domain.StatusFailed
		}
	}
	c.op = nil
	c.st.Loading = false
	c.st.Operation = ""
	c.st.RegeneratingPage = 0
	op.log.Info("operation canceled")
}

// failOp marks the operation's pending pages failed and wraps err.
// A superseded operation reports ErrCanceled instead.
func (c *Controller) failOp(op *operation, what string, err error) error {
	ok := c.commitOp(op, func(st *State) {
		for n := range op.pending {
			if i := domain.IndexOfPage(st.Pages, n); i >= 0 {
				st.Pages[i].Status = domain.StatusFailed
			}
		}
		clear(op.pending)
	})
	if !ok {
		return ErrCanceled
	}
	var ge *GenerationError
	if errors.As(err, &ge) || errors.Is(err, ErrStreamEnded) {
		op.log.Warn(what+" failed", slog.Any("err", err))
		return err
	}
	op.log.Error(what+" failed", slog.Any("err", err))
	return fmt.Errorf("%s: %w", what, err)
}

// Init queries the service configuration. When no key is configured and one is
// cached locally it is registered automatically.
func (c *Controller) Init(ctx context.Context) error {
	ok, err := c.be.CheckConfigStatus(ctx)
	if err != nil {
		c.log.Error("config status failed", slog.Any("err", err))
		return fmt.Errorf("check config status: %w", err)
	}
	if !ok && c.keys != nil {
		if key, kerr := c.keys.Load(); kerr == nil {
			if err := c.be.SetAPIKey(ctx, key); err != nil {
				c.log.Warn("registering cached api key failed", slog.Any("err", err))
			} else {
				ok = true
				c.log.Info("registered cached api key")
			}
		}
	}
	return c.update(func(st *State) error {
		st.Configured = ok
		return nil
	})
}

// SetAPIKey registers key with the service. With remember it is cached locally,
// otherwise any cached key is forgotten.
func (c *Controller) SetAPIKey(ctx context.Context, key string, remember bool) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyAPIKey
	}
	if err := c.be.SetAPIKey(ctx, key); err != nil {
		c.log.Error("set api key failed", slog.Any("err", err))
		return fmt.Errorf("set api key: %w", err)
	}
	if c.keys != nil {
		if remember {
			if err := c.keys.Save(key); err != nil {
				c.log.Warn("caching api key failed", slog.Any("err", err))
			}
		} else {
			_ = c.keys.Forget()
		}
	}
	return c.update(func(st *State) error {
		st.Configured = true
		return nil
	})
}

// UpdateStyle replaces the style settings and persists them.
func (c *Controller) UpdateStyle(cfg domain.StyleConfig) {
	cfg = cfg.Normalized()
	_ = c.update(func(st *State) error {
		st.Style = cfg
		return nil
	})
	if c.store != nil {
		c.store.Save(cfg)
	}
}

// SetPrompt records the story prompt typed on the start form.
func (c *Controller) SetPrompt(s string) {
	_ = c.update(func(st *State) error { st.Prompt = s; return nil })
}

// SetFirstPagePrompt edits the prompt used for the next first-page regeneration.
func (c *Controller) SetFirstPagePrompt(s string) {
	_ = c.update(func(st *State) error { st.EditableFirstPagePrompt = s; return nil })
}

// SetTempRefImage sets (or with "" clears) the extra reference for first-page regeneration.
func (c *Controller) SetTempRefImage(b64 string) {
	_ = c.update(func(st *State) error { st.TempRefImage = b64; return nil })
}

// SetUseCurrentAsRef toggles sending the current first-page image as extra reference.
func (c *Controller) SetUseCurrentAsRef(v bool) {
	_ = c.update(func(st *State) error { st.UseCurrentAsRef = v; return nil })
}

// StartStory streams a storyboard for prompt and advances to the storyboard step.
func (c *Controller) StartStory(ctx context.Context, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	var req backend.StoryboardRequest
	opCtx, op, err := c.begin(ctx, "start_story", func(st *State, _ *operation) (bool, error) {
		if !st.Configured {
			return false, ErrNotConfigured
		}
		if st.Step != StepStart {
			return false, ErrWrongStep
		}
		st.Prompt = prompt
		st.ThinkingText = ""
		st.StreamText = ""
		req = backend.StoryboardRequest{
			Prompt:         prompt,
			ReferenceStyle: st.Style.CombinedStyle(),
			AspectRatio:    string(st.Style.AspectRatio),
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	defer c.end(op)

	stream, err := c.be.StreamStoryboard(opCtx, req)
	if err != nil {
		return c.failOp(op, "storyboard", err)
	}
	defer func() { _ = stream.Close() }()
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return c.failOp(op, "storyboard", ErrStreamEnded)
		}
		if err != nil {
			return c.failOp(op, "storyboard", err)
		}
		switch ev.Kind {
		case backend.EventThinking:
			c.commitOp(op, func(st *State) { st.ThinkingText += ev.Text })
		case backend.EventText:
			c.commitOp(op, func(st *State) { st.StreamText += ev.Text })
		case backend.EventResult:
			ok := c.commitOp(op, func(st *State) {
				st.Storyboard = ev.Storyboard.Clone()
				st.Pages = nil
				st.Step = StepStoryboard
				st.ThinkingText = ""
				st.StreamText = ""
			})
			if !ok {
				return ErrCanceled
			}
			op.log.Info("storyboard generated", slog.Int("pages", len(ev.Storyboard.Pages)))
			return nil
		case backend.EventError:
			return c.failOp(op, "storyboard", &GenerationError{Op: "storyboard", Message: ev.Text})
		}
	}
}

func derivePages(pages []domain.Page, style string) []domain.Page {
	out := domain.ClonePages(pages)
	for i := range out {
		out[i].Status = domain.StatusPending
		out[i].ImageURL = ""
		out[i].EditablePrompt = domain.BuildPagePrompt(out[i], style)
	}
	return out
}

func (st *State) batchRequest(pages []backend.PagePayload, styleImage, refPrompt string) backend.BatchRequest {
	return backend.BatchRequest{
		Pages:                     pages,
		StyleReference:            st.Style.CombinedStyle(),
		AspectRatio:               string(st.Style.AspectRatio),
		ImageSize:                 string(st.Style.ImageSize),
		StyleReferenceImageBase64: backend.NullString(styleImage),
		ReferencePrompt:           backend.NullString(refPrompt),
	}
}

// anchorImage is the style reference for pages after the first one.
func (st *State) anchorImage() string {
	if st.FirstPageImage != "" {
		return st.FirstPageImage
	}
	return st.Style.StyleImage
}

// applyResults resolves every page op is waiting for: an image completes it,
// a missing entry fails it.
func applyResults(st *State, op *operation, images map[int]string) (done, failed int) {
	for n := range op.pending {
		i := domain.IndexOfPage(st.Pages, n)
		if i < 0 {
			continue
		}
		if img, ok := images[n]; ok {
			st.Pages[i].ImageURL = img
			st.Pages[i].Status = domain.StatusCompleted
			done++
		} else {
			st.Pages[i].Status = domain.StatusFailed
			failed++
		}
	}
	clear(op.pending)
	return done, failed
}

// ConfirmStoryboard accepts the edited storyboard, derives the pages and
// generates the first page, then advances to the preview step.
func (c *Controller) ConfirmStoryboard(ctx context.Context, sb *domain.Storyboard) error {
	if sb == nil || len(sb.Pages) == 0 {
		return ErrEmptyStoryboard
	}
	if err := sb.Validate(); err != nil {
		return fmt.Errorf("confirm storyboard: %w", err)
	}
	var req backend.BatchRequest
	var anchor int
	opCtx, op, err := c.begin(ctx, "confirm_storyboard", func(st *State, op *operation) (bool, error) {
		if st.Step != StepStoryboard {
			return false, ErrWrongStep
		}
		st.Storyboard = sb.Clone()
		st.Pages = derivePages(sb.Pages, st.Style.CombinedStyle())
		first := st.Pages[0]
		anchor = first.PageNumber
		st.FirstPagePrompt = first.EditablePrompt
		st.EditableFirstPagePrompt = first.EditablePrompt
		st.FirstPageImage = ""
		st.TempRefImage = ""
		st.UseCurrentAsRef = false
		op.pending[anchor] = true
		req = st.batchRequest([]backend.PagePayload{backend.NewPagePayload(first, "")}, st.Style.StyleImage, "")
		return true, nil
	})
	if err != nil {
		return err
	}
	defer c.end(op)

	results, err := c.be.GeneratePagesBatch(opCtx, req)
	if err != nil {
		return c.failOp(op, "first page", err)
	}
	images := backend.ResultsByPage(results)
	ok := c.commitOp(op, func(st *State) {
		applyResults(st, op, images)
		st.FirstPageImage = images[anchor]
		st.Step = StepPreview
	})
	if !ok {
		return ErrCanceled
	}
	if images[anchor] == "" {
		op.log.Warn("first page came back without an image", slog.Int("page", anchor))
	}
	return nil
}

// RegenerateFirstPage generates the first page again from the edited prompt,
// optionally with an extra reference image.
func (c *Controller) RegenerateFirstPage(ctx context.Context) error {
	var req backend.BatchRequest
	var anchor int
	var prompt string
	opCtx, op, err := c.begin(ctx, "regenerate_first_page", func(st *State, op *operation) (bool, error) {
		if st.Step != StepPreview {
			return false, ErrWrongStep
		}
		if len(st.Pages) == 0 {
			return false, ErrEmptyStoryboard
		}
		first := &st.Pages[0]
		if !c.regen.allow(first.PageNumber) {
			return false, ErrRateLimited
		}
		anchor = first.PageNumber
		prompt = st.EditableFirstPagePrompt
		if strings.TrimSpace(prompt) == "" {
			prompt = st.FirstPagePrompt
		}
		extra := st.TempRefImage
		if st.UseCurrentAsRef && st.FirstPageImage != "" {
			extra = st.FirstPageImage
		}
		first.Status = domain.StatusPending
		op.pending[anchor] = true
		req = st.batchRequest([]backend.PagePayload{backend.NewPagePayload(*first, prompt)}, st.Style.StyleImage, "")
		req.ExtraReferenceImageBase64 = extra
		return true, nil
	})
	if err != nil {
		return err
	}
	defer c.end(op)

	results, err := c.be.GeneratePagesBatch(opCtx, req)
	if err != nil {
		return c.failOp(op, "regenerate first page", err)
	}
	images := backend.ResultsByPage(results)
	ok := c.commitOp(op, func(st *State) {
		applyResults(st, op, images)
		if img, found := images[anchor]; found {
			st.FirstPageImage = img
			st.FirstPagePrompt = prompt
			st.EditableFirstPagePrompt = prompt
			st.Pages[0].EditablePrompt = prompt
		}
	})
	if !ok {
		return ErrCanceled
	}
	return nil
}

// ConfirmFirstPage advances to the gallery and generates the remaining pages
// in one batch, anchored on the first page's image and prompt.
func (c *Controller) ConfirmFirstPage(ctx context.Context) error {
	var req backend.BatchRequest
	opCtx, op, err := c.begin(ctx, "confirm_first_page", func(st *State, op *operation) (bool, error) {
		if st.Step != StepPreview {
			return false, ErrWrongStep
		}
		if st.FirstPageImage == "" {
			return false, ErrNoFirstPageImage
		}
		st.Step = StepGallery
		if len(st.Pages) <= 1 {
			return false, nil
		}
		rest := make([]backend.PagePayload, 0, len(st.Pages)-1)
		for i := 1; i < len(st.Pages); i++ {
			p := &st.Pages[i]
			p.Status = domain.StatusPending
			p.ImageURL = ""
			op.pending[p.PageNumber] = true
			rest = append(rest, backend.NewPagePayload(*p, ""))
		}
		req = st.batchRequest(rest, st.anchorImage(), st.FirstPagePrompt)
		return true, nil
	})
	if err != nil || op == nil {
		return err
	}
	defer c.end(op)

	results, err := c.be.GeneratePagesBatch(opCtx, req)
	if err != nil {
		return c.failOp(op, "remaining pages", err)
	}
	images := backend.ResultsByPage(results)
	var done, failed int
	ok := c.commitOp(op, func(st *State) { done, failed = applyResults(st, op, images) })
	if !ok {
		return ErrCanceled
	}
	op.log.Info("pages generated", slog.Int("completed", done), slog.Int("failed", failed))
	return nil
}

// RegeneratePage streams a new image for page n in the gallery. A blank prompt
// falls back to the page's current prompt. With useCurrentAsRef the page's own
// image replaces the first page as style reference.
func (c *Controller) RegeneratePage(ctx context.Context, n int, prompt, extraRef string, useCurrentAsRef bool) error {
	var req backend.PageRequest
	var isAnchor bool
	opCtx, op, err := c.begin(ctx, "regenerate_page", func(st *State, op *operation) (bool, error) {
		if st.Step != StepGallery {
			return false, ErrWrongStep
		}
		i := domain.IndexOfPage(st.Pages, n)
		if i < 0 {
			return false, fmt.Errorf("%w: %d", ErrPageNotFound, n)
		}
		if !c.regen.allow(n) {
			return false, ErrRateLimited
		}
		p := &st.Pages[i]
		if strings.TrimSpace(prompt) == "" {
			prompt = p.EditablePrompt
		}
		isAnchor = i == 0
		styleRef := st.anchorImage()
		if useCurrentAsRef && p.ImageURL != "" {
			styleRef = p.ImageURL
		}
		refPrompt := st.FirstPagePrompt
		if isAnchor {
			refPrompt = ""
		}
		p.Status = domain.StatusPending
		op.pending[n] = true
		st.RegeneratingPage = n
		st.ThinkingText = ""
		req = backend.PageRequest{
			Page:                      backend.NewPagePayload(*p, prompt),
			StyleReference:            st.Style.CombinedStyle(),
			AspectRatio:               string(st.Style.AspectRatio),
			ImageSize:                 string(st.Style.ImageSize),
			StyleReferenceImageBase64: backend.NullString(styleRef),
			ReferencePrompt:           backend.NullString(refPrompt),
			ExtraReferenceImageBase64: extraRef,
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	defer c.end(op)

	what := fmt.Sprintf("regenerate page %d", n)
	stream, err := c.be.StreamPage(opCtx, req)
	if err != nil {
		return c.failOp(op, what, err)
	}
	defer func() { _ = stream.Close() }()
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return c.failOp(op, what, ErrStreamEnded)
		}
		if err != nil {
			return c.failOp(op, what, err)
		}
		switch ev.Kind {
		case backend.EventThinking:
			c.commitOp(op, func(st *State) { st.ThinkingText += ev.Text })
		case backend.EventImage:
			ok := c.commitOp(op, func(st *State) {
				i := domain.IndexOfPage(st.Pages, n)
				if i < 0 {
					return
				}
				p := &st.Pages[i]
				p.ImageURL = ev.Image
				p.Status = domain.StatusCompleted
				p.EditablePrompt = prompt
				if isAnchor {
					st.FirstPageImage = ev.Image
					st.FirstPagePrompt = prompt
					st.EditableFirstPagePrompt = prompt
				}
				st.ThinkingText = ""
				delete(op.pending, n)
			})
			if !ok {
				return ErrCanceled
			}
			op.log.Info("page regenerated", slog.Int("page", n))
			return nil
		case backend.EventError:
			return c.failOp(op, what, &GenerationError{Op: "regenerate page", Page: n, Message: ev.Text})
		}
	}
}

// GoTo moves back to an earlier step, cancelling whatever is in flight.
// Data is kept.
func (c *Controller) GoTo(step Step) error {
	return c.update(func(st *State) error {
		if !step.Valid() || step >= st.Step {
			return ErrWrongStep
		}
		c.cancelLocked()
		st.Step = step
		return nil
	})
}

// Reset cancels any operation and returns to an empty start step.
// Style settings and the configuration flag survive.
func (c *Controller) Reset() {
	_ = c.update(func(st *State) error {
		c.cancelLocked()
		*st = State{
			Revision:   st.Revision,
			Configured: st.Configured,
			Style:      st.Style,
		}
		return nil
	})
	c.regen.reset()
}
