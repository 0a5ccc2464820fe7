//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// These tests drive the Fyne screens with the test driver. They are gated behind
// the "fyne" build tag so headless CI does not need Fyne or a display:
//
//	go test -tags fyne ./internal/ui
package ui

import (
	"context"
	"strings"
	"testing"

	"fyne.io/fyne/v2/test"

	"mangawizard/internal/domain"
	"mangawizard/internal/views"
	"mangawizard/internal/wizard"
)

func newTestUI(t *testing.T) *appUI {
	t.Helper()
	test.NewTempApp(t)
	sess := openTestSession(t, fakeService(t).URL)
	w := test.NewWindow(nil)
	t.Cleanup(w.Close)
	u := newAppUI(sess, w)
	t.Cleanup(u.cancel)
	return u
}

func TestStartScreen_GenerateFollowsPrompt(t *testing.T) {
	u := newTestUI(t)
	s, ok := u.screen.(*startScreen)
	if !ok {
		t.Fatalf("expected start screen, got %T", u.screen)
	}
	if !s.generate.Disabled() {
		t.Fatalf("generate should be disabled for a blank prompt")
	}
	s.prompt.SetText("A lost robot")
	u.apply(u.ctrl.State())
	if s.generate.Disabled() {
		t.Fatalf("generate should be enabled once a prompt is typed")
	}
	if u.ctrl.State().Prompt != "A lost robot" {
		t.Fatalf("prompt not forwarded to the controller")
	}
}

func TestScreensFollowWizardSteps(t *testing.T) {
	u := newTestUI(t)
	ctx := context.Background()
	if err := u.ctrl.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if err := u.ctrl.StartStory(ctx, "A lost robot"); err != nil {
		t.Fatal(err)
	}
	u.apply(u.ctrl.State())
	sb, ok := u.screen.(*storyboardScreen)
	if !ok {
		t.Fatalf("expected storyboard screen, got %T", u.screen)
	}
	if err := sb.editor.UpdatePanel(1, 1, views.FieldDialogue, "Hello?"); err != nil {
		t.Fatal(err)
	}
	sb.refreshHistory()
	if sb.undoBtn.Disabled() {
		t.Fatalf("undo should be enabled after an edit")
	}
	if err := u.ctrl.ConfirmStoryboard(ctx, sb.editor.Result()); err != nil {
		t.Fatal(err)
	}
	u.apply(u.ctrl.State())
	pv, ok := u.screen.(*previewScreen)
	if !ok {
		t.Fatalf("expected preview screen, got %T", u.screen)
	}
	if pv.confirm.Disabled() {
		t.Fatalf("confirm should be enabled with a first page image")
	}
	if err := u.ctrl.ConfirmFirstPage(ctx); err != nil {
		t.Fatal(err)
	}
	u.apply(u.ctrl.State())
	g, ok := u.screen.(*galleryScreen)
	if !ok {
		t.Fatalf("expected gallery screen, got %T", u.screen)
	}
	if !strings.HasPrefix(g.caption.Text, "Page 1 of 2") {
		t.Fatalf("caption = %q", g.caption.Text)
	}
	test.Tap(g.next)
	if !strings.HasPrefix(g.caption.Text, "Page 2 of 2") {
		t.Fatalf("caption after next = %q", g.caption.Text)
	}
	if !g.next.Disabled() || g.prev.Disabled() {
		t.Fatalf("navigation buttons not bounded")
	}
	for i, b := range u.stepButtons {
		want := wizard.Step(i) < wizard.StepGallery
		if b.Disabled() == want {
			t.Fatalf("step button %d enabled=%v, want %v", i, !b.Disabled(), want)
		}
	}
	if len(g.thumbs.Objects) != 2 {
		t.Fatalf("thumbnails = %d", len(g.thumbs.Objects))
	}
}

func TestSidebarSeedSavesOnce(t *testing.T) {
	u := newTestUI(t)
	before := u.ctrl.State().Revision
	u.side.seed(domain.StyleConfig{StyleText: "ink", AspectRatio: domain.Aspect1x1, ImageSize: domain.Size1K})
	st := u.ctrl.State()
	if st.Style.StyleText != "ink" || st.Style.AspectRatio != domain.Aspect1x1 || st.Style.ImageSize != domain.Size1K {
		t.Fatalf("style = %+v", st.Style)
	}
	if st.Revision != before+1 {
		t.Fatalf("seed published %d changes, want 1", st.Revision-before)
	}
}
