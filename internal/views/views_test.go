/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package views

import (
	"errors"
	"testing"
	"time"

	"mangawizard/internal/domain"
	"mangawizard/internal/wizard"
)

func storyboard() *domain.Storyboard {
	return &domain.Storyboard{Title: "T", TotalPages: 2, Pages: []domain.Page{
		{PageNumber: 1, LayoutDescription: "grid", Panels: []domain.Panel{{PanelNumber: 1, Description: "a"}, {PanelNumber: 2, Description: "b"}}},
		{PageNumber: 2, Panels: []domain.Panel{{PanelNumber: 1, Description: "c"}}},
	}}
}

func TestSteps(t *testing.T) {
	items := Steps(wizard.StepPreview)
	if len(items) != 4 || items[0].Label != "Start" || items[3].Label != "Gallery" {
		t.Fatalf("items = %+v", items)
	}
	for _, it := range items {
		wantClick := it.Step < wizard.StepPreview
		if it.Clickable != wantClick || it.Active != (it.Step == wizard.StepPreview) {
			t.Fatalf("item %v = %+v", it.Step, it)
		}
	}
}

func TestStartForm(t *testing.T) {
	f := StartForm{Prompt: "  "}
	if f.CanSubmit(wizard.State{}) {
		t.Fatalf("blank prompt must disable submit")
	}
	f.Prompt = "A lost robot finds a flower"
	if !f.CanSubmit(wizard.State{}) || f.CanSubmit(wizard.State{Loading: true}) {
		t.Fatalf("submit state wrong")
	}
	if got := StatusLine(wizard.State{Loading: true}); got != "Connecting…" {
		t.Fatalf("status = %q", got)
	}
	if got := StatusLine(wizard.State{Loading: true, ThinkingText: "x"}); got != "Generating storyboard…" {
		t.Fatalf("status = %q", got)
	}
}

func TestEditorEditsCopy(t *testing.T) {
	orig := storyboard()
	e := NewStoryboardEditor(orig)
	if err := e.UpdatePanel(1, 2, FieldDialogue, "Hello"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := e.UpdatePanel(2, 1, FieldShotType, "Close-up"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if orig.Pages[0].Panels[1].Dialogue != "" {
		t.Fatalf("original modified")
	}
	res := e.Result()
	if res.Pages[0].Panels[1].Dialogue != "Hello" || res.Pages[1].Panels[0].ShotType != "Close-up" || !e.Dirty() {
		t.Fatalf("result = %+v", res)
	}
	res.Pages[0].Panels[0].Description = "mutated"
	if e.Result().Pages[0].Panels[0].Description != "a" {
		t.Fatalf("Result shares memory")
	}
}

func TestEditorErrors(t *testing.T) {
	e := NewStoryboardEditor(storyboard())
	if err := e.UpdatePanel(5, 1, FieldDescription, "x"); !errors.Is(err, ErrUnknownPage) {
		t.Fatalf("want ErrUnknownPage, got %v", err)
	}
	if err := e.UpdatePanel(1, 9, FieldDescription, "x"); !errors.Is(err, ErrUnknownPanel) {
		t.Fatalf("want ErrUnknownPanel, got %v", err)
	}
	if err := e.UpdatePanel(1, 1, "color", "x"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("want ErrUnknownField, got %v", err)
	}
	if e.Dirty() {
		t.Fatalf("failed edits must not mark dirty")
	}
}

func TestEditorUndoRedo(t *testing.T) {
	e := NewStoryboardEditor(storyboard())
	now := time.Unix(1000, 0)
	e.now = func() time.Time { return now }

	_ = e.UpdatePanel(1, 1, FieldDescription, "a1")
	now = now.Add(100 * time.Millisecond)
	_ = e.UpdatePanel(1, 1, FieldDescription, "a12") // coalesced with the previous keystroke
	now = now.Add(5 * time.Second)
	_ = e.UpdateLayout(1, "splash")

	if !e.Undo(1) || e.Result().Pages[0].LayoutDescription != "grid" {
		t.Fatalf("undo layout failed: %+v", e.Result().Pages[0])
	}
	if !e.Undo(1) || e.Result().Pages[0].Panels[0].Description != "a" {
		t.Fatalf("undo typing burst failed: %+v", e.Result().Pages[0])
	}
	if e.Undo(1) || e.CanUndo(1) {
		t.Fatalf("history should be empty")
	}
	if !e.Redo(1) || e.Result().Pages[0].Panels[0].Description != "a12" {
		t.Fatalf("redo failed: %+v", e.Result().Pages[0])
	}
	if e.Undo(2) {
		t.Fatalf("page 2 has no history")
	}
}

func TestPreviewForm(t *testing.T) {
	st := wizard.State{EditableFirstPagePrompt: "p", TempRefImage: "R", Pages: []domain.Page{{PageNumber: 1}}}
	f := NewPreviewForm(st)
	if f.Prompt != "p" || f.RefImage != "R" {
		t.Fatalf("form = %+v", f)
	}
	if f.CanConfirm(st) {
		t.Fatalf("confirm without image must be disabled")
	}
	st.FirstPageImage = "IMG"
	if !f.CanConfirm(st) || !f.CanRegenerate(st) {
		t.Fatalf("confirm/regenerate should be enabled")
	}
	f.SetUpload("B", "data:image/png;base64,B")
	f.ClearUpload()
	if f.RefImage != "" || f.RefPreview != "" {
		t.Fatalf("upload not cleared")
	}
}

func TestGalleryNavigationAndEdit(t *testing.T) {
	pages := []domain.Page{
		{PageNumber: 1, EditablePrompt: "p1"},
		{PageNumber: 2, EditablePrompt: "p2"},
		{PageNumber: 3, EditablePrompt: "p3"},
	}
	var g Gallery
	g.Prev(len(pages))
	if g.Index(len(pages)) != 0 || g.HasPrev(len(pages)) {
		t.Fatalf("index must not go below 0")
	}
	g.Select(10, len(pages))
	if g.Index(len(pages)) != 2 || g.HasNext(len(pages)) {
		t.Fatalf("index must clamp to last page")
	}
	cur, _ := g.Current(pages)
	g.BeginEdit(cur)
	if !g.Editing() || g.EditPrompt() != "p3" {
		t.Fatalf("edit not seeded")
	}
	g.SetEditPrompt("   ")
	g.SetUpload("X", "data:x")
	g.SetUseCurrent(true)
	n, prompt, extra, useCurrent := g.RegenerateArgs(cur)
	if n != 3 || prompt != "p3" || extra != "X" || !useCurrent {
		t.Fatalf("args = %d %q %q %v", n, prompt, extra, useCurrent)
	}
	g.Prev(len(pages))
	if g.Editing() || g.RefPreview() != "" || g.UseCurrent() {
		t.Fatalf("navigation must reset the edit form")
	}
	if cur, _ := g.Current(pages); cur.PageNumber != 2 {
		t.Fatalf("current = %d", cur.PageNumber)
	}
	// shrinking page list keeps the index in range
	if g.Index(1) != 0 {
		t.Fatalf("index not clamped")
	}
	if _, ok := g.Current(nil); ok {
		t.Fatalf("empty gallery has no current page")
	}
}
