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

package ui

import (
	"context"
	"fmt"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"mangawizard/internal/domain"
	"mangawizard/internal/export"
	"mangawizard/internal/imaging"
	"mangawizard/internal/views"
	"mangawizard/internal/wizard"
)

// startScreen takes the story idea and shows the storyboard stream.
type startScreen struct {
	u        *appUI
	prompt   *widget.Entry
	generate *widget.Button
	hint     *widget.Label
	status   *widget.Label
	thinking *widget.Label
	text     *widget.Label
	obj      fyne.CanvasObject
}

func newStartScreen(u *appUI, st wizard.State) *startScreen {
	s := &startScreen{u: u}
	s.prompt = widget.NewMultiLineEntry()
	s.prompt.SetPlaceHolder("Describe your story, e.g. A lost robot finds a flower in a ruined city")
	s.prompt.Wrapping = fyne.TextWrapWord
	s.prompt.SetMinRowsVisible(5)
	s.prompt.SetText(st.Prompt)
	s.prompt.OnChanged = func(v string) { u.ctrl.SetPrompt(v) }

	s.generate = widget.NewButtonWithIcon("Generate Storyboard", theme.MediaPlayIcon(), func() {
		prompt := s.prompt.Text
		u.run("start_story", func(ctx context.Context) error { return u.ctrl.StartStory(ctx, prompt) })
	})
	s.generate.Importance = widget.HighImportance

	s.hint = widget.NewLabel("")
	s.status = widget.NewLabel("")
	s.thinking = widget.NewLabel("")
	s.thinking.Wrapping = fyne.TextWrapWord
	s.text = widget.NewLabel("")
	s.text.Wrapping = fyne.TextWrapWord

	thinking := widget.NewAccordion(widget.NewAccordionItem("Thinking", s.thinking))
	s.obj = container.NewBorder(
		container.NewVBox(
			widget.NewLabelWithStyle("What is your manga about?", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
			s.prompt,
			container.NewHBox(s.generate, s.hint),
			s.status,
		),
		nil, nil, nil,
		container.NewVScroll(container.NewVBox(thinking, s.text)),
	)
	return s
}

func (s *startScreen) object() fyne.CanvasObject { return s.obj }

func (s *startScreen) refresh(st wizard.State) {
	if (views.StartForm{Prompt: s.prompt.Text}).CanSubmit(st) {
		s.generate.Enable()
	} else {
		s.generate.Disable()
	}
	if st.Configured {
		s.hint.SetText("")
	} else {
		s.hint.SetText("Connect an API key first.")
	}
	s.status.SetText(views.StatusLine(st))
	s.thinking.SetText(st.ThinkingText)
	s.text.SetText(st.StreamText)
}

// storyboardScreen edits panels page by page before the first image is generated.
type storyboardScreen struct {
	u       *appUI
	editor  *views.StoryboardEditor
	page    int
	pages   *widget.Select
	form    *fyne.Container
	undoBtn *widget.Button
	redoBtn *widget.Button
	back    *widget.Button
	confirm *widget.Button
	status  *widget.Label
	obj     fyne.CanvasObject
}

func newStoryboardScreen(u *appUI, st wizard.State) *storyboardScreen {
	s := &storyboardScreen{u: u, editor: views.NewStoryboardEditor(st.Storyboard), form: container.NewStack(), status: widget.NewLabel("")}
	sb := s.editor.Storyboard()

	var labels []string
	for _, p := range sb.Pages {
		labels = append(labels, pageLabel(p.PageNumber))
	}
	s.pages = widget.NewSelect(labels, func(v string) {
		for _, p := range sb.Pages {
			if pageLabel(p.PageNumber) == v {
				s.showPage(p.PageNumber)
			}
		}
	})
	s.undoBtn = widget.NewButtonWithIcon("", theme.ContentUndoIcon(), s.undo)
	s.redoBtn = widget.NewButtonWithIcon("", theme.ContentRedoIcon(), s.redo)
	s.back = widget.NewButtonWithIcon("Back", theme.NavigateBackIcon(), func() { u.goTo(wizard.StepStart) })
	s.confirm = widget.NewButtonWithIcon("Generate First Page", theme.NavigateNextIcon(), func() {
		edited := s.editor.Result()
		u.run("confirm_storyboard", func(ctx context.Context) error { return u.ctrl.ConfirmStoryboard(ctx, edited) })
	})
	s.confirm.Importance = widget.HighImportance

	title := sb.Title
	if title == "" {
		title = "Untitled"
	}
	header := container.NewVBox(
		widget.NewLabelWithStyle(fmt.Sprintf("%s · %d pages", title, len(sb.Pages)), fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewBorder(nil, nil, nil, container.NewHBox(s.undoBtn, s.redoBtn), s.pages),
	)
	footer := container.NewBorder(nil, nil, s.back, s.confirm, s.status)
	s.obj = container.NewBorder(header, footer, nil, nil, container.NewVScroll(s.form))
	if len(labels) > 0 {
		s.pages.SetSelected(labels[0])
	}
	return s
}

func pageLabel(n int) string { return fmt.Sprintf("Page %d", n) }

func (s *storyboardScreen) object() fyne.CanvasObject { return s.obj }

// showPage rebuilds the form for page n from the editor's copy.
func (s *storyboardScreen) showPage(n int) {
	s.page = n
	sb := s.editor.Storyboard()
	i := sb.PageByNumber(n)
	if i < 0 {
		return
	}
	p := sb.Pages[i]

	layout := widget.NewMultiLineEntry()
	layout.Wrapping = fyne.TextWrapWord
	layout.SetText(p.LayoutDescription)
	layout.OnChanged = func(v string) {
		_ = s.editor.UpdateLayout(n, v)
		s.refreshHistory()
	}
	items := []fyne.CanvasObject{widget.NewCard("Layout", "", layout)}
	for _, panel := range p.Panels {
		pn := panel.PanelNumber
		field := func(f views.PanelField, value string, multi bool) *widget.Entry {
			e := widget.NewEntry()
			if multi {
				e = widget.NewMultiLineEntry()
				e.Wrapping = fyne.TextWrapWord
			}
			e.SetText(value)
			e.OnChanged = func(v string) {
				if err := s.editor.UpdatePanel(n, pn, f, v); err != nil {
					s.u.log.Warn("panel edit rejected", "page", n, "panel", pn, "err", err)
				}
				s.refreshHistory()
			}
			return e
		}
		form := widget.NewForm(
			widget.NewFormItem("Description", field(views.FieldDescription, panel.Description, true)),
			widget.NewFormItem("Dialogue", field(views.FieldDialogue, panel.Dialogue, true)),
			widget.NewFormItem("Shot", field(views.FieldShotType, panel.ShotType, false)),
		)
		items = append(items, widget.NewCard(fmt.Sprintf("Panel %d", pn), "", form))
	}
	s.form.Objects = []fyne.CanvasObject{container.NewVBox(items...)}
	s.form.Refresh()
	s.refreshHistory()
}

func (s *storyboardScreen) undo() {
	if s.editor.Undo(s.page) {
		s.showPage(s.page)
	}
}

func (s *storyboardScreen) redo() {
	if s.editor.Redo(s.page) {
		s.showPage(s.page)
	}
}

func (s *storyboardScreen) refreshHistory() {
	setEnabled(s.undoBtn, s.editor.CanUndo(s.page))
	setEnabled(s.redoBtn, s.editor.CanRedo(s.page))
}

func (s *storyboardScreen) refresh(st wizard.State) {
	setEnabled(s.confirm, !st.Loading)
	setEnabled(s.back, !st.Loading)
	if st.Loading {
		s.status.SetText("Generating the first page…")
	} else {
		s.status.SetText("")
	}
}

// previewScreen shows the first page and lets the user refine it before the rest is drawn.
type previewScreen struct {
	u          *appUI
	form       views.PreviewForm
	image      *fyne.Container
	shown      string
	prompt     *widget.Entry
	useCurrent *widget.Check
	refPrev    *fyne.Container
	clearRef   *widget.Button
	regen      *widget.Button
	confirm    *widget.Button
	back       *widget.Button
	status     *widget.Label
	obj        fyne.CanvasObject
}

func newPreviewScreen(u *appUI, st wizard.State) *previewScreen {
	s := &previewScreen{u: u, form: views.NewPreviewForm(st), image: container.NewStack(), refPrev: container.NewStack(), status: widget.NewLabel("")}

	s.prompt = widget.NewMultiLineEntry()
	s.prompt.Wrapping = fyne.TextWrapWord
	s.prompt.SetMinRowsVisible(8)
	s.prompt.SetText(s.form.Prompt)
	s.prompt.OnChanged = func(v string) {
		s.form.Prompt = v
		u.ctrl.SetFirstPagePrompt(v)
	}
	s.useCurrent = widget.NewCheck("Use the current image as reference", nil)
	s.useCurrent.SetChecked(s.form.UseCurrentAsRef)
	s.useCurrent.OnChanged = func(v bool) {
		s.form.UseCurrentAsRef = v
		u.ctrl.SetUseCurrentAsRef(v)
	}
	upload := widget.NewButtonWithIcon("Reference Image", theme.FolderOpenIcon(), func() {
		u.pickImage(func(up imaging.Upload) {
			s.form.SetUpload(up.Base64, up.Preview)
			u.ctrl.SetTempRefImage(up.Base64)
		})
	})
	s.clearRef = widget.NewButtonWithIcon("", theme.DeleteIcon(), func() {
		s.form.ClearUpload()
		u.ctrl.SetTempRefImage("")
	})
	s.regen = widget.NewButtonWithIcon("Regenerate", theme.ViewRefreshIcon(), func() {
		u.run("regenerate_first_page", u.ctrl.RegenerateFirstPage)
	})
	s.confirm = widget.NewButtonWithIcon("Generate All Pages", theme.NavigateNextIcon(), func() {
		u.run("confirm_first_page", u.ctrl.ConfirmFirstPage)
	})
	s.confirm.Importance = widget.HighImportance
	s.back = widget.NewButtonWithIcon("Back", theme.NavigateBackIcon(), func() { u.goTo(wizard.StepStoryboard) })

	controls := container.NewVBox(
		widget.NewLabelWithStyle("Page 1 prompt", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		s.prompt,
		s.useCurrent,
		container.NewHBox(upload, s.clearRef),
		s.refPrev,
		s.regen,
	)
	split := container.NewHSplit(s.image, container.NewVScroll(controls))
	split.Offset = 0.55
	s.obj = container.NewBorder(nil, container.NewBorder(nil, nil, s.back, s.confirm, s.status), nil, nil, split)
	return s
}

func (s *previewScreen) object() fyne.CanvasObject { return s.obj }

func (s *previewScreen) refresh(st wizard.State) {
	if st.FirstPageImage != s.shown || len(s.image.Objects) == 0 {
		s.shown = st.FirstPageImage
		s.image.Objects = []fyne.CanvasObject{s.u.imageView(s.shown, fyne.NewSize(320, 420))}
		s.image.Refresh()
	}
	s.refPrev.Objects = nil
	if st.TempRefImage != "" {
		s.refPrev.Objects = []fyne.CanvasObject{s.u.imageView(st.TempRefImage, fyne.NewSize(96, 96))}
	}
	s.refPrev.Refresh()
	setEnabled(s.clearRef, st.TempRefImage != "")
	setEnabled(s.regen, s.form.CanRegenerate(st))
	setEnabled(s.confirm, s.form.CanConfirm(st))
	setEnabled(s.back, !st.Loading)

	first, _ := views.FirstPage(st)
	switch {
	case st.Loading:
		s.status.SetText("Drawing page 1…")
	case first.Status == domain.StatusFailed:
		s.status.SetText("Page 1 could not be generated. Adjust the prompt and regenerate.")
	default:
		s.status.SetText("")
	}
}

// galleryScreen pages through the generated pages and regenerates single pages.
type galleryScreen struct {
	u       *appUI
	g       views.Gallery
	pages   []domain.Page
	image   *fyne.Container
	shown   string
	caption *widget.Label
	prev    *widget.Button
	next    *widget.Button
	thumbs  *fyne.Container

	edit       *fyne.Container
	editBtn    *widget.Button
	prompt     *widget.Entry
	useCurrent *widget.Check
	refPrev    *fyne.Container
	regen      *widget.Button

	obj fyne.CanvasObject
}

func newGalleryScreen(u *appUI, st wizard.State) *galleryScreen {
	s := &galleryScreen{u: u, image: container.NewStack(), caption: widget.NewLabel(""), thumbs: container.NewHBox(), refPrev: container.NewStack()}
	s.prev = widget.NewButtonWithIcon("", theme.NavigateBackIcon(), func() { s.g.Prev(len(s.pages)); s.navigated() })
	s.next = widget.NewButtonWithIcon("", theme.NavigateNextIcon(), func() { s.g.Next(len(s.pages)); s.navigated() })

	s.prompt = widget.NewMultiLineEntry()
	s.prompt.Wrapping = fyne.TextWrapWord
	s.prompt.SetMinRowsVisible(6)
	s.prompt.OnChanged = func(v string) { s.g.SetEditPrompt(v) }
	s.useCurrent = widget.NewCheck("Use the current image as reference", func(v bool) { s.g.SetUseCurrent(v) })
	upload := widget.NewButtonWithIcon("Reference Image", theme.FolderOpenIcon(), func() {
		u.pickImage(func(up imaging.Upload) {
			s.g.SetUpload(up.Base64, up.Preview)
			s.showRef()
		})
	})
	clearRef := widget.NewButtonWithIcon("", theme.DeleteIcon(), func() {
		s.g.ClearUpload()
		s.showRef()
	})
	s.regen = widget.NewButtonWithIcon("Regenerate Page", theme.ViewRefreshIcon(), s.regenerate)
	s.regen.Importance = widget.HighImportance
	cancel := widget.NewButton("Cancel", func() {
		s.g.CancelEdit()
		s.edit.Hide()
	})
	s.edit = container.NewVBox(
		widget.NewLabelWithStyle("Page prompt", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		s.prompt, s.useCurrent,
		container.NewHBox(upload, clearRef), s.refPrev,
		container.NewHBox(s.regen, cancel),
	)
	s.edit.Hide()
	s.editBtn = widget.NewButtonWithIcon("Edit & Regenerate", theme.DocumentCreateIcon(), func() {
		cur, ok := s.g.Current(s.pages)
		if !ok {
			return
		}
		s.g.BeginEdit(cur)
		s.prompt.SetText(s.g.EditPrompt())
		s.useCurrent.SetChecked(s.g.UseCurrent())
		s.showRef()
		s.edit.Show()
	})

	back := widget.NewButtonWithIcon("Back", theme.NavigateBackIcon(), func() { u.goTo(wizard.StepPreview) })
	download := widget.NewButtonWithIcon("Download All", theme.DownloadIcon(), func() { u.exportTo(export.PresetFiles) })
	reader := widget.NewButtonWithIcon("CBZ + PDF", theme.DocumentSaveIcon(), func() { u.exportTo(export.PresetReader) })
	restart := widget.NewButtonWithIcon("New Story", theme.HomeIcon(), u.confirmReset)

	nav := container.NewBorder(nil, nil, s.prev, s.next, container.NewCenter(s.caption))
	viewer := container.NewBorder(nil, nav, nil, nil, s.image)
	split := container.NewHSplit(viewer, container.NewVScroll(container.NewVBox(s.editBtn, s.edit)))
	split.Offset = 0.62
	footer := container.NewVBox(
		container.NewHScroll(s.thumbs),
		container.NewBorder(nil, nil, back, container.NewHBox(download, reader, restart)),
	)
	s.obj = container.NewBorder(nil, footer, nil, nil, split)
	return s
}

func (s *galleryScreen) object() fyne.CanvasObject { return s.obj }

func (s *galleryScreen) navigated() {
	s.edit.Hide()
	s.render(s.u.st)
}

func (s *galleryScreen) showRef() {
	s.refPrev.Objects = nil
	if s.g.RefPreview() != "" {
		b64, _ := imaging.StripDataURL(s.g.RefPreview())
		s.refPrev.Objects = []fyne.CanvasObject{s.u.imageView(b64, fyne.NewSize(96, 96))}
	}
	s.refPrev.Refresh()
}

func (s *galleryScreen) regenerate() {
	cur, ok := s.g.Current(s.pages)
	if !ok {
		return
	}
	n, prompt, extra, useCurrent := s.g.RegenerateArgs(cur)
	if strings.TrimSpace(prompt) == "" {
		s.u.showError(wizard.ErrEmptyPrompt)
		return
	}
	s.g.CancelEdit()
	s.edit.Hide()
	s.u.run("regenerate_page", func(ctx context.Context) error {
		return s.u.ctrl.RegeneratePage(ctx, n, prompt, extra, useCurrent)
	})
}

func (s *galleryScreen) refresh(st wizard.State) { s.render(st) }

func (s *galleryScreen) render(st wizard.State) {
	s.pages = st.Pages
	total := len(s.pages)
	cur, ok := s.g.Current(s.pages)
	img := ""
	if ok {
		img = cur.ImageURL
	}
	if img != s.shown || len(s.image.Objects) == 0 {
		s.shown = img
		s.image.Objects = []fyne.CanvasObject{s.u.imageView(img, fyne.NewSize(360, 480))}
		s.image.Refresh()
	}
	if ok {
		s.caption.SetText(fmt.Sprintf("Page %d of %d · %s", cur.PageNumber, total, statusText(cur, st)))
	} else {
		s.caption.SetText("No pages")
	}
	setEnabled(s.prev, s.g.HasPrev(total))
	setEnabled(s.next, s.g.HasNext(total))
	busy := st.Loading || st.RegeneratingPage != 0
	setEnabled(s.editBtn, ok && !busy)
	setEnabled(s.regen, ok && !busy)

	s.thumbs.Objects = nil
	for i, p := range s.pages {
		b := widget.NewButton(fmt.Sprintf("%d %s", p.PageNumber, statusMark(p.Status)), func() {
			s.g.Select(i, len(s.pages))
			s.navigated()
		})
		if i == s.g.Index(total) {
			b.Importance = widget.HighImportance
		}
		s.thumbs.Add(b)
	}
	s.thumbs.Refresh()
}

func statusText(p domain.Page, st wizard.State) string {
	if st.RegeneratingPage == p.PageNumber {
		return "regenerating…"
	}
	switch p.Status {
	case domain.StatusCompleted:
		return "done"
	case domain.StatusFailed:
		return "failed"
	default:
		return "drawing…"
	}
}

func statusMark(s domain.PageStatus) string {
	switch s {
	case domain.StatusCompleted:
		return "✓"
	case domain.StatusFailed:
		return "✗"
	default:
		return "…"
	}
}

func setEnabled(b *widget.Button, on bool) {
	if on {
		b.Enable()
	} else {
		b.Disable()
	}
}
