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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	fstorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"mangawizard/internal/config"
	"mangawizard/internal/crash"
	"mangawizard/internal/export"
	"mangawizard/internal/imaging"
	applog "mangawizard/internal/log"
	"mangawizard/internal/version"
	"mangawizard/internal/views"
	"mangawizard/internal/wizard"
)

// screen is the body for one wizard step. refresh runs on the main thread
// with every new snapshot and must update widgets in place.
type screen interface {
	object() fyne.CanvasObject
	refresh(st wizard.State)
}

type appUI struct {
	sess *Session
	ctrl *wizard.Controller
	win  fyne.Window
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// main thread only
	st         wizard.State
	screen     screen
	screenStep wizard.Step

	stepButtons []*widget.Button
	status      *widget.Label
	progress    *widget.ProgressBarInfinite
	body        *fyne.Container
	side        *sidebar
}

// Run starts the Fyne desktop wizard and blocks until the window is closed.
func Run(sess *Session) error {
	if sess == nil {
		return errors.New("ui: no session")
	}
	l := applog.WithComponent("ui")
	l.Info("starting UI", slog.String("version", version.String()))
	defer crash.Recover(crashDir(), sess.SaveState)

	fyneApp := app.NewWithID("mangawizard")
	w := fyneApp.NewWindow("Manga Wizard")
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 1280)
	winH := prefs.IntWithFallback("window.height", 860)
	if winW < 900 {
		winW = 900
	}
	if winH < 640 {
		winH = 640
	}
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	u := newAppUI(sess, w)
	defer u.cancel()
	unsub := u.ctrl.Subscribe(func(st wizard.State) {
		fyne.Do(func() { u.apply(st) })
	})
	defer unsub()

	w.SetMainMenu(u.mainMenu())
	w.SetOnClosed(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		u.cancel()
	})

	u.run("init", u.ctrl.Init)
	w.ShowAndRun()
	l.Info("UI closed")
	return nil
}

func crashDir() string {
	dir, err := config.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "crashes")
}

func newAppUI(sess *Session, w fyne.Window) *appUI {
	ctx, cancel := context.WithCancel(context.Background())
	u := &appUI{
		sess:     sess,
		ctrl:     sess.Controller,
		win:      w,
		log:      applog.WithComponent("ui"),
		ctx:      ctx,
		cancel:   cancel,
		status:   widget.NewLabel(""),
		progress: widget.NewProgressBarInfinite(),
		body:     container.NewStack(),
	}
	u.progress.Hide()

	stepRow := container.NewHBox()
	for _, item := range views.Steps(wizard.StepStart) {
		step := item.Step
		b := widget.NewButton(fmt.Sprintf("%d. %s", int(step)+1, item.Label), func() { u.goTo(step) })
		u.stepButtons = append(u.stepButtons, b)
		stepRow.Add(b)
	}

	u.side = newSidebar(u)
	split := container.NewHSplit(container.NewVScroll(u.side.object()), u.body)
	split.Offset = 0.28
	bottom := container.NewBorder(nil, nil, nil, u.progress, u.status)
	w.SetContent(container.NewBorder(container.NewVBox(container.NewCenter(stepRow), widget.NewSeparator()), bottom, nil, nil, split))

	u.apply(u.ctrl.State())
	return u
}

// apply renders a snapshot. Older revisions are dropped.
func (u *appUI) apply(st wizard.State) {
	if u.screen != nil && st.Revision < u.st.Revision {
		return
	}
	u.st = st

	for i, item := range views.Steps(st.Step) {
		b := u.stepButtons[i]
		switch {
		case item.Active:
			b.Importance = widget.HighImportance
		case item.Done:
			b.Importance = widget.MediumImportance
		default:
			b.Importance = widget.LowImportance
		}
		if item.Clickable && !st.Loading {
			b.Enable()
		} else {
			b.Disable()
		}
		b.Refresh()
	}

	if st.Loading {
		u.progress.Show()
		u.progress.Start()
	} else {
		u.progress.Stop()
		u.progress.Hide()
	}
	switch {
	case !st.Configured:
		u.status.SetText("Not connected: set your API key in the sidebar.")
	case st.Loading:
		line := views.StatusLine(st)
		if st.RegeneratingPage > 0 {
			line = fmt.Sprintf("Regenerating page %d…", st.RegeneratingPage)
		}
		u.status.SetText(line)
	default:
		u.status.SetText("Ready")
	}

	u.side.refresh(st)
	if u.screen == nil || u.screenStep != st.Step {
		u.screen = u.buildScreen(st)
		u.screenStep = st.Step
		u.body.Objects = []fyne.CanvasObject{u.screen.object()}
		u.body.Refresh()
	}
	u.screen.refresh(st)
}

func (u *appUI) buildScreen(st wizard.State) screen {
	switch st.Step {
	case wizard.StepStoryboard:
		return newStoryboardScreen(u, st)
	case wizard.StepPreview:
		return newPreviewScreen(u, st)
	case wizard.StepGallery:
		return newGalleryScreen(u, st)
	default:
		return newStartScreen(u, st)
	}
}

// run executes a controller operation off the main thread and reports failures.
func (u *appUI) run(name string, fn func(ctx context.Context) error) {
	go func() {
		err := fn(u.ctx)
		switch {
		case err == nil:
		case errors.Is(err, wizard.ErrCanceled), errors.Is(err, context.Canceled):
			u.log.Debug("operation canceled", slog.String("op", name))
		default:
			u.log.Warn("operation failed", slog.String("op", name), slog.Any("err", err))
			fyne.Do(func() { u.showError(err) })
		}
	}()
}

func (u *appUI) showError(err error) {
	var ge *wizard.GenerationError
	switch {
	case errors.As(err, &ge):
		dialog.ShowError(fmt.Errorf("generation failed: %s", ge.Message), u.win)
	case errors.Is(err, wizard.ErrRateLimited):
		dialog.ShowInformation("Slow down", "This page was regenerated moments ago. Try again in a few seconds.", u.win)
	case errors.Is(err, wizard.ErrBusy):
		dialog.ShowInformation("Busy", "Another generation is still running.", u.win)
	default:
		dialog.ShowError(err, u.win)
	}
}

func (u *appUI) goTo(step wizard.Step) {
	if err := u.ctrl.GoTo(step); err != nil {
		u.showError(err)
	}
}

func (u *appUI) confirmReset() {
	dialog.ShowConfirm("New Story", "Discard the current storyboard and pages?", func(ok bool) {
		if ok {
			u.ctrl.Reset()
		}
	}, u.win)
}

// imageView decodes a base64 image through the session cache.
func (u *appUI) imageView(b64 string, min fyne.Size) fyne.CanvasObject {
	if b64 == "" {
		r := canvas.NewRectangle(theme.Color(theme.ColorNameInputBackground))
		r.SetMinSize(min)
		return r
	}
	img, err := u.sess.Images.Get(b64)
	if err != nil {
		u.log.Warn("decode image failed", slog.Any("err", err))
		return container.NewCenter(widget.NewLabel("Image could not be decoded"))
	}
	c := canvas.NewImageFromImage(img)
	c.FillMode = canvas.ImageFillContain
	c.SetMinSize(min)
	return c
}

// pickImage lets the user choose a reference image and prepares it for upload.
func (u *appUI) pickImage(done func(imaging.Upload)) {
	d := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, u.win)
			return
		}
		if rc == nil {
			return
		}
		defer func() { _ = rc.Close() }()
		data, err := io.ReadAll(io.LimitReader(rc, imaging.MaxUploadBytes+1))
		if err != nil {
			dialog.ShowError(err, u.win)
			return
		}
		up, err := imaging.PrepareUpload(data)
		if err != nil {
			dialog.ShowError(err, u.win)
			return
		}
		u.log.Debug("reference image loaded", slog.String("uri", rc.URI().Name()), slog.Int("w", up.Width), slog.Int("h", up.Height))
		done(up)
	}, u.win)
	d.SetFilter(fstorage.NewExtensionFileFilter([]string{".png", ".jpg", ".jpeg", ".webp", ".gif", ".bmp"}))
	d.Show()
}

func (u *appUI) mainMenu() *fyne.MainMenu {
	newItem := fyne.NewMenuItem("New Story", u.confirmReset)
	exportFiles := fyne.NewMenuItem("Download All Pages…", func() { u.exportTo(export.PresetFiles) })
	exportReader := fyne.NewMenuItem("Export CBZ and PDF…", func() { u.exportTo(export.PresetReader) })
	fileMenu := fyne.NewMenu("File", newItem, fyne.NewMenuItemSeparator(), exportFiles, exportReader)

	undoItem := fyne.NewMenuItem("Undo", func() {
		if s, ok := u.screen.(*storyboardScreen); ok {
			s.undo()
		}
	})
	redoItem := fyne.NewMenuItem("Redo", func() {
		if s, ok := u.screen.(*storyboardScreen); ok {
			s.redo()
		}
	})
	editMenu := fyne.NewMenu("Edit", undoItem, redoItem)

	aboutItem := fyne.NewMenuItem("About", func() {
		dialog.ShowInformation("About", fmt.Sprintf("Manga Wizard %s\nBackend: %s", version.String(), u.sess.Config.Backend.BaseURL), u.win)
	})
	return fyne.NewMainMenu(fileMenu, editMenu, fyne.NewMenu("Help", aboutItem))
}

// exportTo asks for a folder and writes the completed pages with preset.
func (u *appUI) exportTo(preset export.PresetName) {
	if len(u.st.CompletedPages()) == 0 {
		dialog.ShowInformation("Export", "No generated pages yet.", u.win)
		return
	}
	rtl := u.side.rightToLeft()
	fd := dialog.NewFolderOpen(func(uri fyne.ListableURI, err error) {
		if err != nil {
			dialog.ShowError(err, u.win)
			return
		}
		if uri == nil {
			return
		}
		outDir := uri.Path()
		go func() {
			res, err := u.sess.Export(u.ctx, outDir, preset, rtl)
			fyne.Do(func() {
				if err != nil {
					dialog.ShowError(err, u.win)
					return
				}
				dialog.ShowInformation("Export", fmt.Sprintf("Exported %d pages (%d files) to %s", res.Pages, len(res.Files), outDir), u.win)
			})
		}()
	}, u.win)
	fd.Show()
}
