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
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	fstorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"mangawizard/internal/domain"
	"mangawizard/internal/imaging"
	"mangawizard/internal/stylepack"
	"mangawizard/internal/wizard"
)

// sidebar holds the API key form and the style settings.
type sidebar struct {
	u *appUI

	keyStatus *widget.Label
	keyEntry  *widget.Entry
	remember  *widget.Check
	keySave   *widget.Button

	styleText   *widget.Entry
	extraPrompt *widget.Entry
	aspect      *widget.Select
	size        *widget.Select
	styleImage  domain.StyleConfig // only StyleImage and StyleImagePreview are used
	stylePrev   *fyne.Container
	shownStyle  string
	clearStyle  *widget.Button
	rtl         *widget.Check
	// seeding suppresses saves while widgets are filled programmatically
	seeding bool

	obj fyne.CanvasObject
}

func newSidebar(u *appUI) *sidebar {
	s := &sidebar{u: u}
	cur := u.ctrl.State().Style

	s.keyStatus = widget.NewLabel("")
	s.keyEntry = widget.NewPasswordEntry()
	s.keyEntry.SetPlaceHolder("Gemini API key")
	s.remember = widget.NewCheck("Remember on this computer", nil)
	s.remember.SetChecked(u.sess.Config.General.RememberAPIKey)
	s.keySave = widget.NewButtonWithIcon("Connect", theme.ConfirmIcon(), s.saveKey)
	s.keyEntry.OnSubmitted = func(string) { s.saveKey() }

	s.styleText = widget.NewMultiLineEntry()
	s.styleText.SetPlaceHolder("Art style, e.g. black-and-white shōnen with heavy screentone")
	s.styleText.Wrapping = fyne.TextWrapWord
	s.styleText.SetMinRowsVisible(3)
	s.styleText.SetText(cur.StyleText)

	s.extraPrompt = widget.NewMultiLineEntry()
	s.extraPrompt.SetPlaceHolder("Extra instructions added to every page")
	s.extraPrompt.Wrapping = fyne.TextWrapWord
	s.extraPrompt.SetMinRowsVisible(2)
	s.extraPrompt.SetText(cur.ExtraPrompt)

	var aspectLabels, sizeLabels []string
	for _, a := range domain.AspectRatios {
		aspectLabels = append(aspectLabels, a.Label())
	}
	for _, z := range domain.ImageSizes {
		sizeLabels = append(sizeLabels, z.Label())
	}
	s.aspect = widget.NewSelect(aspectLabels, nil)
	s.aspect.SetSelected(cur.AspectRatio.Label())
	s.size = widget.NewSelect(sizeLabels, nil)
	s.size.SetSelected(cur.ImageSize.Label())

	s.styleImage = domain.StyleConfig{StyleImage: cur.StyleImage, StyleImagePreview: cur.StyleImagePreview}
	s.stylePrev = container.NewStack()
	upload := widget.NewButtonWithIcon("Upload", theme.FolderOpenIcon(), func() {
		u.pickImage(func(up imaging.Upload) {
			s.styleImage = domain.StyleConfig{StyleImage: up.Base64, StyleImagePreview: up.Preview}
			s.push()
		})
	})
	s.clearStyle = widget.NewButtonWithIcon("Remove", theme.DeleteIcon(), func() {
		s.styleImage = domain.StyleConfig{}
		s.push()
	})
	importBtn := widget.NewButtonWithIcon("Import…", theme.FolderOpenIcon(), s.importPack)
	exportBtn := widget.NewButtonWithIcon("Export…", theme.DocumentSaveIcon(), s.exportPack)
	s.rtl = widget.NewCheck("Right-to-left reading order", nil)
	s.rtl.SetChecked(true)

	// hooked up after the initial values so seeding does not save
	s.styleText.OnChanged = func(string) { s.push() }
	s.extraPrompt.OnChanged = func(string) { s.push() }
	s.aspect.OnChanged = func(string) { s.push() }
	s.size.OnChanged = func(string) { s.push() }

	s.obj = container.NewVBox(
		widget.NewCard("Connection", "", container.NewVBox(s.keyStatus, s.keyEntry, s.remember, s.keySave)),
		widget.NewCard("Style", "", container.NewVBox(
			widget.NewLabel("Art style"), s.styleText,
			widget.NewLabel("Extra prompt"), s.extraPrompt,
			widget.NewForm(
				widget.NewFormItem("Aspect ratio", s.aspect),
				widget.NewFormItem("Resolution", s.size),
			),
			container.NewGridWithColumns(2, importBtn, exportBtn),
		)),
		widget.NewCard("Style reference", "Optional image the pages should imitate", container.NewVBox(
			s.stylePrev, container.NewGridWithColumns(2, upload, s.clearStyle),
		)),
		widget.NewCard("Export", "", s.rtl),
	)
	return s
}

func (s *sidebar) object() fyne.CanvasObject { return s.obj }

func (s *sidebar) rightToLeft() bool { return s.rtl.Checked }

// current reads the style from the widgets.
func (s *sidebar) current() domain.StyleConfig {
	cfg := domain.StyleConfig{
		StyleText:         s.styleText.Text,
		ExtraPrompt:       s.extraPrompt.Text,
		StyleImage:        s.styleImage.StyleImage,
		StyleImagePreview: s.styleImage.StyleImagePreview,
	}
	for _, a := range domain.AspectRatios {
		if a.Label() == s.aspect.Selected {
			cfg.AspectRatio = a
		}
	}
	for _, z := range domain.ImageSizes {
		if z.Label() == s.size.Selected {
			cfg.ImageSize = z
		}
	}
	return cfg.Normalized()
}

func (s *sidebar) push() {
	if s.seeding {
		return
	}
	s.u.ctrl.UpdateStyle(s.current())
}

// seed fills the widgets from cfg and saves once.
func (s *sidebar) seed(cfg domain.StyleConfig) {
	s.seeding = true
	s.styleText.SetText(cfg.StyleText)
	s.extraPrompt.SetText(cfg.ExtraPrompt)
	s.aspect.SetSelected(cfg.AspectRatio.Label())
	s.size.SetSelected(cfg.ImageSize.Label())
	s.styleImage = domain.StyleConfig{StyleImage: cfg.StyleImage, StyleImagePreview: cfg.StyleImagePreview}
	s.seeding = false
	s.push()
}

func (s *sidebar) importPack() {
	d := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, s.u.win)
			return
		}
		if rc == nil {
			return
		}
		path := rc.URI().Path()
		_ = rc.Close()
		cfg, err := stylepack.Import(path)
		if err != nil {
			dialog.ShowError(err, s.u.win)
			return
		}
		s.seed(cfg)
	}, s.u.win)
	d.SetFilter(fstorage.NewExtensionFileFilter([]string{".zip"}))
	d.Show()
}

func (s *sidebar) exportPack() {
	d := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
		if err != nil {
			dialog.ShowError(err, s.u.win)
			return
		}
		if wc == nil {
			return
		}
		outPath := wc.URI().Path()
		_ = wc.Close()
		if err := stylepack.Export(s.current(), outPath); err != nil {
			dialog.ShowError(err, s.u.win)
			return
		}
		dialog.ShowInformation("Export Style", "Exported to "+outPath, s.u.win)
	}, s.u.win)
	d.SetFileName("manga-style.zip")
	d.SetFilter(fstorage.NewExtensionFileFilter([]string{".zip"}))
	d.Show()
}

func (s *sidebar) saveKey() {
	key := strings.TrimSpace(s.keyEntry.Text)
	if key == "" {
		s.u.showError(wizard.ErrEmptyAPIKey)
		return
	}
	remember := s.remember.Checked
	s.keySave.Disable()
	s.u.run("set_api_key", func(ctx context.Context) error {
		err := s.u.ctrl.SetAPIKey(ctx, key, remember)
		fyne.Do(func() {
			s.keySave.Enable()
			if err == nil {
				s.keyEntry.SetText("")
			}
		})
		return err
	})
}

func (s *sidebar) refresh(st wizard.State) {
	if st.Configured {
		s.keyStatus.SetText("Connected. Enter a new key to replace it.")
	} else {
		s.keyStatus.SetText("Not connected. An API key is required.")
	}
	if st.Style.StyleImage != s.shownStyle {
		s.shownStyle = st.Style.StyleImage
		s.stylePrev.Objects = nil
		if s.shownStyle != "" {
			s.stylePrev.Objects = []fyne.CanvasObject{s.u.imageView(s.shownStyle, fyne.NewSize(160, 160))}
		}
		s.stylePrev.Refresh()
	}
	if st.Style.StyleImage == "" {
		s.clearStyle.Disable()
	} else {
		s.clearStyle.Enable()
	}
}
