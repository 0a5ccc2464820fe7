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
	"mangawizard/internal/domain"
	"mangawizard/internal/wizard"
)

// PreviewForm mirrors the first-page preview controls.
type PreviewForm struct {
	Prompt          string
	UseCurrentAsRef bool
	RefImage        string // base64, no data-URL prefix
	RefPreview      string // data URL for display
}

// NewPreviewForm seeds the form from the controller state.
func NewPreviewForm(st wizard.State) PreviewForm {
	return PreviewForm{
		Prompt:          st.EditableFirstPagePrompt,
		UseCurrentAsRef: st.UseCurrentAsRef,
		RefImage:        st.TempRefImage,
	}
}

// SetUpload stores an uploaded reference image.
func (f *PreviewForm) SetUpload(b64, preview string) {
	f.RefImage = b64
	f.RefPreview = preview
}

// ClearUpload removes the uploaded reference image.
func (f *PreviewForm) ClearUpload() {
	f.RefImage = ""
	f.RefPreview = ""
}

// CanConfirm reports whether "confirm and generate all" is enabled.
func (f PreviewForm) CanConfirm(st wizard.State) bool {
	return st.FirstPageImage != "" && !st.Loading
}

// CanRegenerate reports whether the first page can be regenerated now.
func (f PreviewForm) CanRegenerate(st wizard.State) bool {
	return !st.Loading && len(st.Pages) > 0
}

// FirstPage returns the anchor page of the state, if any.
func FirstPage(st wizard.State) (domain.Page, bool) {
	if len(st.Pages) == 0 {
		return domain.Page{}, false
	}
	return st.Pages[0].Clone(), true
}
