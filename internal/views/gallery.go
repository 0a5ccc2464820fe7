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
	"strings"

	"mangawizard/internal/domain"
)

// Gallery is the paged viewer of generated pages with an inline edit form.
// Any navigation discards the edit form.
type Gallery struct {
	index int

	editing    bool
	editPrompt string
	refImage   string
	refPreview string
	useCurrent bool
}

// Index returns the current position clamped to [0, total-1].
func (g *Gallery) Index(total int) int {
	g.index = clamp(g.index, total)
	return g.index
}

// Select jumps to position i.
func (g *Gallery) Select(i, total int) {
	g.index = clamp(i, total)
	g.resetEdit()
}

// Next moves forward, stopping at the last page.
func (g *Gallery) Next(total int) { g.Select(g.index+1, total) }

// Prev moves back, stopping at the first page.
func (g *Gallery) Prev(total int) { g.Select(g.index-1, total) }

// HasNext reports whether Next would move.
func (g *Gallery) HasNext(total int) bool { return g.Index(total) < total-1 }

// HasPrev reports whether Prev would move.
func (g *Gallery) HasPrev(total int) bool { return g.Index(total) > 0 }

// Current returns the page under the cursor.
func (g *Gallery) Current(pages []domain.Page) (domain.Page, bool) {
	if len(pages) == 0 {
		return domain.Page{}, false
	}
	return pages[g.Index(len(pages))].Clone(), true
}

// BeginEdit opens the edit form seeded with the page's prompt.
func (g *Gallery) BeginEdit(p domain.Page) {
	g.resetEdit()
	g.editing = true
	g.editPrompt = p.EditablePrompt
}

// CancelEdit closes the edit form.
func (g *Gallery) CancelEdit() { g.resetEdit() }

func (g *Gallery) Editing() bool      { return g.editing }
func (g *Gallery) EditPrompt() string { return g.editPrompt }
func (g *Gallery) RefPreview() string { return g.refPreview }
func (g *Gallery) UseCurrent() bool   { return g.useCurrent }

func (g *Gallery) SetEditPrompt(s string) { g.editPrompt = s }
func (g *Gallery) SetUseCurrent(v bool)   { g.useCurrent = v }

// SetUpload attaches an extra reference image to the pending regeneration.
func (g *Gallery) SetUpload(b64, preview string) {
	g.refImage = b64
	g.refPreview = preview
}

// ClearUpload drops the extra reference image.
func (g *Gallery) ClearUpload() { g.SetUpload("", "") }

// RegenerateArgs returns the arguments for regenerating p. A blank edit prompt
// falls back to the page's own prompt.
func (g *Gallery) RegenerateArgs(p domain.Page) (pageNumber int, prompt, extraRef string, useCurrent bool) {
	prompt = g.editPrompt
	if strings.TrimSpace(prompt) == "" {
		prompt = p.EditablePrompt
	}
	return p.PageNumber, prompt, g.refImage, g.useCurrent
}

func (g *Gallery) resetEdit() {
	g.editing = false
	g.editPrompt = ""
	g.refImage = ""
	g.refPreview = ""
	g.useCurrent = false
}

func clamp(i, total int) int {
	if total <= 0 || i < 0 {
		return 0
	}
	if i > total-1 {
		return total - 1
	}
	return i
}
