/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the data model shared by the backend client, the wizard
// controller and the views. JSON tags follow the generation service's wire format.

import (
	"fmt"
	"strings"
)

// Storyboard is the structured outline produced by the generation service.
type Storyboard struct {
	Title      string `json:"title"`
	TotalPages int    `json:"total_pages"`
	Pages      []Page `json:"pages"`
}

// Page is one manga page. PageNumber is 1-based and unique within a storyboard.
// ImageURL holds the generated image as bare base64 (no data-URL prefix).
type Page struct {
	PageNumber        int        `json:"page_number"`
	LayoutDescription string     `json:"layout_description"`
	Panels            []Panel    `json:"panels"`
	ImageURL          string     `json:"-"`
	Status            PageStatus `json:"-"`
	EditablePrompt    string     `json:"-"`
}

// Panel is a single frame on a page.
type Panel struct {
	PanelNumber int    `json:"panel_number"`
	Description string `json:"description"`
	Dialogue    string `json:"dialogue,omitempty"`
	ShotType    string `json:"shot_type,omitempty"`
}

// PageStatus tracks image generation for a page.
type PageStatus string

const (
	StatusPending   PageStatus = "pending"
	StatusCompleted PageStatus = "completed"
	StatusFailed    PageStatus = "failed"
)

// HasImage reports whether an image has been generated for the page.
func (p Page) HasImage() bool { return p.ImageURL != "" }

// Clone returns a deep copy of the page.
func (p Page) Clone() Page {
	c := p
	c.Panels = append([]Panel(nil), p.Panels...)
	return c
}

// Clone returns a deep copy of the storyboard. A nil receiver yields nil.
func (s *Storyboard) Clone() *Storyboard {
	if s == nil {
		return nil
	}
	c := *s
	c.Pages = ClonePages(s.Pages)
	return &c
}

// PageByNumber returns the index of the page with the given number, or -1.
func (s *Storyboard) PageByNumber(n int) int {
	if s == nil {
		return -1
	}
	return IndexOfPage(s.Pages, n)
}

// Validate checks the structural invariants the wizard relies on:
// at least one page and unique, positive page numbers.
func (s *Storyboard) Validate() error {
	if s == nil || len(s.Pages) == 0 {
		return fmt.Errorf("storyboard has no pages")
	}
	seen := make(map[int]bool, len(s.Pages))
	for i, p := range s.Pages {
		if p.PageNumber < 1 {
			return fmt.Errorf("page %d: page_number must be positive, got %d", i, p.PageNumber)
		}
		if seen[p.PageNumber] {
			return fmt.Errorf("duplicate page_number %d", p.PageNumber)
		}
		seen[p.PageNumber] = true
	}
	return nil
}

// ClonePages deep-copies a page slice.
func ClonePages(pages []Page) []Page {
	if pages == nil {
		return nil
	}
	out := make([]Page, len(pages))
	for i, p := range pages {
		out[i] = p.Clone()
	}
	return out
}

// IndexOfPage returns the slice index of page number n, or -1.
func IndexOfPage(pages []Page, n int) int {
	for i, p := range pages {
		if p.PageNumber == n {
			return i
		}
	}
	return -1
}

// BuildPagePrompt derives the editable text prompt for a page from its panels
// and the combined art style.
func BuildPagePrompt(p Page, style string) string {
	var b strings.Builder
	layout := p.LayoutDescription
	if layout == "" {
		layout = "Standard"
	}
	fmt.Fprintf(&b, "Layout: %s\nArt Style: %s\nPanels:\n", layout, style)
	for _, pn := range p.Panels {
		shot := pn.ShotType
		if shot == "" {
			shot = "Medium"
		}
		fmt.Fprintf(&b, "- Panel %d: %s. Shot: %s. Dialogue: \"%s\"\n", pn.PanelNumber, pn.Description, shot, pn.Dialogue)
	}
	return b.String()
}
