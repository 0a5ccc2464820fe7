/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package wizard drives the manga creation flow: storyboard generation,
// first-page preview, batch generation of the remaining pages and per-page
// regeneration. The Controller owns all live state; observers receive copies.
package wizard

import (
	"errors"
	"fmt"

	"mangawizard/internal/domain"
)

// Step is a wizard stage.
type Step int

const (
	StepStart Step = iota
	StepStoryboard
	StepPreview
	StepGallery
)

var stepNames = [...]string{"Start", "Storyboard", "Preview", "Gallery"}

func (s Step) String() string {
	if s < StepStart || s > StepGallery {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return stepNames[s]
}

// Valid reports whether s is one of the four stages.
func (s Step) Valid() bool { return s >= StepStart && s <= StepGallery }

var (
	ErrEmptyPrompt      = errors.New("prompt is empty")
	ErrEmptyAPIKey      = errors.New("api key is empty")
	ErrNotConfigured    = errors.New("generation service has no api key configured")
	ErrBusy             = errors.New("another operation is in progress")
	ErrCanceled         = errors.New("operation canceled")
	ErrRateLimited      = errors.New("page was regenerated too recently")
	ErrEmptyStoryboard  = errors.New("storyboard has no pages")
	ErrNoFirstPageImage = errors.New("first page has no image yet")
	ErrStreamEnded      = errors.New("stream ended without a result")
	ErrPageNotFound     = errors.New("page not found")
	ErrWrongStep        = errors.New("operation not available at this step")
)

// GenerationError is an error event reported by the generation service.
type GenerationError struct {
	Op      string
	Page    int // 0 for storyboard operations
	Message string
}

func (e *GenerationError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("%s (page %d): %s", e.Op, e.Page, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// State is a snapshot of the wizard. Snapshots never share memory with the controller.
type State struct {
	// Revision increases with every change; observers can drop older snapshots.
	Revision   uint64
	Step       Step
	Configured bool
	Loading    bool
	Operation  string // name of the in-flight operation, if any
	// RegeneratingPage is the page number being regenerated in the gallery, or 0.
	RegeneratingPage int

	Style  domain.StyleConfig
	Prompt string

	ThinkingText string
	StreamText   string

	Storyboard *domain.Storyboard
	Pages      []domain.Page

	FirstPageImage          string
	FirstPagePrompt         string
	EditableFirstPagePrompt string
	TempRefImage            string
	UseCurrentAsRef         bool
}

// Clone returns a deep copy.
func (s State) Clone() State {
	c := s
	c.Storyboard = s.Storyboard.Clone()
	c.Pages = domain.ClonePages(s.Pages)
	return c
}

// Page returns a copy of the page with number n.
func (s State) Page(n int) (domain.Page, bool) {
	i := domain.IndexOfPage(s.Pages, n)
	if i < 0 {
		return domain.Page{}, false
	}
	return s.Pages[i].Clone(), true
}

// CompletedPages returns the pages that have an image, in order.
func (s State) CompletedPages() []domain.Page {
	var out []domain.Page
	for _, p := range s.Pages {
		if p.Status == domain.StatusCompleted && p.HasImage() {
			out = append(out, p.Clone())
		}
	}
	return out
}

// Connecting reports a loading storyboard stream that has produced no output yet.
func (s State) Connecting() bool {
	return s.Loading && s.Step == StepStart && s.ThinkingText == "" && s.StreamText == ""
}
