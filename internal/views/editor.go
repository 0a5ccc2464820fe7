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
	"fmt"
	"strconv"
	"time"

	"mangawizard/internal/domain"
	"mangawizard/internal/undo"
)

// PanelField names an editable panel attribute.
type PanelField string

const (
	FieldDescription PanelField = "description"
	FieldDialogue    PanelField = "dialogue"
	FieldShotType    PanelField = "shot_type"
)

var (
	ErrUnknownPage  = errors.New("unknown page")
	ErrUnknownPanel = errors.New("unknown panel")
	ErrUnknownField = errors.New("unknown panel field")
)

// StoryboardEditor edits a private copy of a storyboard with per-page undo.
type StoryboardEditor struct {
	sb      *domain.Storyboard
	history *undo.Manager
	now     func() time.Time
	dirty   bool
}

// NewStoryboardEditor copies sb; the caller's storyboard is never modified.
func NewStoryboardEditor(sb *domain.Storyboard) *StoryboardEditor {
	c := sb.Clone()
	if c == nil {
		c = &domain.Storyboard{}
	}
	return &StoryboardEditor{
		sb:      c,
		history: undo.NewManager(undo.Config{MaxPerPage: 100}),
		now:     time.Now,
	}
}

// Storyboard returns a copy of the edited storyboard.
func (e *StoryboardEditor) Storyboard() *domain.Storyboard { return e.sb.Clone() }

// Result is the storyboard to confirm.
func (e *StoryboardEditor) Result() *domain.Storyboard { return e.sb.Clone() }

// Dirty reports whether anything was edited.
func (e *StoryboardEditor) Dirty() bool { return e.dirty }

func (e *StoryboardEditor) page(n int) (*domain.Page, error) {
	i := e.sb.PageByNumber(n)
	if i < 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPage, n)
	}
	return &e.sb.Pages[i], nil
}

// UpdatePanel sets one field of a panel. Panels are addressed by panel_number.
func (e *StoryboardEditor) UpdatePanel(pageNumber, panelNumber int, field PanelField, value string) error {
	p, err := e.page(pageNumber)
	if err != nil {
		return err
	}
	idx := -1
	for i := range p.Panels {
		if p.Panels[i].PanelNumber == panelNumber {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: page %d panel %d", ErrUnknownPanel, pageNumber, panelNumber)
	}
	var target *string
	switch field {
	case FieldDescription:
		target = &p.Panels[idx].Description
	case FieldDialogue:
		target = &p.Panels[idx].Dialogue
	case FieldShotType:
		target = &p.Panels[idx].ShotType
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if *target == value {
		return nil
	}
	e.history.Record(undo.Snapshot{Page: *p, Field: strconv.Itoa(panelNumber) + "." + string(field), TS: e.now()})
	*target = value
	e.dirty = true
	return nil
}

// UpdateLayout sets a page's layout description.
func (e *StoryboardEditor) UpdateLayout(pageNumber int, value string) error {
	p, err := e.page(pageNumber)
	if err != nil {
		return err
	}
	if p.LayoutDescription == value {
		return nil
	}
	e.history.Record(undo.Snapshot{Page: *p, Field: "layout", TS: e.now()})
	p.LayoutDescription = value
	e.dirty = true
	return nil
}

// Undo reverts the latest edit on a page.
func (e *StoryboardEditor) Undo(pageNumber int) bool {
	p, err := e.page(pageNumber)
	if err != nil {
		return false
	}
	prev, ok := e.history.Undo(*p)
	if ok {
		*p = prev
	}
	return ok
}

// Redo re-applies an undone edit on a page.
func (e *StoryboardEditor) Redo(pageNumber int) bool {
	p, err := e.page(pageNumber)
	if err != nil {
		return false
	}
	next, ok := e.history.Redo(*p)
	if ok {
		*p = next
	}
	return ok
}

func (e *StoryboardEditor) CanUndo(pageNumber int) bool { return e.history.CanUndo(pageNumber) }
func (e *StoryboardEditor) CanRedo(pageNumber int) bool { return e.history.CanRedo(pageNumber) }
