/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package undo

import (
	"sync"
	"time"

	"mangawizard/internal/domain"
)

// Snapshot is the state of one storyboard page before an edit.
// Field names the edit (e.g. "2.dialogue"); consecutive edits of the same
// field within Config.MinInterval are coalesced into one undo step.
type Snapshot struct {
	Page  domain.Page
	Field string
	TS    time.Time
}

// size estimates the memory held by the snapshot.
func (s Snapshot) size() int {
	n := len(s.Page.LayoutDescription) + len(s.Page.EditablePrompt) + len(s.Page.ImageURL) + len(s.Field)
	for _, p := range s.Page.Panels {
		n += len(p.Description) + len(p.Dialogue) + len(p.ShotType) + 8
	}
	return n + 16
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap; the oldest entries across all pages are pruned when exceeded.
	MaxBytes int
	// MaxPerPage limits undo depth per page (0 means unlimited).
	MaxPerPage int
	// MinInterval coalesces edits of the same field that follow each other closely.
	MinInterval time.Duration
}

// Manager keeps undo/redo stacks per page. It is safe for concurrent use.
type Manager struct {
	cfg Config
	mu  sync.Mutex
	// per-page stacks, keyed by page number
	undo map[int][]Snapshot
	redo map[int][]Snapshot
	// accounting
	totalBytes int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 4 * 1024 * 1024
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 750 * time.Millisecond
	}
	return &Manager{cfg: cfg, undo: make(map[int][]Snapshot), redo: make(map[int][]Snapshot)}
}

// Record stores the page state from before an edit and clears the page's redo stack.
// When the previous entry is for the same field and recent, the older state is kept
// and only its timestamp advances.
func (m *Manager) Record(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := s.Page.PageNumber
	m.dropRedoLocked(n)
	stack := m.undo[n]
	if k := len(stack); k > 0 {
		last := &stack[k-1]
		if s.Field != "" && last.Field == s.Field && s.TS.Sub(last.TS) < m.cfg.MinInterval {
			last.TS = s.TS
			return
		}
	}
	s.Page = s.Page.Clone()
	m.undo[n] = append(stack, s)
	m.totalBytes += s.size()
	m.enforceCapsLocked(n)
}

// Undo returns the state before the latest edit of the page and moves current
// onto the redo stack.
func (m *Manager) Undo(current domain.Page) (domain.Page, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := current.PageNumber
	stack := m.undo[n]
	if len(stack) == 0 {
		return current, false
	}
	s := stack[len(stack)-1]
	m.undo[n] = stack[:len(stack)-1]
	m.totalBytes -= s.size()
	r := Snapshot{Page: current.Clone(), Field: s.Field, TS: s.TS}
	m.redo[n] = append(m.redo[n], r)
	m.totalBytes += r.size()
	return s.Page.Clone(), true
}

// Redo re-applies the most recently undone edit of the page.
func (m *Manager) Redo(current domain.Page) (domain.Page, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := current.PageNumber
	r := m.redo[n]
	if len(r) == 0 {
		return current, false
	}
	s := r[len(r)-1]
	m.redo[n] = r[:len(r)-1]
	m.totalBytes -= s.size()
	u := Snapshot{Page: current.Clone(), Field: s.Field, TS: s.TS}
	m.undo[n] = append(m.undo[n], u)
	m.totalBytes += u.size()
	m.enforceCapsLocked(n)
	return s.Page.Clone(), true
}

// CanUndo reports whether the page has undo history.
func (m *Manager) CanUndo(pageNumber int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo[pageNumber]) > 0
}

// CanRedo reports whether the page has undone edits to re-apply.
func (m *Manager) CanRedo(pageNumber int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo[pageNumber]) > 0
}

// ClearPage clears undo/redo stacks for a page to free memory.
func (m *Manager) ClearPage(pageNumber int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.undo[pageNumber] {
		m.totalBytes -= s.size()
	}
	delete(m.undo, pageNumber)
	m.dropRedoLocked(pageNumber)
	if m.totalBytes < 0 {
		m.totalBytes = 0
	}
}

// Reset drops all history.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undo = make(map[int][]Snapshot)
	m.redo = make(map[int][]Snapshot)
	m.totalBytes = 0
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes int, pages int, totalSnapshots int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pages = len(m.undo)
	for _, v := range m.undo {
		totalSnapshots += len(v)
	}
	return m.totalBytes, pages, totalSnapshots
}

func (m *Manager) dropRedoLocked(pageNumber int) {
	for _, s := range m.redo[pageNumber] {
		m.totalBytes -= s.size()
	}
	delete(m.redo, pageNumber)
}

func (m *Manager) enforceCapsLocked(pageNumber int) {
	if m.cfg.MaxPerPage > 0 {
		stack := m.undo[pageNumber]
		if len(stack) > m.cfg.MaxPerPage {
			toDrop := len(stack) - m.cfg.MaxPerPage
			for i := 0; i < toDrop; i++ {
				m.totalBytes -= stack[i].size()
			}
			m.undo[pageNumber] = append([]Snapshot{}, stack[toDrop:]...)
		}
	}
	// global cap: prune the oldest entry across all pages, never the page just edited
	// down to nothing
	for m.cfg.MaxBytes > 0 && m.totalBytes > m.cfg.MaxBytes {
		oldestPage, found := 0, false
		var oldestTS time.Time
		for page, stack := range m.undo {
			if len(stack) == 0 || (page == pageNumber && len(stack) == 1) {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldestPage, oldestTS, found = page, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		stack := m.undo[oldestPage]
		m.totalBytes -= stack[0].size()
		m.undo[oldestPage] = stack[1:]
		if len(m.undo[oldestPage]) == 0 {
			delete(m.undo, oldestPage)
		}
	}
}
