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
	"strings"
	"testing"
	"time"

	"mangawizard/internal/domain"
)

func page(n int, desc string) domain.Page {
	return domain.Page{PageNumber: n, Panels: []domain.Panel{{PanelNumber: 1, Description: desc}}}
}

func TestUndoRedoBasic(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024 * 1024, MaxPerPage: 10, MinInterval: 10 * time.Millisecond})
	t0 := time.Now()
	m.Record(Snapshot{Page: page(1, "a"), Field: "1.description", TS: t0})
	m.Record(Snapshot{Page: page(1, "b"), Field: "1.description", TS: t0.Add(20 * time.Millisecond)})
	if _, pages, total := m.Stats(); pages != 1 || total != 2 {
		t.Fatalf("expected 1 page and 2 snapshots, got pages=%d total=%d", pages, total)
	}
	cur := page(1, "c")
	prev, ok := m.Undo(cur)
	if !ok || prev.Panels[0].Description != "b" {
		t.Fatalf("undo expected 'b', got ok=%v %+v", ok, prev)
	}
	if !m.CanRedo(1) {
		t.Fatalf("redo should be available")
	}
	next, ok := m.Redo(prev)
	if !ok || next.Panels[0].Description != "c" {
		t.Fatalf("redo expected 'c', got ok=%v %+v", ok, next)
	}
	if _, ok := m.Redo(next); ok {
		t.Fatalf("redo stack should be empty")
	}
}

func TestRecordClearsRedo(t *testing.T) {
	m := NewManager(Config{MinInterval: time.Millisecond})
	t0 := time.Now()
	m.Record(Snapshot{Page: page(1, "a"), Field: "x", TS: t0})
	_, _ = m.Undo(page(1, "b"))
	m.Record(Snapshot{Page: page(1, "a"), Field: "y", TS: t0.Add(time.Second)})
	if m.CanRedo(1) {
		t.Fatalf("new edit must clear redo")
	}
}

func TestCoalesce(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024 * 1024, MaxPerPage: 10, MinInterval: 50 * time.Millisecond})
	t0 := time.Now()
	m.Record(Snapshot{Page: page(2, ""), Field: "1.dialogue", TS: t0})
	m.Record(Snapshot{Page: page(2, "h"), Field: "1.dialogue", TS: t0.Add(10 * time.Millisecond)})
	m.Record(Snapshot{Page: page(2, "he"), Field: "1.dialogue", TS: t0.Add(20 * time.Millisecond)})
	if _, _, total := m.Stats(); total != 1 {
		t.Fatalf("expected coalesced to 1 snapshot, got %d", total)
	}
	prev, ok := m.Undo(page(2, "hey"))
	if !ok || prev.Panels[0].Description != "" {
		t.Fatalf("undo should return the state before the burst, got %+v", prev)
	}
	// a different field is never coalesced
	m.Record(Snapshot{Page: page(2, "a"), Field: "1.dialogue", TS: t0.Add(30 * time.Millisecond)})
	m.Record(Snapshot{Page: page(2, "b"), Field: "1.shot_type", TS: t0.Add(31 * time.Millisecond)})
	if _, _, total := m.Stats(); total != 2 {
		t.Fatalf("expected 2 snapshots, got %d", total)
	}
}

func TestCaps(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1 << 20, MaxPerPage: 2, MinInterval: time.Millisecond})
	t0 := time.Now()
	for i := 0; i < 10; i++ {
		m.Record(Snapshot{Page: page(3, "xxxxx"), TS: t0.Add(time.Duration(i) * time.Second)})
	}
	if _, _, total := m.Stats(); total > 2 {
		t.Fatalf("expected MaxPerPage cap to limit to 2, got %d", total)
	}
}

func TestClearPageAndStats(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024, MaxPerPage: 10, MinInterval: time.Millisecond})
	m.Record(Snapshot{Page: page(7, "abcdef"), TS: time.Now()})
	tb, pages, total := m.Stats()
	if tb == 0 || pages != 1 || total != 1 {
		t.Fatalf("unexpected stats before clear: tb=%d pages=%d total=%d", tb, pages, total)
	}
	m.ClearPage(7)
	tb2, pages2, total2 := m.Stats()
	if tb2 != 0 || pages2 != 0 || total2 != 0 {
		t.Fatalf("expected cleared stats to be zero, got tb=%d pages=%d total=%d", tb2, pages2, total2)
	}
}

func TestGlobalPruneAcrossPages(t *testing.T) {
	big := strings.Repeat("x", 100)
	one := Snapshot{Page: page(1, big)}
	m := NewManager(Config{MaxBytes: 2*one.size() + 10, MinInterval: time.Millisecond})
	t0 := time.Now()
	m.Record(Snapshot{Page: page(1, big), TS: t0})
	m.Record(Snapshot{Page: page(2, big), TS: t0.Add(time.Second)})
	m.Record(Snapshot{Page: page(2, big), TS: t0.Add(2 * time.Second)})

	if _, ok := m.Undo(page(1, "")); ok {
		t.Fatalf("expected page 1 to have been pruned")
	}
	if _, ok := m.Undo(page(2, "")); !ok {
		t.Fatalf("expected page 2 to have snapshots")
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	m := NewManager(Config{})
	p := page(1, "orig")
	m.Record(Snapshot{Page: p, TS: time.Now()})
	p.Panels[0].Description = "changed"
	prev, _ := m.Undo(p)
	if prev.Panels[0].Description != "orig" {
		t.Fatalf("snapshot shares memory with caller")
	}
}
