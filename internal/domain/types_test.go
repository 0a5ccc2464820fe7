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

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBuildPagePrompt(t *testing.T) {
	p := Page{
		PageNumber:        1,
		LayoutDescription: "Two tiers",
		Panels: []Panel{
			{PanelNumber: 1, Description: "A robot in the sand", ShotType: "Wide", Dialogue: "Hello?"},
			{PanelNumber: 2, Description: "A flower"},
		},
	}
	got := BuildPagePrompt(p, "ink wash")
	want := "Layout: Two tiers\nArt Style: ink wash\nPanels:\n" +
		"- Panel 1: A robot in the sand. Shot: Wide. Dialogue: \"Hello?\"\n" +
		"- Panel 2: A flower. Shot: Medium. Dialogue: \"\"\n"
	if got != want {
		t.Fatalf("prompt mismatch:\n got: %q\nwant: %q", got, want)
	}
	if !strings.HasPrefix(BuildPagePrompt(Page{}, ""), "Layout: Standard\n") {
		t.Fatalf("empty layout should default to Standard")
	}
}

func TestStoryboardCloneIsDeep(t *testing.T) {
	sb := &Storyboard{Title: "T", Pages: []Page{{PageNumber: 1, Panels: []Panel{{PanelNumber: 1, Description: "a"}}}}}
	c := sb.Clone()
	c.Pages[0].Panels[0].Description = "changed"
	c.Pages[0].ImageURL = "x"
	if sb.Pages[0].Panels[0].Description != "a" || sb.Pages[0].ImageURL != "" {
		t.Fatalf("clone shares memory with original")
	}
	var nilSB *Storyboard
	if nilSB.Clone() != nil {
		t.Fatalf("nil clone should be nil")
	}
}

func TestStoryboardValidate(t *testing.T) {
	cases := []struct {
		name string
		sb   *Storyboard
		ok   bool
	}{
		{"nil", nil, false},
		{"empty", &Storyboard{}, false},
		{"zero page number", &Storyboard{Pages: []Page{{PageNumber: 0}}}, false},
		{"duplicate", &Storyboard{Pages: []Page{{PageNumber: 1}, {PageNumber: 1}}}, false},
		{"ok", &Storyboard{Pages: []Page{{PageNumber: 1}, {PageNumber: 2}}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.sb.Validate()
			if (err == nil) != tc.ok {
				t.Fatalf("Validate() err = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestStoryboardWireFormat(t *testing.T) {
	raw := `{"title":"Robot","total_pages":2,"pages":[
		{"page_number":1,"layout_description":"grid","panels":[{"panel_number":1,"description":"d","dialogue":"hi","shot_type":"Close"}]},
		{"page_number":2,"layout_description":"splash","panels":[]}]}`
	var sb Storyboard
	if err := json.Unmarshal([]byte(raw), &sb); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sb.TotalPages != 2 || len(sb.Pages) != 2 || sb.Pages[0].Panels[0].ShotType != "Close" {
		t.Fatalf("unexpected decode: %+v", sb)
	}
	if sb.PageByNumber(2) != 1 || sb.PageByNumber(9) != -1 {
		t.Fatalf("PageByNumber lookup wrong")
	}
}

func TestStyleConfig(t *testing.T) {
	c := StyleConfig{StyleText: " manga ", ExtraPrompt: "dark ", AspectRatio: "3:2", ImageSize: "8K"}
	if got := c.CombinedStyle(); got != "manga  dark" {
		t.Fatalf("CombinedStyle = %q", got)
	}
	n := c.Normalized()
	if n.AspectRatio != Aspect9x16 || n.ImageSize != Size2K {
		t.Fatalf("Normalized = %+v", n)
	}
	if (StyleConfig{}).CombinedStyle() != "" {
		t.Fatalf("empty style should combine to empty string")
	}
	for _, a := range AspectRatios {
		if !a.Valid() || a.Label() == string(a) {
			t.Fatalf("aspect %q should be valid with a label", a)
		}
	}
}
