/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package views holds the toolkit-independent models behind each wizard screen.
// internal/ui renders them; tests drive them directly.
package views

import (
	"strings"

	"mangawizard/internal/wizard"
)

// StepItem is one entry of the step indicator.
type StepItem struct {
	Step      wizard.Step
	Label     string
	Active    bool
	Done      bool
	Clickable bool
}

// Steps builds the step indicator for the current step. Only earlier steps are clickable.
func Steps(current wizard.Step) []StepItem {
	out := make([]StepItem, 0, 4)
	for s := wizard.StepStart; s <= wizard.StepGallery; s++ {
		out = append(out, StepItem{
			Step:      s,
			Label:     s.String(),
			Active:    s == current,
			Done:      s < current,
			Clickable: s < current,
		})
	}
	return out
}

// StartForm is the prompt entry on the first step.
type StartForm struct {
	Prompt string
}

// CanSubmit reports whether the generate button is enabled.
func (f StartForm) CanSubmit(st wizard.State) bool {
	return strings.TrimSpace(f.Prompt) != "" && !st.Loading
}

// StatusLine describes storyboard streaming progress for the start step.
func StatusLine(st wizard.State) string {
	switch {
	case st.Connecting():
		return "Connecting…"
	case st.Loading && st.Step == wizard.StepStart:
		return "Generating storyboard…"
	case st.Loading && st.Operation != "":
		return "Working…"
	default:
		return ""
	}
}
