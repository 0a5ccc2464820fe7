/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"sync"

	"mangawizard/internal/domain"
	"mangawizard/internal/wizard"
)

// Event names emitted for the wizard.
const (
	EventStep                = "wizard.step"
	EventStoryboardGenerated = "storyboard.generated"
	EventPagesGenerated      = "pages.generated"
	EventGenerationFailed    = "generation.failed"
)

// WizardObserver turns controller snapshots into anonymous events. Only counts,
// step names and style presets are reported, never prompts or images.
type WizardObserver struct {
	c *Client

	mu       sync.Mutex
	seen     bool
	rev      uint64
	step     wizard.Step
	loading  bool
	op       string
	hadBoard bool
}

// NewWizardObserver returns an observer sending through c.
func NewWizardObserver(c *Client) *WizardObserver { return &WizardObserver{c: c} }

// Observe is meant to be passed to wizard.Controller.Subscribe.
func (o *WizardObserver) Observe(st wizard.State) {
	if !o.c.Enabled() {
		return
	}
	o.mu.Lock()
	if o.seen && st.Revision <= o.rev {
		o.mu.Unlock()
		return
	}
	prevStep, prevLoading, prevOp, hadBoard, first := o.step, o.loading, o.op, o.hadBoard, !o.seen
	o.seen, o.rev, o.step, o.loading, o.op = true, st.Revision, st.Step, st.Loading, st.Operation
	o.hadBoard = st.Storyboard != nil
	o.mu.Unlock()

	if !first && st.Step != prevStep {
		o.c.Event(EventStep, map[string]any{"from": prevStep.String(), "to": st.Step.String()})
	}
	if !hadBoard && st.Storyboard != nil {
		o.c.Event(EventStoryboardGenerated, map[string]any{
			"pages":        len(st.Storyboard.Pages),
			"aspect_ratio": string(st.Style.AspectRatio),
			"image_size":   string(st.Style.ImageSize),
			"style_image":  st.Style.StyleImage != "",
		})
	}
	if prevLoading && !st.Loading && prevOp != "" {
		o.finished(prevOp, st)
	}
}

func (o *WizardObserver) finished(op string, st wizard.State) {
	var done, failed int
	for _, p := range st.Pages {
		switch p.Status {
		case domain.StatusCompleted:
			done++
		case domain.StatusFailed:
			failed++
		}
	}
	props := map[string]any{"op": op, "completed": done, "failed": failed, "step": st.Step.String()}
	if op != "start_story" {
		o.c.Event(EventPagesGenerated, props)
	}
	if failed > 0 || (op == "start_story" && st.Storyboard == nil) {
		o.c.Event(EventGenerationFailed, map[string]any{"op": op, "step": st.Step.String()})
	}
}
