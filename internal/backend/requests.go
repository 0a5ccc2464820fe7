/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"encoding/json"

	"mangawizard/internal/domain"
)

// StoryboardRequest is the body of the storyboard endpoints.
type StoryboardRequest struct {
	Prompt         string `json:"prompt"`
	ReferenceStyle string `json:"reference_style"`
	AspectRatio    string `json:"aspect_ratio"`
}

// PagePayload is a page as sent to the service. CustomPrompt replaces the
// prompt the service would otherwise derive from the panels.
type PagePayload struct {
	PageNumber        int            `json:"page_number"`
	LayoutDescription string         `json:"layout_description"`
	Panels            []domain.Panel `json:"panels"`
	CustomPrompt      string         `json:"_custom_prompt,omitempty"`
}

// NewPagePayload converts a domain page. An empty prompt leaves _custom_prompt unset.
func NewPagePayload(p domain.Page, prompt string) PagePayload {
	panels := p.Panels
	if panels == nil {
		panels = []domain.Panel{}
	}
	return PagePayload{
		PageNumber:        p.PageNumber,
		LayoutDescription: p.LayoutDescription,
		Panels:            panels,
		CustomPrompt:      prompt,
	}
}

// BatchRequest is the body of POST /generate/pages/batch.
type BatchRequest struct {
	Pages                     []PagePayload `json:"pages"`
	StyleReference            string        `json:"style_reference"`
	AspectRatio               string        `json:"aspect_ratio"`
	ImageSize                 string        `json:"image_size"`
	StyleReferenceImageBase64 NullString    `json:"style_reference_image_base64"`
	ReferencePrompt           NullString    `json:"reference_prompt"`
	ExtraReferenceImageBase64 string        `json:"extra_reference_image_base64,omitempty"`
}

// PageRequest is the body of POST /generate/page/stream.
type PageRequest struct {
	Page                      PagePayload `json:"page"`
	StyleReference            string      `json:"style_reference"`
	AspectRatio               string      `json:"aspect_ratio"`
	ImageSize                 string      `json:"image_size"`
	StyleReferenceImageBase64 NullString  `json:"style_reference_image_base64"`
	ReferencePrompt           NullString  `json:"reference_prompt"`
	ExtraReferenceImageBase64 string      `json:"extra_reference_image_base64,omitempty"`
}

// PageResult is one entry of a batch response. An empty Image means the page failed.
type PageResult struct {
	PageNumber int    `json:"page_number"`
	Image      string `json:"image"`
}

type batchResponse struct {
	Results []PageResult `json:"results"`
}

// ResultsByPage indexes batch results by page number, skipping entries without an image.
func ResultsByPage(results []PageResult) map[int]string {
	m := make(map[int]string, len(results))
	for _, r := range results {
		if r.Image != "" {
			m[r.PageNumber] = r.Image
		}
	}
	return m
}

// NullString marshals to JSON null when empty.
type NullString string

func (s NullString) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

func (s *NullString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = ""
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = NullString(v)
	return nil
}
