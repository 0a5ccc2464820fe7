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

import "strings"

// AspectRatio is one of the fixed page aspect ratios offered by the service.
type AspectRatio string

const (
	Aspect16x9 AspectRatio = "16:9"
	Aspect4x3  AspectRatio = "4:3"
	Aspect1x1  AspectRatio = "1:1"
	Aspect9x16 AspectRatio = "9:16"
)

// AspectRatios lists the selectable ratios in display order.
var AspectRatios = []AspectRatio{Aspect16x9, Aspect4x3, Aspect1x1, Aspect9x16}

// Valid reports whether a is one of AspectRatios.
func (a AspectRatio) Valid() bool {
	for _, v := range AspectRatios {
		if a == v {
			return true
		}
	}
	return false
}

// Label is the human-readable option text.
func (a AspectRatio) Label() string {
	switch a {
	case Aspect16x9:
		return "16:9 (Cinematic)"
	case Aspect4x3:
		return "4:3 (Standard)"
	case Aspect1x1:
		return "1:1 (Square)"
	case Aspect9x16:
		return "9:16 (Vertical)"
	}
	return string(a)
}

// ImageSize is the requested output resolution.
type ImageSize string

const (
	Size1K ImageSize = "1K"
	Size2K ImageSize = "2K"
	Size4K ImageSize = "4K"
)

// ImageSizes lists the selectable resolutions in display order.
var ImageSizes = []ImageSize{Size1K, Size2K, Size4K}

func (s ImageSize) Valid() bool { return s == Size1K || s == Size2K || s == Size4K }

func (s ImageSize) Label() string {
	switch s {
	case Size1K:
		return "1K (Standard)"
	case Size2K:
		return "2K (High)"
	case Size4K:
		return "4K (Ultra)"
	}
	return string(s)
}

// StyleConfig holds the sidebar settings. StyleImage is bare base64;
// StyleImagePreview keeps the original data URL for display.
type StyleConfig struct {
	StyleText         string
	ExtraPrompt       string
	AspectRatio       AspectRatio
	ImageSize         ImageSize
	StyleImage        string
	StyleImagePreview string
}

// DefaultStyle returns the settings used when nothing has been saved.
func DefaultStyle() StyleConfig {
	return StyleConfig{AspectRatio: Aspect9x16, ImageSize: Size2K}
}

// CombinedStyle joins the art style and the global extra prompt.
func (c StyleConfig) CombinedStyle() string {
	return strings.TrimSpace(c.StyleText + " " + c.ExtraPrompt)
}

// Normalized replaces invalid enum values with defaults.
func (c StyleConfig) Normalized() StyleConfig {
	d := DefaultStyle()
	if !c.AspectRatio.Valid() {
		c.AspectRatio = d.AspectRatio
	}
	if !c.ImageSize.Valid() {
		c.ImageSize = d.ImageSize
	}
	return c
}
