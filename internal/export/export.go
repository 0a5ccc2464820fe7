/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package export writes generated manga pages to disk: loose image files,
// a CBZ archive or a single PDF.
package export

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"mangawizard/internal/domain"
	"mangawizard/internal/imaging"
)

// PageImage is a decoded page ready for export.
type PageImage struct {
	Number int
	Data   []byte // encoded image as returned by the service
	Format string // png, jpeg, gif, webp, bmp
	Width  int
	Height int
}

// Ext is the file extension matching Format.
func (p PageImage) Ext() string {
	switch p.Format {
	case "jpeg":
		return ".jpg"
	case "":
		return ".png"
	default:
		return "." + p.Format
	}
}

// Book describes what is being exported.
type Book struct {
	Title  string
	Series string
	Writer string // story prompt, used as summary
	Pages  []domain.Page
}

// Collect decodes every page that has an image. Pages without an image are
// skipped; a page whose image cannot be decoded fails the whole call.
func Collect(ctx context.Context, pages []domain.Page) ([]PageImage, error) {
	var todo []domain.Page
	for _, p := range pages {
		if p.HasImage() {
			todo = append(todo, p)
		}
	}
	out := make([]PageImage, len(todo))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for i, p := range todo {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			raw, err := imaging.DecodeBytes(p.ImageURL)
			if err != nil {
				return fmt.Errorf("page %d: %w", p.PageNumber, err)
			}
			w, h, format, err := imaging.Dimensions(raw)
			if err != nil {
				return fmt.Errorf("page %d: %w", p.PageNumber, err)
			}
			out[i] = PageImage{Number: p.PageNumber, Data: raw, Format: format, Width: w, Height: h}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Number < out[b].Number })
	return out, nil
}
