/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	applog "mangawizard/internal/log"
)

// PresetName represents a named export preset.
type PresetName string

const (
	// PresetFiles is the plain "download all": one image file per page.
	PresetFiles PresetName = "files"
	// PresetReader produces archives for comic readers.
	PresetReader PresetName = "reader"
	// PresetAll writes every format.
	PresetAll PresetName = "all"
)

// BatchOptions controls a multi-format export of the completed pages.
//
// Outputs inside OutDir:
//   - png: manga_page_<n>.<ext> in OutDir/pages
//   - cbz: <slug>.cbz
//   - pdf: <slug>.pdf
//
//nolint:revive // keep fields explicit for clarity
type BatchOptions struct {
	Preset      PresetName
	Formats     []string // allowed: png, cbz, pdf; empty means preset defaults
	OutDir      string
	RightToLeft bool
}

// Result lists the files a batch export produced.
type Result struct {
	Files []string
	Pages int
}

// BatchExport decodes the book's completed pages and writes the requested formats.
func BatchExport(ctx context.Context, book Book, opt BatchOptions) (Result, error) {
	l := applog.WithComponent("export")
	if opt.OutDir == "" {
		return Result{}, fmt.Errorf("output directory is empty")
	}
	imgs, err := Collect(ctx, book.Pages)
	if err != nil {
		return Result{}, err
	}
	if len(imgs) == 0 {
		return Result{}, fmt.Errorf("no generated pages to export")
	}
	formats := opt.Formats
	if len(formats) == 0 {
		formats = presetDefaultFormats(opt.Preset)
	}
	slug := Slug(book.Title)
	res := Result{Pages: len(imgs)}
	for _, f := range formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "png":
			paths, err := ExportPages(imgs, filepath.Join(opt.OutDir, "pages"), PNGOptions{})
			res.Files = append(res.Files, paths...)
			if err != nil {
				return res, fmt.Errorf("png: %w", err)
			}
		case "cbz":
			out := filepath.Join(opt.OutDir, slug+".cbz")
			if err := ExportCBZ(book, imgs, out, CBZOptions{RightToLeft: opt.RightToLeft}); err != nil {
				return res, fmt.Errorf("cbz: %w", err)
			}
			res.Files = append(res.Files, out)
		case "pdf":
			out := filepath.Join(opt.OutDir, slug+".pdf")
			if err := ExportPDF(book, imgs, out, PDFOptions{}); err != nil {
				return res, fmt.Errorf("pdf: %w", err)
			}
			res.Files = append(res.Files, out)
		default:
			return res, fmt.Errorf("unknown format: %s", f)
		}
	}
	l.Info("export done", "dir", opt.OutDir, "pages", res.Pages, "files", len(res.Files))
	return res, nil
}

func presetDefaultFormats(p PresetName) []string {
	switch p {
	case PresetReader:
		return []string{"cbz", "pdf"}
	case PresetAll:
		return []string{"png", "cbz", "pdf"}
	default:
		return []string{"png"}
	}
}

// Slug turns a title into a file name stem.
func Slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		return "manga"
	}
	return s
}
