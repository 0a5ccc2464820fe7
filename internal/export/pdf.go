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
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jung-kurt/gofpdf"
)

// PDFOptions controls PDF export behavior. Units are points.
// Each page keeps the aspect ratio of its image; PageWidth fixes the width
// (default A4 width) and the height follows.
//
//nolint:revive // keep options grouped and explicit for clarity
type PDFOptions struct {
	PageWidth float64
	Margin    float64
}

// ExportPDF writes all page images into a single multi-page PDF at outPath.
func ExportPDF(book Book, pages []PageImage, outPath string, opt PDFOptions) error {
	if len(pages) == 0 {
		return fmt.Errorf("no generated pages to export")
	}
	width := opt.PageWidth
	if width <= 0 {
		width = 595.28
	}
	margin := opt.Margin
	if margin < 0 || 2*margin >= width {
		margin = 0
	}
	first := pages[0]
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: width, Ht: pageHeight(first, width, margin)},
	})
	title := book.Title
	if title == "" {
		title = "Manga"
	}
	pdf.SetTitle(title, true)
	pdf.SetAuthor("Manga Wizard", false)
	pdf.SetAutoPageBreak(false, 0)

	for _, p := range pages {
		data, typ := p.Data, pdfImageType(p.Format)
		if typ == "" {
			conv, err := toPNG(p.Data)
			if err != nil {
				return fmt.Errorf("page %d: %w", p.Number, err)
			}
			data, typ = conv, "PNG"
		}
		h := pageHeight(p, width, margin)
		pdf.AddPageFormat("", gofpdf.SizeType{Wd: width, Ht: h})
		name := fmt.Sprintf("page-%d", p.Number)
		opts := gofpdf.ImageOptions{ImageType: typ}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
		pdf.ImageOptions(name, margin, margin, width-2*margin, h-2*margin, false, opts, 0, "")
		if err := pdf.Error(); err != nil {
			return fmt.Errorf("page %d: %w", p.Number, err)
		}
	}

	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func pageHeight(p PageImage, width, margin float64) float64 {
	if p.Width <= 0 || p.Height <= 0 {
		return width * 16 / 9
	}
	inner := width - 2*margin
	return inner*float64(p.Height)/float64(p.Width) + 2*margin
}

// pdfImageType maps a decoded format to the types gofpdf embeds directly.
func pdfImageType(format string) string {
	switch format {
	case "png":
		return "PNG"
	case "jpeg":
		return "JPG"
	case "gif":
		return "GIF"
	default:
		return ""
	}
}
