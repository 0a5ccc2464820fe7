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
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CBZOptions controls CBZ export behavior.
//
//nolint:revive // clarity
type CBZOptions struct {
	// RightToLeft marks the archive for manga reading order in ComicInfo.xml.
	RightToLeft bool
	// Convert re-encodes non-PNG pages as PNG.
	Convert bool
}

// ExportCBZ packages the page images into a CBZ (ZIP) archive and adds a
// ComicInfo.xml metadata manifest for reader compatibility.
func ExportCBZ(book Book, pages []PageImage, outPath string, opt CBZOptions) error {
	if len(pages) == 0 {
		return fmt.Errorf("no generated pages to export")
	}
	if !strings.HasSuffix(strings.ToLower(outPath), ".cbz") {
		outPath = outPath + ".cbz"
	}
	zw, f, err := createZip(outPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	pad := len(fmt.Sprint(len(pages)))
	for i, p := range pages {
		data, ext := p.Data, p.Ext()
		if opt.Convert && p.Format != "png" {
			if data, err = toPNG(p.Data); err != nil {
				return fmt.Errorf("page %d: %w", p.Number, err)
			}
			ext = ".png"
		}
		name := fmt.Sprintf("%0*d%s", pad, i+1, ext)
		if err := addZipFile(zw, name, data); err != nil {
			return fmt.Errorf("zip add image: %w", err)
		}
	}

	manifest, merr := buildComicInfoXML(book, len(pages), opt.RightToLeft)
	if merr != nil {
		return fmt.Errorf("build manifest: %w", merr)
	}
	if err := addZipFile(zw, "ComicInfo.xml", []byte(manifest)); err != nil {
		return fmt.Errorf("zip add manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

func createZip(outPath string) (*zip.Writer, *os.File, error) {
	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return nil, nil, fmt.Errorf("create cbz: %w", err)
	}
	return zip.NewWriter(f), f, nil
}

func addZipFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func buildComicInfoXML(book Book, pageCount int, rtl bool) (string, error) {
	title := book.Title
	if title == "" {
		title = "Untitled"
	}
	series := book.Series
	if series == "" {
		series = title
	}
	reading := "LeftToRight"
	manga := "No"
	if rtl {
		reading = "RightToLeft"
		manga = "YesAndRightToLeft"
	}
	buf := &bytes.Buffer{}
	var werr error
	wf := func(format string, args ...any) {
		if werr != nil {
			return
		}
		_, werr = fmt.Fprintf(buf, format, args...)
	}
	wf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	wf("<ComicInfo xmlns:xsi=\"http://www.w3.org/2001/XMLSchema-instance\">\n")
	wf("  <Series>%s</Series>\n", xmlEsc(series))
	wf("  <Title>%s</Title>\n", xmlEsc(title))
	wf("  <PageCount>%d</PageCount>\n", pageCount)
	if book.Writer != "" {
		wf("  <Summary>%s</Summary>\n", xmlEsc(book.Writer))
	}
	wf("  <Manga>%s</Manga>\n", manga)
	wf("  <ReadingDirection>%s</ReadingDirection>\n", reading)
	wf("</ComicInfo>\n")
	if werr != nil {
		return "", fmt.Errorf("build xml: %w", werr)
	}
	return buf.String(), nil
}

func xmlEsc(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&apos;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
