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
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// PNGOptions controls loose-file export.
// - Convert: re-encode non-PNG pages as PNG instead of writing them in their own format
// - Pattern: file name with one %d for the page number; default manga_page_%d
//
//nolint:revive // clarity is preferred
type PNGOptions struct {
	Convert bool
	Pattern string
}

// ExportPages writes each page image to its own file in outDir and returns the paths written.
func ExportPages(pages []PageImage, outDir string, opt PNGOptions) ([]string, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no generated pages to export")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure out dir: %w", err)
	}
	pattern := opt.Pattern
	if pattern == "" {
		pattern = "manga_page_%d"
	}
	paths := make([]string, 0, len(pages))
	for _, p := range pages {
		data, ext := p.Data, p.Ext()
		if opt.Convert && p.Format != "png" {
			conv, err := toPNG(p.Data)
			if err != nil {
				return paths, fmt.Errorf("page %d: %w", p.Number, err)
			}
			data, ext = conv, ".png"
		}
		out := filepath.Join(outDir, fmt.Sprintf(pattern, p.Number)+ext)
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return paths, fmt.Errorf("write page %d: %w", p.Number, err)
		}
		paths = append(paths, out)
	}
	return paths, nil
}

func toPNG(raw []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
