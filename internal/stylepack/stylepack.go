/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package stylepack shares sidebar style settings as a small zip archive:
// a manifest, style.json and the optional reference image.
package stylepack

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mangawizard/internal/domain"
	"mangawizard/internal/imaging"
	applog "mangawizard/internal/log"
	"mangawizard/internal/version"
)

const (
	manifestName = "stylepack.manifest.txt"
	styleName    = "style.json"
	refBaseName  = "reference"
	// maxStyleJSON bounds style.json; the image is bounded by imaging.MaxUploadBytes.
	maxStyleJSON = 1 << 20
)

var ErrNoStyle = errors.New("style pack has no style.json")

type packedStyle struct {
	Version     int    `json:"version"`
	StyleText   string `json:"style_text"`
	ExtraPrompt string `json:"extra_prompt"`
	AspectRatio string `json:"aspect_ratio"`
	ImageSize   string `json:"image_size"`
	Reference   string `json:"reference,omitempty"` // file name inside the archive
}

// Export writes cfg into destZipPath. The reference image is stored as a plain image file.
func Export(cfg domain.StyleConfig, destZipPath string) error {
	l := applog.WithOperation(applog.WithComponent("stylepack"), "export").With(slog.String("zip", destZipPath))
	if strings.TrimSpace(destZipPath) == "" {
		return errors.New("destZipPath is required")
	}
	cfg = cfg.Normalized()
	ps := packedStyle{
		Version:     1,
		StyleText:   cfg.StyleText,
		ExtraPrompt: cfg.ExtraPrompt,
		AspectRatio: string(cfg.AspectRatio),
		ImageSize:   string(cfg.ImageSize),
	}
	var ref []byte
	if cfg.StyleImage != "" {
		raw, err := imaging.DecodeBytes(cfg.StyleImage)
		if err != nil {
			return fmt.Errorf("style image: %w", err)
		}
		_, _, format, err := imaging.Dimensions(raw)
		if err != nil {
			return fmt.Errorf("style image: %w", err)
		}
		ref = raw
		ps.Reference = refBaseName + "." + format
	}

	if err := os.MkdirAll(filepath.Dir(destZipPath), 0o755); err != nil {
		return fmt.Errorf("ensure zip dir: %w", err)
	}
	// On Windows, remove destination if present before create
	_ = os.Remove(destZipPath)
	zf, err := os.Create(destZipPath)
	if err != nil {
		return fmt.Errorf("create zip: %w", err)
	}
	zw := zip.NewWriter(zf)

	manifest := fmt.Sprintf("Manga Wizard Style Pack\nCreated: %s\nVersion: %s\n", time.Now().Format(time.RFC3339), version.String())
	js, err := json.MarshalIndent(ps, "", "  ")
	if err == nil {
		err = addFile(zw, manifestName, []byte(manifest))
	}
	if err == nil {
		err = addFile(zw, styleName, js)
	}
	if err == nil && ref != nil {
		err = addFile(zw, ps.Reference, ref)
	}
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	if cerr := zf.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		l.Error("zip build failed", slog.Any("err", err))
		return fmt.Errorf("build zip: %w", err)
	}
	l.Info("style pack exported", slog.Bool("reference", ref != nil))
	return nil
}

func addFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Import reads a pack written by Export. Unknown enum values fall back to defaults;
// a missing or unreadable reference image is skipped with a warning.
func Import(packZipPath string) (domain.StyleConfig, error) {
	l := applog.WithOperation(applog.WithComponent("stylepack"), "import").With(slog.String("zip", packZipPath))
	if strings.TrimSpace(packZipPath) == "" {
		return domain.StyleConfig{}, errors.New("packZipPath is required")
	}
	r, err := zip.OpenReader(packZipPath)
	if err != nil {
		return domain.StyleConfig{}, fmt.Errorf("open pack: %w", err)
	}
	defer func() { _ = r.Close() }()

	files := map[string]*zip.File{}
	for _, f := range r.File {
		// only flat names are meaningful; anything nested is ignored
		if f.FileInfo().IsDir() || strings.ContainsAny(f.Name, `/\`) {
			continue
		}
		files[f.Name] = f
	}
	sf, ok := files[styleName]
	if !ok {
		return domain.StyleConfig{}, ErrNoStyle
	}
	raw, err := readLimited(sf, maxStyleJSON)
	if err != nil {
		return domain.StyleConfig{}, err
	}
	var ps packedStyle
	if err := json.Unmarshal(raw, &ps); err != nil {
		return domain.StyleConfig{}, fmt.Errorf("parse %s: %w", styleName, err)
	}
	cfg := domain.StyleConfig{
		StyleText:   ps.StyleText,
		ExtraPrompt: ps.ExtraPrompt,
		AspectRatio: domain.AspectRatio(ps.AspectRatio),
		ImageSize:   domain.ImageSize(ps.ImageSize),
	}.Normalized()

	if ps.Reference != "" {
		rf, ok := files[ps.Reference]
		if !ok {
			l.Warn("reference image missing from pack", slog.String("name", ps.Reference))
			return cfg, nil
		}
		data, err := readLimited(rf, imaging.MaxUploadBytes)
		if err != nil {
			return cfg, err
		}
		up, err := imaging.PrepareUpload(data)
		if err != nil {
			l.Warn("reference image skipped", slog.Any("err", err))
			return cfg, nil
		}
		cfg.StyleImage, cfg.StyleImagePreview = up.Base64, up.Preview
	}
	l.Info("style pack imported", slog.Bool("reference", cfg.StyleImage != ""))
	return cfg, nil
}

func readLimited(f *zip.File, limit int64) ([]byte, error) {
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%s: %w", f.Name, imaging.ErrTooLarge)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%s: %w", f.Name, imaging.ErrTooLarge)
	}
	return b, nil
}
