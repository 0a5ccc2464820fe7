/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package imaging handles reference-image uploads and decoding of generated
// page images.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoders
	"image/jpeg"
	"image/png"
	"net/http"
	"os"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MaxUploadBytes bounds reference uploads read from disk.
	MaxUploadBytes = 20 << 20
	// MaxDimension is the longest edge kept for uploads; larger images are scaled down.
	MaxDimension = 2048
)

var (
	ErrTooLarge    = errors.New("image file too large")
	ErrUnsupported = errors.New("unsupported image format")
)

// Upload is an image prepared for the generation service.
type Upload struct {
	Base64  string // bare base64
	MIME    string
	Preview string // data URL
	Width   int
	Height  int
}

// StripDataURL removes a "data:<mime>;base64," prefix and returns the bare
// payload and the declared MIME type (empty when there was no prefix).
func StripDataURL(s string) (payload, mime string) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return s, ""
	}
	head, rest, ok := strings.Cut(s, ",")
	if !ok {
		return s, ""
	}
	mime = strings.TrimPrefix(head, "data:")
	mime, _, _ = strings.Cut(mime, ";")
	return rest, mime
}

// DataURL builds a data URL for display. An empty mime defaults to PNG.
func DataURL(b64, mime string) string {
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + b64
}

// ReadUpload loads an image file for use as a reference.
func ReadUpload(path string) (Upload, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Upload{}, fmt.Errorf("read upload: %w", err)
	}
	if st.Size() > MaxUploadBytes {
		return Upload{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, st.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Upload{}, fmt.Errorf("read upload: %w", err)
	}
	return PrepareUpload(data)
}

// PrepareUpload validates raw image bytes and base64-encodes them. Images with
// an edge longer than MaxDimension are scaled down and re-encoded.
func PrepareUpload(data []byte) (Upload, error) {
	if len(data) > MaxUploadBytes {
		return Upload{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Upload{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	mime := http.DetectContentType(data)
	if cfg.Width > MaxDimension || cfg.Height > MaxDimension {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return Upload{}, fmt.Errorf("decode upload: %w", err)
		}
		scaled := Fit(img, MaxDimension)
		var buf bytes.Buffer
		if format == "jpeg" {
			err = jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: 90})
			mime = "image/jpeg"
		} else {
			err = png.Encode(&buf, scaled)
			mime = "image/png"
		}
		if err != nil {
			return Upload{}, fmt.Errorf("encode upload: %w", err)
		}
		data = buf.Bytes()
		b := scaled.Bounds()
		cfg.Width, cfg.Height = b.Dx(), b.Dy()
	}
	b64 := base64.StdEncoding.EncodeToString(data)
	return Upload{Base64: b64, MIME: mime, Preview: DataURL(b64, mime), Width: cfg.Width, Height: cfg.Height}, nil
}

// Fit scales img down so that its longest edge is at most maxEdge.
// Smaller images are returned unchanged.
func Fit(img image.Image, maxEdge int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxEdge <= 0 || (w <= maxEdge && h <= maxEdge) {
		return img
	}
	if w >= h {
		h = max(1, h*maxEdge/w)
		w = maxEdge
	} else {
		w = max(1, w*maxEdge/h)
		h = maxEdge
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// DecodeBase64 decodes a generated image. Data-URL prefixes are accepted.
func DecodeBase64(s string) (image.Image, string, error) {
	raw, err := DecodeBytes(s)
	if err != nil {
		return nil, "", err
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return img, format, nil
}

// DecodeBytes returns the raw bytes of a base64 image, with or without a data-URL prefix.
func DecodeBytes(s string) ([]byte, error) {
	payload, _ := StripDataURL(s)
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if raw2, err2 := base64.RawStdEncoding.DecodeString(payload); err2 == nil {
			return raw2, nil
		}
		return nil, fmt.Errorf("decode base64 image: %w", err)
	}
	return raw, nil
}

// Dimensions reports size and format of raw image bytes without a full decode.
func Dimensions(raw []byte) (w, h int, format string, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return 0, 0, "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return cfg.Width, cfg.Height, format, nil
}
