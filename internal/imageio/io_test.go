// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package imageio

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestLoadBytes(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	src.Set(1, 1, color.RGBA{R: 200, G: 10, B: 30, A: 255})

	img, err := LoadBytes(encodePNG(t, src))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if img.Bounds() != src.Bounds() {
		t.Errorf("expected bounds %v, got %v", src.Bounds(), img.Bounds())
	}
	if got := img.RGBAAt(1, 1); got != src.RGBAAt(1, 1) {
		t.Errorf("expected pixel %v, got %v", src.RGBAAt(1, 1), got)
	}
}

func TestLoadBytesEmpty(t *testing.T) {
	if _, err := LoadBytes(nil); !errors.Is(err, ErrEmptyData) {
		t.Fatalf("expected ErrEmptyData, got %v", err)
	}
}

func TestLoadBytesGarbage(t *testing.T) {
	if _, err := LoadBytes([]byte("not an image")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tex.png")
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	if err := os.WriteFile(path, encodePNG(t, src), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	img, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Bounds().Dx() != 2 || img.Bounds().Dy() != 2 {
		t.Errorf("unexpected bounds %v", img.Bounds())
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestToRGBA(t *testing.T) {
	// Zero-origin RGBA passes through untouched.
	rgba := image.NewRGBA(image.Rect(0, 0, 4, 4))
	if ToRGBA(rgba) != rgba {
		t.Error("expected identity for zero-origin RGBA")
	}

	// Other formats convert and rebase to (0,0).
	gray := image.NewGray(image.Rect(2, 2, 6, 6))
	gray.SetGray(3, 3, color.Gray{Y: 128})
	out := ToRGBA(gray)
	if out.Bounds() != image.Rect(0, 0, 4, 4) {
		t.Fatalf("expected rebased bounds, got %v", out.Bounds())
	}
	if got := out.RGBAAt(1, 1); got.R != 128 {
		t.Errorf("expected gray 128 at (1,1), got %v", got)
	}
}

func TestDownscale(t *testing.T) {
	tests := []struct {
		name         string
		w, h, maxDim int
		wantW, wantH int
	}{
		{"within cap", 64, 32, 128, 64, 32},
		{"wide", 256, 64, 128, 128, 32},
		{"tall", 64, 256, 128, 32, 128},
		{"square", 512, 512, 64, 64, 64},
		{"no cap", 512, 512, 0, 512, 512},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := image.NewRGBA(image.Rect(0, 0, tt.w, tt.h))
			out := Downscale(src, tt.maxDim)
			if out.Bounds().Dx() != tt.wantW || out.Bounds().Dy() != tt.wantH {
				t.Errorf("expected %dx%d, got %dx%d",
					tt.wantW, tt.wantH, out.Bounds().Dx(), out.Bounds().Dy())
			}
		})
	}

	if Downscale(nil, 64) != nil {
		t.Error("expected nil passthrough")
	}
}
