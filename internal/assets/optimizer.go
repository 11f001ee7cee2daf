// Package assets optimizes image assets and copies everything else into the
// output directory.
package assets

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/conneroisu/koisite/internal/minify"
)

// Optimizer shrinks image data by file type.
type Optimizer struct {
	Minifier *minify.Minifier
	// JPEGQuality re-encodes JPEGs at this quality when greater than zero.
	JPEGQuality int
	// Disabled turns Optimize into a copy.
	Disabled bool
}

// NewOptimizer returns an Optimizer with its own minifier.
func NewOptimizer(jpegQuality int) *Optimizer {
	return &Optimizer{Minifier: minify.New(), JPEGQuality: jpegQuality}
}

// Optimize returns the optimized bytes for the file at path. The returned
// slice may be data itself when nothing smaller could be produced.
func (o *Optimizer) Optimize(path string, data []byte) ([]byte, error) {
	if o.Disabled {
		return data, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return smallest(data, o.png)
	case ".jpg", ".jpeg":
		if o.JPEGQuality <= 0 {
			return data, nil
		}
		return smallest(data, o.jpeg)
	case ".svg":
		if o.Minifier == nil {
			return data, nil
		}
		out, err := o.Minifier.SVG(data)
		if err != nil {
			return nil, fmt.Errorf("optimize %s: %w", path, err)
		}
		return out, nil
	}

	return data, nil
}

func smallest(data []byte, encode func([]byte) ([]byte, error)) ([]byte, error) {
	out, err := encode(data)
	if err != nil {
		return nil, err
	}
	if len(out) < len(data) {
		return out, nil
	}
	return data, nil
}

func (o *Optimizer) png(data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (o *Optimizer) jpeg(data []byte) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: o.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
