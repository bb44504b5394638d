// Package qr renders payment QR codes into the public static directory.
package qr

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultSize = 256

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Renderer writes qr_<name>.png files and returns their public URLs.
type Renderer struct {
	dir     string
	baseURL string
	size    int
}

// NewRenderer serves files from dir, published at baseURL + "/static".
func NewRenderer(dir, baseURL string) *Renderer {
	return &Renderer{dir: dir, baseURL: baseURL, size: defaultSize}
}

// FileName is the static file name used for name.
func FileName(name string) string {
	return "qr_" + unsafeName.ReplaceAllString(name, "_") + ".png"
}

// Render encodes payload and returns the public URL of the image.
func (r *Renderer) Render(payload, name string) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("qr: create dir: %w", err)
	}
	file := FileName(name)
	if err := qrcode.WriteFile(payload, qrcode.Medium, r.size, filepath.Join(r.dir, file)); err != nil {
		return "", fmt.Errorf("qr: render %s: %w", file, err)
	}
	return r.baseURL + "/static/" + file, nil
}

// PNG encodes payload without touching the filesystem.
func PNG(payload string) ([]byte, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, defaultSize)
	if err != nil {
		return nil, fmt.Errorf("qr: encode: %w", err)
	}
	return png, nil
}
