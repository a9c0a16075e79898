// Package qr renders attendance tokens as scannable QR images.
package qr

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const payloadPrefix = "attendance_token:"

// Renderer encodes token strings into PNG QR codes.
type Renderer struct {
	size int
}

// NewRenderer constructs a Renderer with the given image edge size in pixels.
func NewRenderer(size int) *Renderer {
	if size <= 0 {
		size = 256
	}
	return &Renderer{size: size}
}

// RenderPNG returns the PNG bytes for a token's QR code.
func (r *Renderer) RenderPNG(token string) ([]byte, error) {
	png, err := qrcode.Encode(payloadPrefix+token, qrcode.Low, r.size)
	if err != nil {
		return nil, fmt.Errorf("encode qr for token: %w", err)
	}
	return png, nil
}

// RenderBase64 returns the QR code PNG as a base64 string suitable for
// embedding in JSON responses or data URIs.
func (r *Renderer) RenderBase64(token string) (string, error) {
	png, err := r.RenderPNG(token)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
