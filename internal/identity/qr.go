package identity

import (
	"errors"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultQRSize = 256

// RenderQR encodes token as a PNG QR code of size x size pixels.
func RenderQR(token string, size int) ([]byte, error) {
	if token == "" {
		return nil, errors.New("token is required")
	}
	if size <= 0 {
		size = defaultQRSize
	}
	return qrcode.Encode(token, qrcode.Medium, size)
}
