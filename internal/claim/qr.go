package claim

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultQRSize is the PNG edge length in pixels.
const DefaultQRSize = 512

// RenderQR encodes payload as a PNG at the highest error-correction level so
// printed tickets still scan when creased.
func RenderQR(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, ErrInvalidPayload
	}
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(payload, qrcode.Highest, size)
	if err != nil {
		return nil, fmt.Errorf("render claim qr: %w", err)
	}
	return png, nil
}
