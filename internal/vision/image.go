package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrTooManyPixels is returned by DecodeBounded for images whose declared canvas exceeds the limit.
var ErrTooManyPixels = errors.New("image exceeds pixel limit")

// DecodeBounded reads the image header first and refuses canvases larger than
// maxPixels before any pixel data is allocated. maxPixels <= 0 disables the check.
func DecodeBounded(data []byte, maxPixels int64) (image.Image, string, error) {
	if maxPixels > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, "", err
		}
		if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
			return nil, "", fmt.Errorf("%w: %dx%d is %d pixels, limit %d", ErrTooManyPixels, cfg.Width, cfg.Height, pixels, maxPixels)
		}
	}
	return Decode(bytes.NewReader(data))
}

// Decode reads an uploaded image in any registered format (JPEG, PNG, GIF, BMP, TIFF, WebP).
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", err
	}
	return img, format, nil
}

// EncodePNG returns the lossless PNG encoding sent to the inference provider.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Downscale shrinks img so that its longer side is at most maxSide, keeping the aspect ratio.
// Images already within bounds, or maxSide <= 0, are returned unchanged.
func Downscale(img image.Image, maxSide int) image.Image {
	if maxSide <= 0 {
		return img
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}

	var dw, dh int
	if w >= h {
		dw = maxSide
		dh = h * maxSide / w
	} else {
		dh = maxSide
		dw = w * maxSide / h
	}
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
