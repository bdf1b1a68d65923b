package media

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
)

// Size caps and bounding boxes for server imagery. Images are decoded and
// re-encoded so stored bytes never carry the original file's metadata or
// any crafted payload.
const (
	MaxIconBytes   = 2 << 20   // 2 MiB
	MaxBannerBytes = 800 << 10 // 800 KiB

	iconBound   = 512
	bannerBound = 1600
)

// ErrNotAnImage is returned when the upload does not decode as a raster
// image.
var ErrNotAnImage = errors.New("file is not a decodable image")

// ProcessedImage is a re-encoded upload ready for storage.
type ProcessedImage struct {
	Data        []byte
	ContentType string
	Ext         string
}

// ProcessIcon validates, resizes, and re-encodes a server icon. Icons keep
// transparency, so they encode as PNG fitted inside 512px.
func ProcessIcon(data []byte) (*ProcessedImage, error) {
	return processImage(data, MaxIconBytes, iconBound, imaging.PNG, "image/png", ".png")
}

// ProcessBanner validates, resizes, and re-encodes a banner image, fitted
// inside 1600px and encoded as JPEG.
func ProcessBanner(data []byte) (*ProcessedImage, error) {
	return processImage(data, MaxBannerBytes, bannerBound, imaging.JPEG, "image/jpeg", ".jpg")
}

func processImage(data []byte, maxBytes int64, bound int, format imaging.Format, contentType, ext string) (*ProcessedImage, error) {
	if int64(len(data)) > maxBytes {
		return nil, ErrFileTooLarge
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, ErrNotAnImage
	}

	if img.Bounds().Dx() > bound || img.Bounds().Dy() > bound {
		img = imaging.Fit(img, bound, bound, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return &ProcessedImage{Data: buf.Bytes(), ContentType: contentType, Ext: ext}, nil
}
