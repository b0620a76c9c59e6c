package imageprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"net/http"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2/log"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

const (
	ThumbnailWidth = 512
	webpQuality    = 85

	// MaxSourceBytes caps what the persistence job will download and decode.
	MaxSourceBytes = 20 << 20
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

// Result is the processed form of a generated image.
type Result struct {
	Width       int
	Height      int
	ContentType string
	Ext         string
	Thumbnail   []byte // WebP
}

// Process decodes a generated image, applies its EXIF orientation and
// renders a WebP thumbnail. The original bytes are left untouched.
func Process(data []byte) (*Result, error) {
	contentType := http.DetectContentType(data)
	ext, ok := extensions[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, contentType)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error decoding image: %w", err)
	}
	img = applyOrientation(img, readOrientation(data))

	res := &Result{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		ContentType: contentType,
		Ext:         ext,
	}

	thumb := img
	if res.Width > ThumbnailWidth {
		thumb = imaging.Resize(img, ThumbnailWidth, 0, imaging.Lanczos)
	}
	res.Thumbnail, err = encodeWebP(thumb)
	if err != nil {
		return nil, err
	}

	log.Debugf("[ImageProcessor] %dx%d %s, thumbnail %d bytes", res.Width, res.Height, contentType, len(res.Thumbnail))
	return res, nil
}

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

func encodeWebP(img image.Image) ([]byte, error) {
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, webpQuality)
	if err != nil {
		return nil, fmt.Errorf("error creating encoder options: %w", err)
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, options); err != nil {
		return nil, fmt.Errorf("error encoding WebP image: %w", err)
	}
	return buf.Bytes(), nil
}
