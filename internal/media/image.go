package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register decoder
	"net/http"

	"github.com/nfnt/resize"

	"github.com/example/retail-orders/internal/apperr"
)

const (
	// MaxImageWidth is the width product images are scaled down to.
	MaxImageWidth = 800
	jpegQuality   = 80

	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
	ContentTypePDF  = "application/pdf"
)

var ErrUnsupportedImage = fmt.Errorf("%w: unsupported image format, only PNG and JPEG are allowed", apperr.ErrInvalidInput)

// NormalizeImage decodes a PNG or JPEG, shrinks it to MaxImageWidth keeping
// the aspect ratio and re-encodes it as JPEG.
func NormalizeImage(data []byte) ([]byte, error) {
	switch DetectContentType(data) {
	case ContentTypeJPEG, ContentTypePNG:
	default:
		return nil, ErrUnsupportedImage
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Join(ErrUnsupportedImage, err)
	}

	if img.Bounds().Dx() > MaxImageWidth {
		img = resize.Resize(MaxImageWidth, 0, img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// DetectContentType sniffs the leading bytes of data.
func DetectContentType(data []byte) string {
	return http.DetectContentType(data)
}

// Extension returns the file extension used when storing content of type ct.
func Extension(ct string) string {
	switch ct {
	case ContentTypeJPEG:
		return ".jpg"
	case ContentTypePNG:
		return ".png"
	case ContentTypePDF:
		return ".pdf"
	default:
		return ""
	}
}
