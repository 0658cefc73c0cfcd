package plot

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"

	jpegQuality = 98
)

type ImageFormat string

// FormatFromPath infers the image format from the file extension
func FormatFromPath(path string) (ImageFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return ImagePNG, nil
	case ".jpg", ".jpeg":
		return ImageJPEG, nil
	default:
		return "", fmt.Errorf("unsupported image file: %q", path)
	}
}

// Encode writes img to w in the given format
func Encode(w io.Writer, img image.Image, format ImageFormat) error {
	switch format {
	case ImagePNG:
		return png.Encode(w, img)
	case ImageJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	default:
		return fmt.Errorf("invalid image format: %s", format)
	}
}

// WriteFile encodes img into path, choosing the format by extension
func WriteFile(path string, img image.Image) (err error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating image file: %w", err)
	}
	defer func() {
		if cErr := out.Close(); cErr != nil {
			err = errors.Join(err, fmt.Errorf("error closing image file: %w", cErr))
		}
	}()

	return Encode(out, img, format)
}
