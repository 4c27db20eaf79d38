// Package images - Image decoding and the derived display and model artifacts.
package images

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Image describes a decoded source image file.
type Image struct {
	// The path the image was read from.
	Path string `json:"path" yaml:"path"`
	// The format reported by the decoder.
	Format ImageFormat `json:"format" yaml:"format"`
	// The file size in bytes.
	Size int64 `json:"size" yaml:"size"`
	// The width of the decoded image.
	Width int `json:"width" yaml:"width"`
	// The height of the decoded image.
	Height int `json:"height" yaml:"height"`
}

// Name returns the base name of the image path.
func (i Image) Name() string {
	return filepath.Base(i.Path)
}

// String formats the image as "name (format, WxH, size)".
func (i Image) String() string {
	return fmt.Sprintf("%s (%s, %dx%d, %s)", i.Name(), i.Format, i.Width, i.Height, humanSize(i.Size))
}

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatGIF is the GIF image format.
	FormatGIF ImageFormat = "gif"
	// FormatBMP is the BMP image format.
	FormatBMP ImageFormat = "bmp"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
)

// Extensions maps file extensions to the format they usually hold.
var Extensions = map[string]ImageFormat{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".gif":  FormatGIF,
	".bmp":  FormatBMP,
	".webp": FormatWebP,
}

// IsSupportedExtension reports whether path has an image file extension.
func IsSupportedExtension(path string) bool {
	_, ok := Extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}
