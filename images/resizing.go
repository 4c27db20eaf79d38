package images

import (
	"image"

	"github.com/nfnt/resize"
)

// Thumbnail returns img scaled down so that neither side exceeds maxSize.
// The aspect ratio is preserved and images that already fit are returned
// unchanged.
//
// Arguments:
//   - img: The source image.
//   - maxSize: The bounding box side length in pixels.
//
// Returns:
//   - image.Image: The thumbnail.
//
// Example:
//
// ```go
//
//	thumb := Thumbnail(img, 350) // 1024x768 -> 350x262
//
// ```
func Thumbnail(img image.Image, maxSize int) image.Image {
	if maxSize <= 0 {
		return img
	}
	return resize.Thumbnail(uint(maxSize), uint(maxSize), img, resize.Lanczos3)
}
